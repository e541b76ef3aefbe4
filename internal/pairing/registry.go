package pairing

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gdbrns/go-whatsapp-pair-bot/pkg/log"
	"github.com/gdbrns/go-whatsapp-pair-bot/pkg/whatsapp"
)

const (
	CodePrefix = "PARI-"
	CodeLength = len(CodePrefix) + 4
	DefaultTTL = 5 * time.Minute

	maxIssueAttempts = 10
)

var (
	ErrCodeCollision  = errors.New("could not allocate a unique pairing code")
	ErrRegistryClosed = errors.New("pairing registry is closed")
)

type Status string

const (
	StatusPending Status = "pending"
	StatusBound   Status = "bound"
	StatusUnknown Status = "unknown"
)

type Entry struct {
	Code          string    `json:"code"`
	PhoneNumber   string    `json:"phoneNumber,omitempty"`
	ExpiresAt     time.Time `json:"expiresAt"`
	BoundIdentity string    `json:"boundIdentity,omitempty"`
}

// Expired reports whether the entry is past its deadline. The deadline itself is still valid.
func (e Entry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

type Options struct {
	TTL time.Duration
	// RequireSenderMatch restricts consumption of a code issued for a phone number to a
	// sender with that number.
	RequireSenderMatch bool
	Clock              Clock
	// Generate overrides code generation.
	Generate func() string
}

type liveEntry struct {
	entry Entry
	timer Timer
}

// Registry holds the live pairing codes. Every operation runs under one mutex.
type Registry struct {
	ttl          time.Duration
	requireMatch bool
	clock        Clock
	generate     func() string

	mu      sync.Mutex
	entries map[string]*liveEntry
	bound   map[string]Entry
	closed  bool
}

func NewRegistry(opts Options) *Registry {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.Generate == nil {
		opts.Generate = GenerateCode
	}
	return &Registry{
		ttl:          opts.TTL,
		requireMatch: opts.RequireSenderMatch,
		clock:        opts.Clock,
		generate:     opts.Generate,
		entries:      make(map[string]*liveEntry),
		bound:        make(map[string]Entry),
	}
}

// GenerateCode returns "PARI-" followed by four uppercase hex characters of a random UUID.
func GenerateCode() string {
	return CodePrefix + strings.ToUpper(uuid.NewString()[:4])
}

// LooksLikeCode is the cheap shape check done before any registry lookup.
func LooksLikeCode(text string) bool {
	return len(text) == CodeLength && strings.HasPrefix(text, CodePrefix)
}

func (r *Registry) TTL() time.Duration {
	return r.ttl
}

func (r *Registry) Issue(phone string) (Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return Entry{}, ErrRegistryClosed
	}

	for attempt := 0; attempt < maxIssueAttempts; attempt++ {
		code := r.generate()
		if _, exists := r.entries[code]; exists {
			continue
		}
		if _, exists := r.bound[code]; exists {
			continue
		}

		entry := Entry{
			Code:        code,
			PhoneNumber: phone,
			ExpiresAt:   r.clock.Now().Add(r.ttl),
		}
		live := &liveEntry{entry: entry}
		live.timer = r.clock.AfterFunc(r.ttl, func() {
			r.expire(code, entry.ExpiresAt)
		})
		r.entries[code] = live

		log.Pairing(code, phone).Info("pairing code issued")
		return entry, nil
	}

	return Entry{}, ErrCodeCollision
}

// TryConsume binds a live, unexpired code to identity and removes it. It succeeds at most
// once per issued code.
func (r *Registry) TryConsume(code string, identity string) (Entry, bool) {
	code = strings.TrimSpace(code)
	if !LooksLikeCode(code) {
		return Entry{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	live, ok := r.entries[code]
	if !ok {
		return Entry{}, false
	}
	if live.entry.Expired(r.clock.Now()) {
		r.removeLocked(code)
		return Entry{}, false
	}
	if r.requireMatch && live.entry.PhoneNumber != "" &&
		whatsapp.DecomposeJID(identity) != live.entry.PhoneNumber {
		log.Pairing(code, live.entry.PhoneNumber).Warn("pairing code sent from a different number")
		return Entry{}, false
	}

	entry := live.entry
	entry.BoundIdentity = identity
	r.removeLocked(code)
	r.bound[code] = entry

	log.Pairing(code, entry.PhoneNumber).WithField("identity", log.MaskPhone(identity)).Info("pairing code bound")
	return entry, true
}

// Cancel drops a live entry, used when the network request behind it failed.
func (r *Registry) Cancel(code string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[code]; !ok {
		return false
	}
	r.removeLocked(code)
	return true
}

// Sweep removes every expired entry and returns how many live codes were dropped.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	removed := 0
	for code, live := range r.entries {
		if live.entry.Expired(now) {
			r.removeLocked(code)
			removed++
		}
	}
	for code, entry := range r.bound {
		if entry.Expired(now) {
			delete(r.bound, code)
		}
	}
	return removed
}

func (r *Registry) Status(code string) (Status, Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	if live, ok := r.entries[code]; ok && !live.entry.Expired(now) {
		return StatusPending, live.entry
	}
	if entry, ok := r.bound[code]; ok && !entry.Expired(now) {
		return StatusBound, entry
	}
	return StatusUnknown, Entry{}
}

// Len counts live entries, including expired ones not yet swept.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for code := range r.entries {
		r.removeLocked(code)
	}
	r.bound = make(map[string]Entry)
	r.closed = true
}

func (r *Registry) expire(code string, deadline time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if live, ok := r.entries[code]; ok && live.entry.ExpiresAt.Equal(deadline) {
		delete(r.entries, code)
		log.Pairing(code, live.entry.PhoneNumber).Debug("pairing code expired")
	}
}

func (r *Registry) removeLocked(code string) {
	if live, ok := r.entries[code]; ok {
		if live.timer != nil {
			live.timer.Stop()
		}
		delete(r.entries, code)
	}
}
