package pairing

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	timer := &fakeTimer{clock: c, at: c.now.Add(d), fn: f}
	c.timers = append(c.timers, timer)
	return timer
}

// Advance moves time forward and fires due timers outside the clock lock.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []func()
	for _, timer := range c.timers {
		if !timer.stopped && !timer.fired && !timer.at.After(c.now) {
			timer.fired = true
			due = append(due, timer.fn)
		}
	}
	c.mu.Unlock()

	for _, fn := range due {
		fn()
	}
}

func (c *fakeClock) pendingTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, timer := range c.timers {
		if !timer.stopped && !timer.fired {
			n++
		}
	}
	return n
}

func TestGenerateCode(t *testing.T) {
	for i := 0; i < 100; i++ {
		code := GenerateCode()
		assert.Len(t, code, CodeLength)
		assert.Regexp(t, `^PARI-[0-9A-F]{4}$`, code)
		assert.True(t, LooksLikeCode(code))
	}
	assert.False(t, LooksLikeCode("PARI-12345"))
	assert.False(t, LooksLikeCode("hello PARI"))
}

func TestIssueAndConsumeOnce(t *testing.T) {
	clock := newFakeClock()
	registry := NewRegistry(Options{Clock: clock})

	entry, err := registry.Issue("12345678901")
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(DefaultTTL), entry.ExpiresAt)
	assert.Equal(t, 1, registry.Len())

	bound, ok := registry.TryConsume(entry.Code, "12345678901@s.whatsapp.net")
	require.True(t, ok)
	assert.Equal(t, "12345678901@s.whatsapp.net", bound.BoundIdentity)
	assert.Equal(t, 0, registry.Len())

	_, ok = registry.TryConsume(entry.Code, "12345678901@s.whatsapp.net")
	assert.False(t, ok)

	status, got := registry.Status(entry.Code)
	assert.Equal(t, StatusBound, status)
	assert.Equal(t, bound, got)
}

func TestTryConsumeTrimsAndRejectsMalformed(t *testing.T) {
	registry := NewRegistry(Options{Clock: newFakeClock()})
	entry, err := registry.Issue("")
	require.NoError(t, err)

	_, ok := registry.TryConsume("PARI-", "a@s.whatsapp.net")
	assert.False(t, ok)
	_, ok = registry.TryConsume("  "+entry.Code+"\n", "a@s.whatsapp.net")
	assert.True(t, ok)
}

func TestExpiredCodeIsRejectedBeforeSweep(t *testing.T) {
	clock := newFakeClock()
	registry := NewRegistry(Options{Clock: clock, TTL: time.Minute})
	entry, err := registry.Issue("12345678901")
	require.NoError(t, err)

	clock.mu.Lock()
	clock.now = clock.now.Add(time.Minute + time.Second)
	clock.mu.Unlock()

	assert.Equal(t, 1, registry.Len())
	_, ok := registry.TryConsume(entry.Code, "12345678901@s.whatsapp.net")
	assert.False(t, ok)
	assert.Equal(t, 0, registry.Len())
}

func TestExpiryTimerRemovesEntry(t *testing.T) {
	clock := newFakeClock()
	registry := NewRegistry(Options{Clock: clock})
	entry, err := registry.Issue("12345678901")
	require.NoError(t, err)

	clock.Advance(DefaultTTL + time.Second)

	_, ok := registry.TryConsume(entry.Code, "x@s.whatsapp.net")
	assert.False(t, ok)
	assert.Equal(t, 0, registry.Len())

	status, _ := registry.Status(entry.Code)
	assert.Equal(t, StatusUnknown, status)
}

func TestSweep(t *testing.T) {
	clock := newFakeClock()
	registry := NewRegistry(Options{Clock: clock})

	first, err := registry.Issue("")
	require.NoError(t, err)

	clock.mu.Lock()
	clock.now = clock.now.Add(3 * time.Minute)
	clock.mu.Unlock()

	second, err := registry.Issue("")
	require.NoError(t, err)

	clock.mu.Lock()
	clock.now = clock.now.Add(3 * time.Minute)
	clock.mu.Unlock()

	assert.Equal(t, 1, registry.Sweep())
	status, _ := registry.Status(first.Code)
	assert.Equal(t, StatusUnknown, status)
	status, _ = registry.Status(second.Code)
	assert.Equal(t, StatusPending, status)
}

func TestIssueRetriesOnCollision(t *testing.T) {
	codes := []string{"PARI-AAAA", "PARI-AAAA", "PARI-BBBB"}
	next := 0
	registry := NewRegistry(Options{
		Clock: newFakeClock(),
		Generate: func() string {
			code := codes[next]
			next++
			return code
		},
	})

	first, err := registry.Issue("")
	require.NoError(t, err)
	second, err := registry.Issue("")
	require.NoError(t, err)
	assert.Equal(t, "PARI-AAAA", first.Code)
	assert.Equal(t, "PARI-BBBB", second.Code)
}

func TestIssueGivesUpAfterMaxAttempts(t *testing.T) {
	registry := NewRegistry(Options{
		Clock:    newFakeClock(),
		Generate: func() string { return "PARI-AAAA" },
	})
	_, err := registry.Issue("")
	require.NoError(t, err)

	_, err = registry.Issue("")
	assert.ErrorIs(t, err, ErrCodeCollision)
}

func TestRequireSenderMatch(t *testing.T) {
	registry := NewRegistry(Options{Clock: newFakeClock(), RequireSenderMatch: true})
	entry, err := registry.Issue("12345678901")
	require.NoError(t, err)

	_, ok := registry.TryConsume(entry.Code, "19999999999@s.whatsapp.net")
	assert.False(t, ok)
	_, ok = registry.TryConsume(entry.Code, "12345678901:3@s.whatsapp.net")
	assert.True(t, ok)
}

func TestCancelAndClose(t *testing.T) {
	clock := newFakeClock()
	registry := NewRegistry(Options{Clock: clock})

	entry, err := registry.Issue("")
	require.NoError(t, err)
	assert.True(t, registry.Cancel(entry.Code))
	assert.False(t, registry.Cancel(entry.Code))

	_, err = registry.Issue("")
	require.NoError(t, err)
	registry.Close()
	assert.Equal(t, 0, registry.Len())
	assert.Equal(t, 0, clock.pendingTimers())

	_, err = registry.Issue("")
	assert.ErrorIs(t, err, ErrRegistryClosed)
}

func TestConcurrentConsumeSucceedsOnce(t *testing.T) {
	registry := NewRegistry(Options{Clock: newFakeClock()})
	entry, err := registry.Issue("")
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, ok := registry.TryConsume(entry.Code, fmt.Sprintf("%d@s.whatsapp.net", i)); ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}
