package session

import (
	"context"
	"errors"
	"fmt"
	mathrand "math/rand/v2"
	"strings"
	"sync"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"

	"github.com/gdbrns/go-whatsapp-pair-bot/pkg/log"
	"github.com/gdbrns/go-whatsapp-pair-bot/pkg/whatsapp"
)

type Config struct {
	BackoffBase   time.Duration
	BackoffMax    time.Duration
	BackoffJitter time.Duration
	SendTimeout   time.Duration
	EventBuffer   int
}

func (c Config) withDefaults() Config {
	if c.BackoffBase <= 0 {
		c.BackoffBase = 2 * time.Second
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 30 * time.Second
	}
	if c.BackoffJitter < 0 {
		c.BackoffJitter = 0
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 30 * time.Second
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = 256
	}
	return c
}

type control int

const (
	controlReconnect control = iota
	controlTerminal
)

// Manager owns the single WhatsApp session. Network events are queued by the transport
// and handled one at a time by the loop goroutine, including any replies they send.
type Manager struct {
	transport Transport
	creds     CredentialStore
	confirmer Confirmer
	cfg       Config

	events   chan whatsapp.Event
	controls chan control
	done     chan struct{}
	stopped  chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once

	mu             sync.RWMutex
	phase          Phase
	attempts       int
	lastErr        string
	lastTransition time.Time
	handler        MessageHandler
	notifier       Notifier
	running        bool

	// loop goroutine only
	retryTimer *time.Timer
	retryC     <-chan time.Time
}

func NewManager(transport Transport, creds CredentialStore, confirmer Confirmer, cfg Config) *Manager {
	cfg = cfg.withDefaults()
	m := &Manager{
		transport:      transport,
		creds:          creds,
		confirmer:      confirmer,
		cfg:            cfg,
		events:         make(chan whatsapp.Event, cfg.EventBuffer),
		controls:       make(chan control, 1),
		done:           make(chan struct{}),
		stopped:        make(chan struct{}),
		phase:          PhaseDisconnected,
		lastTransition: time.Now(),
	}
	transport.SetEventSink(m.enqueue)
	return m
}

func (m *Manager) SetHandler(handler MessageHandler) {
	m.mu.Lock()
	m.handler = handler
	m.mu.Unlock()
}

func (m *Manager) SetNotifier(notifier Notifier) {
	m.mu.Lock()
	m.notifier = notifier
	m.mu.Unlock()
}

// Start launches the event loop and the first connection attempt. Later calls are no-ops.
func (m *Manager) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		m.mu.Lock()
		m.running = true
		m.mu.Unlock()
		go m.run(ctx)
	})
}

// Stop disconnects and ends the loop. Pending events are dropped.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.done)

		m.mu.RLock()
		running := m.running
		m.mu.RUnlock()
		if running {
			<-m.stopped
		}
		m.transport.Disconnect()
	})
}

func (m *Manager) Phase() Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.phase
}

func (m *Manager) IsRegistered() bool {
	return m.transport.IsRegistered()
}

// Stale reports a session that believes it is connecting or open while the socket is gone.
func (m *Manager) Stale() bool {
	phase := m.Phase()
	if phase != PhaseConnecting && phase != PhaseOpen {
		return false
	}
	return !m.transport.IsConnected()
}

func (m *Manager) OwnJID() types.JID {
	return m.transport.OwnJID()
}

func (m *Manager) Status() Status {
	m.mu.RLock()
	status := Status{
		Phase:          m.phase,
		Attempts:       m.attempts,
		LastError:      m.lastErr,
		LastTransition: m.lastTransition,
	}
	m.mu.RUnlock()

	status.Registered = m.transport.IsRegistered()
	status.Connected = m.transport.IsConnected()
	if jid := m.transport.OwnJID(); !jid.IsEmpty() {
		status.JID = jid.String()
	}
	return status
}

// RequestPairingCode asks the network for a link code for phone. It is only possible on an
// unregistered session that is connecting or open.
func (m *Manager) RequestPairingCode(ctx context.Context, phone string) (string, error) {
	if strings.TrimSpace(phone) == "" {
		return "", ErrInvalidInput
	}
	if m.transport.IsRegistered() {
		return "", fmt.Errorf("%w: device already registered", ErrPairingUnavailable)
	}
	phase := m.Phase()
	if phase != PhaseConnecting && phase != PhaseOpen {
		return "", fmt.Errorf("%w: phase is %s", ErrPairingUnavailable, phase)
	}

	code, err := m.transport.PairPhone(ctx, phone)
	if err != nil {
		return "", fmt.Errorf("%w: pair phone: %v", ErrTransient, err)
	}
	return code, nil
}

func (m *Manager) SendText(ctx context.Context, to types.JID, text string) error {
	return m.SendMessage(ctx, to, &waE2E.Message{Conversation: proto.String(text)})
}

func (m *Manager) SendMessage(ctx context.Context, to types.JID, msg *waE2E.Message) error {
	if _, err := m.transport.SendMessage(ctx, to, msg); err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailure, err)
	}
	return nil
}

func (m *Manager) Download(ctx context.Context, msg whatsmeow.DownloadableMessage) ([]byte, error) {
	return m.transport.Download(ctx, msg)
}

func (m *Manager) Upload(ctx context.Context, data []byte, mediaType whatsmeow.MediaType) (whatsmeow.UploadResponse, error) {
	return m.transport.Upload(ctx, data, mediaType)
}

// Reconnect forces a fresh connection cycle.
func (m *Manager) Reconnect() error {
	if m.Phase() == PhaseClosedTerminal {
		return ErrTerminalLogout
	}
	if !m.isRunning() {
		return ErrNotStarted
	}
	select {
	case m.controls <- controlReconnect:
	default:
	}
	return nil
}

// Logout unlinks the device on the network and leaves the session closed-terminal.
func (m *Manager) Logout(ctx context.Context) error {
	if m.Phase() == PhaseClosedTerminal {
		return ErrTerminalLogout
	}
	err := m.transport.Logout(ctx)
	if err != nil && !errors.Is(err, whatsapp.ErrNotRegistered) {
		return err
	}
	if m.isRunning() {
		select {
		case m.controls <- controlTerminal:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	}
	m.enterTerminal(ctx, "logout requested")
	return nil
}

func (m *Manager) isRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// enqueue is the transport sink. It never blocks the transport's goroutine.
func (m *Manager) enqueue(evt whatsapp.Event) {
	select {
	case <-m.done:
		return
	default:
	}
	select {
	case m.events <- evt:
	default:
		log.Session(string(m.Phase())).Warn("event queue full, dropping " + whatsapp.EventName(evt))
	}
}

func (m *Manager) run(ctx context.Context) {
	defer close(m.stopped)
	defer m.stopRetry()

	m.connect()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.done:
			return
		case <-m.retryC:
			m.retryC = nil
			m.connect()
		case ctl := <-m.controls:
			m.handleControl(ctx, ctl)
		case evt := <-m.events:
			m.dispatch(ctx, evt)
		}
	}
}

func (m *Manager) handleControl(ctx context.Context, ctl control) {
	switch ctl {
	case controlReconnect:
		if m.Phase() == PhaseClosedTerminal {
			return
		}
		m.stopRetry()
		m.transport.Disconnect()
		m.setPhase(PhaseDisconnected, "reconnect requested")
		m.connect()
	case controlTerminal:
		m.enterTerminal(ctx, "logout requested")
	}
}

// dispatch handles one event to completion, recovering from panics so the loop survives.
func (m *Manager) dispatch(ctx context.Context, evt whatsapp.Event) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Session(string(m.Phase())).Error(fmt.Sprintf("panic while handling %s event: %v", whatsapp.EventName(evt), rec))
		}
	}()

	switch e := evt.(type) {
	case whatsapp.ConnectedEvent:
		m.onConnected(ctx)
	case whatsapp.ClosedEvent:
		m.onClosed(ctx, e)
	case whatsapp.CredentialsUpdatedEvent:
		m.saveCredentials(ctx)
	case whatsapp.QREvent:
		log.Session(string(m.Phase())).Info("login QR code received; pair by phone or scan it")
	case whatsapp.MessageEvent:
		m.onMessage(ctx, e.Message)
	}
}

func (m *Manager) connect() {
	if m.Phase() == PhaseClosedTerminal {
		return
	}
	m.setPhase(PhaseConnecting, "")
	if err := m.transport.Connect(); err != nil {
		m.recordError(fmt.Errorf("%w: connect: %v", ErrTransient, err))
		m.setPhase(PhaseDisconnected, err.Error())
		m.scheduleRetry()
	}
}

func (m *Manager) onConnected(ctx context.Context) {
	if m.Phase() == PhaseClosedTerminal {
		return
	}
	m.stopRetry()
	m.mu.Lock()
	m.attempts = 0
	m.lastErr = ""
	m.mu.Unlock()
	m.setPhase(PhaseOpen, "")

	if m.transport.IsRegistered() {
		m.saveCredentials(ctx)
	}
}

func (m *Manager) onClosed(ctx context.Context, evt whatsapp.ClosedEvent) {
	phase := m.Phase()
	if phase == PhaseClosedTerminal {
		return
	}

	if evt.Reason.IsTerminal() {
		m.enterTerminal(ctx, evt.Detail)
		return
	}

	if phase == PhaseDisconnected && m.retryC != nil {
		return
	}

	m.recordError(fmt.Errorf("%w: %s %s", ErrTransient, evt.Reason, evt.Detail))
	m.transport.Disconnect()
	m.setPhase(PhaseDisconnected, string(evt.Reason))
	m.scheduleRetry()
}

func (m *Manager) enterTerminal(ctx context.Context, detail string) {
	m.stopRetry()
	m.transport.Disconnect()
	m.recordError(ErrTerminalLogout)
	m.setPhase(PhaseClosedTerminal, detail)
	log.Session(string(PhaseClosedTerminal)).Error("session logged out; credentials are invalid and the device must be paired again")

	deleteCtx, cancel := context.WithTimeout(ctx, m.cfg.SendTimeout)
	defer cancel()
	if err := m.creds.Delete(deleteCtx); err != nil {
		log.Session(string(PhaseClosedTerminal)).WithError(err).Warn("failed to delete stored credentials")
	}
}

func (m *Manager) onMessage(ctx context.Context, msg whatsapp.Message) {
	// Replies to status posts would be published as the bot's own status.
	if msg.Chat == types.StatusBroadcastJID {
		return
	}

	text := strings.TrimSpace(msg.Text)
	if m.confirmer != nil && text != "" {
		if entry, ok := m.confirmer.TryConsume(text, msg.PhoneSender().String()); ok {
			replyCtx, cancel := context.WithTimeout(ctx, m.cfg.SendTimeout)
			defer cancel()
			if err := m.SendText(replyCtx, msg.Chat, PairingAckText); err != nil {
				log.Pairing(entry.Code, entry.PhoneNumber).WithError(err).Warn("failed to acknowledge pairing")
			}
			if notifier := m.currentNotifier(); notifier != nil {
				notifier.PairingBound(entry)
			}
			return
		}
	}

	m.mu.RLock()
	handler := m.handler
	m.mu.RUnlock()
	if handler != nil {
		handler.HandleMessage(ctx, msg)
	}
}

func (m *Manager) saveCredentials(ctx context.Context) {
	saveCtx, cancel := context.WithTimeout(ctx, m.cfg.SendTimeout)
	defer cancel()
	if err := m.creds.Save(saveCtx); err != nil {
		log.Session(string(m.Phase())).WithError(err).Error("failed to persist credentials")
	}
}

func (m *Manager) scheduleRetry() {
	m.mu.Lock()
	m.attempts++
	attempt := m.attempts
	m.mu.Unlock()

	delay := m.backoff(attempt)
	m.stopRetry()
	m.retryTimer = time.NewTimer(delay)
	m.retryC = m.retryTimer.C

	log.Session(string(PhaseDisconnected)).
		WithField("attempt", attempt).
		WithField("delay", delay.String()).
		Warn("connection lost, reconnect scheduled")
}

func (m *Manager) stopRetry() {
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	m.retryC = nil
}

func (m *Manager) backoff(attempt int) time.Duration {
	delay := m.cfg.BackoffMax
	if attempt < 31 {
		if d := m.cfg.BackoffBase * time.Duration(1<<(attempt-1)); d > 0 && d < delay {
			delay = d
		}
	}
	if m.cfg.BackoffJitter > 0 {
		delay += time.Duration(mathrand.Int64N(int64(m.cfg.BackoffJitter) + 1))
	}
	return delay
}

func (m *Manager) setPhase(phase Phase, detail string) {
	m.mu.Lock()
	previous := m.phase
	m.phase = phase
	m.lastTransition = time.Now()
	notifier := m.notifier
	m.mu.Unlock()

	if previous == phase {
		return
	}

	entry := log.Session(string(phase)).WithField("from", string(previous))
	if detail != "" {
		entry = entry.WithField("detail", detail)
	}
	entry.Info("session phase changed")

	if notifier != nil {
		notifier.PhaseChanged(string(phase), detail)
	}
}

func (m *Manager) recordError(err error) {
	m.mu.Lock()
	m.lastErr = err.Error()
	m.mu.Unlock()
}

func (m *Manager) currentNotifier() Notifier {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.notifier
}
