package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gdbrns/go-whatsapp-pair-bot/pkg/env"
	"github.com/gdbrns/go-whatsapp-pair-bot/pkg/log"
)

type Config struct {
	Targets       []Target
	Workers       int
	RetryLimit    int
	RetryBackoff  time.Duration
	QueueSize     int
	AllowInsecure bool
	HTTPClient    *http.Client
}

// ConfigFromEnv reads WEBHOOK_URLS, WEBHOOK_SECRET, WEBHOOK_EVENTS and the worker settings.
// Every URL shares the same secret and event filter.
func ConfigFromEnv() Config {
	var events []EventType
	for _, name := range env.GetEnvStringSliceOrDefault("WEBHOOK_EVENTS", nil) {
		events = append(events, EventType(name))
	}

	secret := env.GetEnvStringOrDefault("WEBHOOK_SECRET", "")
	var targets []Target
	for _, rawURL := range env.GetEnvStringSliceOrDefault("WEBHOOK_URLS", nil) {
		targets = append(targets, Target{URL: rawURL, Secret: secret, Events: events})
	}

	return Config{
		Targets:       targets,
		Workers:       env.GetEnvIntOrDefault("WEBHOOK_WORKERS", 4),
		RetryLimit:    env.GetEnvIntOrDefault("WEBHOOK_RETRY_LIMIT", 3),
		RetryBackoff:  env.GetEnvDurationOrDefault("WEBHOOK_RETRY_BACKOFF", 2*time.Second),
		QueueSize:     env.GetEnvIntOrDefault("WEBHOOK_QUEUE_SIZE", 1000),
		AllowInsecure: env.GetEnvBoolOrDefault("WEBHOOK_ALLOW_INSECURE", false),
	}
}

type Engine struct {
	targets       []Target
	httpClient    *http.Client
	queue         chan *deliveryTask
	retryLimit    int
	retryBackoff  time.Duration
	allowInsecure bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool

	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

type deliveryTask struct {
	target Target
	event  WebhookEvent
}

func NewEngine(cfg Config) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.RetryLimit <= 0 {
		cfg.RetryLimit = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 2 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}

	ctx, cancel := context.WithCancel(context.Background())

	engine := &Engine{
		targets:       cfg.Targets,
		httpClient:    cfg.HTTPClient,
		queue:         make(chan *deliveryTask, cfg.QueueSize),
		retryLimit:    cfg.RetryLimit,
		retryBackoff:  cfg.RetryBackoff,
		allowInsecure: cfg.AllowInsecure,
		ctx:           ctx,
		cancel:        cancel,
	}

	for _, target := range engine.targets {
		if err := engine.validateURL(target.URL); err != nil {
			log.Component("webhook").WithField("url", target.URL).WithError(err).Warn("webhook target will be skipped")
		}
	}

	if len(engine.targets) > 0 {
		for i := 0; i < cfg.Workers; i++ {
			engine.wg.Add(1)
			go engine.worker()
		}
	}

	return engine
}

func (e *Engine) Enabled() bool {
	return len(e.targets) > 0
}

func (e *Engine) Stats() Stats {
	return Stats{
		Targets:   len(e.targets),
		Queued:    len(e.queue),
		Delivered: e.delivered.Load(),
		Failed:    e.failed.Load(),
		Dropped:   e.dropped.Load(),
	}
}

// Shutdown stops accepting events and waits for queued deliveries until ctx expires,
// after which in-flight retries are abandoned.
func (e *Engine) Shutdown(ctx context.Context) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.queue)
	e.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-ctx.Done():
		e.cancel()
		<-drained
	}
	e.cancel()
}

// Dispatch queues event for every subscribed target without blocking.
func (e *Engine) Dispatch(event WebhookEvent) {
	if !e.Enabled() {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}

	dispatched := 0
	for _, target := range e.targets {
		if !shouldDispatch(target, event.EventType) {
			continue
		}
		select {
		case e.queue <- &deliveryTask{target: target, event: event}:
			dispatched++
		default:
			e.dropped.Add(1)
			log.Component("webhook").WithField("event", event.EventType).Warn("webhook queue full, event dropped")
		}
	}

	if dispatched > 0 {
		log.Component("webhook").WithField("event", event.EventType).WithField("targets", dispatched).Debug("webhook queued")
	}
}

func shouldDispatch(target Target, eventType EventType) bool {
	if len(target.Events) == 0 {
		return true
	}
	for _, evt := range target.Events {
		if evt == eventType {
			return true
		}
	}
	return false
}

func (e *Engine) worker() {
	defer e.wg.Done()
	for task := range e.queue {
		if e.ctx.Err() != nil {
			continue
		}
		e.deliver(task)
	}
}

func (e *Engine) deliver(task *deliveryTask) {
	entry := log.Component("webhook").WithField("event", task.event.EventType).WithField("url", task.target.URL)

	if err := e.validateURL(task.target.URL); err != nil {
		e.failed.Add(1)
		entry.WithError(err).Warn("webhook target rejected")
		return
	}

	payload, err := json.Marshal(task.event)
	if err != nil {
		e.failed.Add(1)
		entry.WithError(err).Error("failed to encode webhook payload")
		return
	}

	signature := Sign(payload, task.target.Secret)

	var lastErr error
	for attempt := 1; attempt <= e.retryLimit; attempt++ {
		lastErr = e.post(task, payload, signature)
		if lastErr == nil {
			e.delivered.Add(1)
			entry.WithField("attempt", attempt).Debug("webhook delivered")
			return
		}
		if attempt < e.retryLimit {
			select {
			case <-time.After(time.Duration(attempt) * e.retryBackoff):
			case <-e.ctx.Done():
				e.failed.Add(1)
				return
			}
		}
	}

	e.failed.Add(1)
	entry.WithField("attempts", e.retryLimit).WithError(lastErr).Warn("webhook delivery failed")
}

func (e *Engine) post(task *deliveryTask, payload []byte, signature string) error {
	req, err := http.NewRequestWithContext(e.ctx, http.MethodPost, task.target.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", signature)
	req.Header.Set("X-Webhook-Event", string(task.event.EventType))
	req.Header.Set("User-Agent", "WhatsApp-Pair-Bot/1.0")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

// Sign returns the X-Webhook-Signature value for payload.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func (e *Engine) validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	if u.Host == "" {
		return errors.New("webhook URL has no host")
	}
	if e.allowInsecure {
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("unsupported scheme %q", u.Scheme)
		}
		return nil
	}

	if u.Scheme != "https" {
		return errors.New("only HTTPS URLs are allowed")
	}

	host := strings.ToLower(u.Hostname())
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return errors.New("private/local network URLs are not allowed")
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		if addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() || addr.IsLinkLocalUnicast() {
			return errors.New("private/local network URLs are not allowed")
		}
	}
	return nil
}
