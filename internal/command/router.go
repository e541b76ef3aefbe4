package command

import (
	"context"
	"strings"
	"time"

	"go.mau.fi/whatsmeow/types"

	"github.com/gdbrns/go-whatsapp-pair-bot/internal/session"
	"github.com/gdbrns/go-whatsapp-pair-bot/pkg/log"
	"github.com/gdbrns/go-whatsapp-pair-bot/pkg/whatsapp"
)

const DefaultPrefix = "."

type Config struct {
	Prefix      string
	OwnerNumber string
	SendTimeout time.Duration
	StartedAt   time.Time
	// Now is used for uptime and latency measurements.
	Now func() time.Time
}

type Handler func(ctx context.Context, msg whatsapp.Message) error

// Router maps "<prefix><name>" messages to handlers. Unknown names are ignored.
type Router struct {
	sender   session.Sender
	cfg      Config
	handlers map[string]Handler
}

func NewRouter(sender session.Sender, cfg Config) *Router {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.StartedAt.IsZero() {
		cfg.StartedAt = cfg.Now()
	}

	r := &Router{
		sender:   sender,
		cfg:      cfg,
		handlers: make(map[string]Handler),
	}
	r.Register("ping", r.ping)
	r.Register("owner", r.owner)
	r.Register("menu", r.menu)
	r.Register("help", r.menu)
	r.Register("alive", r.alive)
	r.Register("vv", r.revealViewOnce)
	return r
}

func (r *Router) Register(name string, handler Handler) {
	r.handlers[strings.ToLower(name)] = handler
}

// IsCommand reports whether text carries the command marker.
func (r *Router) IsCommand(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), r.cfg.Prefix)
}

// Parse returns the lower-cased command name, or "" when text is not a command.
func (r *Router) Parse(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, r.cfg.Prefix) {
		return ""
	}
	fields := strings.Fields(text[len(r.cfg.Prefix):])
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[0])
}

// Handle runs the command in msg, if any. Errors are logged and never propagated.
func (r *Router) Handle(ctx context.Context, msg whatsapp.Message) {
	name := r.Parse(msg.Text)
	handler, ok := r.handlers[name]
	if !ok {
		return
	}

	entry := log.Command(name, msg.Chat.String())
	entry.Debug("running command")
	if err := handler(ctx, msg); err != nil {
		entry.WithError(err).Warn("command failed")
	}
}

func (r *Router) reply(ctx context.Context, to types.JID, text string) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.SendTimeout)
	defer cancel()
	return r.sender.SendText(ctx, to, text)
}
