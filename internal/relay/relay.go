package relay

import (
	"context"
	"strings"
	"time"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"

	"github.com/gdbrns/go-whatsapp-pair-bot/internal/pairing"
	"github.com/gdbrns/go-whatsapp-pair-bot/internal/session"
	"github.com/gdbrns/go-whatsapp-pair-bot/pkg/log"
	"github.com/gdbrns/go-whatsapp-pair-bot/pkg/whatsapp"
)

type Config struct {
	// Channel is the destination chat. An empty JID disables forwarding.
	Channel     types.JID
	ChannelName string
	SendTimeout time.Duration
}

// Relay copies ordinary inbound text into the destination channel. Sends are attempted
// once; failures are logged and dropped.
type Relay struct {
	sender session.Sender
	cfg    Config
}

func New(sender session.Sender, cfg Config) *Relay {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	return &Relay{sender: sender, cfg: cfg}
}

func (r *Relay) Enabled() bool {
	return !r.cfg.Channel.IsEmpty()
}

// ShouldForward skips pairing codes and anything coming from the destination itself.
func (r *Relay) ShouldForward(msg whatsapp.Message) bool {
	if !r.Enabled() {
		return false
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" || strings.Contains(text, pairing.CodePrefix) {
		return false
	}
	if msg.Chat.ToNonAD() == r.cfg.Channel || msg.Sender.ToNonAD() == r.cfg.Channel {
		return false
	}
	return true
}

// Forward reports whether the message was delivered to the channel.
func (r *Relay) Forward(ctx context.Context, msg whatsapp.Message) bool {
	if !r.ShouldForward(msg) {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.SendTimeout)
	defer cancel()

	content := BuildForward(r.cfg.ChannelName, msg)
	if err := r.sender.SendMessage(ctx, r.cfg.Channel, content); err != nil {
		log.Component("relay").
			WithField("chat", log.MaskPhone(msg.Chat.String())).
			WithError(err).
			Warn("forward failed")
		return false
	}
	return true
}

func BuildForward(channelName string, msg whatsapp.Message) *waE2E.Message {
	text := "> Forwarded\n" + channelName + "\n\n" + msg.Text + "\n\nFrom: " + Provenance(msg.PhoneSender())
	return &waE2E.Message{
		ExtendedTextMessage: &waE2E.ExtendedTextMessage{
			Text: proto.String(text),
			ContextInfo: &waE2E.ContextInfo{
				IsForwarded:     proto.Bool(true),
				ForwardingScore: proto.Uint32(1),
				ForwardedNewsletterMessageInfo: &waE2E.ContextInfo_ForwardedNewsletterMessageInfo{
					NewsletterJID:  proto.String(msg.Chat.ToNonAD().String()),
					NewsletterName: proto.String(channelName),
				},
			},
		},
	}
}

// Provenance names the original sender: "+<number>" for phone JIDs, the bare JID otherwise.
func Provenance(sender types.JID) string {
	if sender.IsEmpty() {
		return "unknown"
	}
	if sender.Server == types.DefaultUserServer {
		return "+" + sender.User
	}
	return sender.ToNonAD().String()
}
