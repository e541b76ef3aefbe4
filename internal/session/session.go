package session

import (
	"context"
	"errors"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"

	"github.com/gdbrns/go-whatsapp-pair-bot/internal/pairing"
	"github.com/gdbrns/go-whatsapp-pair-bot/pkg/whatsapp"
)

type Phase string

const (
	PhaseDisconnected   Phase = "disconnected"
	PhaseConnecting     Phase = "connecting"
	PhaseOpen           Phase = "open"
	PhaseClosedTerminal Phase = "closed-terminal"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrPairingUnavailable = errors.New("session cannot request a pairing code")
	ErrTransient          = errors.New("transient network failure")
	ErrTerminalLogout     = errors.New("session logged out")
	ErrSendFailure        = errors.New("failed to send message")
	ErrNotStarted         = errors.New("session manager is not running")
)

// PairingAckText is sent back to whoever confirmed a live pairing code.
const PairingAckText = "✅ Pairing successful! You're now connected to the bot."

// Transport is the network client driven by the Manager. *whatsapp.Client satisfies it.
type Transport interface {
	Connect() error
	Disconnect()
	IsConnected() bool
	IsRegistered() bool
	OwnJID() types.JID
	PairPhone(ctx context.Context, phone string) (string, error)
	SendMessage(ctx context.Context, to types.JID, msg *waE2E.Message) (string, error)
	Download(ctx context.Context, msg whatsmeow.DownloadableMessage) ([]byte, error)
	Upload(ctx context.Context, data []byte, mediaType whatsmeow.MediaType) (whatsmeow.UploadResponse, error)
	Logout(ctx context.Context) error
	SetEventSink(sink func(whatsapp.Event))
}

type CredentialStore interface {
	Save(ctx context.Context) error
	Delete(ctx context.Context) error
}

// MessageHandler receives inbound messages that were not pairing confirmations.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg whatsapp.Message)
}

type MessageHandlerFunc func(ctx context.Context, msg whatsapp.Message)

func (f MessageHandlerFunc) HandleMessage(ctx context.Context, msg whatsapp.Message) {
	f(ctx, msg)
}

type Confirmer interface {
	TryConsume(code string, identity string) (pairing.Entry, bool)
}

type Notifier interface {
	PhaseChanged(phase string, detail string)
	PairingBound(entry pairing.Entry)
}

// Sender is the outbound surface handed to the command router and the relay.
type Sender interface {
	SendText(ctx context.Context, to types.JID, text string) error
	SendMessage(ctx context.Context, to types.JID, msg *waE2E.Message) error
	Download(ctx context.Context, msg whatsmeow.DownloadableMessage) ([]byte, error)
	Upload(ctx context.Context, data []byte, mediaType whatsmeow.MediaType) (whatsmeow.UploadResponse, error)
}

type Status struct {
	Phase          Phase     `json:"phase"`
	Registered     bool      `json:"registered"`
	Connected      bool      `json:"connected"`
	JID            string    `json:"jid,omitempty"`
	Attempts       int       `json:"reconnect_attempts"`
	LastError      string    `json:"last_error,omitempty"`
	LastTransition time.Time `json:"last_transition"`
}
