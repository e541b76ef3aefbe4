package whatsapp

import (
	"time"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

// CloseReason classifies why the connection went away. Only ReasonLoggedOut is terminal.
type CloseReason string

const (
	ReasonLoggedOut      CloseReason = "logged_out"
	ReasonConnectionLost CloseReason = "connection_lost"
	ReasonStreamReplaced CloseReason = "stream_replaced"
	ReasonConnectFailure CloseReason = "connect_failure"
	ReasonKeepAlive      CloseReason = "keepalive_timeout"
)

func (r CloseReason) IsTerminal() bool {
	return r == ReasonLoggedOut
}

// Event is anything the Client hands to its sink.
type Event interface {
	eventName() string
}

type ConnectedEvent struct{}

type ClosedEvent struct {
	Reason CloseReason
	Detail string
}

// CredentialsUpdatedEvent fires after the network issued new credentials (pair success).
type CredentialsUpdatedEvent struct {
	JID types.JID
}

type QREvent struct {
	Code string
}

type MessageEvent struct {
	Message Message
}

func (ConnectedEvent) eventName() string          { return "connected" }
func (ClosedEvent) eventName() string             { return "closed" }
func (CredentialsUpdatedEvent) eventName() string { return "credentials_updated" }
func (QREvent) eventName() string                 { return "qr" }
func (MessageEvent) eventName() string            { return "message" }

// EventName is used for logging.
func EventName(evt Event) string {
	if evt == nil {
		return ""
	}
	return evt.eventName()
}

// Message is the subset of an inbound WhatsApp message the bot works with.
type Message struct {
	ID     string
	Chat   types.JID
	Sender types.JID
	// SenderAlt is the other addressing of Sender (phone number for LID senders and the reverse).
	SenderAlt types.JID
	IsFromMe  bool
	IsGroup   bool
	PushName  string
	Timestamp time.Time
	Text      string
	Quoted    *waE2E.Message
	Raw       *waE2E.Message
}

func ParseMessage(evt *events.Message) Message {
	return Message{
		ID:        evt.Info.ID,
		Chat:      evt.Info.Chat,
		Sender:    evt.Info.Sender,
		SenderAlt: evt.Info.SenderAlt,
		IsFromMe:  evt.Info.IsFromMe,
		IsGroup:   evt.Info.IsGroup,
		PushName:  evt.Info.PushName,
		Timestamp: evt.Info.Timestamp,
		Text:      ExtractText(evt.Message),
		Quoted:    ExtractQuoted(evt.Message),
		Raw:       evt.Message,
	}
}

// PhoneSender prefers the phone-number JID of the sender when the message was addressed by LID.
func (m Message) PhoneSender() types.JID {
	if m.Sender.Server != types.DefaultUserServer && m.SenderAlt.Server == types.DefaultUserServer {
		return m.SenderAlt
	}
	return m.Sender
}

// ExtractText returns the first of conversation, extended text, image caption and
// video caption that is present.
func ExtractText(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	switch {
	case msg.GetConversation() != "":
		return msg.GetConversation()
	case msg.GetExtendedTextMessage().GetText() != "":
		return msg.GetExtendedTextMessage().GetText()
	case msg.GetImageMessage().GetCaption() != "":
		return msg.GetImageMessage().GetCaption()
	case msg.GetVideoMessage().GetCaption() != "":
		return msg.GetVideoMessage().GetCaption()
	}
	return ""
}

func ExtractQuoted(msg *waE2E.Message) *waE2E.Message {
	if msg == nil {
		return nil
	}
	contexts := []*waE2E.ContextInfo{
		msg.GetExtendedTextMessage().GetContextInfo(),
		msg.GetImageMessage().GetContextInfo(),
		msg.GetVideoMessage().GetContextInfo(),
	}
	for _, ctxInfo := range contexts {
		if quoted := ctxInfo.GetQuotedMessage(); quoted != nil {
			return quoted
		}
	}
	return nil
}
