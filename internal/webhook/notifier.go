package webhook

import (
	"github.com/gdbrns/go-whatsapp-pair-bot/internal/pairing"
)

var phaseEvents = map[string]EventType{
	"connecting":      EventConnectionConnecting,
	"open":            EventConnectionOpen,
	"disconnected":    EventConnectionDisconnected,
	"closed-terminal": EventConnectionLoggedOut,
}

// Notifier turns session and pairing lifecycle changes into webhook events.
type Notifier struct {
	engine *Engine
}

func NewNotifier(engine *Engine) *Notifier {
	return &Notifier{engine: engine}
}

func (n *Notifier) PhaseChanged(phase string, detail string) {
	eventType, ok := phaseEvents[phase]
	if !ok {
		return
	}
	data := map[string]interface{}{"phase": phase}
	if detail != "" {
		data["detail"] = detail
	}
	n.engine.Dispatch(WebhookEvent{EventType: eventType, Data: data})
}

func (n *Notifier) PairingIssued(entry pairing.Entry) {
	n.engine.Dispatch(WebhookEvent{
		EventType: EventPairingIssued,
		Data: map[string]interface{}{
			"code":         entry.Code,
			"phone_number": entry.PhoneNumber,
			"expires_at":   entry.ExpiresAt,
		},
	})
}

func (n *Notifier) PairingBound(entry pairing.Entry) {
	n.engine.Dispatch(WebhookEvent{
		EventType: EventPairingBound,
		Data: map[string]interface{}{
			"code":           entry.Code,
			"phone_number":   entry.PhoneNumber,
			"bound_identity": entry.BoundIdentity,
		},
	})
}
