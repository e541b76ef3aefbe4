package bot

import (
	"context"

	"go.mau.fi/whatsmeow/types"

	"github.com/gdbrns/go-whatsapp-pair-bot/internal/command"
	"github.com/gdbrns/go-whatsapp-pair-bot/internal/relay"
	"github.com/gdbrns/go-whatsapp-pair-bot/pkg/whatsapp"
)

// Dispatcher routes inbound messages that were not pairing confirmations: text with the
// command marker goes to the command router, everything else to the relay.
type Dispatcher struct {
	commands *command.Router
	relay    *relay.Relay
}

func NewDispatcher(commands *command.Router, relay *relay.Relay) *Dispatcher {
	return &Dispatcher{commands: commands, relay: relay}
}

func (d *Dispatcher) HandleMessage(ctx context.Context, msg whatsapp.Message) {
	if msg.Chat == types.StatusBroadcastJID {
		return
	}
	if d.commands.IsCommand(msg.Text) {
		d.commands.Handle(ctx, msg)
		return
	}
	d.relay.Forward(ctx, msg)
}
