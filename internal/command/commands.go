package command

import (
	"context"
	"fmt"
	"time"

	"github.com/gdbrns/go-whatsapp-pair-bot/pkg/whatsapp"
)

const menuText = `╭───────[ *BOT COMMANDS* ]───────╮
│                                 │
│  .ping   ➤ Check bot speed      │
│  .owner  ➤ Show owner contact   │
│  .menu   ➤ Show this menu       │
│  .alive  ➤ Check bot status     │
│  .vv     ➤ Reveal ViewOnce media│
│                                 │
╰─────────────────────────────────╯`

const aliveTimeLayout = "1/2/2006, 3:04:05 PM"

func (r *Router) ping(ctx context.Context, msg whatsapp.Message) error {
	start := r.cfg.Now()
	if err := r.reply(ctx, msg.Chat, "Pong!"); err != nil {
		return err
	}
	latency := r.cfg.Now().Sub(start).Milliseconds()
	if latency < 0 {
		latency = 0
	}
	return r.reply(ctx, msg.Chat, fmt.Sprintf("🏓 Bot Speed: %dms", latency))
}

func (r *Router) owner(ctx context.Context, msg whatsapp.Message) error {
	return r.reply(ctx, msg.Chat, "👑 Owner Contact:\nhttps://wa.me/"+r.cfg.OwnerNumber)
}

func (r *Router) menu(ctx context.Context, msg whatsapp.Message) error {
	return r.reply(ctx, msg.Chat, menuText)
}

func (r *Router) alive(ctx context.Context, msg whatsapp.Message) error {
	now := r.cfg.Now()
	text := fmt.Sprintf("✅ Bot is alive!\n⏰ Uptime: %s\n📅 %s", FormatUptime(now.Sub(r.cfg.StartedAt)), now.Format(aliveTimeLayout))
	return r.reply(ctx, msg.Chat, text)
}

// FormatUptime renders d as "<h>h <m>m <s>s".
func FormatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%dh %dm %ds", total/3600, (total%3600)/60, total%60)
}
