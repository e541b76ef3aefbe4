package internal

import (
	"context"
	"fmt"
	"time"

	"github.com/gdbrns/go-whatsapp-pair-bot/internal/bot"
	"github.com/gdbrns/go-whatsapp-pair-bot/internal/command"
	"github.com/gdbrns/go-whatsapp-pair-bot/internal/pair"
	"github.com/gdbrns/go-whatsapp-pair-bot/internal/pairing"
	"github.com/gdbrns/go-whatsapp-pair-bot/internal/relay"
	"github.com/gdbrns/go-whatsapp-pair-bot/internal/session"
	"github.com/gdbrns/go-whatsapp-pair-bot/internal/webhook"
	"github.com/gdbrns/go-whatsapp-pair-bot/pkg/log"
	pkgWhatsApp "github.com/gdbrns/go-whatsapp-pair-bot/pkg/whatsapp"
)

// App owns every long-lived component of the bot.
type App struct {
	Config    Config
	StartedAt time.Time

	Datastore *pkgWhatsApp.Datastore
	Client    *pkgWhatsApp.Client
	Session   *session.Manager
	Registry  *pairing.Registry
	Webhooks  *webhook.Engine
	Notifier  *webhook.Notifier
	Version   *pkgWhatsApp.WAVersionRefresher
	Limiter   *pair.IPLimiter
}

// Startup opens the credential store, builds the client and wires the message pipeline.
// The session is not connected until Start.
func Startup(ctx context.Context, cfg Config) (*App, error) {
	log.Print(nil).Info("Running Startup Tasks")

	datastore, err := pkgWhatsApp.OpenDatastore(ctx, cfg.Datastore, log.WhatsMeow("Database", cfg.DBLogLevel))
	if err != nil {
		return nil, err
	}

	device, err := datastore.Load(ctx)
	if err != nil {
		_ = datastore.Close()
		return nil, fmt.Errorf("load device: %w", err)
	}

	client := pkgWhatsApp.NewClient(device, cfg.Client, log.WhatsMeow("Client", cfg.WALogLevel))

	registry := pairing.NewRegistry(pairing.Options{
		TTL:                cfg.PairingTTL,
		RequireSenderMatch: cfg.RequireSenderMatch,
	})

	manager := session.NewManager(client, pkgWhatsApp.NewCredentials(datastore, device), registry, session.Config{
		BackoffBase: cfg.BackoffBase,
		BackoffMax:  cfg.BackoffMax,
		SendTimeout: cfg.SendTimeout,
	})

	startedAt := time.Now()
	commands := command.NewRouter(manager, command.Config{
		Prefix:      cfg.CommandPrefix,
		OwnerNumber: cfg.OwnerNumber,
		SendTimeout: cfg.SendTimeout,
		StartedAt:   startedAt,
	})
	forwarder := relay.New(manager, relay.Config{
		Channel:     cfg.Channel,
		ChannelName: cfg.ChannelName,
		SendTimeout: cfg.SendTimeout,
	})
	manager.SetHandler(bot.NewDispatcher(commands, forwarder))

	webhooks := webhook.NewEngine(webhook.ConfigFromEnv())
	notifier := webhook.NewNotifier(webhooks)
	manager.SetNotifier(notifier)

	entry := log.Print(nil).
		WithField("datastore", datastore.Driver()).
		WithField("registered", client.IsRegistered()).
		WithField("webhooks", webhooks.Enabled())
	if cfg.Channel.IsEmpty() {
		entry.Warn("CHANNEL_JID disabled, inbound messages will not be forwarded")
	} else {
		entry.WithField("channel", cfg.Channel.String()).Info("Startup wiring complete")
	}

	return &App{
		Config:    cfg,
		StartedAt: startedAt,
		Datastore: datastore,
		Client:    client,
		Session:   manager,
		Registry:  registry,
		Webhooks:  webhooks,
		Notifier:  notifier,
		Version:   pkgWhatsApp.NewWAVersionRefresher(cfg.VersionMinInterval, nil),
		Limiter:   pair.NewIPLimiter(cfg.PairingRateEvery, cfg.PairingRateBurst),
	}, nil
}

// Start connects the session. Reconnects are driven by the session manager.
func (a *App) Start(ctx context.Context) {
	a.Session.Start(ctx)
}

// Shutdown stops the session before draining notifications and closing storage.
func (a *App) Shutdown(ctx context.Context) {
	a.Session.Stop()
	a.Webhooks.Shutdown(ctx)
	a.Registry.Close()
	if err := a.Datastore.Close(); err != nil {
		log.Print(nil).WithError(err).Error("Failed to close WhatsApp datastore")
	}
}
