package internal

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/gdbrns/go-whatsapp-pair-bot/internal/session"
	"github.com/gdbrns/go-whatsapp-pair-bot/pkg/log"
)

const limiterIdle = 30 * time.Minute

type healthTarget interface {
	Status() session.Status
	Stale() bool
	Reconnect() error
}

type sweeper interface {
	Sweep() int
}

type pruner interface {
	Prune(idle time.Duration) int
}

func Routines(c *cron.Cron, a *App) {
	log.Print(nil).Info("Running Routine Tasks")

	if _, err := c.AddFunc("0 * * * * *", func() {
		sweepPairings(a.Registry, a.Limiter)
	}); err != nil {
		log.Print(nil).WithField("error", err.Error()).Error("Failed to add pairing sweep cron job")
	}

	if a.Config.HealthCheck {
		if _, err := c.AddFunc("0 */5 * * * *", func() {
			checkSessionHealth(a.Session)
		}); err != nil {
			log.Print(nil).WithField("error", err.Error()).Error("Failed to add health check cron job")
		}
	} else {
		log.Print(nil).Info("Health check cron disabled; relying on whatsmeow event handlers")
	}

	if a.Config.VersionCron.Enabled {
		spec := a.Config.VersionCron.Spec
		force := a.Config.VersionCron.Force
		_, err := c.AddFunc(spec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			status, refreshed, err := a.Version.Refresh(ctx, force)
			if err != nil {
				log.Print(nil).WithField("version", status.CurrentVersion).WithField("force", force).Error("WA Web version refresh failed: " + err.Error())
				return
			}
			log.Print(nil).WithField("version", status.CurrentVersion).WithField("refreshed", refreshed).WithField("force", force).Info("WA Web version refresh completed")
		})
		if err != nil {
			log.Print(nil).WithField("error", err.Error()).Error("Failed to add WA Web version refresh cron job")
		} else {
			log.Print(nil).WithField("spec", spec).WithField("force", force).Info("WA Web version refresh cron enabled")
		}
	}

	c.Start()
}

func sweepPairings(registry sweeper, limiter pruner) {
	if removed := registry.Sweep(); removed > 0 {
		log.Component("pairing").WithField("removed", removed).Info("Expired pairing codes swept")
	}
	if limiter != nil {
		limiter.Prune(limiterIdle)
	}
}

// checkSessionHealth logs the session state and kicks a session whose socket vanished
// without a close event.
func checkSessionHealth(target healthTarget) {
	status := target.Status()
	entry := log.Session(string(status.Phase)).
		WithField("registered", status.Registered).
		WithField("connected", status.Connected)

	if !target.Stale() {
		if status.Phase == session.PhaseOpen {
			entry.Info("Session healthy")
		} else {
			entry.Warn("Session not open")
		}
		return
	}

	entry.Warn("Session socket lost, forcing reconnect")
	if err := target.Reconnect(); err != nil && !errors.Is(err, session.ErrTerminalLogout) {
		entry.WithError(err).Error("Failed to schedule reconnect")
	}
}
