package whatsapp

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store"
	"golang.org/x/sync/singleflight"
)

type WAVersionStatus struct {
	CurrentVersion string     `json:"current_version"`
	LastRefreshed  *time.Time `json:"last_refreshed,omitempty"`
	LastError      string     `json:"last_error,omitempty"`
}

// VersionFetcher returns the latest WhatsApp Web version.
type VersionFetcher func(ctx context.Context) (*store.WAVersionContainer, error)

// WAVersionRefresher keeps store's advertised WhatsApp Web version current.
// Concurrent refreshes collapse into a single upstream request.
type WAVersionRefresher struct {
	minInterval time.Duration
	fetch       VersionFetcher

	group singleflight.Group

	mu            sync.RWMutex
	lastRefreshed *time.Time
	lastError     string
}

func NewWAVersionRefresher(minInterval time.Duration, fetch VersionFetcher) *WAVersionRefresher {
	if fetch == nil {
		httpClient := &http.Client{Timeout: 15 * time.Second}
		fetch = func(ctx context.Context) (*store.WAVersionContainer, error) {
			return whatsmeow.GetLatestVersion(ctx, httpClient)
		}
	}
	return &WAVersionRefresher{minInterval: minInterval, fetch: fetch}
}

func (r *WAVersionRefresher) Status() WAVersionStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var last *time.Time
	if r.lastRefreshed != nil {
		t := *r.lastRefreshed
		last = &t
	}
	return WAVersionStatus{
		CurrentVersion: store.GetWAVersion().String(),
		LastRefreshed:  last,
		LastError:      r.lastError,
	}
}

// Refresh applies the latest version via store.SetWAVersion. Without force it is
// throttled by the minimum interval; the bool reports whether a fetch happened.
func (r *WAVersionRefresher) Refresh(ctx context.Context, force bool) (WAVersionStatus, bool, error) {
	if !force && r.minInterval > 0 {
		r.mu.RLock()
		last := r.lastRefreshed
		r.mu.RUnlock()
		if last != nil && time.Since(*last) < r.minInterval {
			return r.Status(), false, nil
		}
	}

	_, err, _ := r.group.Do("refresh", func() (interface{}, error) {
		latest, err := r.fetch(ctx)
		if err == nil && latest == nil {
			err = errors.New("latest WhatsApp Web version is nil")
		}
		if err == nil {
			store.SetWAVersion(*latest)
		}

		r.mu.Lock()
		now := time.Now()
		r.lastRefreshed = &now
		if err != nil {
			r.lastError = err.Error()
		} else {
			r.lastError = ""
		}
		r.mu.Unlock()

		return nil, err
	})
	return r.Status(), true, err
}
