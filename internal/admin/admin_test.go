package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gdbrns/go-whatsapp-pair-bot/internal/session"
	"github.com/gdbrns/go-whatsapp-pair-bot/internal/webhook"
	pkgWhatsApp "github.com/gdbrns/go-whatsapp-pair-bot/pkg/whatsapp"
)

type fakeSession struct {
	status       session.Status
	reconnectErr error
	logoutErr    error
	reconnects   int
	logouts      int
}

func (s *fakeSession) Status() session.Status { return s.status }

func (s *fakeSession) Reconnect() error {
	s.reconnects++
	return s.reconnectErr
}

func (s *fakeSession) Logout(ctx context.Context) error {
	s.logouts++
	return s.logoutErr
}

type fakeQR string

func (q fakeQR) LatestQR() string { return string(q) }

type fakeCounter int

func (n fakeCounter) Len() int { return int(n) }

type fakeWebhooks webhook.Stats

func (w fakeWebhooks) Stats() webhook.Stats { return webhook.Stats(w) }

type fakeVersion struct {
	status pkgWhatsApp.WAVersionStatus
	err    error
	forced []bool
}

func (v *fakeVersion) Status() pkgWhatsApp.WAVersionStatus { return v.status }

func (v *fakeVersion) Refresh(ctx context.Context, force bool) (pkgWhatsApp.WAVersionStatus, bool, error) {
	v.forced = append(v.forced, force)
	return v.status, true, v.err
}

func newTestApp(deps Deps) *fiber.App {
	h := NewHandler(deps)
	app := fiber.New()
	app.Get("/admin/session", h.GetSession)
	app.Post("/admin/session/reconnect", h.ReconnectSession)
	app.Delete("/admin/session", h.LogoutSession)
	app.Get("/admin/session/qr", h.GetQR)
	app.Get("/admin/whatsapp/version", h.GetWhatsAppWebVersion)
	app.Post("/admin/whatsapp/version/refresh", h.RefreshWhatsAppWebVersion)
	return app
}

func do(t *testing.T, app *fiber.App, method string, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(method, path, nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestGetSession(t *testing.T) {
	sess := &fakeSession{status: session.Status{Phase: session.PhaseOpen, Registered: true, JID: "15550001111@s.whatsapp.net"}}
	app := newTestApp(Deps{
		Session:  sess,
		Pairings: fakeCounter(3),
		Webhooks: fakeWebhooks{Targets: 1, Delivered: 7},
	})

	resp, body := do(t, app, http.MethodGet, "/admin/session")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Data ResponseSessionStatus `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, session.PhaseOpen, out.Data.Session.Phase)
	assert.Equal(t, 3, out.Data.Pairings)
	require.NotNil(t, out.Data.Webhooks)
	assert.Equal(t, int64(7), out.Data.Webhooks.Delivered)
}

func TestReconnectSession(t *testing.T) {
	sess := &fakeSession{}
	app := newTestApp(Deps{Session: sess})

	resp, _ := do(t, app, http.MethodPost, "/admin/session/reconnect")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, sess.reconnects)

	sess.reconnectErr = session.ErrTerminalLogout
	resp, _ = do(t, app, http.MethodPost, "/admin/session/reconnect")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	sess.reconnectErr = session.ErrNotStarted
	resp, _ = do(t, app, http.MethodPost, "/admin/session/reconnect")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestLogoutSession(t *testing.T) {
	sess := &fakeSession{}
	app := newTestApp(Deps{Session: sess})

	resp, _ := do(t, app, http.MethodDelete, "/admin/session")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, sess.logouts)

	sess.logoutErr = session.ErrTerminalLogout
	resp, _ = do(t, app, http.MethodDelete, "/admin/session")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	sess.logoutErr = errors.New("network down")
	resp, _ = do(t, app, http.MethodDelete, "/admin/session")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestGetQR(t *testing.T) {
	app := newTestApp(Deps{Session: &fakeSession{}, QR: fakeQR("")})
	resp, _ := do(t, app, http.MethodGet, "/admin/session/qr")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	app = newTestApp(Deps{Session: &fakeSession{}, QR: fakeQR("2@abc,def,ghi")})
	resp, body := do(t, app, http.MethodGet, "/admin/session/qr")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(body, []byte("\x89PNG")))
}

func TestWhatsAppWebVersion(t *testing.T) {
	version := &fakeVersion{status: pkgWhatsApp.WAVersionStatus{CurrentVersion: "2.3000.1"}}
	app := newTestApp(Deps{Session: &fakeSession{}, Version: version})

	resp, body := do(t, app, http.MethodGet, "/admin/whatsapp/version")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "2.3000.1")

	resp, body = do(t, app, http.MethodPost, "/admin/whatsapp/version/refresh?force=false")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"refreshed":true`)
	assert.Equal(t, []bool{false}, version.forced)

	version.err = errors.New("upstream unavailable")
	resp, _ = do(t, app, http.MethodPost, "/admin/whatsapp/version/refresh")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, []bool{false, true}, version.forced)
}
