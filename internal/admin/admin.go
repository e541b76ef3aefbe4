package admin

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/skip2/go-qrcode"

	"github.com/gdbrns/go-whatsapp-pair-bot/internal/session"
	"github.com/gdbrns/go-whatsapp-pair-bot/internal/webhook"
	"github.com/gdbrns/go-whatsapp-pair-bot/pkg/log"
	"github.com/gdbrns/go-whatsapp-pair-bot/pkg/router"
	pkgWhatsApp "github.com/gdbrns/go-whatsapp-pair-bot/pkg/whatsapp"
)

type Session interface {
	Status() session.Status
	Reconnect() error
	Logout(ctx context.Context) error
}

type QRSource interface {
	LatestQR() string
}

type Counter interface {
	Len() int
}

type WebhookStats interface {
	Stats() webhook.Stats
}

type VersionRefresher interface {
	Status() pkgWhatsApp.WAVersionStatus
	Refresh(ctx context.Context, force bool) (pkgWhatsApp.WAVersionStatus, bool, error)
}

type Deps struct {
	Session  Session
	QR       QRSource
	Pairings Counter
	Webhooks WebhookStats
	Version  VersionRefresher
}

type Handler struct {
	deps Deps
}

type ResponseSessionStatus struct {
	Session  session.Status `json:"session"`
	Pairings int            `json:"pending_pairings"`
	Webhooks *webhook.Stats `json:"webhooks,omitempty"`
}

type ResponseVersionRefresh struct {
	pkgWhatsApp.WAVersionStatus
	Refreshed bool `json:"refreshed"`
}

func NewHandler(deps Deps) *Handler {
	return &Handler{deps: deps}
}

// @Summary     Get Session Status
// @Description Get the WhatsApp session phase with pending pairing and webhook counters
// @Tags        Admin
// @Produce     json
// @Param       X-Admin-Secret header string true "Admin secret key"
// @Success     200 {object} router.Response{data=ResponseSessionStatus}
// @Failure     401 {object} router.Response
// @Security    AdminAuth
// @Router      /admin/session [get]
func (h *Handler) GetSession(c *fiber.Ctx) error {
	res := ResponseSessionStatus{
		Session: h.deps.Session.Status(),
	}
	if h.deps.Pairings != nil {
		res.Pairings = h.deps.Pairings.Len()
	}
	if h.deps.Webhooks != nil {
		stats := h.deps.Webhooks.Stats()
		res.Webhooks = &stats
	}
	return router.ResponseSuccessWithData(c, "Success get session status", res)
}

// @Summary     Reconnect Session
// @Description Schedule an immediate reconnect of the WhatsApp session
// @Tags        Admin
// @Produce     json
// @Param       X-Admin-Secret header string true "Admin secret key"
// @Success     200 {object} router.Response
// @Failure     401 {object} router.Response
// @Failure     409 {object} router.Response
// @Failure     500 {object} router.Response
// @Security    AdminAuth
// @Router      /admin/session/reconnect [post]
func (h *Handler) ReconnectSession(c *fiber.Ctx) error {
	err := h.deps.Session.Reconnect()
	switch {
	case errors.Is(err, session.ErrTerminalLogout):
		return router.ResponseConflict(c, "Session is logged out, restart with fresh credentials")
	case err != nil:
		return router.ResponseInternalError(c, err.Error())
	}

	log.Print(c).Info("session reconnect requested")
	return router.ResponseSuccess(c, "Reconnect scheduled")
}

// @Summary     Logout Session
// @Description Unlink the bot from WhatsApp and discard its credentials
// @Tags        Admin
// @Produce     json
// @Param       X-Admin-Secret header string true "Admin secret key"
// @Success     200 {object} router.Response
// @Failure     401 {object} router.Response
// @Failure     409 {object} router.Response
// @Failure     500 {object} router.Response
// @Security    AdminAuth
// @Router      /admin/session [delete]
func (h *Handler) LogoutSession(c *fiber.Ctx) error {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	err := h.deps.Session.Logout(ctx)
	switch {
	case errors.Is(err, session.ErrTerminalLogout):
		return router.ResponseConflict(c, "Session is already logged out")
	case err != nil:
		return router.ResponseInternalError(c, "Failed to logout: "+err.Error())
	}

	log.Print(c).Warn("session logged out by admin")
	return router.ResponseSuccess(c, "Session logged out")
}

// GetQR renders the login QR code whatsmeow most recently produced.
// @Summary     Get Login QR Code
// @Description Render the latest login QR code as PNG
// @Tags        Admin
// @Produce     png
// @Param       X-Admin-Secret header string true "Admin secret key"
// @Success     200 {file} binary
// @Failure     401 {object} router.Response
// @Failure     404 {object} router.Response
// @Failure     500 {object} router.Response
// @Security    AdminAuth
// @Router      /admin/session/qr [get]
func (h *Handler) GetQR(c *fiber.Ctx) error {
	code := ""
	if h.deps.QR != nil {
		code = h.deps.QR.LatestQR()
	}
	if code == "" {
		return router.ResponseNotFound(c, "No login QR code available")
	}

	png, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		return router.ResponseInternalError(c, "Failed to render QR code")
	}
	return router.ResponseSuccessWithPNG(c, png)
}

// @Summary     Get WhatsApp Web Version
// @Description Get the WhatsApp Web version advertised by the client
// @Tags        Admin
// @Produce     json
// @Param       X-Admin-Secret header string true "Admin secret key"
// @Success     200 {object} router.Response{data=whatsapp.WAVersionStatus}
// @Failure     401 {object} router.Response
// @Security    AdminAuth
// @Router      /admin/whatsapp/version [get]
func (h *Handler) GetWhatsAppWebVersion(c *fiber.Ctx) error {
	return router.ResponseSuccessWithData(c, "Success get WhatsApp Web version", h.deps.Version.Status())
}

// @Summary     Refresh WhatsApp Web Version
// @Description Fetch the latest WhatsApp Web version from upstream
// @Tags        Admin
// @Produce     json
// @Param       X-Admin-Secret header string true "Admin secret key"
// @Param       force query bool false "Bypass the minimum refresh interval" default(true)
// @Success     200 {object} router.Response{data=ResponseVersionRefresh}
// @Failure     401 {object} router.Response
// @Failure     502 {object} router.Response
// @Security    AdminAuth
// @Router      /admin/whatsapp/version/refresh [post]
func (h *Handler) RefreshWhatsAppWebVersion(c *fiber.Ctx) error {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	status, refreshed, err := h.deps.Version.Refresh(ctx, c.QueryBool("force", true))
	if err != nil {
		log.Print(c).WithError(err).Warn("WhatsApp Web version refresh failed")
		return router.ResponseBadGateway(c, "Failed to refresh WhatsApp Web version: "+err.Error())
	}

	return router.ResponseSuccessWithData(c, "Success refresh WhatsApp Web version", ResponseVersionRefresh{
		WAVersionStatus: status,
		Refreshed:       refreshed,
	})
}
