package pair

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.mau.fi/whatsmeow/types"

	"github.com/gdbrns/go-whatsapp-pair-bot/internal/pairing"
	"github.com/gdbrns/go-whatsapp-pair-bot/internal/session"
	"github.com/gdbrns/go-whatsapp-pair-bot/pkg/log"
	"github.com/gdbrns/go-whatsapp-pair-bot/pkg/router"
	"github.com/gdbrns/go-whatsapp-pair-bot/pkg/validation"
)

const DefaultRequestTimeout = 30 * time.Second

// Session is the slice of the session manager the pairing endpoint drives.
type Session interface {
	IsRegistered() bool
	Phase() session.Phase
	OwnJID() types.JID
	RequestPairingCode(ctx context.Context, phone string) (string, error)
}

type Registry interface {
	Issue(phone string) (pairing.Entry, error)
	Cancel(code string) bool
	Status(code string) (pairing.Status, pairing.Entry)
}

type IssueNotifier interface {
	PairingIssued(entry pairing.Entry)
}

type RequestGenerateCode struct {
	Phone string `json:"phone" form:"phone"`
}

type ResponseGenerateCode struct {
	Code         string    `json:"code"`
	PhoneNumber  string    `json:"phoneNumber"`
	WhatsAppLink string    `json:"whatsappLink,omitempty"`
	LinkCode     string    `json:"linkCode,omitempty"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

type ResponsePairingStatus struct {
	Code          string         `json:"code"`
	Status        pairing.Status `json:"status"`
	PhoneNumber   string         `json:"phoneNumber,omitempty"`
	BoundIdentity string         `json:"boundIdentity,omitempty"`
	ExpiresAt     time.Time      `json:"expiresAt"`
}

type Config struct {
	RequestTimeout time.Duration
}

type Handler struct {
	session  Session
	registry Registry
	notifier IssueNotifier
	timeout  time.Duration
}

func NewHandler(sess Session, registry Registry, notifier IssueNotifier, cfg Config) *Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	return &Handler{
		session:  sess,
		registry: registry,
		notifier: notifier,
		timeout:  cfg.RequestTimeout,
	}
}

// GenerateCode issues a pairing code for the submitted phone number. While the bot is not
// yet linked it also requests a WhatsApp link code for that number.
// @Summary     Generate Pairing Code
// @Description Issue a pairing code for a phone number. Returns a wa.me link when the bot is linked, otherwise a WhatsApp link code
// @Tags        Pairing
// @Accept      json
// @Produce     json
// @Param       body body RequestGenerateCode true "Phone number in international format"
// @Success     200 {object} ResponseGenerateCode
// @Failure     400 {object} router.Response
// @Failure     401 {object} router.Response
// @Failure     429 {object} router.Response
// @Failure     500 {object} router.Response
// @Router      /generate-code [post]
func (h *Handler) GenerateCode(c *fiber.Ctx) error {
	var req RequestGenerateCode
	if err := c.BodyParser(&req); err != nil {
		return router.ResponseBadRequest(c, "Invalid phone number")
	}

	phone, err := validation.ValidatePhone(req.Phone)
	if err != nil {
		return router.ResponseBadRequest(c, "Invalid phone number")
	}

	registered := h.session.IsRegistered()
	if registered && h.session.Phase() != session.PhaseOpen {
		return router.ResponseUnauthorized(c, "WhatsApp session is not connected")
	}

	entry, err := h.registry.Issue(phone)
	if err != nil {
		log.Print(c).WithError(err).Error("failed to issue pairing code")
		return router.ResponseInternalError(c, "Failed to generate pairing code")
	}

	res := ResponseGenerateCode{
		Code:        entry.Code,
		PhoneNumber: phone,
		ExpiresAt:   entry.ExpiresAt,
	}

	if registered {
		own := h.session.OwnJID()
		if own.IsEmpty() {
			h.registry.Cancel(entry.Code)
			return router.ResponseUnauthorized(c, "WhatsApp session is not connected")
		}
		res.WhatsAppLink = whatsAppLink(own.User, entry.Code)
	} else {
		ctx, cancel := context.WithTimeout(requestContext(c), h.timeout)
		linkCode, err := h.session.RequestPairingCode(ctx, phone)
		cancel()
		if err != nil {
			h.registry.Cancel(entry.Code)
			if errors.Is(err, session.ErrPairingUnavailable) {
				return router.ResponseUnauthorized(c, "WhatsApp session cannot pair right now")
			}
			log.Pairing(entry.Code, phone).WithError(err).Error("failed to request link code")
			return router.ResponseInternalError(c, "Failed to request WhatsApp link code")
		}
		res.LinkCode = linkCode
	}

	if h.notifier != nil {
		h.notifier.PairingIssued(entry)
	}
	return router.ResponseJSON(c, fiber.StatusOK, res)
}

// @Summary     Get Pairing Status
// @Description Get the lifecycle status of a pairing code
// @Tags        Pairing
// @Produce     json
// @Param       code path string true "Pairing code"
// @Success     200 {object} router.Response{data=ResponsePairingStatus}
// @Failure     404 {object} router.Response
// @Router      /pairing/{code} [get]
func (h *Handler) GetStatus(c *fiber.Ctx) error {
	code := c.Params("code")
	status, entry := h.registry.Status(code)
	if status == pairing.StatusUnknown {
		return router.ResponseNotFound(c, "Pairing code not found")
	}

	return router.ResponseSuccessWithData(c, "Success get pairing status", ResponsePairingStatus{
		Code:          entry.Code,
		Status:        status,
		PhoneNumber:   entry.PhoneNumber,
		BoundIdentity: entry.BoundIdentity,
		ExpiresAt:     entry.ExpiresAt,
	})
}

func whatsAppLink(bot string, code string) string {
	return "https://wa.me/" + bot + "?text=" + url.QueryEscape(code)
}

func requestContext(c *fiber.Ctx) context.Context {
	if ctx := c.UserContext(); ctx != nil {
		return ctx
	}
	return context.Background()
}
