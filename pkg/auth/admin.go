package auth

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"

	"github.com/gdbrns/go-whatsapp-pair-bot/pkg/log"
	"github.com/gdbrns/go-whatsapp-pair-bot/pkg/router"
)

// AdminAuth validates the X-Admin-Secret header for admin endpoints
func AdminAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if AdminSecretKey == "" {
			return router.ResponseInternalError(c, "Admin secret key not configured")
		}

		adminSecret := c.Get("X-Admin-Secret")
		if adminSecret == "" {
			return router.ResponseUnauthorized(c, "Missing X-Admin-Secret header")
		}

		if subtle.ConstantTimeCompare([]byte(adminSecret), []byte(AdminSecretKey)) != 1 {
			log.Print(c).Warn("rejected admin request with invalid secret")
			return router.ResponseUnauthorized(c, "Invalid admin secret")
		}

		return c.Next()
	}
}
