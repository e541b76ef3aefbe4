package index

import (
	_ "embed"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/gdbrns/go-whatsapp-pair-bot/pkg/router"
)

//go:embed web/index.html
var page string

// Index serves the pairing form, posting to baseURL + "/generate-code".
func Index(baseURL string) fiber.Handler {
	html := strings.ReplaceAll(page, "{{BASE_URL}}", strings.TrimRight(baseURL, "/"))
	return func(c *fiber.Ctx) error {
		return router.ResponseSuccessWithHTML(c, html)
	}
}
