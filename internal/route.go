package internal

import (
	"path/filepath"

	"github.com/gofiber/fiber/v2"
	swagger "github.com/gofiber/swagger"

	"github.com/gdbrns/go-whatsapp-pair-bot/pkg/auth"
	"github.com/gdbrns/go-whatsapp-pair-bot/pkg/router"

	ctlAdmin "github.com/gdbrns/go-whatsapp-pair-bot/internal/admin"
	ctlIndex "github.com/gdbrns/go-whatsapp-pair-bot/internal/index"
	ctlPair "github.com/gdbrns/go-whatsapp-pair-bot/internal/pair"
)

func Routes(app *fiber.App, a *App) {
	// Route for Index
	// ---------------------------------------------
	index := ctlIndex.Index(router.BaseURL)
	cache := router.HttpCacheInMemory(router.CacheTTLSeconds)
	if router.BaseURL == "" {
		app.Get("/", cache, index)
	} else {
		app.Get(router.BaseURL, cache, index)
		app.Get(router.Path(""), cache, index)
	}

	// Route for OpenAPI / Swagger
	// ---------------------------------------------
	docsRoutes(app, "docs")

	// Route for Pairing
	// ---------------------------------------------
	pairing := ctlPair.NewHandler(a.Session, a.Registry, a.Notifier, ctlPair.Config{
		RequestTimeout: a.Config.PairingTimeout,
	})
	app.Post(router.Path("generate-code"), a.Limiter.Middleware(), pairing.GenerateCode)
	app.Get(router.Path("pairing/:code"), pairing.GetStatus)

	// ============================================================
	// ADMIN ROUTES (X-Admin-Secret authentication)
	// ============================================================
	adminMiddleware := auth.AdminAuth()
	admin := ctlAdmin.NewHandler(ctlAdmin.Deps{
		Session:  a.Session,
		QR:       a.Client,
		Pairings: a.Registry,
		Webhooks: a.Webhooks,
		Version:  a.Version,
	})

	app.Get(router.Path("admin/session"), adminMiddleware, admin.GetSession)
	app.Post(router.Path("admin/session/reconnect"), adminMiddleware, admin.ReconnectSession)
	app.Delete(router.Path("admin/session"), adminMiddleware, admin.LogoutSession)
	app.Get(router.Path("admin/session/qr"), adminMiddleware, admin.GetQR)
	app.Get(router.Path("admin/whatsapp/version"), adminMiddleware, admin.GetWhatsAppWebVersion)
	app.Post(router.Path("admin/whatsapp/version/refresh"), adminMiddleware, admin.RefreshWhatsAppWebVersion)
}

// docsRoutes serves the generated OpenAPI files from dir and the Swagger UI under /docs.
func docsRoutes(app *fiber.App, dir string) {
	specURL := router.BaseURL + "/docs/swagger.json"
	swaggerHandler := swagger.New(swagger.Config{
		URL: specURL,
	})

	app.Get(router.BaseURL+"/docs/swagger.json", func(c *fiber.Ctx) error {
		return c.SendFile(filepath.Join(dir, "swagger.json"))
	})
	app.Get(router.BaseURL+"/docs/swagger.yaml", func(c *fiber.Ctx) error {
		return c.SendFile(filepath.Join(dir, "swagger.yaml"))
	})
	app.Get(router.BaseURL+"/docs/*", swaggerHandler)
}
