package main

// @title Go WhatsApp Pair Bot
// @version 1.0.0
// @description WhatsApp bot that issues pairing codes, confirms them in chat and relays inbound messages to a channel

// @contact.name gdbrns
// @contact.url https://github.com/gdbrns/go-whatsapp-pair-bot

// @license.name MIT

// @host localhost:3000
// @BasePath /

// @securityDefinitions.apikey AdminAuth
// @in header
// @name X-Admin-Secret
// @description Admin secret key for session management

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	cron "github.com/robfig/cron/v3"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"

	"github.com/gdbrns/go-whatsapp-pair-bot/pkg/env"
	"github.com/gdbrns/go-whatsapp-pair-bot/pkg/log"
	"github.com/gdbrns/go-whatsapp-pair-bot/pkg/router"

	"github.com/gdbrns/go-whatsapp-pair-bot/internal"
)

type Server struct {
	Address string
	Port    string
}

func main() {
	var err error

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Bot
	bot, err := internal.Startup(ctx, internal.LoadConfig())
	if err != nil {
		log.Print(nil).Fatal("Failed to start bot: " + err.Error())
	}

	// Intialize Cron
	c := cron.New(cron.WithChain(
		cron.Recover(cron.DiscardLogger),
	), cron.WithSeconds())

	// Initialize Fiber
	app := fiber.New(fiber.Config{
		ErrorHandler: router.HttpErrorHandler,
		BodyLimit:    router.BodyLimitBytes(),
	})

	// Request ID + panic recovery (structured JSON)
	app.Use(router.HttpRequestID())
	app.Use(router.RecoveryMiddleware())

	// Router Compression
	app.Use(compress.New(compress.Config{
		Level: compress.Level(router.GZipLevel),
		Next: func(c *fiber.Ctx) bool {
			return strings.Contains(c.Path(), "docs")
		},
	}))

	// Router CORS
	app.Use(cors.New(cors.Config{
		AllowOrigins: router.CORSOrigin,
		AllowHeaders: "Origin, Content-Type, Accept, X-Admin-Secret",
		AllowMethods: "GET,POST,DELETE",
	}))

	// Router Security
	app.Use(helmet.New(helmet.Config{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "SAMEORIGIN",
		ContentSecurityPolicy: "default-src 'self'; style-src 'self' 'unsafe-inline'; script-src 'self' 'unsafe-inline'",
	}))

	// Router RealIP + request context enrichment
	app.Use(router.HttpRealIP())

	// Router Default Handler
	app.Get("/favicon.ico", router.ResponseNoContent)

	// Load Internal Routes
	internal.Routes(app, bot)

	// Connect WhatsApp Session
	bot.Start(ctx)

	// Running Routines Tasks
	internal.Routines(c, bot)

	// Get Server Configuration with defaults
	var serverConfig Server

	// SERVER_ADDRESS: default "0.0.0.0" (all interfaces)
	serverConfig.Address = env.GetEnvStringOrDefault("SERVER_ADDRESS", "0.0.0.0")

	// SERVER_PORT: default "3000"
	serverConfig.Port = env.GetEnvStringOrDefault("SERVER_PORT", env.GetEnvStringOrDefault("PORT", "3000"))

	// Start Server
	go func() {
		if err := app.Listen(serverConfig.Address + ":" + serverConfig.Port); err != nil {
			log.Print(nil).Fatal(err.Error())
		}
	}()

	// Watch for Shutdown Signal
	sigShutdown := make(chan os.Signal, 1)
	signal.Notify(sigShutdown, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-sigShutdown
	// Wait 5 Seconds Before Graceful Shutdown
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	// Try To Shutdown Server
	err = app.ShutdownWithContext(ctxShutdown)
	if err != nil {
		log.Print(nil).Error(err.Error())
	}

	// Try To Shutdown Cron
	<-c.Stop().Done()

	// Try To Shutdown Bot
	cancel()
	bot.Shutdown(ctxShutdown)
}
