package internal

import (
	"strings"
	"time"

	"go.mau.fi/whatsmeow/types"

	"github.com/gdbrns/go-whatsapp-pair-bot/internal/command"
	"github.com/gdbrns/go-whatsapp-pair-bot/internal/pair"
	"github.com/gdbrns/go-whatsapp-pair-bot/internal/pairing"
	"github.com/gdbrns/go-whatsapp-pair-bot/pkg/env"
	pkgWhatsApp "github.com/gdbrns/go-whatsapp-pair-bot/pkg/whatsapp"
)

const (
	defaultOwnerNumber = "923237533251"
	defaultChannelJID  = "120363043584356281@g.us"
	defaultChannelName = "RED DRAGON"
)

type Config struct {
	OwnerNumber   string
	Channel       types.JID
	ChannelName   string
	CommandPrefix string

	PairingTTL         time.Duration
	RequireSenderMatch bool
	PairingTimeout     time.Duration
	PairingRateEvery   time.Duration
	PairingRateBurst   int

	SendTimeout        time.Duration
	BackoffBase        time.Duration
	BackoffMax         time.Duration
	Datastore          pkgWhatsApp.DatastoreConfig
	Client             pkgWhatsApp.ClientConfig
	WALogLevel         string
	DBLogLevel         string
	HealthCheck        bool
	VersionCron        VersionCronConfig
	VersionMinInterval time.Duration
}

type VersionCronConfig struct {
	Enabled bool
	Spec    string
	Force   bool
}

// LoadConfig reads the bot settings from the environment.
func LoadConfig() Config {
	cfg := Config{
		OwnerNumber:   pkgWhatsApp.DecomposeJID(env.GetEnvStringOrDefault("OWNER_NUMBER", defaultOwnerNumber)),
		ChannelName:   env.GetEnvStringOrDefault("CHANNEL_NAME", defaultChannelName),
		CommandPrefix: env.GetEnvStringOrDefault("COMMAND_PREFIX", command.DefaultPrefix),

		PairingTTL:         env.GetEnvDurationOrDefault("PAIRING_CODE_TTL", pairing.DefaultTTL),
		RequireSenderMatch: env.GetEnvBoolOrDefault("PAIRING_REQUIRE_SENDER_MATCH", false),
		PairingTimeout:     env.GetEnvDurationOrDefault("PAIRING_REQUEST_TIMEOUT", pair.DefaultRequestTimeout),
		PairingRateEvery:   env.GetEnvDurationOrDefault("PAIRING_RATE_LIMIT_INTERVAL", 10*time.Second),
		PairingRateBurst:   env.GetEnvIntOrDefault("PAIRING_RATE_LIMIT_BURST", 3),

		SendTimeout: env.GetEnvDurationOrDefault("WHATSAPP_SEND_TIMEOUT", 30*time.Second),
		BackoffBase: env.GetEnvDurationOrDefault("WHATSAPP_RECONNECT_BACKOFF_BASE", 2*time.Second),
		BackoffMax:  env.GetEnvDurationOrDefault("WHATSAPP_RECONNECT_BACKOFF_MAX", 30*time.Second),

		Datastore: pkgWhatsApp.DatastoreConfig{
			Driver: env.GetEnvStringOrDefault("WHATSAPP_DATASTORE_TYPE", "sqlite3"),
			URI:    env.GetEnvStringOrDefault("WHATSAPP_DATASTORE_URI", ""),
			Dir:    env.GetEnvStringOrDefault("WHATSAPP_DATASTORE_DIR", pkgWhatsApp.DefaultDatastoreDir),
		},
		Client: pkgWhatsApp.ClientConfig{
			ProxyURL:     env.GetEnvStringOrDefault("WHATSAPP_CLIENT_PROXY_URL", ""),
			PrintQR:      env.GetEnvBoolOrDefault("WHATSAPP_PRINT_QR", true),
			VersionMajor: env.GetEnvIntOrDefault("WHATSAPP_VERSION_MAJOR", 0),
			VersionMinor: env.GetEnvIntOrDefault("WHATSAPP_VERSION_MINOR", 0),
			VersionPatch: env.GetEnvIntOrDefault("WHATSAPP_VERSION_PATCH", 0),
		},
		WALogLevel:  env.GetEnvStringOrDefault("WHATSAPP_LOG_LEVEL", "warn"),
		DBLogLevel:  env.GetEnvStringOrDefault("WHATSAPP_DATASTORE_LOG_LEVEL", "warn"),
		HealthCheck: env.GetEnvBoolOrDefault("WHATSAPP_ENABLE_HEALTH_CHECK_CRON", true),

		VersionCron: VersionCronConfig{
			Enabled: env.GetEnvBoolOrDefault("WHATSAPP_ENABLE_WAVERSION_REFRESH_CRON", false),
			// robfig/cron with seconds field. Default: daily at 03:00:00.
			Spec:  env.GetEnvStringOrDefault("WHATSAPP_WAVERSION_REFRESH_CRON_SPEC", "0 0 3 * * *"),
			Force: env.GetEnvBoolOrDefault("WHATSAPP_WAVERSION_REFRESH_CRON_FORCE", false),
		},
		VersionMinInterval: env.GetEnvDurationOrDefault("WHATSAPP_WAVERSION_REFRESH_MIN_INTERVAL", time.Hour),
	}

	// CHANNEL_JID=- turns the relay off.
	channel := strings.TrimSpace(env.GetEnvStringOrDefault("CHANNEL_JID", defaultChannelJID))
	if channel != "" && channel != "-" {
		cfg.Channel = pkgWhatsApp.ComposeJID(channel)
	}

	return cfg
}
