package log

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/gdbrns/go-whatsapp-pair-bot/pkg/env"
)

var logger = logrus.New()

func init() {
	logger.Formatter = &logrus.TextFormatter{
		TimestampFormat: time.RFC3339,
		FullTimestamp:   true,
		DisableColors:   false,
		ForceColors:     env.GetEnvBoolOrDefault("LOG_FORCE_COLORS", true),
	}

	level, err := logrus.ParseLevel(env.GetEnvStringOrDefault("LOG_LEVEL", "info"))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
}

// Logger exposes the process logger for callers that need to tweak output (tests).
func Logger() *logrus.Logger {
	return logger
}

func Print(c *fiber.Ctx) *logrus.Entry {
	if c == nil {
		return logger.WithFields(logrus.Fields{})
	}

	remoteIP := c.IP()
	if v := c.Locals("remote_ip"); v != nil {
		if ip, ok := v.(string); ok && ip != "" {
			remoteIP = ip
		}
	}
	fields := logrus.Fields{
		"remote_ip": remoteIP,
		"method":    c.Method(),
		"uri":       c.OriginalURL(),
	}
	if v := c.Locals("request_id"); v != nil {
		fields["request_id"] = v
	}
	return logger.WithFields(fields)
}

// Session tags entries produced by the connection state machine.
func Session(phase string) *logrus.Entry {
	return logger.WithFields(logrus.Fields{
		"component": "session",
		"phase":     phase,
	})
}

// Pairing tags entries about a pairing code. Phone numbers are masked.
func Pairing(code string, phone string) *logrus.Entry {
	return logger.WithFields(logrus.Fields{
		"component": "pairing",
		"code":      code,
		"phone":     MaskPhone(phone),
	})
}

func Command(name string, chat string) *logrus.Entry {
	return logger.WithFields(logrus.Fields{
		"component": "command",
		"command":   name,
		"chat":      MaskPhone(chat),
	})
}

func Component(name string) *logrus.Entry {
	return logger.WithField("component", name)
}

// MaskPhone hides the last four characters of a number or JID user part.
func MaskPhone(value string) string {
	user := value
	server := ""
	if at := strings.IndexByte(value, '@'); at >= 0 {
		user, server = value[:at], value[at:]
	}
	if len(user) < 4 {
		return value
	}
	return user[0:len(user)-4] + "xxxx" + server
}
