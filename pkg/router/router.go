package router

import (
	"strconv"
	"strings"

	"github.com/gdbrns/go-whatsapp-pair-bot/pkg/env"
)

const defaultBodyLimit = 8 * 1024 * 1024

var BaseURL, CORSOrigin string
var GZipLevel, CacheTTLSeconds int
var bodyLimitBytes int

var sizeSuffixes = map[string]int{
	"K": 1024,
	"M": 1024 * 1024,
	"G": 1024 * 1024 * 1024,
}

func init() {
	BaseURL = normalizeBaseURL(env.GetEnvStringOrDefault("HTTP_BASE_URL", ""))
	CORSOrigin = env.GetEnvStringOrDefault("HTTP_CORS_ORIGIN", "*")
	bodyLimitBytes = parseBodyLimit(env.GetEnvStringOrDefault("HTTP_BODY_LIMIT_SIZE", "1M"))
	GZipLevel = env.GetEnvIntOrDefault("HTTP_GZIP_LEVEL", 1)
	// Only the pairing page is cached.
	CacheTTLSeconds = env.GetEnvIntOrDefault("HTTP_CACHE_TTL_SECONDS", 60)
}

// Path mounts p under BaseURL.
func Path(p string) string {
	return BaseURL + "/" + strings.TrimLeft(p, "/")
}

func BodyLimitBytes() int {
	return bodyLimitBytes
}

// normalizeBaseURL yields "" or "/prefix" without a trailing slash.
func normalizeBaseURL(raw string) string {
	trimmed := strings.Trim(strings.TrimSpace(raw), "/")
	if trimmed == "" {
		return ""
	}
	return "/" + trimmed
}

// parseBodyLimit reads sizes like "512K" or "2M", falling back to 8M.
func parseBodyLimit(limit string) int {
	limit = strings.ToUpper(strings.TrimSpace(limit))
	if limit == "" {
		return defaultBodyLimit
	}

	multiplier := 1
	if unit, ok := sizeSuffixes[limit[len(limit)-1:]]; ok {
		multiplier = unit
		limit = limit[:len(limit)-1]
	}

	value, err := strconv.Atoi(strings.TrimSpace(limit))
	if err != nil || value <= 0 {
		return defaultBodyLimit
	}
	return value * multiplier
}
