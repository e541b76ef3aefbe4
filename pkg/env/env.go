package env

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
)

// =============================================================================
// Required Environment Variables (will panic if not set)
// =============================================================================

// MustGetEnvString panics if the env var is not set
func MustGetEnvString(envName string) string {
	v, err := GetEnvString(envName)
	if err != nil {
		panic(fmt.Sprintf("REQUIRED environment variable missing or empty: %s", envName))
	}
	return v
}

// =============================================================================
// Environment Variables with Defaults
// =============================================================================

func GetEnvStringOrDefault(envName, defaultValue string) string {
	v, err := GetEnvString(envName)
	if err != nil {
		return defaultValue
	}
	return v
}

func GetEnvBoolOrDefault(envName string, defaultValue bool) bool {
	v, err := GetEnvBool(envName)
	if err != nil {
		return defaultValue
	}
	return v
}

// GetEnvIntOrDefault returns the default when the value is unset or malformed
func GetEnvIntOrDefault(envName string, defaultValue int) int {
	v, err := GetEnvInt(envName)
	if err != nil {
		return defaultValue
	}
	return v
}

// GetEnvDurationOrDefault parses values like "90s" or "5m"
func GetEnvDurationOrDefault(envName string, defaultValue time.Duration) time.Duration {
	v, err := GetEnvDuration(envName)
	if err != nil {
		return defaultValue
	}
	return v
}

// GetEnvStringSliceOrDefault splits a comma separated value, dropping empty items
func GetEnvStringSliceOrDefault(envName string, defaultValue []string) []string {
	v, err := GetEnvString(envName)
	if err != nil {
		return defaultValue
	}
	parts := strings.Split(v, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			items = append(items, part)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}

// =============================================================================
// Core Environment Variable Getters
// =============================================================================

func SanitizeEnv(envName string) (string, error) {
	if len(envName) == 0 {
		return "", errors.New("Environment Variable Name Should Not Empty")
	}

	retValue := strings.TrimSpace(os.Getenv(envName))
	if len(retValue) == 0 {
		return "", errors.New("Environment Variable '" + envName + "' Has an Empty Value")
	}

	return retValue, nil
}

func GetEnvString(envName string) (string, error) {
	return SanitizeEnv(envName)
}

func GetEnvBool(envName string) (bool, error) {
	envValue, err := SanitizeEnv(envName)
	if err != nil {
		return false, err
	}

	return strconv.ParseBool(envValue)
}

func GetEnvInt(envName string) (int, error) {
	envValue, err := SanitizeEnv(envName)
	if err != nil {
		return 0, err
	}

	retValue, err := strconv.ParseInt(envValue, 0, 0)
	if err != nil {
		return 0, err
	}

	return int(retValue), nil
}

func GetEnvDuration(envName string) (time.Duration, error) {
	envValue, err := SanitizeEnv(envName)
	if err != nil {
		return 0, err
	}

	retValue, err := time.ParseDuration(envValue)
	if err != nil {
		return 0, err
	}
	if retValue < 0 {
		return 0, errors.New("Environment Variable '" + envName + "' Must Not Be Negative")
	}

	return retValue, nil
}
