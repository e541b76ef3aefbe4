package validation

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

var (
	phonePattern = regexp.MustCompile(`^[0-9]{10,15}$`)

	ErrInvalidPhone = errors.New("invalid phone number")
)

// ValidatePhone accepts 10 to 15 digits with an optional leading "+" and returns the
// bare digits.
func ValidatePhone(phone string) (string, error) {
	trimmed := strings.TrimSpace(phone)
	if trimmed == "" {
		return "", ErrInvalidPhone
	}
	trimmed = strings.TrimPrefix(trimmed, "+")
	if !phonePattern.MatchString(trimmed) {
		return "", ErrInvalidPhone
	}
	return trimmed, nil
}

// ValidateURL ensures a non-empty absolute URL.
func ValidateURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return errors.New("url cannot be empty")
	}
	if _, err := url.ParseRequestURI(raw); err != nil {
		return errors.New("url must be valid")
	}
	return nil
}
