package content

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
)

var (
	policy = bluemonday.UGCPolicy()

	inputRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	markdown = goldmark.New()
)

// RenderMessage renders message text as markdown and sanitizes the result.
// It is used when exporting a chat transcript to HTML.
func RenderMessage(text string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(text), &buf); err != nil {
		return "", fmt.Errorf("failed to render message: %w", err)
	}
	return string(policy.SanitizeBytes(buf.Bytes())), nil
}

// Sanitize removes unsafe HTML from the input string using a strict policy.
func Sanitize(input string) string {
	return policy.Sanitize(input)
}

// ValidateUsername checks the username against the backend's registration
// rules: 4 to 255 characters, alphanumeric plus dash and underscore.
func ValidateUsername(username string) error {
	if len(username) < 4 || len(username) >= 256 {
		return errors.New("username must be 4 to 255 characters long")
	}
	if !inputRegex.MatchString(username) {
		return errors.New("username contains invalid characters (allowed: alphanumeric, dash, underscore)")
	}
	return nil
}

// ValidatePassword checks the password against the backend's registration
// rules: 6 to 255 characters, alphanumeric plus dash and underscore.
func ValidatePassword(password string) error {
	if len(password) < 6 || len(password) >= 256 {
		return errors.New("password must be 6 to 255 characters long")
	}
	if !inputRegex.MatchString(password) {
		return errors.New("password contains invalid characters (allowed: alphanumeric, dash, underscore)")
	}
	return nil
}
