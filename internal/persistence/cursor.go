// Package persistence contains helpers shared by repository implementations.
package persistence

import (
	"encoding/base64"
	"strings"
	"time"

	"example.com/routine/internal/domain"
)

// EncodeCursor serialises the history cursor to a string token.
func EncodeCursor(c *domain.Cursor) string {
	if c == nil {
		return ""
	}
	raw := c.Day.UTC().Format(time.DateOnly)
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses the encoded cursor token.
func DecodeCursor(token string) (*domain.Cursor, error) {
	if strings.TrimSpace(token) == "" {
		return nil, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, err
	}
	day, err := time.Parse(time.DateOnly, string(decoded))
	if err != nil {
		return nil, err
	}
	return &domain.Cursor{Day: day}, nil
}
