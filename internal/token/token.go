// Package token owns the lifecycle of magic login tokens and the mapping
// from secure download tokens to files.
package token

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound    = errors.New("token_not_found")
	ErrExpired     = errors.New("token_expired")
	ErrAlreadyUsed = errors.New("token_already_used")
	ErrIneligible  = errors.New("user_ineligible")
)

const (
	DefaultTTL       = time.Hour
	DefaultRetention = 7 * 24 * time.Hour

	// tokenBytes of entropy; 256 bits encode to 43 URL-safe characters.
	tokenBytes = 32
)

// NewIdentifier returns an unguessable, URL-safe token string.
func NewIdentifier() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
