// Package api provides the HTTP API server for chat turns and session,
// summary, and memory management.
package api

import "errors"

// DefaultMaxPromptChars caps the accepted prompt length when no explicit
// limit is configured.
const DefaultMaxPromptChars = 4000

// ErrMissingAPIKey is returned when the server is configured without an
// API key. The server refuses to start unauthenticated.
var ErrMissingAPIKey = errors.New("api key is required")

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8080")
	ListenAddr string

	// APIKey is the shared key expected in the X-API-Key header. Required.
	APIKey string

	// JWTSecret enables the bearer token guard on chat and session routes
	// when non-empty, and signs tokens issued by the login endpoint.
	JWTSecret string

	// MaxPromptChars caps the accepted prompt length. Defaults to
	// DefaultMaxPromptChars when zero.
	MaxPromptChars int
}
