// Package llm
package llm

import (
	"context"
	"errors"
)

// ErrGeneration wraps every failure to produce model output, whatever the
// upstream provider. Callers can branch on it without knowing which
// provider is behind the interface.
var ErrGeneration = errors.New("llm generation failed")

// Generator produces model text for a prompt.
type Generator interface {
	// Generate sends a prompt to the model and returns its text reply.
	Generate(ctx context.Context, prompt string) (string, error)

	// Close releases any resources held by the generator.
	Close() error
}
