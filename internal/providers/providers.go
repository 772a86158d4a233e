package providers

import (
	"context"
	"errors"
)

// ErrMissingCredentials is returned by backends called without an API key.
var ErrMissingCredentials = errors.New("text provider credentials not configured")

// Config represents a single text generation request
type Config struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Prompt      string
}

// Provider defines the interface for a text generation backend
type Provider interface {
	Name() string
	// HasCredentials reports whether remote calls can be attempted.
	HasCredentials() bool
	ExtractText(ctx context.Context, config Config) (string, error)
}
