// Package imagegen produces the base images for each creative.
//
// Two providers exist: a synthetic placeholder renderer that never fails and
// an AI Horde client speaking the asynchronous submit/poll/fetch protocol.
package imagegen

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/lehigh-university-libraries/creative-engine/internal/config"
)

// Kind selects an image provider.
type Kind string

const (
	KindMock  Kind = "mock"
	KindHorde Kind = "ai_horde"
)

// Kinds lists every supported provider.
var Kinds = []Kind{KindMock, KindHorde}

// Failure categories reported by remote providers.
var (
	ErrSubmit      = errors.New("image job submission failed")
	ErrTimeout     = errors.New("image job timed out")
	ErrFetch       = errors.New("image result fetch failed")
	ErrNoImageData = fmt.Errorf("%w: no image data found", ErrFetch)
)

// Request describes one image to generate. It is not modified after
// construction.
type Request struct {
	Concept            string
	Repetition         int
	ProductDescription string
	Prompt             string
	Seed               uint32
	Width              int
	Height             int
}

// RawImage is a generated image in a temporary file owned by the caller.
type RawImage struct {
	Path    string
	Request Request
}

// Remove deletes the temporary file.
func (r *RawImage) Remove() error {
	if r == nil || r.Path == "" {
		return nil
	}
	if err := os.Remove(r.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Provider generates a local raster image for a request.
type Provider interface {
	Kind() Kind
	Generate(ctx context.Context, req Request) (*RawImage, error)
}

// ParseKind validates a provider selector.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unsupported image provider: %s", s)
}

// New returns the provider for kind.
func New(kind Kind, cfg *config.Config) (Provider, error) {
	switch kind {
	case KindMock:
		return NewSynthetic(), nil
	case KindHorde:
		return NewHorde(HordeOptions{
			BaseURL:        cfg.HordeBaseURL,
			APIKey:         cfg.HordeKey(),
			RequestTimeout: cfg.HTTPTimeout,
			PollInterval:   cfg.HordePollInterval,
			Timeout:        cfg.HordeTimeout,
			SubmitInterval: cfg.HordeSubmitInterval,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported image provider: %s", kind)
	}
}

func writeTemp(data []byte) (string, error) {
	f, err := os.CreateTemp("", "creative-*.png")
	if err != nil {
		return "", fmt.Errorf("failed to create temp image: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write temp image: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to close temp image: %w", err)
	}
	return f.Name(), nil
}
