package captions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/lehigh-university-libraries/creative-engine/internal/providers"
)

// DefaultCTA is used when the model omits a call to action.
const DefaultCTA = "Shop now"

// Candidate keys per caption field, tried in order. Models do not reliably
// follow the requested field names.
var (
	headlineKeys = []string{"headline", "title"}
	bodyKeys     = []string{"body", "text", "description"}
	ctaKeys      = []string{"cta", "call_to_action"}
	hashtagKeys  = []string{"hashtags", "tags"}
)

var errNoJSON = errors.New("no JSON object in model output")

// RemoteOptions tunes the generation request.
type RemoteOptions struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Remote asks a text backend for structured copy.
type Remote struct {
	backend   providers.Provider
	opts      RemoteOptions
	fallbacks atomic.Int64
}

// NewRemote wraps backend. Zero options get the defaults 0.7 temperature,
// 80 tokens and a 60 second per-call timeout.
func NewRemote(backend providers.Provider, opts RemoteOptions) *Remote {
	if opts.Temperature == 0 {
		opts.Temperature = 0.7
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 80
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	return &Remote{backend: backend, opts: opts}
}

// Name returns the backend name.
func (r *Remote) Name() string {
	return r.backend.Name()
}

// Fallbacks returns how many captions were served by the offline templates.
func (r *Remote) Fallbacks() int64 {
	return r.fallbacks.Load()
}

// Caption requests copy from the backend. Any failure yields the offline
// caption for the same inputs.
func (r *Remote) Caption(ctx context.Context, product, concept string, tone Tone) Caption {
	if !r.backend.HasCredentials() {
		r.fallbacks.Add(1)
		slog.Debug("No credentials for caption backend, using offline template", "backend", r.backend.Name())
		return offlineCaption(product, tone)
	}

	callCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	text, err := r.backend.ExtractText(callCtx, providers.Config{
		Model:       r.opts.Model,
		Temperature: r.opts.Temperature,
		MaxTokens:   r.opts.MaxTokens,
		Prompt:      Instruction(product, concept, tone),
	})
	if err != nil {
		return r.degrade(product, concept, tone, err)
	}

	c, err := Extract(text)
	if err != nil {
		return r.degrade(product, concept, tone, err)
	}
	return c
}

func (r *Remote) degrade(product, concept string, tone Tone, reason error) Caption {
	r.fallbacks.Add(1)
	slog.Warn("Caption generation failed, using offline template",
		"backend", r.backend.Name(),
		"concept", concept,
		"tone", tone,
		"err", reason)
	return offlineCaption(product, tone)
}

// Instruction is the prompt sent to the text backend.
func Instruction(product, concept string, tone Tone) string {
	return "You are a concise marketing copywriter.\n" +
		fmt.Sprintf("product_name: %s\nconcept: %s\ntone: %s\n\n", product, concept, tone) +
		"Output ONLY a JSON object with fields: headline (<=8 words), body (<=25 words), cta (1-3 words), hashtags (array of 3-6 strings).\n"
}

// Extract decodes the first JSON object in text into a Caption. Prose before
// the object and text after it are ignored. An error is returned when no
// object can be decoded or when it has neither a headline nor a body.
func Extract(text string) (Caption, error) {
	start := strings.Index(text, "{")
	if start == -1 {
		return Caption{}, errNoJSON
	}

	var obj map[string]any
	if err := json.NewDecoder(strings.NewReader(text[start:])).Decode(&obj); err != nil {
		return Caption{}, fmt.Errorf("failed to decode caption JSON: %w", err)
	}

	c := Caption{
		Headline: firstText(obj, headlineKeys),
		Body:     firstText(obj, bodyKeys),
		CTA:      firstText(obj, ctaKeys),
		Hashtags: firstList(obj, hashtagKeys),
	}
	if c.Headline == "" && c.Body == "" {
		return Caption{}, errors.New("caption JSON has no headline or body")
	}
	if c.CTA == "" {
		c.CTA = DefaultCTA
	}
	return c, nil
}

func firstText(obj map[string]any, keys []string) string {
	for _, key := range keys {
		if s, ok := obj[key].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}

// firstList accepts either a JSON array of strings or a single string of
// space or comma separated tags.
func firstList(obj map[string]any, keys []string) []string {
	for _, key := range keys {
		var tags []string
		switch v := obj[key].(type) {
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok {
					if s = strings.TrimSpace(s); s != "" {
						tags = append(tags, s)
					}
				}
			}
		case string:
			tags = strings.FieldsFunc(v, func(r rune) bool {
				return r == ',' || r == ' ' || r == '\t' || r == '\n'
			})
		}
		if len(tags) > 0 {
			if len(tags) > MaxHashtags {
				tags = tags[:MaxHashtags]
			}
			return tags
		}
	}
	return []string{}
}
