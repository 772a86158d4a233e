// Package captions writes marketing copy for each creative.
//
// The offline provider fills a fixed per-tone template. The remote provider
// asks a text generation backend for a JSON object and degrades to the
// offline output whenever the call or the extraction fails, so callers always
// receive a usable Caption.
package captions

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/lehigh-university-libraries/creative-engine/internal/config"
	"github.com/lehigh-university-libraries/creative-engine/internal/gemini"
	"github.com/lehigh-university-libraries/creative-engine/internal/huggingface"
	"github.com/lehigh-university-libraries/creative-engine/internal/ollama"
	"github.com/lehigh-university-libraries/creative-engine/internal/openai"
	"github.com/lehigh-university-libraries/creative-engine/internal/providers"
)

// MaxHashtags caps the hashtag list of a caption.
const MaxHashtags = 6

// Caption is the copy attached to one image in one tone.
type Caption struct {
	Headline string   `json:"headline"`
	Body     string   `json:"body"`
	CTA      string   `json:"cta"`
	Hashtags []string `json:"hashtags"`
}

// Tone is a copywriting voice.
type Tone string

const (
	ToneFormal Tone = "formal"
	ToneWitty  Tone = "witty"
	ToneUrgent Tone = "urgent"
)

// Tones is the fixed, ordered tone set applied to every image.
var Tones = []Tone{ToneFormal, ToneWitty, ToneUrgent}

// ToneIndex returns the position of t in Tones, or len(Tones) when unknown.
func ToneIndex(t Tone) int {
	for i, known := range Tones {
		if known == t {
			return i
		}
	}
	return len(Tones)
}

// Provider produces a caption. Implementations never fail.
type Provider interface {
	Name() string
	Caption(ctx context.Context, product, concept string, tone Tone) Caption
}

// Selectors accepted by New.
const (
	SelectOffline     = "offline"
	SelectHuggingFace = "huggingface"
	SelectGemini      = "gemini"
	SelectOpenAI      = "openai"
	SelectOllama      = "ollama"
)

// Selectors lists every value accepted by New.
var Selectors = []string{SelectOffline, SelectHuggingFace, SelectGemini, SelectOpenAI, SelectOllama}

// New returns the caption provider for selector. Every selector other than
// "offline" yields a Remote provider backed by the named text backend.
func New(selector string, cfg *config.Config) (Provider, error) {
	httpClient := &http.Client{Timeout: cfg.CaptionTimeout}

	var backend providers.Provider
	var model string
	switch strings.ToLower(strings.TrimSpace(selector)) {
	case SelectOffline:
		return NewOffline(), nil
	case SelectHuggingFace:
		backend = huggingface.New(cfg.HuggingFaceToken, cfg.HuggingFaceBaseURL, httpClient)
		model = cfg.HuggingFaceModel
	case SelectGemini:
		backend = gemini.New(cfg.GeminiAPIKey)
		model = cfg.GeminiModel
	case SelectOpenAI:
		backend = openai.New(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, httpClient)
		model = cfg.OpenAIModel
	case SelectOllama:
		backend = ollama.New(cfg.OllamaURL, httpClient)
		model = cfg.OllamaModel
	default:
		return nil, fmt.Errorf("unsupported caption provider: %s", selector)
	}

	return NewRemote(backend, RemoteOptions{Model: model, Timeout: cfg.CaptionTimeout}), nil
}
