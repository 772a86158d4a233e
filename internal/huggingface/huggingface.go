// Package huggingface calls the Hugging Face Inference API for text
// generation.
package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/lehigh-university-libraries/creative-engine/internal/providers"
)

var (
	// ErrModelLoading is returned while the hosted model is cold (HTTP 503).
	ErrModelLoading = errors.New("huggingface: model is loading")
	// ErrResponse is returned when the body carries an "error" field.
	ErrResponse = errors.New("huggingface: error response")
)

// StatusError reports a non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("huggingface: received status code %d - %s", e.StatusCode, e.Body)
}

// HuggingFace is a provider for the hosted inference API
type HuggingFace struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

// New returns a new Hugging Face provider. baseURL is the models root, e.g.
// https://api-inference.huggingface.co/models.
func New(token, baseURL string, httpClient *http.Client) *HuggingFace {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		baseURL = "https://api-inference.huggingface.co/models"
	}
	return &HuggingFace{token: strings.TrimSpace(token), baseURL: baseURL, httpClient: httpClient}
}

// Name returns the backend name
func (h *HuggingFace) Name() string {
	return "huggingface"
}

// HasCredentials reports whether an API token is configured
func (h *HuggingFace) HasCredentials() bool {
	return h.token != ""
}

type inferenceRequest struct {
	Inputs     string              `json:"inputs"`
	Parameters inferenceParameters `json:"parameters"`
	Options    inferenceOptions    `json:"options"`
}

type inferenceParameters struct {
	MaxNewTokens int     `json:"max_new_tokens"`
	Temperature  float64 `json:"temperature"`
}

type inferenceOptions struct {
	WaitForModel bool `json:"wait_for_model"`
}

// ExtractText sends the prompt to the configured model and returns the
// generated text.
func (h *HuggingFace) ExtractText(ctx context.Context, config providers.Config) (string, error) {
	if !h.HasCredentials() {
		return "", fmt.Errorf("huggingface: %w", providers.ErrMissingCredentials)
	}

	maxTokens := config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 80
	}
	requestBody, err := json.Marshal(inferenceRequest{
		Inputs:     config.Prompt,
		Parameters: inferenceParameters{MaxNewTokens: maxTokens, Temperature: config.Temperature},
		Options:    inferenceOptions{WaitForModel: true},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/"+config.Model, bytes.NewBuffer(requestBody))
	if err != nil {
		return "", fmt.Errorf("failed to create new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+h.token)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode == http.StatusServiceUnavailable {
		return "", ErrModelLoading
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	return GeneratedText(body)
}

// GeneratedText pulls the generated text out of an inference response. The
// API answers with a list of {"generated_text"} objects, a single such
// object, or a bare JSON string depending on the model task. Anything else
// is returned as the raw JSON text.
func GeneratedText(body []byte) (string, error) {
	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("failed to decode response body: %w", err)
	}

	switch v := decoded.(type) {
	case map[string]any:
		if msg, ok := v["error"]; ok && truthy(msg) {
			return "", fmt.Errorf("%w: %v", ErrResponse, msg)
		}
		if s, ok := v["generated_text"].(string); ok && s != "" {
			return s, nil
		}
	case []any:
		if len(v) > 0 {
			if first, ok := v[0].(map[string]any); ok {
				if s, ok := first["generated_text"].(string); ok && s != "" {
					return s, nil
				}
			}
		}
	case string:
		return v, nil
	}
	return string(body), nil
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	default:
		return true
	}
}
