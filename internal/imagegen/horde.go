package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/lehigh-university-libraries/creative-engine/internal/config"
)

// hordeSeedModulus keeps seeds inside the range AI Horde accepts.
const hordeSeedModulus = 2147483647

// The AI Horde response schema is not stable across deployments. Each logical
// field is looked up under the candidate keys below, in order. A job fails
// only when none of the candidates yields a usable value.
var (
	hordeJobIDKeys      = []string{"id", "request_id", "generation_id"}
	hordeDoneKeys       = []string{"done", "finished"}
	hordeGenerationKeys = []string{"generations", "images"}
	hordeImageURLKeys   = []string{"img"}
	hordeImageDataKeys  = []string{"img", "b64", "base64"}
)

// HordeOptions configures the AI Horde client.
type HordeOptions struct {
	BaseURL        string
	APIKey         string
	HTTPClient     *http.Client
	RequestTimeout time.Duration
	PollInterval   time.Duration
	Timeout        time.Duration
	// SubmitInterval spaces job submissions across concurrent callers.
	SubmitInterval time.Duration
}

// Horde generates images through the AI Horde asynchronous job API.
type Horde struct {
	baseURL      string
	apiKey       string
	httpClient   *http.Client
	pollInterval time.Duration
	timeout      time.Duration
	limiter      *rate.Limiter
}

// NewHorde builds a client, applying defaults for unset options.
func NewHorde(opts HordeOptions) *Horde {
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = "https://stablehorde.net/api"
	}
	key := strings.TrimSpace(opts.APIKey)
	if key == "" {
		key = config.AnonymousHordeKey
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = 2 * time.Second
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	var limiter *rate.Limiter
	if opts.SubmitInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(opts.SubmitInterval), 1)
	}
	return &Horde{
		baseURL:      base,
		apiKey:       key,
		httpClient:   client,
		pollInterval: poll,
		timeout:      timeout,
		limiter:      limiter,
	}
}

// Kind reports KindHorde.
func (h *Horde) Kind() Kind {
	return KindHorde
}

type hordeParams struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Seed        string `json:"seed"`
	N           int    `json:"n"`
	Steps       int    `json:"steps"`
	SamplerName string `json:"sampler_name"`
}

type hordeSubmitRequest struct {
	Prompt            string      `json:"prompt"`
	Params            hordeParams `json:"params"`
	NSFW              bool        `json:"nsfw"`
	TrustedWorkers    bool        `json:"trusted_workers"`
	SlowWorkers       bool        `json:"slow_workers"`
	CensorNSFW        bool        `json:"censor_nsfw"`
	Workers           []string    `json:"workers"`
	WorkerBlacklist   bool        `json:"worker_blacklist"`
	Models            []string    `json:"models"`
	R2                bool        `json:"r2"`
	Shared            bool        `json:"shared"`
	ReplacementFilter bool        `json:"replacement_filter"`
}

// Generate submits a job, polls until it completes and stores the result in
// a temporary file.
func (h *Horde) Generate(ctx context.Context, req Request) (*RawImage, error) {
	jobID, err := h.submit(ctx, req)
	if err != nil {
		return nil, err
	}
	slog.Debug("AI Horde job submitted", "job_id", jobID, "concept", req.Concept, "seed", req.Seed)

	if err := h.wait(ctx, jobID); err != nil {
		return nil, err
	}

	data, err := h.fetch(ctx, jobID)
	if err != nil {
		return nil, err
	}
	path, err := writeTemp(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	return &RawImage{Path: path, Request: req}, nil
}

func (h *Horde) submit(ctx context.Context, req Request) (string, error) {
	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("%w: %v", ErrSubmit, err)
		}
	}

	payload := hordeSubmitRequest{
		Prompt: req.Prompt,
		Params: hordeParams{
			Width:       req.Width,
			Height:      req.Height,
			Seed:        strconv.FormatUint(uint64(req.Seed)%hordeSeedModulus, 10),
			N:           1,
			Steps:       30,
			SamplerName: "k_euler",
		},
		SlowWorkers:       true,
		Workers:           []string{},
		Models:            []string{"stable_diffusion"},
		R2:                true,
		ReplacementFilter: true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%w: failed to marshal request: %v", ErrSubmit, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/v2/generate/async", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: failed to create request: %v", ErrSubmit, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("apikey", h.apiKey)

	resp, err := h.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSubmit, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read response: %v", ErrSubmit, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: status %d - %s", ErrSubmit, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("%w: failed to decode response: %v", ErrSubmit, err)
	}
	jobID := firstString(decoded, hordeJobIDKeys)
	if jobID == "" {
		return "", fmt.Errorf("%w: no job id in response: %s", ErrSubmit, strings.TrimSpace(string(raw)))
	}
	return jobID, nil
}

// wait polls the job status until it reports completion. Query failures are
// retried until the overall timeout elapses.
func (h *Horde) wait(ctx context.Context, jobID string) error {
	started := time.Now()
	for {
		done, err := h.check(ctx, jobID)
		if err != nil {
			slog.Debug("AI Horde status check failed, retrying", "job_id", jobID, "err", err)
		} else if done {
			return nil
		}

		if time.Since(started) > h.timeout {
			return fmt.Errorf("%w: job %s not finished after %s", ErrTimeout, jobID, h.timeout)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
		case <-time.After(h.pollInterval):
		}
	}
}

func (h *Horde) check(ctx context.Context, jobID string) (bool, error) {
	status, err := h.getJSON(ctx, h.baseURL+"/v2/generate/check/"+jobID)
	if err != nil {
		return false, err
	}
	for _, key := range hordeDoneKeys {
		if truthy(status[key]) {
			return true, nil
		}
	}
	if s, ok := status["status"].(string); ok && s == "finished" {
		return true, nil
	}
	return false, nil
}

func (h *Horde) fetch(ctx context.Context, jobID string) ([]byte, error) {
	result, err := h.getJSON(ctx, h.baseURL+"/v2/generate/status/"+jobID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}

	var first map[string]any
	for _, key := range hordeGenerationKeys {
		if list, ok := result[key].([]any); ok && len(list) > 0 {
			first, _ = list[0].(map[string]any)
			break
		}
	}
	if first == nil {
		return nil, ErrNoImageData
	}

	for _, key := range hordeImageURLKeys {
		if u, ok := first[key].(string); ok && isHTTPURL(u) {
			data, err := h.download(ctx, u)
			if err == nil {
				return data, nil
			}
			slog.Debug("AI Horde image download failed", "job_id", jobID, "url", u, "err", err)
		}
	}

	for _, key := range hordeImageDataKeys {
		s, ok := first[key].(string)
		if !ok || s == "" || isHTTPURL(s) {
			continue
		}
		if data, err := decodeBase64(s); err == nil && len(data) > 0 {
			return data, nil
		}
	}
	return nil, ErrNoImageData
}

func (h *Horde) getJSON(ctx context.Context, url string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", h.apiKey)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("received non-200 status code: %d - %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}
	return out, nil
}

func (h *Horde) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image URL returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	return data, nil
}

func firstString(m map[string]any, keys []string) string {
	for _, key := range keys {
		switch v := m[key].(type) {
		case string:
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	default:
		return false
	}
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if data, err := base64.StdEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}
