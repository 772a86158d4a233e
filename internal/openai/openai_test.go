package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lehigh-university-libraries/creative-engine/internal/providers"
)

func TestExtractText(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Expected /chat/completions, got %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("Unexpected authorization header %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"headline\":\"Hi\"}"}}]}`))
	}))
	defer server.Close()

	o := New(" sk-test ", server.URL, nil)
	text, err := o.ExtractText(context.Background(), providers.Config{Model: "gpt-4o-mini", Prompt: "p", MaxTokens: 80})
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	if text != `{"headline":"Hi"}` {
		t.Errorf("Unexpected text %q", text)
	}
	if got["max_tokens"] != float64(80) {
		t.Errorf("Expected max_tokens 80, got %v", got["max_tokens"])
	}
}

func TestExtractTextErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":"bad key"}`},
		{"no choices", http.StatusOK, `{"choices":[]}`},
		{"malformed", http.StatusOK, `not json`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			if _, err := New("sk-test", server.URL, nil).ExtractText(context.Background(), providers.Config{}); err == nil {
				t.Errorf("Expected error")
			}
		})
	}
}

func TestMissingCredentials(t *testing.T) {
	o := New("", "", nil)
	if o.HasCredentials() {
		t.Errorf("Expected no credentials")
	}
	_, err := o.ExtractText(context.Background(), providers.Config{})
	if !errors.Is(err, providers.ErrMissingCredentials) {
		t.Errorf("Expected ErrMissingCredentials, got %v", err)
	}
}
