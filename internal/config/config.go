package config

import (
	"os"
	"strconv"
	"time"
)

// AnonymousHordeKey is the key AI Horde accepts for unauthenticated requests.
const AnonymousHordeKey = "0000000000"

// Config carries credentials and endpoints for the remote backends. It is
// built once at process start and passed to provider constructors.
type Config struct {
	HordeAPIKey         string
	HordeBaseURL        string
	HordeTimeout        time.Duration
	HordePollInterval   time.Duration
	HordeSubmitInterval time.Duration

	HuggingFaceToken   string
	HuggingFaceModel   string
	HuggingFaceBaseURL string

	GeminiAPIKey string
	GeminiModel  string

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	OllamaURL   string
	OllamaModel string

	HTTPTimeout    time.Duration
	CaptionTimeout time.Duration
}

// Load reads the configuration from environment variables, applying defaults.
func Load() *Config {
	return &Config{
		HordeAPIKey:         os.Getenv("STABLEHORDE_API_KEY"),
		HordeBaseURL:        getEnv("STABLEHORDE_BASE_URL", "https://stablehorde.net/api"),
		HordeTimeout:        time.Second * time.Duration(getEnvInt("STABLEHORDE_TIMEOUT_SECONDS", 180)),
		HordePollInterval:   time.Second * time.Duration(getEnvInt("STABLEHORDE_POLL_SECONDS", 2)),
		HordeSubmitInterval: time.Millisecond * time.Duration(getEnvInt("STABLEHORDE_SUBMIT_INTERVAL_MS", 0)),

		HuggingFaceToken:   os.Getenv("HUGGINGFACE_API_TOKEN"),
		HuggingFaceModel:   getEnv("HF_MODEL", "google/flan-t5-small"),
		HuggingFaceBaseURL: getEnv("HF_BASE_URL", "https://api-inference.huggingface.co/models"),

		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-1.5-flash"),

		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),

		OllamaURL:   getEnv("OLLAMA_URL", getEnv("OLLAMA_HOST", "http://localhost:11434")),
		OllamaModel: getEnv("OLLAMA_MODEL", "mistral-small3.2:24b"),

		HTTPTimeout:    time.Second * time.Duration(getEnvInt("HTTP_TIMEOUT_SECONDS", 30)),
		CaptionTimeout: time.Second * time.Duration(getEnvInt("CAPTION_TIMEOUT_SECONDS", 60)),
	}
}

// HordeKey returns the configured AI Horde key or the anonymous one.
func (c *Config) HordeKey() string {
	if c.HordeAPIKey == "" {
		return AnonymousHordeKey
	}
	return c.HordeAPIKey
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
