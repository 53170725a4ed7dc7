package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	mferrors "meetflow/internal/errors"
)

// ProviderConfig selects and configures a generator backend.
type ProviderConfig struct {
	Provider    string
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	TopP        float64
	MaxTokens   int
	Timeout     time.Duration
	MaxRetries  int
}

var defaultBaseURLs = map[string]string{
	"openai":     "https://api.openai.com/v1",
	"openrouter": "https://openrouter.ai/api/v1",
	"deepseek":   "https://api.deepseek.com/v1",
	"ollama":     "http://localhost:11434/v1",
}

// New builds the generator named by cfg.Provider. Remote providers are
// wrapped with retry and circuit breaking when MaxRetries > 0.
func New(cfg ProviderConfig) (Generator, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = "openai"
	}
	if provider == "mock" {
		return Offline{}, nil
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		var ok bool
		if baseURL, ok = defaultBaseURLs[provider]; !ok {
			return nil, fmt.Errorf("unknown llm provider %q (set llm.base_url for custom endpoints)", cfg.Provider)
		}
	}

	client, err := NewOpenAIClient(Config{
		BaseURL:     baseURL,
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		TopP:        cfg.TopP,
		MaxTokens:   cfg.MaxTokens,
		Timeout:     cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}
	if cfg.MaxRetries <= 0 {
		return client, nil
	}
	retry := mferrors.DefaultRetryConfig()
	retry.MaxAttempts = cfg.MaxRetries
	return NewRetrying(client, retry, nil), nil
}

// Offline answers every request without a network call: "{}" in JSON mode
// and an empty string otherwise. Stages fall back to their defaults.
type Offline struct{}

// Model implements Generator.
func (Offline) Model() string { return "offline" }

// Generate implements Generator.
func (Offline) Generate(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	if req.JSON {
		return Response{Text: "{}", Model: "offline"}, nil
	}
	return Response{Model: "offline"}, nil
}
