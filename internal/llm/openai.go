package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	mferrors "meetflow/internal/errors"
	"meetflow/internal/logging"
)

// Config configures the OpenAI-compatible client.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	TopP        float64
	MaxTokens   int
	Timeout     time.Duration
	Headers     map[string]string
}

// OpenAIClient speaks the chat completions API shared by OpenAI, OpenRouter,
// DeepSeek, Ollama and other compatible servers.
type OpenAIClient struct {
	cfg        Config
	httpClient *http.Client
	logger     logging.Logger
}

// NewOpenAIClient builds a client. Base URL defaults to the OpenAI API.
func NewOpenAIClient(cfg Config) (*OpenAIClient, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("llm model is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &OpenAIClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logging.NewComponentLogger("llm-openai"),
	}, nil
}

// Model returns the configured model name.
func (c *OpenAIClient) Model() string {
	return c.cfg.Model
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	TopP           float64           `json:"top_p,omitempty"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	Stream         bool              `json:"stream"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Generate sends one chat completion request.
func (c *OpenAIClient) Generate(ctx context.Context, req Request) (Response, error) {
	started := time.Now()

	temperature := c.cfg.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	maxTokens := c.cfg.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	payload := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt(req)},
			{Role: "user", Content: req.User},
		},
		Temperature: temperature,
		TopP:        c.cfg.TopP,
		MaxTokens:   maxTokens,
	}
	if req.JSON {
		payload.ResponseFormat = map[string]string{"type": "json_object"}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Response{}, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := c.cfg.BaseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Response{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	for k, v := range c.cfg.Headers {
		httpReq.Header.Set(k, v)
	}

	c.logger.Debug("[%s] POST %s model=%s json=%t", req.Tag, endpoint, c.cfg.Model, req.JSON)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, mferrors.NewTransientError(err, fmt.Sprintf("LLM request failed: %v", err))
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, mferrors.NewTransientError(err, "failed to read LLM response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Debug("[%s] status %d body: %s", req.Tag, resp.StatusCode, string(respBody))
		return Response{}, mferrors.FromHTTPStatus(resp.StatusCode, string(respBody), retryAfterSeconds(resp.Header))
	}

	var decoded chatResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	if decoded.Error != nil && decoded.Error.Message != "" {
		return Response{}, mferrors.NewPermanentError(
			fmt.Errorf("%s: %s", decoded.Error.Type, decoded.Error.Message),
			"LLM returned an error: "+decoded.Error.Message,
		)
	}
	if len(decoded.Choices) == 0 {
		return Response{}, mferrors.NewTransientError(errors.New("no choices in response"), "LLM returned an empty response")
	}

	model := decoded.Model
	if model == "" {
		model = c.cfg.Model
	}
	out := Response{
		Text:    decoded.Choices[0].Message.Content,
		Model:   model,
		Latency: time.Since(started),
	}
	c.logger.Debug("[%s] %d chars in %v (tokens %d+%d, finish=%s)", req.Tag, len(out.Text), out.Latency,
		decoded.Usage.PromptTokens, decoded.Usage.CompletionTokens, decoded.Choices[0].FinishReason)
	return out, nil
}

func retryAfterSeconds(h http.Header) int {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return secs
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return int(d.Seconds()) + 1
		}
	}
	return 0
}
