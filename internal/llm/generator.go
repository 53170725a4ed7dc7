// Package llm is the text-generation boundary of the pipeline.
package llm

import (
	"context"
	"time"
)

// Request is a single prompt exchange.
type Request struct {
	// Tag names the caller (usually the pipeline stage) for logs and fakes.
	Tag    string
	System string
	User   string
	// JSON asks the model to answer with a JSON document only.
	JSON        bool
	Temperature *float64
	MaxTokens   int
}

// Response carries the generated text and call metadata.
type Response struct {
	Text    string
	Model   string
	Latency time.Duration
}

// Generator turns prompts into text. Implementations return transport
// failures as errors; malformed content is the caller's problem.
type Generator interface {
	Generate(ctx context.Context, req Request) (Response, error)
	Model() string
}

// jsonInstruction is appended to the system prompt in JSON mode.
const jsonInstruction = "\n\nRespond with valid JSON only. Do not wrap it in prose."

func systemPrompt(req Request) string {
	if req.JSON {
		return req.System + jsonInstruction
	}
	return req.System
}
