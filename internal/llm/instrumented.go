package llm

import (
	"context"
	"time"
)

// RequestRecorder receives one observation per generation call.
type RequestRecorder interface {
	RecordLLMRequest(ctx context.Context, model, tag, status string, latency time.Duration, promptChars, replyChars int)
}

// Instrumented reports every call on the wrapped generator to a recorder.
type Instrumented struct {
	underlying Generator
	recorder   RequestRecorder
	now        func() time.Time
}

// NewInstrumented wraps g. A nil recorder returns g unchanged.
func NewInstrumented(g Generator, recorder RequestRecorder) Generator {
	if recorder == nil {
		return g
	}
	return &Instrumented{underlying: g, recorder: recorder, now: time.Now}
}

// Model implements Generator.
func (i *Instrumented) Model() string {
	return i.underlying.Model()
}

// Generate implements Generator.
func (i *Instrumented) Generate(ctx context.Context, req Request) (Response, error) {
	start := i.now()
	resp, err := i.underlying.Generate(ctx, req)
	status := "success"
	if err != nil {
		status = "error"
	}
	model := resp.Model
	if model == "" {
		model = i.underlying.Model()
	}
	i.recorder.RecordLLMRequest(ctx, model, req.Tag, status, i.now().Sub(start), len(req.System)+len(req.User), len(resp.Text))
	return resp, err
}
