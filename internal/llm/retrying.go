package llm

import (
	"context"

	mferrors "meetflow/internal/errors"
	"meetflow/internal/logging"
)

// Retrying wraps a Generator with retry on transient failures and a circuit
// breaker that fails fast while the backend is down.
type Retrying struct {
	underlying Generator
	retry      mferrors.RetryConfig
	breaker    *mferrors.CircuitBreaker
	logger     logging.Logger
}

// NewRetrying wraps g. A nil breaker gets a default one.
func NewRetrying(g Generator, retry mferrors.RetryConfig, breaker *mferrors.CircuitBreaker) *Retrying {
	if breaker == nil {
		breaker = mferrors.NewCircuitBreaker("llm", mferrors.DefaultCircuitBreakerConfig())
	}
	return &Retrying{
		underlying: g,
		retry:      retry,
		breaker:    breaker,
		logger:     logging.NewComponentLogger("llm-retry"),
	}
}

// Model returns the wrapped generator's model.
func (r *Retrying) Model() string {
	return r.underlying.Model()
}

// Generate calls the wrapped generator under retry and breaker protection.
func (r *Retrying) Generate(ctx context.Context, req Request) (Response, error) {
	resp, err := mferrors.RetryWithResult(ctx, r.retry, func(ctx context.Context) (Response, error) {
		return mferrors.ExecuteFunc(r.breaker, ctx, func(ctx context.Context) (Response, error) {
			return r.underlying.Generate(ctx, req)
		})
	}, r.logger)
	if err != nil {
		r.logger.Warn("[%s] generation failed: %v", req.Tag, err)
		return Response{}, err
	}
	return resp, nil
}
