package errors

import (
	"context"
	"fmt"
	"sync"
	"time"

	"meetflow/internal/logging"
)

// CircuitState is the position of a circuit breaker.
type CircuitState int

const (
	// StateClosed lets every call through.
	StateClosed CircuitState = iota
	// StateOpen rejects calls until the cool-down elapses.
	StateOpen
	// StateHalfOpen lets probe calls through to test recovery.
	StateHalfOpen
)

var circuitStateNames = map[CircuitState]string{
	StateClosed:   "closed",
	StateOpen:     "open",
	StateHalfOpen: "half-open",
}

func (s CircuitState) String() string {
	if name, ok := circuitStateNames[s]; ok {
		return name
	}
	return "unknown"
}

// CircuitBreakerConfig configures a CircuitBreaker. Zero fields take the
// defaults.
type CircuitBreakerConfig struct {
	// FailureThreshold consecutive failures open the circuit.
	FailureThreshold int
	// SuccessThreshold consecutive half-open successes close it again.
	SuccessThreshold int
	// Timeout is how long the circuit stays open before probing.
	Timeout time.Duration
	// OnStateChange, if set, is called asynchronously on every transition.
	OnStateChange func(from, to CircuitState, name string)
}

// DefaultCircuitBreakerConfig opens after 5 failures, probes after 30s and
// closes after 2 successful probes.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
}

// CircuitBreaker fails fast while a dependency keeps failing.
type CircuitBreaker struct {
	name   string
	config CircuitBreakerConfig
	logger logging.Logger
	now    func() time.Time

	mu          sync.RWMutex
	state       CircuitState
	failures    int
	successes   int
	lastFailure time.Time
	changedAt   time.Time
}

// NewCircuitBreaker returns a closed breaker for the named dependency.
func NewCircuitBreaker(name string, config CircuitBreakerConfig) *CircuitBreaker {
	defaults := DefaultCircuitBreakerConfig()
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = defaults.FailureThreshold
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = defaults.SuccessThreshold
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	return &CircuitBreaker{
		name:      name,
		config:    config,
		logger:    logging.NewComponentLogger("circuit-breaker"),
		now:       time.Now,
		changedAt: time.Now(),
	}
}

// ExecuteFunc runs fn if the breaker admits it and records the outcome. A
// rejected call returns a DegradedError without invoking fn.
func ExecuteFunc[T any](cb *CircuitBreaker, ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	if err := cb.admit(); err != nil {
		var zero T
		return zero, err
	}
	result, err := fn(ctx)
	cb.record(err)
	return result, err
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateOpen {
		return nil
	}
	waited := cb.now().Sub(cb.lastFailure)
	if waited >= cb.config.Timeout {
		cb.transition(StateHalfOpen)
		cb.logger.Info("[%s] Probing after %v cool-down", cb.name, cb.config.Timeout)
		return nil
	}
	return NewDegradedError(
		fmt.Errorf("circuit breaker open for %s", cb.name),
		fmt.Sprintf("%s is unavailable after repeated failures; retrying in %v",
			cb.name, (cb.config.Timeout - waited).Round(time.Second)),
		"",
	)
}

// record counts err against the dependency. Permanent errors describe a bad
// request rather than an unhealthy service and count as successes.
func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil || IsPermanent(err) {
		cb.failures = 0
		if cb.state == StateHalfOpen {
			cb.successes++
			if cb.successes >= cb.config.SuccessThreshold {
				cb.transition(StateClosed)
				cb.logger.Info("[%s] Circuit closed, dependency recovered", cb.name)
			}
		}
		return
	}

	cb.lastFailure = cb.now()
	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.transition(StateOpen)
			cb.logger.Warn("[%s] Circuit opened after %d consecutive failures", cb.name, cb.failures)
		}
	case StateHalfOpen:
		cb.transition(StateOpen)
		cb.logger.Warn("[%s] Probe failed, circuit reopened", cb.name)
	}
}

// transition must be called with mu held.
func (cb *CircuitBreaker) transition(to CircuitState) {
	from := cb.state
	cb.state = to
	cb.successes = 0
	if to == StateClosed {
		cb.failures = 0
	}
	cb.changedAt = cb.now()
	if cb.config.OnStateChange != nil && from != to {
		go cb.config.OnStateChange(from, to, cb.name)
	}
}

// State returns the current position.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// CircuitBreakerMetrics is a point-in-time snapshot of a breaker.
type CircuitBreakerMetrics struct {
	Name            string
	State           CircuitState
	FailureCount    int
	SuccessCount    int
	LastFailureTime time.Time
	LastStateChange time.Time
}

// Metrics snapshots the breaker.
func (cb *CircuitBreaker) Metrics() CircuitBreakerMetrics {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return CircuitBreakerMetrics{
		Name:            cb.name,
		State:           cb.state,
		FailureCount:    cb.failures,
		SuccessCount:    cb.successes,
		LastFailureTime: cb.lastFailure,
		LastStateChange: cb.changedAt,
	}
}
