package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CircuitState represents the current state of the circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds configuration for the circuit breaker.
type CircuitBreakerConfig struct {
	// Threshold is the number of consecutive transient failures before the circuit trips.
	Threshold int
	// ResetAfter is how long the circuit stays open before one probe request is let through.
	ResetAfter time.Duration
}

// DefaultCircuitBreakerConfig trips after 5 failures and probes again after 30 seconds.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Threshold:  5,
		ResetAfter: 30 * time.Second,
	}
}

// CircuitBreaker stops calling a provider that keeps failing with transient errors.
type CircuitBreaker struct {
	mu               sync.Mutex
	consecutiveFails int
	threshold        int
	resetAfter       time.Duration
	openedAt         time.Time
	state            CircuitState
	now              func() time.Time
}

// NewCircuitBreaker creates a closed circuit breaker.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.Threshold < 1 {
		config.Threshold = 1
	}
	return &CircuitBreaker{
		threshold:  config.Threshold,
		resetAfter: config.ResetAfter,
		state:      CircuitClosed,
		now:        time.Now,
	}
}

// Allow returns nil when a request may proceed. An open circuit moves to half-open once
// ResetAfter has elapsed and admits exactly one probe.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return nil
	case CircuitOpen:
		if cb.now().Sub(cb.openedAt) >= cb.resetAfter {
			cb.state = CircuitHalfOpen
			return nil
		}
		return NewError(ErrorTypeUnavailable,
			fmt.Sprintf("circuit breaker open after %d consecutive failures", cb.consecutiveFails), false, nil)
	default:
		return NewError(ErrorTypeUnavailable, "circuit breaker half-open: probe in flight", false, nil)
	}
}

// RecordSuccess closes the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFails = 0
	cb.state = CircuitClosed
}

// RecordFailure counts a transient failure. A failed probe reopens the circuit immediately.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFails++
	if cb.state == CircuitHalfOpen || cb.consecutiveFails >= cb.threshold {
		cb.state = CircuitOpen
		cb.openedAt = cb.now()
	}
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// ConsecutiveFailures returns the current count of consecutive failures.
func (cb *CircuitBreaker) ConsecutiveFailures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.consecutiveFails
}

// GuardedClient puts a circuit breaker in front of a ChatClient.
type GuardedClient struct {
	inner   ChatClient
	breaker *CircuitBreaker
	logger  *zap.Logger
}

// NewGuardedClient wraps inner with a breaker built from config.
func NewGuardedClient(inner ChatClient, config CircuitBreakerConfig, logger *zap.Logger) *GuardedClient {
	return &GuardedClient{
		inner:   inner,
		breaker: NewCircuitBreaker(config),
		logger:  logger.Named("llm-breaker"),
	}
}

// Complete forwards to the wrapped client unless the circuit is open.
// Only retryable failures count against the provider; an auth or model error
// still proves the provider is reachable.
func (g *GuardedClient) Complete(ctx context.Context, req *ChatRequest) (string, error) {
	if err := g.breaker.Allow(); err != nil {
		g.logger.Warn("LLM request rejected", zap.String("model", g.inner.GetModel()), zap.Error(err))
		return "", err
	}

	out, err := g.inner.Complete(ctx, req)
	switch {
	case err == nil:
		g.breaker.RecordSuccess()
	case IsRetryable(err):
		g.breaker.RecordFailure()
		if g.breaker.State() == CircuitOpen {
			g.logger.Warn("LLM circuit opened",
				zap.Int("consecutive_failures", g.breaker.ConsecutiveFailures()))
		}
	default:
		g.breaker.RecordSuccess()
	}
	return out, err
}

// GetModel returns the wrapped client's model.
func (g *GuardedClient) GetModel() string {
	return g.inner.GetModel()
}

// Breaker exposes the breaker for health reporting.
func (g *GuardedClient) Breaker() *CircuitBreaker {
	return g.breaker
}
