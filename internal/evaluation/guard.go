// Package evaluation provides the evaluation functions optimizers call:
// a synthetic strategy backend plus guard and cache middleware around any
// optimize.EvaluateFunc
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/ajitpratap0/stratlab/pkg/backtest"
	"github.com/ajitpratap0/stratlab/pkg/optimize"
)

var (
	// ErrCircuitOpen is returned while the breaker rejects evaluations
	ErrCircuitOpen = errors.New("evaluation circuit breaker open")

	// errCallerCanceled marks failures caused by the caller's context
	errCallerCanceled = errors.New("evaluation canceled by caller")
)

// GuardConfig configures per-call protection of an evaluation backend
type GuardConfig struct {
	// Timeout bounds a single evaluation; zero disables it
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// RateLimit is the sustained evaluations per second; zero disables limiting
	RateLimit float64         `mapstructure:"rate_limit" yaml:"rate_limit"`
	Burst     int             `mapstructure:"burst" yaml:"burst"`
	Breaker   BreakerSettings `mapstructure:"breaker" yaml:"breaker"`
}

// Guard wraps an evaluation function with a timeout, a rate limiter and a
// circuit breaker. It never retries.
type Guard struct {
	name    string
	cfg     GuardConfig
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewGuard creates a guard; name labels the breaker metrics
func NewGuard(name string, cfg GuardConfig) *Guard {
	g := &Guard{
		name:    name,
		cfg:     cfg,
		breaker: newBreaker(name, cfg.Breaker),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return g
}

// State returns the current breaker state
func (g *Guard) State() gobreaker.State {
	return g.breaker.State()
}

// Wrap returns next protected by the guard
func (g *Guard) Wrap(next optimize.EvaluateFunc) optimize.EvaluateFunc {
	return func(ctx context.Context, ps backtest.ParameterSet) (*backtest.BacktestResult, error) {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("evaluation rate limit: %w", err)
			}
		}

		out, err := g.breaker.Execute(func() (interface{}, error) {
			return g.call(ctx, next, ps)
		})
		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return nil, fmt.Errorf("%w: %s: %w", ErrCircuitOpen, g.name, err)
		case err != nil:
			return nil, err
		}

		result, _ := out.(*backtest.BacktestResult)
		return result, nil
	}
}

// call runs one evaluation under the per-call timeout
func (g *Guard) call(ctx context.Context, next optimize.EvaluateFunc, ps backtest.ParameterSet) (*backtest.BacktestResult, error) {
	callCtx := ctx
	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}

	result, err := next(callCtx, ps)
	switch {
	case err == nil:
		return result, nil
	case ctx.Err() != nil:
		return nil, fmt.Errorf("%w: %w", errCallerCanceled, err)
	case errors.Is(callCtx.Err(), context.DeadlineExceeded):
		return nil, fmt.Errorf("evaluation timed out after %s: %w", g.cfg.Timeout, err)
	default:
		return nil, err
	}
}
