package evaluation

import (
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/ajitpratap0/stratlab/internal/metrics"
)

// Circuit breaker defaults for evaluation backends
const (
	DefaultMinRequests     = 5                // Minimum requests before tripping
	DefaultFailureRatio    = 0.6              // Failure ratio threshold (60%)
	DefaultOpenTimeout     = 30 * time.Second // How long circuit stays open
	DefaultHalfOpenMaxReqs = 3                // Max requests in half-open state
	DefaultCountInterval   = 10 * time.Second // Window for counting failures
)

// Circuit breaker state values exported as a gauge
const (
	StateClosedValue   = 0
	StateOpenValue     = 1
	StateHalfOpenValue = 2
)

// BreakerSettings holds circuit breaker configuration for one backend
type BreakerSettings struct {
	MinRequests     uint32        `mapstructure:"min_requests" yaml:"min_requests"`
	FailureRatio    float64       `mapstructure:"failure_ratio" yaml:"failure_ratio"`
	OpenTimeout     time.Duration `mapstructure:"open_timeout" yaml:"open_timeout"`
	HalfOpenMaxReqs uint32        `mapstructure:"half_open_max_requests" yaml:"half_open_max_requests"`
	CountInterval   time.Duration `mapstructure:"count_interval" yaml:"count_interval"`
}

// DefaultBreakerSettings returns the default evaluation breaker settings
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MinRequests:     DefaultMinRequests,
		FailureRatio:    DefaultFailureRatio,
		OpenTimeout:     DefaultOpenTimeout,
		HalfOpenMaxReqs: DefaultHalfOpenMaxReqs,
		CountInterval:   DefaultCountInterval,
	}
}

func (s BreakerSettings) withDefaults() BreakerSettings {
	d := DefaultBreakerSettings()
	if s.MinRequests == 0 {
		s.MinRequests = d.MinRequests
	}
	if s.FailureRatio == 0 {
		s.FailureRatio = d.FailureRatio
	}
	if s.OpenTimeout == 0 {
		s.OpenTimeout = d.OpenTimeout
	}
	if s.HalfOpenMaxReqs == 0 {
		s.HalfOpenMaxReqs = d.HalfOpenMaxReqs
	}
	if s.CountInterval == 0 {
		s.CountInterval = d.CountInterval
	}
	return s
}

// newBreaker creates a circuit breaker that exports its state as a metric.
// Failures caused by the caller canceling do not count against the backend.
func newBreaker(name string, settings BreakerSettings) *gobreaker.CircuitBreaker {
	s := settings.withDefaults()

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: s.HalfOpenMaxReqs,
		Interval:    s.CountInterval,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= s.MinRequests && failureRatio >= s.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errCallerCanceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			updateBreakerMetrics(name, to)
			if to == gobreaker.StateOpen {
				metrics.RecordCircuitBreakerTrip(name)
			}
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Evaluation circuit breaker state changed")
		},
	})

	updateBreakerMetrics(name, cb.State())
	return cb
}

// updateBreakerMetrics updates Prometheus metrics for a circuit breaker state change
func updateBreakerMetrics(name string, state gobreaker.State) {
	var value int
	switch state {
	case gobreaker.StateClosed:
		value = StateClosedValue
	case gobreaker.StateOpen:
		value = StateOpenValue
	case gobreaker.StateHalfOpen:
		value = StateHalfOpenValue
	}
	metrics.UpdateCircuitBreakerState(name, value)
}
