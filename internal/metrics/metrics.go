package metrics

import (
	"context"
	"errors"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Bounded cardinality constants for metric labels.
// These ensure metrics don't have unbounded label values which can cause memory issues.
const (
	// Evaluation outcomes (bounded set)
	StatusSuccess = "success"
	StatusFailure = "failure"

	// Evaluation error categories (bounded set)
	EvaluationErrorTimeout     = "timeout"
	EvaluationErrorCanceled    = "canceled"
	EvaluationErrorRateLimit   = "rate_limit"
	EvaluationErrorCircuitOpen = "circuit_open"
	EvaluationErrorBounds      = "out_of_bounds"
	EvaluationErrorOther       = "other"

	// Cache operations (bounded set)
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheStore = "store"
	CacheError = "error"
)

// NormalizeEvaluationError maps arbitrary evaluation failures to bounded set
func NormalizeEvaluationError(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return EvaluationErrorTimeout
	}
	if errors.Is(err, context.Canceled) {
		return EvaluationErrorCanceled
	}
	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline"):
		return EvaluationErrorTimeout
	case strings.Contains(lower, "rate") || strings.Contains(lower, "limit"):
		return EvaluationErrorRateLimit
	case strings.Contains(lower, "circuit") || strings.Contains(lower, "breaker"):
		return EvaluationErrorCircuitOpen
	case strings.Contains(lower, "outside") || strings.Contains(lower, "bounds"):
		return EvaluationErrorBounds
	default:
		return EvaluationErrorOther
	}
}

// Optimization Metrics
var (
	// Optimization runs by method and outcome
	OptimizationRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stratlab_optimization_runs_total",
		Help: "Total number of optimization runs by method and status",
	}, []string{"method", "status"})

	// Optimization run duration
	OptimizationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stratlab_optimization_duration_seconds",
		Help:    "Optimization run duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900},
	}, []string{"method"})

	// Best fitness of the latest run
	BestFitness = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "stratlab_best_fitness",
		Help: "Best fitness found by the latest run of each method",
	}, []string{"method"})

	// Optimization iterations
	OptimizationIterations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stratlab_optimization_iterations_total",
		Help: "Total number of completed optimizer iterations or generations",
	}, []string{"method"})
)

// Evaluation Metrics
var (
	// Evaluations by method and outcome
	Evaluations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stratlab_evaluations_total",
		Help: "Total number of candidate evaluations by method and status",
	}, []string{"method", "status"})

	// Evaluation duration
	EvaluationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stratlab_evaluation_duration_ms",
		Help:    "Candidate evaluation duration in milliseconds",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
	}, []string{"method"})

	// Evaluation errors by category
	EvaluationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stratlab_evaluation_errors_total",
		Help: "Total number of failed evaluations by error category",
	}, []string{"category"})

	// Evaluation cache operations
	CacheOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stratlab_evaluation_cache_operations_total",
		Help: "Total number of evaluation cache operations by type",
	}, []string{"operation"})

	// Evaluation cache hit rate
	CacheHitRate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stratlab_evaluation_cache_hit_rate",
		Help: "Evaluation cache hit rate as a ratio (0.0 to 1.0)",
	})

	// Circuit breaker state (0 closed, 1 half-open, 2 open)
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "stratlab_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
	}, []string{"breaker"})

	// Circuit breaker trips
	CircuitBreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stratlab_circuit_breaker_trips_total",
		Help: "Total number of circuit breaker trips",
	}, []string{"breaker"})
)

// Analysis Metrics
var (
	// Monte Carlo simulations
	MonteCarloSimulations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stratlab_monte_carlo_simulations_total",
		Help: "Total number of Monte Carlo resampling runs",
	})

	// Walk-forward windows
	WalkForwardWindows = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stratlab_walkforward_windows_total",
		Help: "Total number of walk-forward windows analyzed",
	})

	// Published events
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stratlab_events_published_total",
		Help: "Total number of optimization events published by type",
	}, []string{"type"})

	// Errors
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stratlab_errors_total",
		Help: "Total number of errors by type",
	}, []string{"type", "component"})
)

// Helper functions to update metrics

// RecordEvaluation records a single candidate evaluation
func RecordEvaluation(method string, durationMs float64, err error) {
	EvaluationDuration.WithLabelValues(method).Observe(durationMs)
	if err != nil {
		Evaluations.WithLabelValues(method, StatusFailure).Inc()
		EvaluationErrors.WithLabelValues(NormalizeEvaluationError(err)).Inc()
		return
	}
	Evaluations.WithLabelValues(method, StatusSuccess).Inc()
}

// RecordOptimizationRun records a finished optimization run
func RecordOptimizationRun(method string, durationSeconds, bestFitness float64, err error) {
	OptimizationDuration.WithLabelValues(method).Observe(durationSeconds)
	if err != nil {
		OptimizationRuns.WithLabelValues(method, StatusFailure).Inc()
		return
	}
	OptimizationRuns.WithLabelValues(method, StatusSuccess).Inc()
	BestFitness.WithLabelValues(method).Set(bestFitness)
}

// RecordIteration records a completed optimizer iteration
func RecordIteration(method string) {
	OptimizationIterations.WithLabelValues(method).Inc()
}

// RecordCacheOperation records an evaluation cache operation
func RecordCacheOperation(operation string) {
	CacheOperations.WithLabelValues(operation).Inc()
}

// UpdateCircuitBreakerState sets the breaker state gauge
func UpdateCircuitBreakerState(breaker string, state int) {
	CircuitBreakerState.WithLabelValues(breaker).Set(float64(state))
}

// RecordCircuitBreakerTrip records a circuit breaker trip
func RecordCircuitBreakerTrip(breaker string) {
	CircuitBreakerTrips.WithLabelValues(breaker).Inc()
}

// RecordMonteCarlo records completed resampling runs
func RecordMonteCarlo(simulations int) {
	MonteCarloSimulations.Add(float64(simulations))
}

// RecordWalkForwardWindow records an analyzed walk-forward window
func RecordWalkForwardWindow() {
	WalkForwardWindows.Inc()
}

// RecordEventPublished records a published optimization event
func RecordEventPublished(eventType string) {
	EventsPublished.WithLabelValues(eventType).Inc()
}

// RecordError records an error
func RecordError(errorType, component string) {
	Errors.WithLabelValues(errorType, component).Inc()
}
