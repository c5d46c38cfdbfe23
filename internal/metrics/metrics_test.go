package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeEvaluationError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"nil", nil, ""},
		{"deadline", fmt.Errorf("evaluate: %w", context.DeadlineExceeded), EvaluationErrorTimeout},
		{"canceled", context.Canceled, EvaluationErrorCanceled},
		{"rate limit", errors.New("rate: Wait(n=1) would exceed context deadline"), EvaluationErrorTimeout},
		{"limiter", errors.New("limiter burst exceeded"), EvaluationErrorRateLimit},
		{"breaker", errors.New("circuit breaker is open"), EvaluationErrorCircuitOpen},
		{"bounds", errors.New("parameter \"x\" value 3 outside [0, 1]"), EvaluationErrorBounds},
		{"other", errors.New("boom"), EvaluationErrorOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeEvaluationError(tt.err))
		})
	}
}

func TestRecordEvaluation(t *testing.T) {
	before := testutil.ToFloat64(Evaluations.WithLabelValues("test_method", StatusSuccess))
	failedBefore := testutil.ToFloat64(Evaluations.WithLabelValues("test_method", StatusFailure))

	RecordEvaluation("test_method", 5, nil)
	RecordEvaluation("test_method", 5, errors.New("boom"))

	assert.Equal(t, before+1, testutil.ToFloat64(Evaluations.WithLabelValues("test_method", StatusSuccess)))
	assert.Equal(t, failedBefore+1, testutil.ToFloat64(Evaluations.WithLabelValues("test_method", StatusFailure)))
}

func TestRecordOptimizationRun(t *testing.T) {
	RecordOptimizationRun("run_test", 2, 1.25, nil)
	assert.Equal(t, 1.25, testutil.ToFloat64(BestFitness.WithLabelValues("run_test")))

	// Failed runs do not overwrite the best fitness
	RecordOptimizationRun("run_test", 2, 9, errors.New("aborted"))
	assert.Equal(t, 1.25, testutil.ToFloat64(BestFitness.WithLabelValues("run_test")))
	assert.Equal(t, 1.0, testutil.ToFloat64(OptimizationRuns.WithLabelValues("run_test", StatusFailure)))
}

func TestCircuitBreakerMetrics(t *testing.T) {
	UpdateCircuitBreakerState("eval_test", 2)
	assert.Equal(t, 2.0, testutil.ToFloat64(CircuitBreakerState.WithLabelValues("eval_test")))

	RecordCircuitBreakerTrip("eval_test")
	assert.Equal(t, 1.0, testutil.ToFloat64(CircuitBreakerTrips.WithLabelValues("eval_test")))
}

func TestAnalysisHelpers(t *testing.T) {
	assert.NotPanics(t, func() {
		RecordIteration("genetic")
		RecordMonteCarlo(1000)
		RecordWalkForwardWindow()
		RecordEventPublished("progress")
		RecordCacheOperation(CacheHit)
		RecordError("timeout", "evaluation")
	})
}
