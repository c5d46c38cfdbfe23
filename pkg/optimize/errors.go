package optimize

import (
	"errors"
	"fmt"

	"github.com/ajitpratap0/stratlab/pkg/backtest"
)

var (
	ErrUnknownKind    = errors.New("unknown optimizer kind")
	ErrInvalidConfig  = errors.New("invalid optimizer configuration")
	ErrNilResult      = errors.New("evaluation returned no result")
	ErrNoEvaluations  = errors.New("optimizer finished without evaluating a candidate")
	ErrSingularMatrix = errors.New("kernel matrix is singular")
)

// OutOfBoundsError is returned when a best parameter set leaves its bounds
type OutOfBoundsError = backtest.OutOfBoundsError

// EvaluationError wraps a failed evaluation and aborts the run
type EvaluationError struct {
	Method     Kind
	Parameters backtest.ParameterSet
	Err        error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("%s: evaluation failed: %v", e.Method, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}
