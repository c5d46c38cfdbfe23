package backtest

import (
	"errors"
	"fmt"
)

// Configuration errors returned by Strategy.Validate
var (
	ErrNoParameters       = errors.New("strategy has no parameters")
	ErrInvalidBounds      = errors.New("parameter min must be less than max")
	ErrValueOutOfBounds   = errors.New("parameter value outside bounds")
	ErrDuplicateParameter = errors.New("duplicate parameter name")
)

// ParameterError describes a malformed strategy parameter
type ParameterError struct {
	Parameter string
	Err       error
}

func (e *ParameterError) Error() string {
	if e.Parameter == "" {
		return fmt.Sprintf("invalid strategy: %v", e.Err)
	}
	return fmt.Sprintf("invalid strategy parameter %q: %v", e.Parameter, e.Err)
}

func (e *ParameterError) Unwrap() error {
	return e.Err
}

// OutOfBoundsError is returned when a candidate leaves its declared bounds
type OutOfBoundsError struct {
	Parameter string
	Value     float64
	Min       float64
	Max       float64
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("parameter %q value %v outside [%v, %v]", e.Parameter, e.Value, e.Min, e.Max)
}
