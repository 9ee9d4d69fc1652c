package radio

import (
	"errors"
	"fmt"
)

// ErrEncodingOverflow is returned when a computed register field does not fit
// its bit width, including degenerate mantissa/exponent inputs.
var ErrEncodingOverflow = errors.New("encoded value does not fit register field")

// InvalidInputError rejects user input before any register is modified
type InvalidInputError struct {
	Quantity Quantity
	Reason   string
	Min      float64
	Max      float64
	Err      error
}

func (e *InvalidInputError) Error() string {
	if e.Min == 0 && e.Max == 0 {
		return fmt.Sprintf("invalid %s: %s", e.Quantity, e.Reason)
	}
	return fmt.Sprintf("invalid %s: %s (valid range %g-%g %s)",
		e.Quantity, e.Reason, e.Min, e.Max, e.Quantity.Unit())
}

func (e *InvalidInputError) Unwrap() error {
	return e.Err
}

// TransportError wraps a failed write to the link. The caller may retry.
type TransportError struct {
	Command string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport write failed for %s: %v", e.Command, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// invalid builds an InvalidInputError carrying the quantity's bounds
func invalid(q Quantity, reason string, err error) *InvalidInputError {
	min, max := q.Bounds()
	return &InvalidInputError{
		Quantity: q,
		Reason:   reason,
		Min:      min,
		Max:      max,
		Err:      err,
	}
}
