package formula

import "errors"

// Each failure mode has its own sentinel so callers can tell them apart with
// errors.Is while the message text stays readable in audit records.
var (
	ErrMalformedFormula  = errors.New("malformed formula")
	ErrUnboundVariable   = errors.New("unbound variable")
	ErrDivisionByZero    = errors.New("division by zero detected in formula")
	ErrNonFiniteResult   = errors.New("formula result is not a finite number")
	ErrInvalidDescriptor = errors.New("invalid formula descriptor")
)
