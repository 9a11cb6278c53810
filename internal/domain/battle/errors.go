package battle

import "errors"

// Battle resolution errors.
var (
	ErrInvalidRequest   = errors.New("invalid battle request")
	ErrInsufficientData = errors.New("insufficient data: no metric measured on both sides")
)
