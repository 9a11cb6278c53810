package series

import "errors"

// Sentinel kinds for series errors.
var (
	ErrInvalidPoint = errors.New("invalid series point")
	ErrInvalidRange = errors.New("invalid series range")
)
