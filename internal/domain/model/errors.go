package model

import "errors"

// ErrInvalidSnapshot is returned when a snapshot fails validation.
var ErrInvalidSnapshot = errors.New("invalid benchmark snapshot")
