package event

import "errors"

// Envelope errors.
var (
	ErrUnknownKind    = errors.New("unknown event kind")
	ErrMismatchedKind = errors.New("event kind does not match payload")
	ErrMalformedEvent = errors.New("malformed event")
)
