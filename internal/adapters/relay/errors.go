package relay

import "errors"

// Relay errors.
var (
	ErrHubClosed      = errors.New("relay hub closed")
	ErrDeliveryFailed = errors.New("delivery failed")
)
