package bus

import "errors"

// Bus errors.
var (
	ErrClosed                  = errors.New("bus closed")
	ErrPublishFailed           = errors.New("publish failed")
	ErrSubscriptionUnavailable = errors.New("subscription unavailable")
	ErrSubscriptionLost        = errors.New("subscription lost")
	ErrSubscriptionClosed      = errors.New("subscription closed")
	ErrNoChannels              = errors.New("no channels to subscribe")
)
