// Package bus provides the publish/subscribe channel abstraction shared by
// the event publisher and the relay.
package bus

import "context"

// Message is one payload received on a channel.
type Message struct {
	Channel string
	Payload []byte
}

// Subscription is a live subscription to a fixed set of channels.
type Subscription interface {
	// Receive blocks until the next message arrives, ctx is done or the
	// subscription fails. A failed subscription returns an error wrapping
	// ErrSubscriptionLost and must be closed and replaced.
	Receive(ctx context.Context) (Message, error)

	// Close unsubscribes and releases the underlying connection.
	Close(ctx context.Context) error
}

// Bus publishes messages and opens subscriptions.
type Bus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channels ...string) (Subscription, error)
	Close() error
}
