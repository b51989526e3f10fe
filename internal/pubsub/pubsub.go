package pubsub

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
)

// Publisher sends messages to a topic
type Publisher interface {
	Publish(ctx context.Context, topic string, msgs ...*message.Message) error
	Close() error
}

// Subscriber consumes a topic. It satisfies watermill's message.Subscriber
// so it can feed the router directly.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error)
	Close() error
}

// PubSub combines both Publisher and Subscriber interfaces
type PubSub interface {
	Publisher
	Subscriber
}
