package notify

import "context"

// Message is a raw inbound transport message.
type Message struct {
	Topic   string
	Data    []byte
	Headers map[string]string
}

// Receiver is called once per inbound message.
type Receiver func(ctx context.Context, m Message) error

// Subscription is an active subscription.
type Subscription interface {
	Unsubscribe() error
}

// SubscriptionFunc adapts a function to Subscription.
type SubscriptionFunc func() error

func (f SubscriptionFunc) Unsubscribe() error { return f() }

// Subscriber delivers inbound notification messages.
// Library users provide an implementation backed by their broker or push channel.
type Subscriber interface {
	Subscribe(ctx context.Context, recv Receiver) (Subscription, error)
}

// PublishOptions controls outbound publishing.
type PublishOptions struct {
	TopicOverride string
	Key           string
	Headers       map[string]string
}

// Publisher sends notifications to a broker, e.g. to fan server pushes out to clients.
type Publisher interface {
	Publish(ctx context.Context, n Notification, opts PublishOptions) error
}

// Transport combines subscribing and publishing.
type Transport interface {
	Subscriber
	Publisher
}
