package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	nerr "github.com/next-trace/scg-planning-notify/contract/errors"
	"github.com/next-trace/scg-planning-notify/contract/notify"
)

const (
	// DefaultExchange is the topic exchange planning notifications are published to.
	DefaultExchange = "planning"
	// DefaultRoutingKey is used when a publish does not override the topic.
	DefaultRoutingKey = "planning.notifications"
)

type PubMsg struct {
	Exchange   string
	RoutingKey string
	Body       []byte
	Headers    map[string]string
}

type Publisher interface {
	Publish(ctx context.Context, m PubMsg) error
}

// Delivery is one consumed AMQP message.
type Delivery struct {
	RoutingKey string
	Body       []byte
	Headers    map[string]string
}

// Consumer delivers messages to fn. A nil return acknowledges the message; an error rejects it
// without requeueing.
type Consumer interface {
	Consume(ctx context.Context, fn func(ctx context.Context, d Delivery) error) (stop func() error, err error)
}

type Adapter struct {
	Publisher  Publisher
	Consumer   Consumer
	Exchange   string
	RoutingKey string
	Propagator notify.HeaderPropagator // optional, for context propagation into headers
	Logger     *slog.Logger
}

var _ notify.Transport = (*Adapter)(nil)

func New(p Publisher, c Consumer) *Adapter {
	return &Adapter{
		Publisher:  p,
		Consumer:   c,
		Exchange:   DefaultExchange,
		RoutingKey: DefaultRoutingKey,
		Logger:     slog.Default(),
	}
}

// NewWithPropagator allows configuring a HeaderPropagator for context propagation.
func NewWithPropagator(p Publisher, c Consumer, hp notify.HeaderPropagator) *Adapter {
	a := New(p, c)
	a.Propagator = hp

	return a
}

func (a *Adapter) Publish(ctx context.Context, n notify.Notification, opts notify.PublishOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if a.Publisher == nil {
		return fmt.Errorf("rabbitmq publish: %w", errors.Join(nerr.ErrPublishFailed, nerr.ErrTransportNotConfigured))
	}

	body, err := notify.Encode(n)
	if err != nil {
		return fmt.Errorf("rabbitmq publish serialize: %w", err)
	}

	rk := a.RoutingKey
	if opts.TopicOverride != "" {
		rk = opts.TopicOverride
	}

	// copy headers to avoid mutating caller-provided map
	hdrs := publishHeaders(opts)
	// Inject tracing context via configured propagator (keeps adapter decoupled)
	if a.Propagator != nil {
		a.Propagator.Inject(ctx, hdrs)
	}

	msg := PubMsg{
		Exchange:   a.Exchange,
		RoutingKey: rk,
		Body:       body,
		Headers:    hdrs,
	}
	if err := a.Publisher.Publish(ctx, msg); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("rabbitmq publish: %w", errors.Join(nerr.ErrPublishFailed, err))
	}

	return nil
}

// Subscribe consumes notifications and hands each to recv. Messages recv fails on are rejected.
func (a *Adapter) Subscribe(ctx context.Context, recv notify.Receiver) (notify.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if a.Consumer == nil {
		return nil, fmt.Errorf("rabbitmq subscribe: %w", errors.Join(nerr.ErrSubscribeFailed, nerr.ErrTransportNotConfigured))
	}

	stop, err := a.Consumer.Consume(ctx, func(ctx context.Context, d Delivery) error {
		err := recv(ctx, notify.Message{Topic: d.RoutingKey, Data: d.Body, Headers: d.Headers})
		if err != nil {
			a.logger().WarnContext(ctx, "rabbitmq receive", "routing_key", d.RoutingKey, "err", err)
		}

		return err
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}

		return nil, fmt.Errorf("rabbitmq subscribe: %w", errors.Join(nerr.ErrSubscribeFailed, err))
	}

	return notify.SubscriptionFunc(stop), nil
}

func (a *Adapter) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.Default()
	}

	return a.Logger
}

func publishHeaders(o notify.PublishOptions) map[string]string {
	h := make(map[string]string, len(o.Headers)+4)
	for k, v := range o.Headers {
		h[k] = v
	}

	if o.Key != "" {
		h["key"] = o.Key
	}

	return h
}
