package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	nerr "github.com/next-trace/scg-planning-notify/contract/errors"
	"github.com/next-trace/scg-planning-notify/contract/notify"
)

// DefaultSubject carries planning notifications when no subject is configured.
const DefaultSubject = "planning.notifications"

// MsgFunc receives one message from a subscription.
type MsgFunc func(subject string, data []byte, headers map[string]string)

// Client is a minimal NATS-like interface decoupled from any concrete library.
// Users can provide a wrapper around their NATS connection to satisfy this.
type Client interface {
	// Publish publishes a message to a subject with optional headers.
	Publish(subject string, data []byte, headers map[string]string) error
	// Subscribe delivers messages on subject to fn until the returned function is called.
	Subscribe(subject string, fn MsgFunc) (unsubscribe func() error, err error)
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithSubject sets the subject notifications are read from and published to.
func WithSubject(s string) Option {
	return func(a *Adapter) {
		if s != "" {
			a.Subject = s
		}
	}
}

// WithPropagator injects trace context into published headers.
func WithPropagator(p notify.HeaderPropagator) Option {
	return func(a *Adapter) {
		if p != nil {
			a.Propagator = p
		}
	}
}

// WithLogger sets the logger used for receiver failures.
func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) {
		if l != nil {
			a.Logger = l
		}
	}
}

// Adapter implements notify.Transport using an injected NATS-like Client.
type Adapter struct {
	Client     Client
	Subject    string
	Propagator notify.HeaderPropagator
	Logger     *slog.Logger
}

// Ensure Adapter implements the combined contract.
var _ notify.Transport = (*Adapter)(nil)

// New creates a new NATS adapter instance with the provided client.
func New(c Client, opts ...Option) *Adapter {
	a := &Adapter{
		Client:     c,
		Subject:    DefaultSubject,
		Propagator: notify.NopHeaderPropagator{},
		Logger:     slog.Default(),
	}

	for _, o := range opts {
		o(a)
	}

	return a
}

func (a *Adapter) Publish(ctx context.Context, n notify.Notification, opts notify.PublishOptions) error {
	if err := a.ready(ctx, nerr.ErrPublishFailed, "publish"); err != nil {
		return err
	}

	body, err := notify.Encode(n)
	if err != nil {
		return fmt.Errorf("nats publish serialize: %w", err)
	}

	subj := a.Subject
	if opts.TopicOverride != "" {
		subj = opts.TopicOverride
	}

	headers := publishHeaders(opts)
	a.Propagator.Inject(ctx, headers)

	if err := a.Client.Publish(subj, body, headers); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("nats publish: %w", errors.Join(nerr.ErrPublishFailed, err))
	}

	return nil
}

// Subscribe delivers every message on the adapter subject to recv. Delivery stops when ctx is
// done or the subscription is unsubscribed.
func (a *Adapter) Subscribe(ctx context.Context, recv notify.Receiver) (notify.Subscription, error) {
	if err := a.ready(ctx, nerr.ErrSubscribeFailed, "subscribe"); err != nil {
		return nil, err
	}

	unsub, err := a.Client.Subscribe(a.Subject, func(subject string, data []byte, headers map[string]string) {
		if ctx.Err() != nil {
			return
		}

		if err := recv(ctx, notify.Message{Topic: subject, Data: data, Headers: headers}); err != nil {
			a.Logger.WarnContext(ctx, "nats receive", "subject", subject, "err", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe %s: %w", a.Subject, errors.Join(nerr.ErrSubscribeFailed, err))
	}

	return notify.SubscriptionFunc(unsub), nil
}

func (a *Adapter) ready(ctx context.Context, base error, label string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if a.Client == nil {
		return fmt.Errorf("nats %s: %w", label, errors.Join(base, nerr.ErrTransportNotConfigured))
	}

	return nil
}

// helpers

func publishHeaders(o notify.PublishOptions) map[string]string {
	h := make(map[string]string, len(o.Headers)+1)
	for k, v := range o.Headers {
		h[k] = v
	}

	if o.Key != "" {
		h["key"] = o.Key
	}

	return h
}
