package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	nerr "github.com/next-trace/scg-planning-notify/contract/errors"
	"github.com/next-trace/scg-planning-notify/contract/notify"
)

// Router routes a decoded notification to its handler.
type Router interface {
	Route(ctx context.Context, n notify.Notification, state notify.StateFunc) error
}

// Option configures a Consumer.
type Option func(*Consumer)

// WithMaxInFlight bounds how many notifications are handled at once. 1, the default, handles
// them one after another in arrival order.
func WithMaxInFlight(n int) Option {
	return func(c *Consumer) {
		if n > 0 {
			c.maxInFlight = n
		}
	}
}

// WithPropagator extracts trace context from message headers before routing.
func WithPropagator(p notify.HeaderPropagator) Option {
	return func(c *Consumer) {
		if p != nil {
			c.prop = p
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Consumer) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithOnError registers a callback for messages that failed to decode or whose handler failed.
func WithOnError(fn func(m notify.Message, err error)) Option {
	return func(c *Consumer) { c.onError = fn }
}

// Consumer feeds messages from a transport into the router, giving every handler the live store
// snapshot accessor.
//
// Consumer is concurrency-safe and contains no global state.
type Consumer struct {
	sub    notify.Subscriber
	router Router
	state  notify.StateFunc

	maxInFlight int
	sem         chan struct{}
	wg          sync.WaitGroup

	mu      sync.Mutex
	active  notify.Subscription
	closed  bool
	prop    notify.HeaderPropagator
	logger  *slog.Logger
	onError func(m notify.Message, err error)
}

// New constructs a Consumer.
func New(sub notify.Subscriber, r Router, state notify.StateFunc, opts ...Option) *Consumer {
	c := &Consumer{
		sub:         sub,
		router:      r,
		state:       state,
		maxInFlight: 1,
		prop:        notify.NopHeaderPropagator{},
		logger:      slog.Default(),
	}

	for _, o := range opts {
		o(c)
	}

	c.sem = make(chan struct{}, c.maxInFlight)

	return c
}

// Start subscribes to the transport. It fails if the consumer is already started.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		return fmt.Errorf("consumer start: already subscribed: %w", nerr.ErrSubscribeFailed)
	}

	if c.sub == nil {
		return fmt.Errorf("consumer start: %w", nerr.ErrTransportNotConfigured)
	}

	c.closed = false

	s, err := c.sub.Subscribe(ctx, c.Receive)
	if err != nil {
		return err
	}

	c.active = s
	c.logger.InfoContext(ctx, "consumer started", "max_in_flight", c.maxInFlight)

	return nil
}

// Receive decodes and routes one message. It is the notify.Receiver handed to the transport.
//
// Undecodable messages are logged and dropped. With a single slot the handler runs inline and
// its error is returned to the transport; otherwise Receive returns once a slot is taken and the
// handler error is only logged. Messages arriving after Close are rejected with ErrConsumerClosed.
func (c *Consumer) Receive(ctx context.Context, m notify.Message) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("consumer receive: %w", nerr.ErrConsumerClosed)
	}

	c.wg.Add(1)
	c.mu.Unlock()

	n, err := notify.Decode(m.Data)
	if err != nil {
		c.wg.Done()
		c.fail(ctx, m, err)

		return nil
	}

	ctx = c.prop.Extract(ctx, m.Headers)

	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		c.wg.Done()
		return ctx.Err()
	}

	if c.maxInFlight == 1 {
		defer c.wg.Done()
		defer func() { <-c.sem }()

		return c.handle(ctx, m, n)
	}

	go func() {
		defer c.wg.Done()
		defer func() { <-c.sem }()

		_ = c.handle(context.WithoutCancel(ctx), m, n)
	}()

	return nil
}

func (c *Consumer) handle(ctx context.Context, m notify.Message, n notify.Notification) error {
	if err := c.router.Route(ctx, n, c.state); err != nil {
		c.fail(ctx, m, fmt.Errorf("handle %s: %w", n.Name, err))
		return err
	}

	c.logger.DebugContext(ctx, "notification handled", "event", n.Name, "item", n.Payload.Item)

	return nil
}

func (c *Consumer) fail(ctx context.Context, m notify.Message, err error) {
	if errors.Is(err, nerr.ErrDecodeFailed) {
		c.logger.WarnContext(ctx, "dropping undecodable notification", "topic", m.Topic, "err", err)
	} else {
		c.logger.ErrorContext(ctx, "notification handler failed", "topic", m.Topic, "err", err)
	}

	if c.onError != nil {
		c.onError(m, err)
	}
}

// Close unsubscribes, rejects further messages and waits for in-flight handlers until ctx is done.
func (c *Consumer) Close(ctx context.Context) error {
	c.mu.Lock()
	s := c.active
	c.active = nil
	c.closed = true
	c.mu.Unlock()

	var err error
	if s != nil {
		err = s.Unsubscribe()
	}

	done := make(chan struct{})

	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return err
	case <-ctx.Done():
		return errors.Join(err, ctx.Err())
	}
}
