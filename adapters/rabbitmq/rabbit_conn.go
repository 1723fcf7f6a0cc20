package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	nerr "github.com/next-trace/scg-planning-notify/contract/errors"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Concrete AMQP connection-backed constructor, publisher wrapper with auto-reconnect, and
// queue consumer.

const exchangeKind = "topic"

type Config struct {
	URL         string
	ConnTimeout time.Duration
	Exchange    string
	// Queue is the consumer queue. Empty declares a server-named exclusive queue.
	Queue string
	// BindingKey binds the queue to the exchange. Defaults to "#" (every notification).
	BindingKey string
}

func (c Config) exchange() string {
	if c.Exchange == "" {
		return DefaultExchange
	}

	return c.Exchange
}

func dial(cfg Config) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.DialConfig(cfg.URL, amqp.Config{
		Locale:     "en_US",
		Properties: amqp.Table{"product": "scg-planning-notify"},
		Dial:       amqp.DefaultDial(cfg.ConnTimeout),
	})
	if err != nil {
		return nil, nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}

	if err := ch.ExchangeDeclare(cfg.exchange(), exchangeKind, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()

		return nil, nil, err
	}

	return conn, ch, nil
}

type reconnectingPublisher struct {
	cfg    Config
	mu     sync.RWMutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	closed chan struct{}
	ready  chan struct{} // closed when a channel is ready
}

func newReconnectingPublisher(cfg Config) (*reconnectingPublisher, func()) {
	rp := &reconnectingPublisher{
		cfg:    cfg,
		closed: make(chan struct{}),
		ready:  make(chan struct{}),
	}
	go rp.run()
	cleanup := func() { rp.close() }
	return rp, cleanup
}

func (rp *reconnectingPublisher) Publish(ctx context.Context, m PubMsg) error {
	// Fast path: ensure channel available
	rp.mu.RLock()
	ch := rp.ch
	ready := rp.ready
	rp.mu.RUnlock()
	if ch == nil {
		// Wait for readiness or context cancellation
		select {
		case <-ready:
		case <-ctx.Done():
			return ctx.Err()
		}
		rp.mu.RLock()
		ch = rp.ch
		rp.mu.RUnlock()
		if ch == nil {
			return fmt.Errorf("%w: rabbitmq not connected", nerr.ErrPublishFailed)
		}
	}

	return ch.PublishWithContext(
		ctx,
		m.Exchange,
		m.RoutingKey,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			Headers:      toTable(m.Headers),
			ContentType:  "application/json",
			Body:         m.Body,
		},
	)
}

func (rp *reconnectingPublisher) run() {
	backoff := time.Second
	const maxBackoff = 30 * time.Second
	// #nosec G404 -- non-crypto RNG is acceptable for backoff jitter
	rng := rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec // non-crypto RNG is acceptable for backoff jitter

	for {
		select {
		case <-rp.closed:
			return
		default:
		}

		conn, ch, err := dial(rp.cfg)
		if err != nil {
			// exponential backoff with jitter
			jitter := time.Duration(rng.Int63n(int64(backoff / 2)))
			sleep := backoff + jitter/2
			if sleep > maxBackoff {
				sleep = maxBackoff
			}
			t := time.NewTimer(sleep)
			select {
			case <-rp.closed:
				t.Stop()
				return
			case <-t.C:
			}
			if backoff < maxBackoff {
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
			}
			continue
		}

		backoff = time.Second

		rp.mu.Lock()
		rp.conn = conn
		rp.ch = ch
		close(rp.ready)
		rp.mu.Unlock()

		// Block on connection close notifications to trigger reconnect
		closing := conn.NotifyClose(make(chan *amqp.Error, 1))
		select {
		case <-rp.closed:
			_ = ch.Close()
			_ = conn.Close()
			return
		case <-closing:
			rp.mu.Lock()
			rp.ch = nil
			rp.conn = nil
			rp.ready = make(chan struct{})
			rp.mu.Unlock()
			_ = ch.Close()
			_ = conn.Close()
		}
	}
}

func (rp *reconnectingPublisher) close() {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	select {
	case <-rp.closed:
		// already closed
		return
	default:
		close(rp.closed)
	}
	if rp.ch != nil {
		_ = rp.ch.Close()
		rp.ch = nil
	}
	if rp.conn != nil {
		_ = rp.conn.Close()
		rp.conn = nil
	}
}

// amqpConsumer consumes from a queue bound to the notifications exchange.
type amqpConsumer struct{ cfg Config }

func (c amqpConsumer) Consume(ctx context.Context, fn func(ctx context.Context, d Delivery) error) (func() error, error) {
	conn, ch, err := dial(c.cfg)
	if err != nil {
		return nil, err
	}

	exclusive := c.cfg.Queue == ""

	q, err := ch.QueueDeclare(c.cfg.Queue, !exclusive, exclusive, exclusive, false, nil)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	key := c.cfg.BindingKey
	if key == "" {
		key = "#"
	}

	if err := ch.QueueBind(q.Name, key, c.cfg.exchange(), false, nil); err != nil {
		_ = conn.Close()
		return nil, err
	}

	deliveries, err := ch.ConsumeWithContext(ctx, q.Name, "", false, exclusive, false, false, nil)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	go func() {
		for d := range deliveries {
			err := fn(ctx, Delivery{RoutingKey: d.RoutingKey, Body: d.Body, Headers: fromTable(d.Headers)})
			if err != nil {
				_ = d.Nack(false, false)
				continue
			}

			_ = d.Ack(false)
		}
	}()

	var once sync.Once

	stop := func() error {
		var err error

		once.Do(func() {
			err = errors.Join(ch.Close(), conn.Close())
		})

		return err
	}

	return stop, nil
}

func toTable(headers map[string]string) amqp.Table {
	if len(headers) == 0 {
		return nil
	}

	h := amqp.Table{}
	for k, v := range headers {
		h[k] = v
	}

	return h
}

func fromTable(t amqp.Table) map[string]string {
	out := make(map[string]string, len(t))
	for k, v := range t {
		out[k] = fmt.Sprint(v)
	}

	return out
}

// NewWithAMQPConn dials RabbitMQ with auto-reconnect for publishing, consumes from the configured
// queue, and returns Adapter and cleanup.
func NewWithAMQPConn(cfg Config) (*Adapter, func(), error) {
	if cfg.URL == "" {
		return nil, nil, fmt.Errorf("%w: rabbitmq url required", nerr.ErrTransportNotConfigured)
	}
	pub, cleanup := newReconnectingPublisher(cfg)
	ad := New(pub, amqpConsumer{cfg: cfg})
	ad.Exchange = cfg.exchange()
	return ad, cleanup, nil
}

type amqpChannelPublisher struct{ ch *amqp.Channel }

func (p amqpChannelPublisher) Publish(ctx context.Context, m PubMsg) error {
	return p.ch.PublishWithContext(
		ctx,
		m.Exchange,
		m.RoutingKey,
		false,
		false,
		amqp.Publishing{
			Headers:     toTable(m.Headers),
			Body:        m.Body,
			ContentType: "application/json",
		},
	)
}

// NewWithAMQPChannel publishes on an existing channel. The adapter cannot subscribe.
func NewWithAMQPChannel(ch *amqp.Channel) *Adapter {
	return New(amqpChannelPublisher{ch: ch}, nil)
}
