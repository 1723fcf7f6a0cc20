package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	nerr "github.com/next-trace/scg-planning-notify/contract/errors"
	"github.com/next-trace/scg-planning-notify/contract/notify"
)

// DefaultTopic carries planning notifications when no topic is configured.
const DefaultTopic = "planning.notifications"

// Writer is a minimal Kafka-like writer interface.
// Users can adapt segmentio/kafka-go or any other client to this.
type Writer interface {
	Write(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// Record is one consumed Kafka record.
type Record struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// Reader is a minimal Kafka-like consumer interface. Poll blocks until records arrive or ctx is
// done.
type Reader interface {
	Poll(ctx context.Context) ([]Record, error)
}

// Adapter implements notify.Transport using an injected Writer and Reader.
// A Reader feeds a single subscription at a time.
type Adapter struct {
	Writer     Writer
	Reader     Reader
	Topic      string
	Propagator notify.HeaderPropagator
	Logger     *slog.Logger
	// PollBackoff is the pause after a failed poll.
	PollBackoff time.Duration
}

var _ notify.Transport = (*Adapter)(nil)

// New creates a new Kafka adapter instance with the provided writer and reader.
func New(w Writer, r Reader) *Adapter {
	return &Adapter{
		Writer:      w,
		Reader:      r,
		Topic:       DefaultTopic,
		Propagator:  notify.NopHeaderPropagator{},
		Logger:      slog.Default(),
		PollBackoff: time.Second,
	}
}

// Publish writes the notification keyed by opts.Key, or by the record id so that notifications
// about one record stay ordered within a partition.
func (a *Adapter) Publish(ctx context.Context, n notify.Notification, opts notify.PublishOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if a.Writer == nil {
		return fmt.Errorf("kafka publish: %w", errors.Join(nerr.ErrPublishFailed, nerr.ErrTransportNotConfigured))
	}

	val, err := notify.Encode(n)
	if err != nil {
		return fmt.Errorf("kafka publish serialize: %w", err)
	}

	topic := a.Topic
	if opts.TopicOverride != "" {
		topic = opts.TopicOverride
	}

	key := []byte(opts.Key)
	if len(key) == 0 && n.Payload.Item != "" {
		key = []byte(n.Payload.Item)
	}

	headers := publishHeaders(opts)
	if a.Propagator != nil {
		a.Propagator.Inject(ctx, headers)
	}

	if err = a.Writer.Write(ctx, topic, key, val, headers); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		// separate return from preceding multi-line block (wsl)
		return fmt.Errorf("kafka publish write: %w", errors.Join(nerr.ErrPublishFailed, err))
	}

	return nil
}

// Subscribe polls the reader in the background and hands every record to recv in order.
// Unsubscribe stops polling and waits for the in-flight record.
func (a *Adapter) Subscribe(ctx context.Context, recv notify.Receiver) (notify.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if a.Reader == nil {
		return nil, fmt.Errorf("kafka subscribe: %w", errors.Join(nerr.ErrSubscribeFailed, nerr.ErrTransportNotConfigured))
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		a.poll(ctx, recv)
	}()

	return notify.SubscriptionFunc(func() error {
		cancel()
		<-done

		return nil
	}), nil
}

func (a *Adapter) poll(ctx context.Context, recv notify.Receiver) {
	for {
		recs, err := a.Reader.Poll(ctx)
		if ctx.Err() != nil {
			return
		}

		if err != nil {
			a.logger().WarnContext(ctx, "kafka poll", "err", err)

			if !sleep(ctx, a.PollBackoff) {
				return
			}

			continue
		}

		for _, r := range recs {
			if err := recv(ctx, notify.Message{Topic: r.Topic, Data: r.Value, Headers: r.Headers}); err != nil {
				a.logger().WarnContext(ctx, "kafka receive", "topic", r.Topic, "key", string(r.Key), "err", err)
			}
		}
	}
}

func (a *Adapter) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.Default()
	}

	return a.Logger
}

// helpers (duplicated for simplicity and test isolation)

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func publishHeaders(o notify.PublishOptions) map[string]string {
	h := make(map[string]string, len(o.Headers)+2)
	for k, v := range o.Headers {
		h[k] = v
	}

	return h
}
