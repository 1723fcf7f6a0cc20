package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	nerr "github.com/next-trace/scg-planning-notify/contract/errors"
	"github.com/next-trace/scg-planning-notify/contract/notify"
)

// DefaultTopic is reported on delivered messages when no override is given.
const DefaultTopic = "planning.notifications"

// Adapter is a thread-safe in-memory notify.Transport.
// Publish delivers synchronously to every subscriber and records the notification for tests
// and examples.
type Adapter struct {
	mu        sync.Mutex
	Published []notify.Notification

	subs       map[int]notify.Receiver
	next       int
	Propagator notify.HeaderPropagator
}

// Ensure Adapter implements the combined contract.
var _ notify.Transport = (*Adapter)(nil)

// New creates a new in-memory adapter instance.
func New() *Adapter {
	return &Adapter{subs: make(map[int]notify.Receiver), Propagator: notify.NopHeaderPropagator{}}
}

// Publish encodes n and hands it to every subscriber in subscription order.
// Receiver errors are returned joined; every subscriber is still called.
func (a *Adapter) Publish(ctx context.Context, n notify.Notification, opts notify.PublishOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := notify.Encode(n)
	if err != nil {
		return fmt.Errorf("inmemory publish: %w", err)
	}

	headers := make(map[string]string, len(opts.Headers)+1)
	for k, v := range opts.Headers {
		headers[k] = v
	}

	if opts.Key != "" {
		headers["key"] = opts.Key
	}

	if a.Propagator != nil {
		a.Propagator.Inject(ctx, headers)
	}

	topic := DefaultTopic
	if opts.TopicOverride != "" {
		topic = opts.TopicOverride
	}

	a.mu.Lock()
	a.Published = append(a.Published, n)

	recvs := make([]notify.Receiver, 0, len(a.subs))
	for i := 0; i < a.next; i++ {
		if r, ok := a.subs[i]; ok {
			recvs = append(recvs, r)
		}
	}
	a.mu.Unlock()

	var errs []error

	for _, r := range recvs {
		if err := r(ctx, notify.Message{Topic: topic, Data: data, Headers: headers}); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("inmemory deliver %s: %w", n.Name, errors.Join(errs...))
	}

	return nil
}

// Subscribe registers recv until the subscription is unsubscribed.
func (a *Adapter) Subscribe(ctx context.Context, recv notify.Receiver) (notify.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if recv == nil {
		return nil, fmt.Errorf("inmemory subscribe: nil receiver: %w", nerr.ErrSubscribeFailed)
	}

	a.mu.Lock()
	if a.subs == nil {
		a.subs = make(map[int]notify.Receiver)
	}

	id := a.next
	a.next++
	a.subs[id] = recv
	a.mu.Unlock()

	return notify.SubscriptionFunc(func() error {
		a.mu.Lock()
		delete(a.subs, id)
		a.mu.Unlock()

		return nil
	}), nil
}

// Inject delivers raw bytes to every subscriber as if they arrived from a broker, e.g. to replay
// captured server pushes.
func (a *Adapter) Inject(ctx context.Context, data []byte) error {
	a.mu.Lock()
	recvs := make([]notify.Receiver, 0, len(a.subs))
	for i := 0; i < a.next; i++ {
		if r, ok := a.subs[i]; ok {
			recvs = append(recvs, r)
		}
	}
	a.mu.Unlock()

	var errs []error
	for _, r := range recvs {
		errs = append(errs, r(ctx, notify.Message{Topic: DefaultTopic, Data: data}))
	}

	return errors.Join(errs...)
}

// Notifications returns a copy of everything published so far.
func (a *Adapter) Notifications() []notify.Notification {
	a.mu.Lock()
	defer a.mu.Unlock()

	return append([]notify.Notification(nil), a.Published...)
}
