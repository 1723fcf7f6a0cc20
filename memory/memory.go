package memory

import (
	"context"
	"log/slog"
	"time"

	"github.com/next-trace/scg-planning-notify/adapters/inmemory"
	"github.com/next-trace/scg-planning-notify/api"
	"github.com/next-trace/scg-planning-notify/consumer"
	"github.com/next-trace/scg-planning-notify/contract/notify"
	"github.com/next-trace/scg-planning-notify/events"
	"github.com/next-trace/scg-planning-notify/listview"
	"github.com/next-trace/scg-planning-notify/retry"
	"github.com/next-trace/scg-planning-notify/router"
	"github.com/next-trace/scg-planning-notify/store"
	"github.com/next-trace/scg-planning-notify/ui"
)

// Option configures New.
type Option func(*options)

type options struct {
	transport   notify.Transport
	dsn         string
	indexDelay  time.Duration
	pageSize    int
	maxInFlight int
	storeOpts   []store.Option
	middleware  []router.Middleware
	retryOpts   []events.Option
	propagator  notify.HeaderPropagator
	notifier    notify.Notifier
	onError     func(m notify.Message, err error)
	logger      *slog.Logger
}

// WithTransport replaces the in-memory transport, e.g. with a NATS or webhook adapter.
func WithTransport(t notify.Transport) Option {
	return func(o *options) { o.transport = t }
}

// WithRepositoryDSN opens the events repository at dsn instead of a private ":memory:" database.
func WithRepositoryDSN(dsn string) Option {
	return func(o *options) { o.dsn = dsn }
}

// WithIndexDelay makes repository writes visible to searches only after d.
func WithIndexDelay(d time.Duration) Option {
	return func(o *options) { o.indexDelay = d }
}

// WithPageSize sets the list page size.
func WithPageSize(n int) Option {
	return func(o *options) { o.pageSize = n }
}

// WithMaxInFlight bounds concurrently handled notifications.
func WithMaxInFlight(n int) Option {
	return func(o *options) { o.maxInFlight = n }
}

// WithStoreOptions passes options to the store, e.g. store.WithSession.
func WithStoreOptions(opts ...store.Option) Option {
	return func(o *options) { o.storeOpts = append(o.storeOpts, opts...) }
}

// WithMiddleware wraps every handler.
func WithMiddleware(mw ...router.Middleware) Option {
	return func(o *options) { o.middleware = append(o.middleware, mw...) }
}

// WithRetryOptions configures the recurring series read-back, e.g. retry.WithSleep in tests.
func WithRetryOptions(opts ...retry.Option) Option {
	return func(o *options) { o.retryOpts = append(o.retryOpts, events.WithRetryOptions(opts...)) }
}

// WithRetryPolicy overrides the recurring series read-back budget.
func WithRetryPolicy(p retry.Policy) Option {
	return func(o *options) { o.retryOpts = append(o.retryOpts, events.WithRetryPolicy(p)) }
}

// WithPropagator restores trace context from message headers.
func WithPropagator(p notify.HeaderPropagator) Option {
	return func(o *options) { o.propagator = p }
}

// WithNotifier replaces the slog notifier for user-facing notices.
func WithNotifier(n notify.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithOnError observes messages the consumer could not decode or whose handler failed.
func WithOnError(fn func(m notify.Message, err error)) Option {
	return func(o *options) { o.onError = fn }
}

// WithLogger sets the logger of every component.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// System is a fully wired notification client: transport, consumer, router, event handlers,
// store, events API and UI controller.
type System struct {
	// Bus is the in-memory transport, nil when WithTransport was used.
	Bus        *inmemory.Adapter
	Transport  notify.Transport
	Store      *store.Store
	Repository *api.Repository
	API        *api.Client
	UI         *ui.Controller
	Handlers   *events.Handlers
	Router     *router.Router
	Consumer   *consumer.Consumer
}

// New wires a System and returns it with a cleanup that closes the consumer and the repository.
// Call Start to begin consuming.
func New(opts ...Option) (*System, func(), error) {
	o := options{dsn: ":memory:", pageSize: api.DefaultPageSize, maxInFlight: 1}
	for _, fn := range opts {
		fn(&o)
	}

	if o.logger == nil {
		o.logger = slog.Default()
	}

	sys := &System{Transport: o.transport}

	if sys.Transport == nil {
		sys.Bus = inmemory.New()
		sys.Transport = sys.Bus
	}

	repo, closeRepo, err := api.OpenRepository(o.dsn, api.WithIndexDelay(o.indexDelay))
	if err != nil {
		return nil, nil, err
	}

	sys.Repository = repo
	sys.Store = store.New(append([]store.Option{store.WithLogger(o.logger)}, o.storeOpts...)...)
	sys.API = api.NewClient(repo, sys.Store, api.WithPageSize(o.pageSize), api.WithLogger(o.logger))

	notifier := o.notifier
	if notifier == nil {
		notifier = ui.NewLogNotifier(o.logger)
	}

	sys.UI = ui.New(sys.Store, notifier)
	sys.Handlers = events.New(events.Deps{
		Store:    sys.Store,
		API:      sys.API,
		Lists:    sys.API,
		UI:       sys.UI,
		Notifier: notifier,
		Logger:   o.logger,
	}, o.retryOpts...)

	sys.Router, err = router.New(sys.Handlers.Entries(), router.WithMiddleware(o.middleware...), router.WithLogger(o.logger))
	if err != nil {
		closeRepo()
		return nil, nil, err
	}

	copts := []consumer.Option{consumer.WithMaxInFlight(o.maxInFlight), consumer.WithLogger(o.logger)}
	if o.propagator != nil {
		copts = append(copts, consumer.WithPropagator(o.propagator))
	}

	if o.onError != nil {
		copts = append(copts, consumer.WithOnError(o.onError))
	}

	sys.Consumer = consumer.New(sys.Transport, sys.Router, sys.Store.Snapshot, copts...)

	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = sys.Consumer.Close(ctx)

		closeRepo()
	}

	return sys, cleanup, nil
}

// Start subscribes the consumer to the transport.
func (s *System) Start(ctx context.Context) error { return s.Consumer.Start(ctx) }

// Seed writes records to the events repository, standing in for the server having created them.
func (s *System) Seed(ctx context.Context, evs ...notify.Event) error {
	for _, e := range evs {
		if err := s.Repository.Put(ctx, e); err != nil {
			return err
		}
	}

	return nil
}

// Notify publishes n on the transport as the server would.
func (s *System) Notify(ctx context.Context, n notify.Notification) error {
	return s.Transport.Publish(ctx, n, notify.PublishOptions{Key: n.Payload.Item})
}

// Rows derives the events list rows, in list order, as the viewing session sees them.
// Ids missing from the store are skipped.
func (s *System) Rows(filter string) []listview.Row {
	st := s.Store.Snapshot()

	rows := make([]listview.Row, 0, len(st.EventsList))
	for _, id := range st.EventsList {
		e, ok := st.Events[id]
		if !ok {
			continue
		}

		rows = append(rows, listview.Derive(e, st.Locks, st.SessionID, filter))
	}

	return rows
}
