package router

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	nerr "github.com/next-trace/scg-planning-notify/contract/errors"
	"github.com/next-trace/scg-planning-notify/contract/notify"
)

// Entry binds a notification name to a resolver.
type Entry struct {
	Name    string
	Resolve notify.Resolver
}

// Middleware wraps handler execution. Middlewares are executed in registration order.
type Middleware func(next notify.Handler) notify.Handler

// Option configures a Router.
type Option func(*Router)

// WithMiddleware registers global handler middleware.
func WithMiddleware(mw ...Middleware) Option {
	return func(r *Router) { r.mw = append(r.mw, mw...) }
}

// WithLogger sets the logger used for unroutable notifications.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// Router maps notification names to handlers resolved lazily at dispatch time.
// Several names may resolve to the same handler.
//
// Router is concurrency-safe and contains no global state.
type Router struct {
	mu sync.RWMutex

	entries map[string]notify.Resolver
	mw      []Middleware
	logger  *slog.Logger
}

// New constructs a Router with the given entries. Duplicate names are rejected.
func New(entries []Entry, opts ...Option) (*Router, error) {
	r := &Router{
		entries: make(map[string]notify.Resolver, len(entries)),
		logger:  slog.Default(),
	}

	for _, o := range opts {
		o(r)
	}

	for _, e := range entries {
		if err := r.Register(e.Name, e.Resolve); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Register binds name to resolve. Duplicate bindings are rejected.
func (r *Router) Register(name string, resolve notify.Resolver) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("register %s: %w", name, nerr.ErrHandlerExists)
	}

	r.entries[name] = resolve

	return nil
}

// Replace rebinds an existing name. It is the injection point for substituting handlers in tests.
func (r *Router) Replace(name string, resolve notify.Resolver) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[name]; !exists {
		return fmt.Errorf("replace %s: %w", name, nerr.ErrHandlerNotFound)
	}

	r.entries[name] = resolve

	return nil
}

// Resolve returns the current handler for name. Unknown names report false.
func (r *Router) Resolve(name string) (notify.Handler, bool) {
	r.mu.RLock()
	resolve, ok := r.entries[name]
	r.mu.RUnlock()

	if !ok || resolve == nil {
		return nil, false
	}

	h := resolve()
	if h == nil {
		return nil, false
	}

	return h, true
}

// Names returns the registered notification names, sorted.
func (r *Router) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for n := range r.entries {
		names = append(names, n)
	}

	slices.Sort(names)

	return names
}

// Route resolves n and runs its handler through the middleware chain.
// Unknown names are ignored.
func (r *Router) Route(ctx context.Context, n notify.Notification, state notify.StateFunc) error {
	h, ok := r.Resolve(n.Name)
	if !ok {
		r.logger.DebugContext(ctx, "notification ignored", "name", n.Name)
		return nil
	}

	return r.chain(h)(ctx, n, state)
}

func (r *Router) chain(h notify.Handler) notify.Handler {
	r.mu.RLock()
	chain := make([]Middleware, 0, len(r.mw))
	chain = append(chain, r.mw...)
	r.mu.RUnlock()

	// Build chain so the first registered middleware runs first
	final := h
	for i := len(chain) - 1; i >= 0; i-- {
		final = chain[i](final)
	}

	return final
}
