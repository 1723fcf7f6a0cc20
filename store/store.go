/*
Package store is the client-side record store. Actions are applied by a single writer; readers
take snapshots that never change underneath them.
*/
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	nerr "github.com/next-trace/scg-planning-notify/contract/errors"
	"github.com/next-trace/scg-planning-notify/contract/notify"
)

// Persister mirrors records outside the process, e.g. to survive restarts.
type Persister interface {
	Save(ctx context.Context, events []notify.Event) error
	Load(ctx context.Context) ([]notify.Event, error)
}

// Observer is told about every applied action.
type Observer func(ctx context.Context, a notify.Action)

// Option configures a Store.
type Option func(*Store)

// WithSession sets the session id of this client.
func WithSession(id string) Option {
	return func(s *Store) { s.state.SessionID = id }
}

// WithUsers seeds the known users.
func WithUsers(users ...notify.User) Option {
	return func(s *Store) { s.state.Users = append(s.state.Users, users...) }
}

// WithEvents seeds records.
func WithEvents(events ...notify.Event) Option {
	return func(s *Store) {
		for _, e := range events {
			s.state.Events[e.ID] = e
		}
	}
}

// WithPersister mirrors every written record through p.
func WithPersister(p Persister) Option {
	return func(s *Store) { s.persister = p }
}

// WithObserver registers an observer of applied actions.
func WithObserver(o Observer) Option {
	return func(s *Store) { s.observers = append(s.observers, o) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Store implements notify.Store in memory.
type Store struct {
	mu        sync.RWMutex
	state     notify.State
	persister Persister
	observers []Observer
	logger    *slog.Logger
}

var _ notify.Store = (*Store)(nil)

// New constructs an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		state: notify.State{
			Events: make(map[string]notify.Event),
			Locks:  make(map[string]notify.Lock),
		},
		logger: slog.Default(),
	}

	for _, o := range opts {
		o(s)
	}

	return s
}

// Dispatch applies a. Writes are serialized; a persister failure is logged and does not undo the
// in-memory write.
func (s *Store) Dispatch(ctx context.Context, a notify.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	touched, err := reduce(&s.state, a)

	var written []notify.Event
	if err == nil && s.persister != nil {
		for _, id := range touched {
			written = append(written, s.state.Events[id])
		}
	}
	s.mu.Unlock()

	if err != nil {
		return err
	}

	s.logger.DebugContext(ctx, "action applied", "type", a.Type, "records", len(touched))

	for _, o := range s.observers {
		o(ctx, a)
	}

	if len(written) > 0 {
		if perr := s.persister.Save(ctx, written); perr != nil {
			s.logger.WarnContext(ctx, "persist records", "type", a.Type, "err", perr)
		}
	}

	return nil
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() notify.State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.state
	st.Events = maps.Clone(s.state.Events)
	st.Locks = maps.Clone(s.state.Locks)
	st.Users = slices.Clone(s.state.Users)
	st.EventsList = slices.Clone(s.state.EventsList)
	st.Combined = slices.Clone(s.state.Combined)
	st.Selected = slices.Clone(s.state.Selected)

	if s.state.Modal != nil {
		m := *s.state.Modal
		st.Modal = &m
	}

	return st
}

// Load seeds the store from the persister. Loaded records do not overwrite ones already held.
func (s *Store) Load(ctx context.Context) (int, error) {
	if s.persister == nil {
		return 0, nil
	}

	events, err := s.persister.Load(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return 0, err
		}

		return 0, fmt.Errorf("store load: %w", errors.Join(nerr.ErrStoreFailed, err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0

	for _, e := range events {
		if _, ok := s.state.Events[e.ID]; ok || e.ID == "" {
			continue
		}

		s.state.Events[e.ID] = e
		n++
	}

	return n, nil
}
