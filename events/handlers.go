package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/next-trace/scg-planning-notify/contract/notify"
	"github.com/next-trace/scg-planning-notify/retry"
)

// Notice texts surfaced to the user.
const (
	MsgSpiked               = "The Event was spiked"
	MsgUnspiked             = "The Event was unspiked"
	MsgRecurringFetchFailed = "There was a problem fetching Recurring Events!"
	UnlockedTitle           = "Item Unlocked"
)

// RecurringPolicy is the budget for reading a freshly created series back from the search index.
var RecurringPolicy = retry.Policy{MaxAttempts: 5, Delay: 1000 * time.Millisecond}

// UserMessager is implemented by errors that carry a message fit for end users.
type UserMessager interface {
	UserMessage() string
}

// Deps are the collaborators of the event handlers.
type Deps struct {
	Store    notify.Dispatcher
	API      notify.EventsAPI
	Lists    notify.Lists
	UI       notify.UI
	Notifier notify.Notifier
	Logger   *slog.Logger
}

// Option configures Handlers.
type Option func(*Handlers)

// WithRetryPolicy overrides RecurringPolicy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(h *Handlers) { h.policy = p }
}

// WithRetryOptions passes options to every retry, e.g. retry.WithSleep in tests.
func WithRetryOptions(opts ...retry.Option) Option {
	return func(h *Handlers) { h.retryOpts = append(h.retryOpts, opts...) }
}

// Handlers translates event notifications into store actions and follow-on API calls.
type Handlers struct {
	d         Deps
	policy    retry.Policy
	retryOpts []retry.Option
}

// New constructs Handlers.
func New(d Deps, opts ...Option) *Handlers {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	h := &Handlers{d: d, policy: RecurringPolicy}
	for _, o := range opts {
		o(h)
	}

	return h
}

// Created refreshes the events list and then the combined list.
func (h *Handlers) Created(ctx context.Context, n notify.Notification, _ notify.StateFunc) error {
	if n.Payload.Item == "" {
		return nil
	}

	if _, err := h.d.Lists.RefetchEvents(ctx); err != nil {
		return fmt.Errorf("%s: %w", n.Name, err)
	}

	if err := h.d.Lists.RefetchCombined(ctx); err != nil {
		return fmt.Errorf("%s: %w", n.Name, err)
	}

	return nil
}

// RecurringCreated waits until the new series is searchable, then refreshes the lists.
// A failed query is reported to the user and not returned.
func (h *Handlers) RecurringCreated(ctx context.Context, n notify.Notification, _ notify.StateFunc) error {
	if n.Payload.Item == "" {
		return nil
	}

	q := notify.Query{RecurrenceID: n.Payload.Item, OnlyFuture: false}

	opts := append([]retry.Option{retry.WithOnRetry(func(attempt int) {
		h.d.Logger.DebugContext(ctx, "recurring series not indexed yet",
			"recurrence_id", n.Payload.Item, "attempt", attempt)
	})}, h.retryOpts...)

	_, err := retry.Do(ctx, h.policy,
		func(ctx context.Context) ([]notify.Event, error) { return h.d.API.Query(ctx, q) },
		func(events []notify.Event) bool { return len(events) > 0 },
		opts...,
	)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		h.d.Logger.WarnContext(ctx, "recurring events query failed", "recurrence_id", n.Payload.Item, "err", err)
		h.d.Notifier.Error(ctx, userMessage(err, MsgRecurringFetchFailed))

		return nil
	}

	if _, err := h.d.Lists.RefetchEvents(ctx); err != nil {
		return fmt.Errorf("%s: %w", n.Name, err)
	}

	if err := h.d.Lists.RefetchCombined(ctx); err != nil {
		return fmt.Errorf("%s: %w", n.Name, err)
	}

	return nil
}

// Updated refreshes the events list and reloads the record when it is open in the preview or the
// editor and the refresh did not already bring it in.
func (h *Handlers) Updated(ctx context.Context, n notify.Notification, state notify.StateFunc) error {
	id := n.Payload.Item
	if id == "" {
		return nil
	}

	fetched, err := h.d.Lists.RefetchEvents(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", n.Name, err)
	}

	st := state()

	loadedFromRefetch := st.IsSelected(id) && !containsID(fetched, id)

	if !loadedFromRefetch && (st.PreviewID == id || st.EditID == id) {
		if _, err := h.d.API.FetchByID(ctx, id, true); err != nil {
			return fmt.Errorf("%s: %w", n.Name, err)
		}
	}

	if err := h.d.Lists.RefetchCombined(ctx); err != nil {
		return fmt.Errorf("%s: %w", n.Name, err)
	}

	return nil
}

// Locked records the lock carried by the notification on the record.
func (h *Handlers) Locked(ctx context.Context, n notify.Notification, _ notify.StateFunc) error {
	p := n.Payload
	if p.Item == "" {
		return nil
	}

	e, err := h.d.API.GetEvent(ctx, p.Item)
	if err != nil {
		return fmt.Errorf("%s %s: %w", n.Name, p.Item, err)
	}

	e.ID = p.Item
	e.LockAction = p.LockAction
	if e.LockAction == "" {
		e.LockAction = notify.DefaultLockAction
	}
	e.LockUser = p.User
	e.LockSession = p.LockSession
	e.LockTime = p.LockTime
	e.ETag = p.ETag

	return h.d.Store.Dispatch(ctx, notify.Action{Type: notify.ActionLockEvent, Payload: notify.EventPayload{Event: e}})
}

// Unlocked clears the lock on the record. When another session releases a lock this session held,
// the user is told who unlocked the item.
func (h *Handlers) Unlocked(ctx context.Context, n notify.Notification, state notify.StateFunc) error {
	p := n.Payload
	if p.Item == "" {
		return nil
	}

	st := state()
	e, _ := st.Event(p.Item)

	lock, locked := notify.LockOf(e, st.Locks)
	if locked && lock.Session != "" && p.LockSession != st.SessionID && lock.Session == st.SessionID {
		name := p.User
		if u, ok := st.User(p.User); ok && u.DisplayName != "" {
			name = u.DisplayName
		}

		if err := h.d.UI.HideModal(ctx); err != nil {
			return fmt.Errorf("%s: %w", n.Name, err)
		}

		err := h.d.UI.ShowModal(ctx, notify.Modal{
			Type:  notify.ModalNotification,
			Title: UnlockedTitle,
			Body:  "The event you were editing was unlocked by \"" + name + "\"",
		})
		if err != nil {
			return fmt.Errorf("%s: %w", n.Name, err)
		}
	}

	e = e.ClearLock()
	e.ID = p.Item
	e.ETag = p.ETag

	return h.d.Store.Dispatch(ctx, notify.Action{Type: notify.ActionUnlockEvent, Payload: notify.EventPayload{Event: e}})
}

// Spiked marks the record spiked and closes any view showing it.
func (h *Handlers) Spiked(ctx context.Context, n notify.Notification, state notify.StateFunc) error {
	p := n.Payload
	if p.Item == "" {
		return nil
	}

	e, _ := state().Event(p.Item)
	e = e.ClearLock()
	e.ID = p.Item
	e.State = notify.StateSpiked
	e.RevertState = p.RevertState
	e.ETag = p.ETag

	return h.spikeChanged(ctx, n.Name, notify.ActionSpikeEvent, e, state, MsgSpiked)
}

// Unspiked restores the record to the state carried by the notification.
func (h *Handlers) Unspiked(ctx context.Context, n notify.Notification, state notify.StateFunc) error {
	p := n.Payload
	if p.Item == "" {
		return nil
	}

	e, _ := state().Event(p.Item)
	e = e.ClearLock()
	e.ID = p.Item
	e.State = p.State
	e.RevertState = ""
	e.ETag = p.ETag

	return h.spikeChanged(ctx, n.Name, notify.ActionUnspikeEvent, e, state, MsgUnspiked)
}

func (h *Handlers) spikeChanged(
	ctx context.Context,
	name, action string,
	e notify.Event,
	state notify.StateFunc,
	msg string,
) error {
	err := h.d.Store.Dispatch(ctx, notify.Action{
		Type:    action,
		Payload: notify.EventPayload{Event: e, SpikeState: state().SearchSpikeState()},
	})
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	items := []notify.Event{e}

	if err := h.d.Lists.CombinedSpikeChanged(ctx, items); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	if err := h.d.UI.ClosePreviewAndEditorForItems(ctx, items, msg); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	return nil
}

// RecurringSpiked marks every record of a series spiked.
func (h *Handlers) RecurringSpiked(ctx context.Context, n notify.Notification, state notify.StateFunc) error {
	p := n.Payload

	items, ok := p.EventItems()
	if !ok {
		return nil
	}

	err := h.d.Store.Dispatch(ctx, notify.Action{
		Type: notify.ActionSpikeRecurringEvents,
		Payload: notify.RecurringSpikePayload{
			Events:       items,
			RecurrenceID: p.RecurrenceID,
			SpikeState:   state().SearchSpikeState(),
		},
	})
	if err != nil {
		return fmt.Errorf("%s: %w", n.Name, err)
	}

	if err := h.d.Lists.CombinedSpikeChanged(ctx, items); err != nil {
		return fmt.Errorf("%s: %w", n.Name, err)
	}

	if err := h.d.UI.ClosePreviewAndEditorForItems(ctx, items, MsgSpiked); err != nil {
		return fmt.Errorf("%s: %w", n.Name, err)
	}

	return nil
}

// Cancelled forwards a cancellation of a loaded record to the API collaborator.
func (h *Handlers) Cancelled(ctx context.Context, n notify.Notification, state notify.StateFunc) error {
	p := n.Payload
	if p.Item == "" || !state().HasEvent(p.Item) {
		return nil
	}

	cancelled := p.CancelledItems
	if cancelled == nil {
		cancelled = []string{}
	}

	return h.d.API.MarkCancelled(ctx, notify.Cancellation{
		ID:             p.Item,
		ETag:           p.ETag,
		Reason:         p.Reason,
		OccurStatus:    p.OccurStatus,
		CancelledItems: cancelled,
	})
}

// Postponed forwards a postponement of a loaded record to the API collaborator.
func (h *Handlers) Postponed(ctx context.Context, n notify.Notification, state notify.StateFunc) error {
	p := n.Payload
	if p.Item == "" {
		return nil
	}

	e, ok := state().Event(p.Item)
	if !ok {
		return nil
	}

	return h.d.API.MarkPostponed(ctx, e, p.Reason)
}

// ScheduleChanged refreshes both lists and the record after a reschedule or time change.
func (h *Handlers) ScheduleChanged(ctx context.Context, n notify.Notification, state notify.StateFunc) error {
	id := n.Payload.Item
	if id == "" || !state().HasEvent(id) {
		return nil
	}

	if _, err := h.d.Lists.RefetchEvents(ctx); err != nil {
		return fmt.Errorf("%s: %w", n.Name, err)
	}

	if err := h.d.Lists.RefetchCombined(ctx); err != nil {
		return fmt.Errorf("%s: %w", n.Name, err)
	}

	if _, err := h.d.API.FetchByID(ctx, id, false); err != nil {
		return fmt.Errorf("%s %s: %w", n.Name, id, err)
	}

	return nil
}

// PublishChanged records a publish or unpublish. A scheduled state means published.
func (h *Handlers) PublishChanged(ctx context.Context, n notify.Notification, _ notify.StateFunc) error {
	p := n.Payload
	if p.Item == "" {
		return nil
	}

	action := notify.ActionMarkEventUnpublished
	if p.State == notify.StateScheduled {
		action = notify.ActionMarkEventPublished
	}

	items, ok := p.ItemRefs()
	if !ok {
		items = []notify.ItemRef{{ID: p.Item, ETag: p.ETag}}
	}

	return h.d.Store.Dispatch(ctx, notify.Action{
		Type: action,
		Payload: notify.PublishPayload{
			Item:      p.Item,
			Items:     items,
			State:     p.State,
			PubStatus: p.PubStatus,
		},
	})
}

func containsID(events []notify.Event, id string) bool {
	for _, e := range events {
		if e.ID == id {
			return true
		}
	}

	return false
}

func userMessage(err error, fallback string) string {
	var um UserMessager
	if errors.As(err, &um) && um.UserMessage() != "" {
		return um.UserMessage()
	}

	return fallback
}
