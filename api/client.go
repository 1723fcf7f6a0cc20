package api

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/next-trace/scg-planning-notify/contract/notify"
)

// DefaultPageSize is the number of records loaded per list page.
const DefaultPageSize = 25

// Searcher is the search index used by Client.
type Searcher interface {
	Get(ctx context.Context, id string) (notify.Event, error)
	Search(ctx context.Context, q notify.Query, limit int) ([]notify.Event, error)
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithPageSize sets the list page size.
func WithPageSize(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// Client serves records to the handlers and keeps the store's list views in sync with the index.
type Client struct {
	index    Searcher
	store    notify.Store
	pageSize int
	logger   *slog.Logger
}

var (
	_ notify.EventsAPI = (*Client)(nil)
	_ notify.Lists     = (*Client)(nil)
)

// NewClient creates a Client over index that writes results into store.
func NewClient(index Searcher, store notify.Store, opts ...ClientOption) *Client {
	c := &Client{index: index, store: store, pageSize: DefaultPageSize, logger: slog.Default()}
	for _, o := range opts {
		o(c)
	}

	return c
}

// GetEvent returns the stored record, fetching it when it is not loaded.
func (c *Client) GetEvent(ctx context.Context, id string) (notify.Event, error) {
	return c.FetchByID(ctx, id, false)
}

func (c *Client) FetchByID(ctx context.Context, id string, force bool) (notify.Event, error) {
	if !force {
		if e, ok := c.store.Snapshot().Event(id); ok {
			return e, nil
		}
	}

	e, err := c.index.Get(ctx, id)
	if err != nil {
		return notify.Event{}, err
	}

	err = c.store.Dispatch(ctx, notify.Action{
		Type:    notify.ActionReceiveEvents,
		Payload: notify.EventsPayload{Events: []notify.Event{e}},
	})
	if err != nil {
		return notify.Event{}, fmt.Errorf("receive %s: %w", id, err)
	}

	return e, nil
}

func (c *Client) Query(ctx context.Context, q notify.Query) ([]notify.Event, error) {
	if q.SpikeState == "" {
		q.SpikeState = notify.SpikedStateBoth
	}

	return c.index.Search(ctx, q, 0)
}

func (c *Client) MarkCancelled(ctx context.Context, cn notify.Cancellation) error {
	return c.store.Dispatch(ctx, notify.Action{Type: notify.ActionMarkEventCancelled, Payload: cn})
}

func (c *Client) MarkPostponed(ctx context.Context, e notify.Event, reason string) error {
	return c.store.Dispatch(ctx, notify.Action{
		Type:    notify.ActionMarkEventPostponed,
		Payload: notify.PostponePayload{Event: e, Reason: reason},
	})
}

// RefetchEvents reloads the first page of the events list under the current spiked filter.
func (c *Client) RefetchEvents(ctx context.Context) ([]notify.Event, error) {
	page, err := c.page(ctx, notify.ActionSetEventsList)
	if err != nil {
		return nil, err
	}

	c.logger.DebugContext(ctx, "events list refetched", "count", len(page))

	return page, nil
}

// RefetchCombined reloads the combined events and planning list. Planning records are served
// elsewhere, so only the event rows are refreshed here.
func (c *Client) RefetchCombined(ctx context.Context) error {
	page, err := c.page(ctx, notify.ActionSetCombinedList)
	if err != nil {
		return err
	}

	c.logger.DebugContext(ctx, "combined list refetched", "count", len(page))

	return nil
}

// CombinedSpikeChanged removes items from the combined list when the list no longer shows their
// spike state.
func (c *Client) CombinedSpikeChanged(ctx context.Context, items []notify.Event) error {
	st := c.store.Snapshot()
	filter := st.SearchSpikeState()

	ids := slices.DeleteFunc(slices.Clone(st.Combined), func(id string) bool {
		for _, it := range items {
			if it.ID == id && !matchesSpikeFilter(it, filter) {
				return true
			}
		}

		return false
	})

	if len(ids) == len(st.Combined) {
		return nil
	}

	return c.store.Dispatch(ctx, notify.Action{Type: notify.ActionSetCombinedList, Payload: notify.ListPayload{IDs: ids}})
}

func (c *Client) page(ctx context.Context, listAction string) ([]notify.Event, error) {
	q := notify.Query{SpikeState: c.store.Snapshot().SearchSpikeState()}

	events, err := c.index.Search(ctx, q, c.pageSize)
	if err != nil {
		return nil, err
	}

	err = c.store.Dispatch(ctx, notify.Action{Type: notify.ActionReceiveEvents, Payload: notify.EventsPayload{Events: events}})
	if err != nil {
		return nil, fmt.Errorf("receive page: %w", err)
	}

	ids := make([]string, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.ID)
	}

	if err := c.store.Dispatch(ctx, notify.Action{Type: listAction, Payload: notify.ListPayload{IDs: ids}}); err != nil {
		return nil, fmt.Errorf("set list: %w", err)
	}

	return events, nil
}

func matchesSpikeFilter(e notify.Event, filter string) bool {
	switch filter {
	case notify.SpikedStateBoth:
		return true
	case notify.SpikedStateSpiked:
		return e.State == notify.StateSpiked
	default:
		return e.State != notify.StateSpiked
	}
}
