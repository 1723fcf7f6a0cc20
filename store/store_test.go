package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	nerr "github.com/next-trace/scg-planning-notify/contract/errors"
	"github.com/next-trace/scg-planning-notify/contract/notify"
	"github.com/next-trace/scg-planning-notify/store"
)

type fakePersister struct {
	mu     sync.Mutex
	saved  []notify.Event
	loaded []notify.Event
	err    error
}

func (f *fakePersister) Save(_ context.Context, events []notify.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.saved = append(f.saved, events...)

	return f.err
}

func (f *fakePersister) Load(context.Context) ([]notify.Event, error) {
	return f.loaded, f.err
}

func TestStore_LockAndUnlock(t *testing.T) {
	s := store.New(store.WithEvents(notify.Event{ID: "e1", Name: "Budget", ETag: "t0"}))

	locked := notify.Event{ID: "e1", Name: "Budget", ETag: "t1", LockUser: "u1", LockSession: "s1", LockAction: "edit"}
	if err := s.Dispatch(t.Context(), notify.Action{Type: notify.ActionLockEvent, Payload: notify.EventPayload{Event: locked}}); err != nil {
		t.Fatalf("lock: %v", err)
	}

	st := s.Snapshot()
	if l, ok := st.Locks["e1"]; !ok || l.Session != "s1" {
		t.Fatalf("locks=%+v", st.Locks)
	}

	unlocked := locked.ClearLock()
	unlocked.ETag = "t2"

	if err := s.Dispatch(t.Context(), notify.Action{Type: notify.ActionUnlockEvent, Payload: notify.EventPayload{Event: unlocked}}); err != nil {
		t.Fatalf("unlock: %v", err)
	}

	st = s.Snapshot()
	if _, ok := st.Locks["e1"]; ok {
		t.Fatalf("lock not cleared")
	}

	if e := st.Events["e1"]; e.ETag != "t2" || e.LockSession != "" || e.Name != "Budget" {
		t.Fatalf("event=%+v", e)
	}
}

func TestStore_SpikeRemovesFromNotSpikedList(t *testing.T) {
	s := store.New(store.WithEvents(notify.Event{ID: "e1"}, notify.Event{ID: "e2"}))
	_ = s.Dispatch(t.Context(), notify.Action{Type: notify.ActionSetEventsList, Payload: notify.ListPayload{IDs: []string{"e1", "e2"}}})

	spiked := notify.Event{ID: "e1", State: notify.StateSpiked}
	_ = s.Dispatch(t.Context(), notify.Action{
		Type:    notify.ActionSpikeEvent,
		Payload: notify.EventPayload{Event: spiked, SpikeState: notify.SpikedStateNotSpiked},
	})

	st := s.Snapshot()
	if len(st.EventsList) != 1 || st.EventsList[0] != "e2" {
		t.Fatalf("list=%v", st.EventsList)
	}

	if st.Events["e1"].State != notify.StateSpiked {
		t.Fatalf("state=%s", st.Events["e1"].State)
	}

	// both filter keeps the record listed
	_ = s.Dispatch(t.Context(), notify.Action{
		Type:    notify.ActionSpikeEvent,
		Payload: notify.EventPayload{Event: notify.Event{ID: "e2", State: notify.StateSpiked}, SpikeState: notify.SpikedStateBoth},
	})

	if st = s.Snapshot(); len(st.EventsList) != 1 {
		t.Fatalf("list=%v", st.EventsList)
	}
}

func TestStore_PublishAndCancel(t *testing.T) {
	s := store.New(store.WithEvents(notify.Event{ID: "e1"}, notify.Event{ID: "e2"}, notify.Event{ID: "e3"}))

	_ = s.Dispatch(t.Context(), notify.Action{Type: notify.ActionMarkEventPublished, Payload: notify.PublishPayload{
		Item:      "e1",
		Items:     []notify.ItemRef{{ID: "e1", ETag: "t1"}, {ID: "missing", ETag: "x"}},
		State:     notify.StateScheduled,
		PubStatus: notify.PubStatusUsable,
	}})

	st := s.Snapshot()
	if e := st.Events["e1"]; e.State != notify.StateScheduled || e.PubStatus != notify.PubStatusUsable || e.ETag != "t1" {
		t.Fatalf("published=%+v", e)
	}

	if st.HasEvent("missing") {
		t.Fatalf("publish must not create records")
	}

	_ = s.Dispatch(t.Context(), notify.Action{Type: notify.ActionMarkEventCancelled, Payload: notify.Cancellation{
		ID:             "e2",
		ETag:           "t9",
		Reason:         "weather",
		CancelledItems: []string{"e3"},
	}})

	st = s.Snapshot()
	for _, id := range []string{"e2", "e3"} {
		if e := st.Events[id]; e.State != notify.StateCancelled || e.Reason != "weather" {
			t.Fatalf("%s=%+v", id, e)
		}
	}

	if st.Events["e2"].ETag != "t9" || st.Events["e3"].ETag != "" {
		t.Fatalf("etags: %q %q", st.Events["e2"].ETag, st.Events["e3"].ETag)
	}
}

func TestStore_ModalAndViews(t *testing.T) {
	s := store.New()
	ctx := t.Context()

	_ = s.Dispatch(ctx, notify.Action{Type: notify.ActionOpenPreview, Payload: notify.ItemPayload{ID: "e1"}})
	_ = s.Dispatch(ctx, notify.Action{Type: notify.ActionOpenEditor, Payload: notify.ItemPayload{ID: "e1"}})
	_ = s.Dispatch(ctx, notify.Action{Type: notify.ActionShowModal, Payload: notify.ModalPayload{Modal: notify.Modal{Title: "t"}}})

	st := s.Snapshot()
	if st.PreviewID != "e1" || st.EditID != "e1" || st.Modal == nil || st.Modal.Title != "t" {
		t.Fatalf("state=%+v", st)
	}

	_ = s.Dispatch(ctx, notify.Action{Type: notify.ActionClosePreview, Payload: notify.ClosePayload{ID: "other"}})
	_ = s.Dispatch(ctx, notify.Action{Type: notify.ActionCloseEditor, Payload: notify.ClosePayload{ID: "e1"}})
	_ = s.Dispatch(ctx, notify.Action{Type: notify.ActionHideModal})

	st = s.Snapshot()
	if st.PreviewID != "e1" || st.EditID != "" || st.Modal != nil {
		t.Fatalf("state=%+v", st)
	}
}

func TestStore_UnknownActionFails(t *testing.T) {
	s := store.New()

	err := s.Dispatch(t.Context(), notify.Action{Type: "NOPE", Payload: 1})
	if !errors.Is(err, nerr.ErrStoreFailed) {
		t.Fatalf("want ErrStoreFailed, got %v", err)
	}

	err = s.Dispatch(t.Context(), notify.Action{Type: notify.ActionLockEvent, Payload: notify.EventPayload{}})
	if !errors.Is(err, nerr.ErrStoreFailed) {
		t.Fatalf("want ErrStoreFailed for record without id, got %v", err)
	}
}

func TestStore_SnapshotIsIsolated(t *testing.T) {
	s := store.New(store.WithEvents(notify.Event{ID: "e1", Name: "a"}))

	st := s.Snapshot()
	st.Events["e1"] = notify.Event{ID: "e1", Name: "mutated"}
	st.Events["e2"] = notify.Event{ID: "e2"}

	again := s.Snapshot()
	if again.Events["e1"].Name != "a" || again.HasEvent("e2") {
		t.Fatalf("snapshot leaked writes: %+v", again.Events)
	}
}

func TestStore_PersisterAndObserver(t *testing.T) {
	fp := &fakePersister{loaded: []notify.Event{{ID: "e1", Name: "from-disk"}, {ID: "e2"}}}

	var seen []string

	s := store.New(
		store.WithEvents(notify.Event{ID: "e2", Name: "in-memory"}),
		store.WithPersister(fp),
		store.WithObserver(func(_ context.Context, a notify.Action) { seen = append(seen, a.Type) }),
		store.WithSession("s1"),
		store.WithUsers(notify.User{ID: "u1", DisplayName: "Jane"}),
	)

	n, err := s.Load(t.Context())
	if err != nil || n != 1 {
		t.Fatalf("load n=%d err=%v", n, err)
	}

	st := s.Snapshot()
	if st.Events["e1"].Name != "from-disk" || st.Events["e2"].Name != "in-memory" || st.SessionID != "s1" {
		t.Fatalf("state=%+v", st)
	}

	_ = s.Dispatch(t.Context(), notify.Action{Type: notify.ActionReceiveEvents, Payload: notify.EventsPayload{Events: []notify.Event{{ID: "e3"}}}})

	if len(fp.saved) != 1 || fp.saved[0].ID != "e3" {
		t.Fatalf("saved=%+v", fp.saved)
	}

	if len(seen) != 1 || seen[0] != notify.ActionReceiveEvents {
		t.Fatalf("seen=%v", seen)
	}
}

func TestStore_PersisterFailureDoesNotFailDispatch(t *testing.T) {
	fp := &fakePersister{err: errors.New("redis down")}
	s := store.New(store.WithPersister(fp))

	err := s.Dispatch(t.Context(), notify.Action{Type: notify.ActionReceiveEvents, Payload: notify.EventsPayload{Events: []notify.Event{{ID: "e1"}}}})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if !s.Snapshot().HasEvent("e1") {
		t.Fatalf("write lost")
	}

	if _, err := s.Load(t.Context()); !errors.Is(err, nerr.ErrStoreFailed) {
		t.Fatalf("want ErrStoreFailed, got %v", err)
	}
}

func TestStore_ConcurrentDispatch(t *testing.T) {
	s := store.New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			id := string(rune('a'+i%26)) + string(rune('a'+i/26))
			_ = s.Dispatch(context.Background(), notify.Action{
				Type:    notify.ActionReceiveEvents,
				Payload: notify.EventsPayload{Events: []notify.Event{{ID: id}}},
			})
			_ = s.Snapshot()
		}(i)
	}

	wg.Wait()

	if n := len(s.Snapshot().Events); n != 50 {
		t.Fatalf("events=%d", n)
	}
}

func TestStore_SelectionSurvivesListRefresh(t *testing.T) {
	s := store.New()
	ctx := t.Context()

	list := func(typ string, ids ...string) notify.Action {
		return notify.Action{Type: typ, Payload: notify.ListPayload{IDs: ids}}
	}

	_ = s.Dispatch(ctx, list(notify.ActionSetEventsList, "e1", "e2"))
	_ = s.Dispatch(ctx, list(notify.ActionSelectEvents, "e2", "e3", "e2", ""))
	_ = s.Dispatch(ctx, list(notify.ActionSetEventsList, "e1"))

	st := s.Snapshot()
	if len(st.Selected) != 2 || !st.IsSelected("e2") || !st.IsSelected("e3") || st.InEventsList("e2") {
		t.Fatalf("selected=%v list=%v", st.Selected, st.EventsList)
	}

	_ = s.Dispatch(ctx, list(notify.ActionDeselectEvents, "e3", "e9"))

	if st := s.Snapshot(); len(st.Selected) != 1 || st.IsSelected("e3") {
		t.Fatalf("selected=%v", st.Selected)
	}
}
