package router_test

import (
	"context"
	"errors"
	"testing"

	nerr "github.com/next-trace/scg-planning-notify/contract/errors"
	"github.com/next-trace/scg-planning-notify/contract/notify"
	"github.com/next-trace/scg-planning-notify/router"
)

func emptyState() notify.State { return notify.State{} }

func counting(calls *[]string, tag string) notify.Handler {
	return func(_ context.Context, n notify.Notification, _ notify.StateFunc) error {
		*calls = append(*calls, tag+":"+n.Name)
		return nil
	}
}

func TestRouter_ResolveKnownAndUnknown(t *testing.T) {
	var calls []string

	h := counting(&calls, "upd")
	r, err := router.New([]router.Entry{
		{Name: "events:updated", Resolve: func() notify.Handler { return h }},
		{Name: "events:updated:recurring", Resolve: func() notify.Handler { return h }},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	for _, name := range []string{"events:updated", "events:updated:recurring"} {
		if got, ok := r.Resolve(name); !ok || got == nil {
			t.Fatalf("%s did not resolve", name)
		}
	}

	if got, ok := r.Resolve("events:unknown"); ok || got != nil {
		t.Fatalf("unknown name resolved")
	}

	if err := r.Route(t.Context(), notify.Notification{Name: "events:unknown"}, emptyState); err != nil {
		t.Fatalf("unknown route must be a no-op: %v", err)
	}

	if err := r.Route(t.Context(), notify.Notification{Name: "events:updated:recurring"}, emptyState); err != nil {
		t.Fatalf("route: %v", err)
	}

	if len(calls) != 1 || calls[0] != "upd:events:updated:recurring" {
		t.Fatalf("calls=%v", calls)
	}
}

func TestRouter_DuplicateRejected(t *testing.T) {
	h := func() notify.Handler { return nil }

	_, err := router.New([]router.Entry{{Name: "a", Resolve: h}, {Name: "a", Resolve: h}})
	if !errors.Is(err, nerr.ErrHandlerExists) {
		t.Fatalf("want ErrHandlerExists, got %v", err)
	}
}

func TestRouter_ResolverReturningNilIsUnknown(t *testing.T) {
	r, _ := router.New([]router.Entry{{Name: "a", Resolve: func() notify.Handler { return nil }}})

	if _, ok := r.Resolve("a"); ok {
		t.Fatalf("nil handler must not resolve")
	}
}

func TestRouter_ReplaceSwapsHandlerLazily(t *testing.T) {
	var calls []string

	r, _ := router.New([]router.Entry{{Name: "events:lock", Resolve: func() notify.Handler { return counting(&calls, "orig") }}})

	if err := r.Replace("events:lock", func() notify.Handler { return counting(&calls, "fake") }); err != nil {
		t.Fatalf("replace: %v", err)
	}

	if err := r.Replace("events:none", nil); !errors.Is(err, nerr.ErrHandlerNotFound) {
		t.Fatalf("want ErrHandlerNotFound, got %v", err)
	}

	_ = r.Route(t.Context(), notify.Notification{Name: "events:lock"}, emptyState)

	if len(calls) != 1 || calls[0] != "fake:events:lock" {
		t.Fatalf("calls=%v", calls)
	}
}

func TestRouter_MiddlewareOrder(t *testing.T) {
	var order []string

	mw := func(tag string) router.Middleware {
		return func(next notify.Handler) notify.Handler {
			return func(ctx context.Context, n notify.Notification, s notify.StateFunc) error {
				order = append(order, tag)
				return next(ctx, n, s)
			}
		}
	}

	r, _ := router.New(
		[]router.Entry{{Name: "x", Resolve: func() notify.Handler { return counting(&order, "h") }}},
		router.WithMiddleware(mw("g1"), mw("g2")),
		router.WithMiddleware(mw("g3")),
	)

	if err := r.Route(t.Context(), notify.Notification{Name: "x"}, emptyState); err != nil {
		t.Fatalf("route: %v", err)
	}

	want := []string{"g1", "g2", "g3", "h:x"}
	if len(order) != len(want) {
		t.Fatalf("order=%v", order)
	}

	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order=%v", order)
		}
	}
}

func TestRouter_HandlerErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	r, _ := router.New([]router.Entry{{Name: "x", Resolve: func() notify.Handler {
		return func(context.Context, notify.Notification, notify.StateFunc) error { return boom }
	}}})

	if err := r.Route(t.Context(), notify.Notification{Name: "x"}, emptyState); !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}
}

func TestRouter_NamesSorted(t *testing.T) {
	h := func() notify.Handler { return nil }
	r, _ := router.New([]router.Entry{{Name: "b", Resolve: h}, {Name: "a", Resolve: h}})

	names := r.Names()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Fatalf("names=%v", names)
	}
}
