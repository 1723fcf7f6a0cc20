package redis_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	nerr "github.com/next-trace/scg-planning-notify/contract/errors"
	"github.com/next-trace/scg-planning-notify/contract/notify"
	rstore "github.com/next-trace/scg-planning-notify/store/redis"
	"github.com/redis/go-redis/v9"
)

type fakeClient struct {
	hash    map[string]string
	keys    []string
	setErr  error
	loadErr error
}

func (f *fakeClient) HSet(_ context.Context, key string, values ...any) *redis.IntCmd {
	f.keys = append(f.keys, key)
	if f.setErr != nil {
		return redis.NewIntResult(0, f.setErr)
	}

	if f.hash == nil {
		f.hash = map[string]string{}
	}

	for i := 0; i+1 < len(values); i += 2 {
		f.hash[values[i].(string)] = values[i+1].(string)
	}

	return redis.NewIntResult(int64(len(values)/2), nil)
}

func (f *fakeClient) HGetAll(_ context.Context, key string) *redis.MapStringStringCmd {
	f.keys = append(f.keys, key)
	return redis.NewMapStringStringResult(f.hash, f.loadErr)
}

func TestPersister_SaveAndLoad(t *testing.T) {
	fc := &fakeClient{}
	p := rstore.New(fc, "")

	err := p.Save(t.Context(), []notify.Event{{ID: "e1", Name: "Budget", ETag: "t1"}, {ID: "e2"}})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	if len(fc.hash) != 2 || fc.keys[0] != rstore.DefaultKey {
		t.Fatalf("hash=%v keys=%v", fc.hash, fc.keys)
	}

	var e notify.Event
	if err := json.Unmarshal([]byte(fc.hash["e1"]), &e); err != nil || e.Name != "Budget" {
		t.Fatalf("stored=%s err=%v", fc.hash["e1"], err)
	}

	fc.hash["broken"] = "{"
	fc.hash["noid"] = `{"name":"x"}`

	events, err := p.Load(t.Context())
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if len(events) != 3 {
		t.Fatalf("events=%+v", events)
	}

	found := false
	for _, e := range events {
		if e.ID == "noid" && e.Name == "x" {
			found = true
		}
	}

	if !found {
		t.Fatalf("field name must backfill id: %+v", events)
	}
}

func TestPersister_SaveEmptyIsNoop(t *testing.T) {
	fc := &fakeClient{}
	if err := rstore.New(fc, "k").Save(t.Context(), nil); err != nil {
		t.Fatalf("save: %v", err)
	}

	if len(fc.keys) != 0 {
		t.Fatalf("unexpected calls: %v", fc.keys)
	}
}

func TestPersister_Errors(t *testing.T) {
	p := rstore.New(nil, "k")
	if err := p.Save(t.Context(), []notify.Event{{ID: "e1"}}); !errors.Is(err, nerr.ErrStoreFailed) {
		t.Fatalf("want ErrStoreFailed, got %v", err)
	}

	fc := &fakeClient{setErr: errors.New("down"), loadErr: errors.New("down")}
	p = rstore.New(fc, "k")

	if err := p.Save(t.Context(), []notify.Event{{ID: "e1"}}); !errors.Is(err, nerr.ErrStoreFailed) {
		t.Fatalf("want ErrStoreFailed, got %v", err)
	}

	if _, err := p.Load(t.Context()); !errors.Is(err, nerr.ErrStoreFailed) {
		t.Fatalf("want ErrStoreFailed, got %v", err)
	}

	fc = &fakeClient{setErr: context.DeadlineExceeded}
	if err := rstore.New(fc, "k").Save(t.Context(), []notify.Event{{ID: "e1"}}); !errors.Is(err, context.DeadlineExceeded) || errors.Is(err, nerr.ErrStoreFailed) {
		t.Fatalf("context errors must pass through unwrapped, got %v", err)
	}
}

func TestNewWithRedis_EmptyAddr(t *testing.T) {
	_, _, err := rstore.NewWithRedis(t.Context(), rstore.Config{})
	if !errors.Is(err, nerr.ErrStoreFailed) {
		t.Fatalf("want ErrStoreFailed, got %v", err)
	}
}
