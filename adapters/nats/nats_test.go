package nats_test

import (
	"context"
	"errors"
	"testing"

	"github.com/next-trace/scg-planning-notify/adapters/nats"
	nerr "github.com/next-trace/scg-planning-notify/contract/errors"
	"github.com/next-trace/scg-planning-notify/contract/notify"
)

type sent struct {
	subject string
	data    []byte
	headers map[string]string
}

type fakeClient struct {
	calls        []sent
	handlers     map[string]nats.MsgFunc
	unsubscribed bool
	err          error
	subErr       error
}

func (f *fakeClient) Publish(subject string, data []byte, headers map[string]string) error {
	f.calls = append(f.calls, sent{subject, data, headers})
	if f.err != nil {
		return f.err
	}

	if fn, ok := f.handlers[subject]; ok {
		fn(subject, data, headers)
	}

	return nil
}

func (f *fakeClient) Subscribe(subject string, fn nats.MsgFunc) (func() error, error) {
	if f.subErr != nil {
		return nil, f.subErr
	}

	if f.handlers == nil {
		f.handlers = map[string]nats.MsgFunc{}
	}

	f.handlers[subject] = fn

	return func() error {
		f.unsubscribed = true
		delete(f.handlers, subject)

		return nil
	}, nil
}

type tracePropagator struct{}

func (tracePropagator) Inject(_ context.Context, h map[string]string) { h["traceparent"] = "00-abc-def-01" }

func (tracePropagator) Extract(ctx context.Context, _ map[string]string) context.Context { return ctx }

func TestNATS_PublishAndSubscribe(t *testing.T) {
	fc := &fakeClient{}
	ad := nats.New(fc, nats.WithSubject("planning.test"), nats.WithPropagator(tracePropagator{}))

	var got []notify.Message

	sub, err := ad.Subscribe(t.Context(), func(_ context.Context, m notify.Message) error {
		got = append(got, m)
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	n := notify.Notification{Name: "events:lock", Payload: notify.Payload{Item: "e1", User: "u1"}}
	if err := ad.Publish(t.Context(), n, notify.PublishOptions{Key: "e1", Headers: map[string]string{"h1": "v1"}}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if len(got) != 1 || got[0].Topic != "planning.test" {
		t.Fatalf("got=%+v", got)
	}

	h := got[0].Headers
	if h["key"] != "e1" || h["h1"] != "v1" || h["traceparent"] == "" {
		t.Fatalf("headers=%+v", h)
	}

	back, err := notify.Decode(got[0].Data)
	if err != nil || back.Name != "events:lock" || back.Payload.User != "u1" {
		t.Fatalf("decoded=%+v err=%v", back, err)
	}

	if err := sub.Unsubscribe(); err != nil || !fc.unsubscribed {
		t.Fatalf("unsubscribe: %v", err)
	}
}

func TestNATS_TopicOverride(t *testing.T) {
	fc := &fakeClient{}
	ad := nats.New(fc)

	_ = ad.Publish(t.Context(), notify.Notification{Name: "events:created"}, notify.PublishOptions{TopicOverride: "other"})

	if len(fc.calls) != 1 || fc.calls[0].subject != "other" {
		t.Fatalf("calls=%+v", fc.calls)
	}

	_ = ad.Publish(t.Context(), notify.Notification{Name: "events:created"}, notify.PublishOptions{})

	if fc.calls[1].subject != nats.DefaultSubject {
		t.Fatalf("subject=%s", fc.calls[1].subject)
	}
}

func TestNATS_NilClientError(t *testing.T) {
	ad := nats.New(nil)

	err := ad.Publish(t.Context(), notify.Notification{Name: "x"}, notify.PublishOptions{})
	if !errors.Is(err, nerr.ErrTransportNotConfigured) || !errors.Is(err, nerr.ErrPublishFailed) {
		t.Fatalf("publish: %v", err)
	}

	if _, err := ad.Subscribe(t.Context(), nil); !errors.Is(err, nerr.ErrSubscribeFailed) {
		t.Fatalf("subscribe: %v", err)
	}
}

func TestNATS_ErrorWrapping_And_ContextCancel(t *testing.T) {
	ad := nats.New(&fakeClient{err: errors.New("boom")})

	if err := ad.Publish(t.Context(), notify.Notification{Name: "x"}, notify.PublishOptions{}); !errors.Is(err, nerr.ErrPublishFailed) {
		t.Fatalf("want ErrPublishFailed, got %v", err)
	}

	ad = nats.New(&fakeClient{err: context.Canceled})

	err := ad.Publish(t.Context(), notify.Notification{Name: "x"}, notify.PublishOptions{})
	if !errors.Is(err, context.Canceled) || errors.Is(err, nerr.ErrPublishFailed) {
		t.Fatalf("want bare context.Canceled, got %v", err)
	}

	ad = nats.New(&fakeClient{subErr: errors.New("denied")})
	if _, err := ad.Subscribe(t.Context(), func(context.Context, notify.Message) error { return nil }); !errors.Is(err, nerr.ErrSubscribeFailed) {
		t.Fatalf("want ErrSubscribeFailed, got %v", err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	if _, err := nats.New(&fakeClient{}).Subscribe(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

func TestNATS_DeliveryStopsAfterCancel(t *testing.T) {
	fc := &fakeClient{}
	ad := nats.New(fc)

	ctx, cancel := context.WithCancel(t.Context())

	calls := 0
	if _, err := ad.Subscribe(ctx, func(context.Context, notify.Message) error { calls++; return errors.New("ignored") }); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	_ = ad.Publish(t.Context(), notify.Notification{Name: "a"}, notify.PublishOptions{})
	cancel()
	_ = ad.Publish(t.Context(), notify.Notification{Name: "b"}, notify.PublishOptions{})

	if calls != 1 {
		t.Fatalf("calls=%d", calls)
	}
}
