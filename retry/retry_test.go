package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/next-trace/scg-planning-notify/retry"
)

type fakeSleeper struct {
	waits []time.Duration
	err   error
}

func (f *fakeSleeper) sleep(_ context.Context, d time.Duration) error {
	f.waits = append(f.waits, d)
	return f.err
}

func counter(results ...[]string) (func(context.Context) ([]string, error), *int) {
	calls := 0

	return func(context.Context) ([]string, error) {
		i := calls
		calls++

		if i < len(results) {
			return results[i], nil
		}

		return results[len(results)-1], nil
	}, &calls
}

func nonEmpty(v []string) bool { return len(v) > 0 }

func TestDispatch_SingleAttemptCallsOnce(t *testing.T) {
	for _, accept := range []bool{true, false} {
		fs := &fakeSleeper{}
		op, calls := counter([]string{"a"})

		res, err := retry.Dispatch(t.Context(), op, func([]string) bool { return accept }, 1, time.Second, retry.WithSleep(fs.sleep))
		if err != nil {
			t.Fatalf("dispatch: %v", err)
		}

		if *calls != 1 {
			t.Fatalf("accept=%v: calls=%d", accept, *calls)
		}

		if len(fs.waits) != 0 {
			t.Fatalf("accept=%v: unexpected waits %v", accept, fs.waits)
		}

		if len(res) != 1 || res[0] != "a" {
			t.Fatalf("res=%v", res)
		}
	}
}

func TestDispatch_ExhaustsBudgetAndResolvesWithLastResult(t *testing.T) {
	fs := &fakeSleeper{}
	op, calls := counter([]string{}, []string{}, nil, []string{}, []string{})

	var retried []int

	res, err := retry.Dispatch(
		t.Context(),
		op,
		func([]string) bool { return false },
		5,
		time.Second,
		retry.WithSleep(fs.sleep),
		retry.WithOnRetry(func(a int) { retried = append(retried, a) }),
	)
	if err != nil {
		t.Fatalf("exhaustion must not fail: %v", err)
	}

	if *calls != 5 {
		t.Fatalf("calls=%d", *calls)
	}

	if len(fs.waits) != 4 {
		t.Fatalf("waits=%v", fs.waits)
	}

	for _, w := range fs.waits {
		if w != time.Second {
			t.Fatalf("wait=%v", w)
		}
	}

	if len(retried) != 4 || retried[0] != 1 || retried[3] != 4 {
		t.Fatalf("retried=%v", retried)
	}

	if res == nil || len(res) != 0 {
		t.Fatalf("want last (empty, non-nil) result, got %#v", res)
	}
}

func TestDispatch_StopsWhenPredicateSatisfied(t *testing.T) {
	fs := &fakeSleeper{}
	op, calls := counter(nil, nil, []string{"e1", "e2"})

	res, err := retry.Dispatch(t.Context(), op, nonEmpty, 5, time.Second, retry.WithSleep(fs.sleep))
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if *calls != 3 || len(fs.waits) != 2 {
		t.Fatalf("calls=%d waits=%d", *calls, len(fs.waits))
	}

	if len(res) != 2 {
		t.Fatalf("res=%v", res)
	}
}

func TestDispatch_ErrorIsNotRetried(t *testing.T) {
	fs := &fakeSleeper{}
	boom := errors.New("boom")
	calls := 0

	_, err := retry.Dispatch(t.Context(), func(context.Context) ([]string, error) {
		calls++
		return nil, boom
	}, nonEmpty, 5, time.Second, retry.WithSleep(fs.sleep))

	if !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}

	if calls != 1 || len(fs.waits) != 0 {
		t.Fatalf("calls=%d waits=%d", calls, len(fs.waits))
	}
}

func TestDispatch_ErrorOnLaterAttemptPropagates(t *testing.T) {
	fs := &fakeSleeper{}
	boom := errors.New("index down")
	calls := 0

	_, err := retry.Dispatch(t.Context(), func(context.Context) ([]string, error) {
		calls++
		if calls == 2 {
			return nil, boom
		}

		return nil, nil
	}, nonEmpty, 5, time.Second, retry.WithSleep(fs.sleep))

	if !errors.Is(err, boom) || calls != 2 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}

func TestDispatch_ZeroBudgetIsOneAttempt(t *testing.T) {
	op, calls := counter(nil)

	if _, err := retry.Dispatch(t.Context(), op, nonEmpty, 0, time.Second); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if *calls != 1 {
		t.Fatalf("calls=%d", *calls)
	}
}

func TestDispatch_ContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	op, calls := counter([]string{})

	cancel()

	_, err := retry.Dispatch(ctx, op, nonEmpty, 3, time.Hour)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}

	if *calls != 1 {
		t.Fatalf("calls=%d", *calls)
	}
}

func TestDo_UsesPolicy(t *testing.T) {
	fs := &fakeSleeper{}
	op, calls := counter([]string{})

	p := retry.Policy{MaxAttempts: 3, Delay: 10 * time.Millisecond}
	if _, err := retry.Do(t.Context(), p, op, nonEmpty, retry.WithSleep(fs.sleep)); err != nil {
		t.Fatalf("do: %v", err)
	}

	if *calls != 3 || len(fs.waits) != 2 || fs.waits[0] != 10*time.Millisecond {
		t.Fatalf("calls=%d waits=%v", *calls, fs.waits)
	}
}

func TestDispatch_RealSleepWaitsDelay(t *testing.T) {
	op, _ := counter([]string{})
	start := time.Now()

	if _, err := retry.Dispatch(t.Context(), op, nonEmpty, 2, 20*time.Millisecond); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("elapsed=%v", elapsed)
	}
}
