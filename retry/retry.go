/*
Package retry polls an operation until its result satisfies a predicate or an attempt budget runs
out. It is used to read an eventually consistent search index after a write, when no "ready"
signal exists.
*/
package retry

import (
	"context"
	"time"
)

// Policy is an attempt budget with a fixed delay between attempts.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Option configures a single Dispatch call.
type Option func(*options)

type options struct {
	sleep   SleepFunc
	onRetry func(attempt int)
}

// WithSleep replaces the wait between attempts, e.g. with a fake clock in tests.
func WithSleep(fn SleepFunc) Option {
	return func(o *options) { o.sleep = fn }
}

// WithOnRetry registers a callback invoked before each retry with the 1-based attempt that failed
// the predicate.
func WithOnRetry(fn func(attempt int)) Option {
	return func(o *options) { o.onRetry = fn }
}

// Dispatch runs op until pred accepts its result or maxAttempts calls were made, waiting delay
// between calls.
//
// An error from op is returned immediately without retrying; only results that succeeded but do
// not yet satisfy pred are retried. When the budget is exhausted the last result is returned with
// a nil error, so callers that must tell "found" from "gave up" re-check pred themselves.
// maxAttempts below 1 is treated as 1.
func Dispatch[R any](
	ctx context.Context,
	op func(ctx context.Context) (R, error),
	pred func(R) bool,
	maxAttempts int,
	delay time.Duration,
	opts ...Option,
) (R, error) {
	o := options{sleep: sleepCtx}
	for _, f := range opts {
		f(&o)
	}

	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var last R

	for attempt := 1; ; attempt++ {
		res, err := op(ctx)
		if err != nil {
			return res, err
		}

		if pred(res) {
			return res, nil
		}

		last = res

		if attempt >= maxAttempts {
			return last, nil
		}

		if o.onRetry != nil {
			o.onRetry(attempt)
		}

		if err := o.sleep(ctx, delay); err != nil {
			return last, err
		}
	}
}

// Do is Dispatch with the budget taken from p.
func Do[R any](
	ctx context.Context,
	p Policy,
	op func(ctx context.Context) (R, error),
	pred func(R) bool,
	opts ...Option,
) (R, error) {
	return Dispatch(ctx, op, pred, p.MaxAttempts, p.Delay, opts...)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
