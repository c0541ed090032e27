package batch

import (
	"context"
	"time"

	"github.com/teranos/pulsebatch/errors"
)

// UnitFunc is one attempt at a unit of work.
type UnitFunc func(ctx context.Context) (Statistics, error)

// Retrier re-attempts a failing unit of work. An attempt is retried while the
// number of attempts made is <= Limit, so a unit that keeps failing is tried
// Limit+1 times and reports Limit retries.
type Retrier struct {
	Limit int
	// Backoff is multiplied by the attempt number before each retry.
	Backoff time.Duration
	// Terminated stops retrying once the run is terminated. Optional.
	Terminated func() bool
	// OnRetry is called before every re-attempt. Optional.
	OnRetry func(attempt int, err error)
}

// Do runs fn until it succeeds or retries are exhausted. The returned error is
// the last attempt's failure. Panics inside fn are returned as errors.
func (rt Retrier) Do(ctx context.Context, fn UnitFunc) (Statistics, error) {
	for attempt := 1; ; attempt++ {
		stats, err := attemptOnce(ctx, fn)
		if err == nil {
			return stats, nil
		}
		if attempt > rt.Limit || (rt.Terminated != nil && rt.Terminated()) {
			return nil, err
		}
		if rt.OnRetry != nil {
			rt.OnRetry(attempt, err)
		}
		if !rt.wait(ctx, attempt) {
			return nil, err
		}
	}
}

func (rt Retrier) wait(ctx context.Context, attempt int) bool {
	if rt.Backoff <= 0 {
		return true
	}
	timer := time.NewTimer(time.Duration(attempt) * rt.Backoff)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func attemptOnce(ctx context.Context, fn UnitFunc) (stats Statistics, err error) {
	defer func() {
		if p := recover(); p != nil {
			if perr, ok := p.(error); ok {
				err = errors.Wrap(perr, "unit of work panicked")
				return
			}
			err = errors.Newf("unit of work panicked: %v", p)
		}
	}()
	return fn(ctx)
}

// isCancellation reports whether err is the result of the run being cancelled
// rather than a failure of the work itself.
func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, errors.ErrTerminated)
}
