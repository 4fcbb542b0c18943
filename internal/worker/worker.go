// Package worker runs independent invocations concurrently with retries on transient errors
// and an optional global request rate.
package worker

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/shpitdev/transcript-digest/internal/core"
)

type Options struct {
	Workers    int
	MaxRetries int
	// Timeout bounds one attempt, not the whole item.
	Timeout time.Duration

	// RateLimitRPS is shared by all workers. <=0 disables it.
	RateLimitRPS float64

	// FailFast stops scheduling new items after the first failed item and returns its error.
	// Otherwise failures are reported per item and the run continues.
	FailFast bool

	BackoffInitial time.Duration
	BackoffMax     time.Duration
	// BackoffJitter applies +/- jitter to each sleep (0.2 = +/-20%). Negative disables it.
	BackoffJitter float64
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.Timeout <= 0 {
		o.Timeout = 5 * time.Minute
	}
	if o.BackoffInitial <= 0 {
		o.BackoffInitial = 500 * time.Millisecond
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = 10 * time.Second
	}
	if o.BackoffJitter == 0 {
		o.BackoffJitter = 0.2
	}
	return o
}

// Outcome is the final state of one item.
type Outcome[T any, R any] struct {
	Index    int
	Item     T
	Value    R
	Err      error
	Attempts int
}

// Run processes items with up to opts.Workers concurrent calls to fn. The returned slice is in
// input order; onDone, when set, sees outcomes in completion order and is never called
// concurrently. An error from onDone aborts the run.
func Run[T any, R any](
	ctx context.Context,
	items []T,
	fn func(context.Context, T) (R, error),
	opts Options,
	onDone func(Outcome[T, R]) error,
) ([]Outcome[T, R], error) {
	opts = opts.withDefaults()

	var limiter *rate.Limiter
	if opts.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimitRPS), 1)
	}

	out := make([]Outcome[T, R], len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)

	var cbMu sync.Mutex
	for i, item := range items {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			o := runItem(gctx, i, item, fn, limiter, opts)
			out[i] = o
			if onDone != nil {
				cbMu.Lock()
				err := onDone(o)
				cbMu.Unlock()
				if err != nil {
					return err
				}
			}
			if o.Err != nil && opts.FailFast {
				return o.Err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func runItem[T any, R any](
	ctx context.Context,
	idx int,
	item T,
	fn func(context.Context, T) (R, error),
	limiter *rate.Limiter,
	opts Options,
) Outcome[T, R] {
	o := Outcome[T, R]{Index: idx, Item: item}
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			o.Err = err
			return o
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				o.Err = err
				return o
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
		v, err := fn(attemptCtx, item)
		cancel()
		o.Attempts = attempt + 1
		o.Value = v
		o.Err = err
		if err == nil {
			return o
		}
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			o.Err = ctx.Err()
			return o
		}
		if !Retryable(err) || attempt >= retryBudget(opts.MaxRetries, err) {
			return o
		}

		t := time.NewTimer(backoff(opts.BackoffInitial, opts.BackoffMax, opts.BackoffJitter, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			o.Err = ctx.Err()
			return o
		}
	}
}

type retryCap interface {
	MaxExtraRetries() int
}

// retryBudget is the pool-wide budget, lowered by any per-error cap in the chain.
func retryBudget(max int, err error) int {
	if max < 0 {
		max = 0
	}
	var c retryCap
	if errors.As(err, &c) {
		if n := c.MaxExtraRetries(); n < max {
			if n < 0 {
				return 0
			}
			return n
		}
	}
	return max
}

// Retryable reports whether err is worth another attempt.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var te *core.TransientError
	if errors.As(err, &te) {
		return true
	}
	var lte *core.LimitedTransientError
	if errors.As(err, &lte) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}

func backoff(initial, max time.Duration, jitter float64, attempt int) time.Duration {
	d := initial
	for i := 0; i < attempt && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	if jitter <= 0 {
		return d
	}
	return time.Duration(float64(d) * (1 + (rand.Float64()*2-1)*jitter))
}
