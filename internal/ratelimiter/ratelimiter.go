package ratelimiter

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"docsummary/internal/summarizer"
)

const queueSize = 1000

// ErrStopped is returned to callers waiting for a permit after Stop.
var ErrStopped = errors.New("rate limiter is stopped")

type request struct {
	ctx     context.Context
	step    summarizer.Step
	granted chan error
}

// RateLimiter paces calls to the model backend. A single goroutine hands out
// permits in arrival order; the calls themselves run concurrently.
type RateLimiter struct {
	inner   summarizer.Invoker
	limiter *rate.Limiter
	queue   chan request
	ctx     context.Context
	cancel  context.CancelFunc
	log     *slog.Logger
}

// New wraps inner with a limiter of rps permits per second. A non-positive
// rps disables pacing.
func New(inner summarizer.Invoker, rps float64, burst int, log *slog.Logger) *RateLimiter {
	ctx, cancel := context.WithCancel(context.Background())

	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}

	rl := &RateLimiter{
		inner:   inner,
		limiter: rate.NewLimiter(limit, max(burst, 1)),
		queue:   make(chan request, queueSize),
		ctx:     ctx,
		cancel:  cancel,
		log:     log,
	}

	go rl.processQueue()

	return rl
}

func (rl *RateLimiter) Invoke(
	ctx context.Context,
	req summarizer.Request,
) (*summarizer.Response, error) {
	if rl.ctx.Err() != nil {
		return nil, ErrStopped
	}

	r := request{
		ctx:     ctx,
		step:    req.Step,
		granted: make(chan error, 1),
	}

	select {
	case rl.queue <- r:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-rl.ctx.Done():
		return nil, ErrStopped
	}

	select {
	case err := <-r.granted:
		if err != nil {
			return nil, err
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return rl.inner.Invoke(ctx, req)
}

func (rl *RateLimiter) Stop() {
	rl.cancel()
}

func (rl *RateLimiter) processQueue() {
	for {
		select {
		case r := <-rl.queue:
			rl.handleRequest(r)
		case <-rl.ctx.Done():
			for {
				select {
				case r := <-rl.queue:
					r.granted <- ErrStopped
				default:
					return
				}
			}
		}
	}
}

func (rl *RateLimiter) handleRequest(r request) {
	if rl.ctx.Err() != nil {
		r.granted <- ErrStopped

		return
	}

	if err := r.ctx.Err(); err != nil {
		r.granted <- err

		return
	}

	reservation := rl.limiter.Reserve()
	delay := reservation.Delay()

	if delay > 0 {
		rl.log.DebugContext(r.ctx, "Rate limiting model call",
			"step", r.step,
			"delay", delay,
			"queueLen", len(rl.queue))

		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-r.ctx.Done():
			reservation.Cancel()
			r.granted <- r.ctx.Err()

			return
		case <-rl.ctx.Done():
			reservation.Cancel()
			r.granted <- ErrStopped

			return
		}
	}

	r.granted <- nil
}
