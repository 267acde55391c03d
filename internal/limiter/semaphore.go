package limiter

import (
	"context"
	"net/http"
	"time"
)

// Semaphore bounds the number of computations running at once. Each
// high-iteration request holds a CPU core for its full duration, so an
// unbounded request stream would starve the whole process.
//
// A nil *Semaphore is valid and admits everything.
type Semaphore struct {
	slots chan struct{}
}

// NewSemaphore creates a semaphore with the given capacity. A capacity of
// zero or less returns nil, which disables the gate.
func NewSemaphore(max int) *Semaphore {
	if max <= 0 {
		return nil
	}
	return &Semaphore{slots: make(chan struct{}, max)}
}

// Acquire blocks until a slot is free or the context ends. On success it
// returns a release function and true.
func (s *Semaphore) Acquire(ctx context.Context) (func(), bool) {
	if s == nil {
		return func() {}, true
	}

	select {
	case s.slots <- struct{}{}:
		return func() { <-s.slots }, true
	case <-ctx.Done():
		return nil, false
	}
}

// ConcurrencyMiddleware gates a handler behind the semaphore. Requests wait
// for a slot up to maxWait (zero means wait as long as the request context
// allows) and are rejected with 503 when none becomes available.
func ConcurrencyMiddleware(sem *Semaphore, maxWait time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if sem == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if maxWait > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, maxWait)
				defer cancel()
			}

			release, ok := sem.Acquire(ctx)
			if !ok {
				http.Error(w, "Too many concurrent computations", http.StatusServiceUnavailable)
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
