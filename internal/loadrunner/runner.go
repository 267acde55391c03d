// Package loadrunner manages the background CPU load session. At most one
// session runs at a time; a session is a single long Fibonacci computation
// that can be stopped early by cancelling its context.
package loadrunner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/0xReLogic/Ember/internal/fibonacci"
	"github.com/0xReLogic/Ember/internal/logging"
)

// ErrLoadActive is returned when a session is requested while one is running.
var ErrLoadActive = errors.New("cpu load already active")

// Status is a point-in-time snapshot of the runner.
type Status struct {
	Active     bool
	Iterations int
	StartedAt  time.Time
	Last       *SessionResult
}

// SessionResult records the outcome of a finished session.
type SessionResult struct {
	Iterations   int
	Elapsed      time.Duration
	StoppedEarly bool
	FinishedAt   time.Time
}

// Runner owns the single background load session.
type Runner struct {
	mu         sync.RWMutex
	active     bool
	cancel     context.CancelFunc
	iterations int
	startedAt  time.Time
	last       *SessionResult
}

// New creates an idle runner.
func New() *Runner {
	return &Runner{}
}

// Start launches a background session computing the given number of
// iterations. It returns ErrLoadActive when a session is already running and
// fibonacci.ErrNegativeIterations for a negative count.
func (r *Runner) Start(iterations int) error {
	if iterations < 0 {
		return fibonacci.ErrNegativeIterations
	}

	r.mu.Lock()
	if r.active {
		r.mu.Unlock()
		return ErrLoadActive
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.active = true
	r.cancel = cancel
	r.iterations = iterations
	r.startedAt = time.Now()
	r.mu.Unlock()

	logger := logging.L()
	logger.Info().Int("iterations", iterations).Msg("cpu load session starting")

	go r.run(ctx, iterations)

	return nil
}

func (r *Runner) run(ctx context.Context, iterations int) {
	start := time.Now()
	_, err := fibonacci.Compute(ctx, iterations)

	result := &SessionResult{
		Iterations:   iterations,
		Elapsed:      time.Since(start),
		StoppedEarly: errors.Is(err, context.Canceled),
		FinishedAt:   time.Now(),
	}

	r.mu.Lock()
	r.active = false
	r.cancel = nil
	r.last = result
	r.mu.Unlock()

	logger := logging.L()
	if result.StoppedEarly {
		logger.Info().Int("iterations", iterations).Dur("elapsed", result.Elapsed).Msg("cpu load session stopped early")
		return
	}
	logger.Info().Int("iterations", iterations).Dur("elapsed", result.Elapsed).Msg("cpu load session completed")
}

// Stop signals the running session to end early. It reports whether a
// session was active; the session itself winds down asynchronously.
func (r *Runner) Stop() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active || r.cancel == nil {
		return false
	}
	r.cancel()
	return true
}

// Status returns a consistent snapshot of the runner state.
func (r *Runner) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Status{
		Active: r.active,
		Last:   r.last,
	}
	if r.active {
		s.Iterations = r.iterations
		s.StartedAt = r.startedAt
	}
	return s
}
