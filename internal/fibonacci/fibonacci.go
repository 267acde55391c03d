// Package fibonacci implements the iterative Fibonacci computation that the
// service uses to generate CPU load. Values are computed with arbitrary
// precision arithmetic because the digit count grows linearly with the
// iteration count; fixed-width integers overflow long before the default
// workload of 500000 iterations.
package fibonacci

import (
	"context"
	"errors"
	"math/big"
	"time"
)

// ErrNegativeIterations is returned when the requested iteration count is
// below zero.
var ErrNegativeIterations = errors.New("iterations must be a non-negative integer")

// checkInterval controls how many iterations run between cancellation
// checks. A power of two keeps the modulus cheap in the hot loop.
const checkInterval = 4096

// Result holds the outcome of a single computation.
type Result struct {
	Iterations int
	Value      *big.Int
	Elapsed    time.Duration
}

// Compute returns the Fibonacci value after n recurrence steps, so that
// Compute(ctx, 0) yields 0 and Compute(ctx, 1) yields 1. The loop is
// deliberately iterative: stack usage stays constant and the running time is
// linear in n, which matters because n is caller-controlled.
//
// The context is checked between batches of iterations; a cancelled or
// expired context aborts the computation and returns the context error.
func Compute(ctx context.Context, n int) (*Result, error) {
	if n < 0 {
		return nil, ErrNegativeIterations
	}

	start := time.Now()

	prev := big.NewInt(0)
	curr := big.NewInt(1)
	next := new(big.Int)

	for i := 0; i < n; i++ {
		if i%checkInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		next.Add(prev, curr)
		// Rotate the three values so the oldest buffer is reused for
		// the next addition instead of allocating a fresh big.Int.
		prev, curr, next = curr, next, prev
	}

	return &Result{
		Iterations: n,
		Value:      prev,
		Elapsed:    time.Since(start),
	}, nil
}
