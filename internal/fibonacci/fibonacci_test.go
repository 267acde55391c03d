package fibonacci

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"
)

func TestComputeBoundaries(t *testing.T) {
	tests := []struct {
		n        int
		expected string
	}{
		{0, "0"},
		{1, "1"},
		{2, "1"},
		{5, "5"},
		{10, "55"},
		{50, "12586269025"},
		{100, "354224848179261915075"},
	}

	for _, tt := range tests {
		res, err := Compute(context.Background(), tt.n)
		if err != nil {
			t.Fatalf("Compute(%d) returned error: %v", tt.n, err)
		}
		if got := res.Value.String(); got != tt.expected {
			t.Errorf("Compute(%d) = %s, expected %s", tt.n, got, tt.expected)
		}
		if res.Iterations != tt.n {
			t.Errorf("Compute(%d) reported %d iterations", tt.n, res.Iterations)
		}
	}
}

func TestComputeNegative(t *testing.T) {
	_, err := Compute(context.Background(), -1)
	if !errors.Is(err, ErrNegativeIterations) {
		t.Fatalf("Expected ErrNegativeIterations, got %v", err)
	}
}

func TestComputeDeterministic(t *testing.T) {
	first, err := Compute(context.Background(), 1000)
	if err != nil {
		t.Fatalf("First computation failed: %v", err)
	}
	second, err := Compute(context.Background(), 1000)
	if err != nil {
		t.Fatalf("Second computation failed: %v", err)
	}
	if first.Value.Cmp(second.Value) != 0 {
		t.Errorf("Expected identical results, got %s and %s", first.Value, second.Value)
	}
}

// Digit counts follow n*log10(phi) - log10(sqrt(5)), so large results can be
// checked without hardcoding hundred-kilobyte literals.
func TestComputeLargeDigitCounts(t *testing.T) {
	tests := []struct {
		n      int
		digits int
	}{
		{10000, 2090},
		{100000, 20899},
	}

	for _, tt := range tests {
		res, err := Compute(context.Background(), tt.n)
		if err != nil {
			t.Fatalf("Compute(%d) returned error: %v", tt.n, err)
		}
		if got := len(res.Value.Text(10)); got != tt.digits {
			t.Errorf("Compute(%d) produced %d digits, expected %d", tt.n, got, tt.digits)
		}
	}
}

func TestComputeDefaultWorkloadDigitCount(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping 500000-iteration computation in short mode")
	}

	res, err := Compute(context.Background(), 500000)
	if err != nil {
		t.Fatalf("Compute(500000) returned error: %v", err)
	}
	if got := len(res.Value.Text(10)); got != 104494 {
		t.Errorf("Compute(500000) produced %d digits, expected 104494", got)
	}
}

func TestComputeCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Compute(ctx, 10000000)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
}

func TestComputeTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := Compute(ctx, 100000000)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected context.DeadlineExceeded, got %v", err)
	}
}

func TestComputeConcurrentIndependence(t *testing.T) {
	inputs := []int{0, 1, 10, 100, 1000, 5000}
	expected := make([]string, len(inputs))
	for i, n := range inputs {
		res, err := Compute(context.Background(), n)
		if err != nil {
			t.Fatalf("Compute(%d) returned error: %v", n, err)
		}
		expected[i] = res.Value.String()
	}

	var wg sync.WaitGroup
	for round := 0; round < 10; round++ {
		for i, n := range inputs {
			wg.Add(1)
			go func(i, n int) {
				defer wg.Done()
				res, err := Compute(context.Background(), n)
				if err != nil {
					t.Errorf("Compute(%d) returned error: %v", n, err)
					return
				}
				if got := res.Value.String(); got != expected[i] {
					t.Errorf("Compute(%d) = %s, expected %s", n, got, expected[i])
				}
			}(i, n)
		}
	}
	wg.Wait()
}

func BenchmarkCompute(b *testing.B) {
	for _, n := range []int{1000, 10000, 100000} {
		b.Run(strconv.Itoa(n), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				if _, err := Compute(context.Background(), n); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
