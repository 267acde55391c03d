package metrics

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics holds all the metrics for the service
type Metrics struct {
	// Request metrics
	TotalRequests       uint64 `json:"total_requests"`
	SuccessfulRequests  uint64 `json:"successful_requests"`
	ClientErrors        uint64 `json:"client_errors"`
	ServerErrors        uint64 `json:"server_errors"`
	RateLimitedRequests uint64 `json:"rate_limited_requests"`

	// Computation metrics
	Computations       uint64  `json:"computations"`
	ComputeAborts      uint64  `json:"compute_aborts"`
	TotalComputeTime   uint64  `json:"total_compute_time_ms"`
	AverageComputeTime float64 `json:"average_compute_time_ms"`
	MaxIterations      uint64  `json:"max_iterations"`

	// Per-route metrics
	RouteMetrics map[string]*RouteMetrics `json:"route_metrics"`

	// System metrics
	StartTime time.Time `json:"start_time"`
	Uptime    string    `json:"uptime"`

	mutex sync.RWMutex
}

// RouteMetrics holds metrics for an individual route
type RouteMetrics struct {
	Path                string  `json:"path"`
	TotalRequests       uint64  `json:"total_requests"`
	SuccessfulRequests  uint64  `json:"successful_requests"`
	ClientErrors        uint64  `json:"client_errors"`
	ServerErrors        uint64  `json:"server_errors"`
	TotalResponseTime   uint64  `json:"total_response_time_ms"`
	AverageResponseTime float64 `json:"average_response_time_ms"`
}

// OtherRoute is the bucket that absorbs requests to unregistered paths.
// Request paths are caller-controlled, so keying the route map by raw path
// would let a client grow it without bound.
const OtherRoute = "other"

// Collector manages metrics collection
type Collector struct {
	metrics *Metrics

	mu      sync.RWMutex
	tracked map[string]struct{}
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	return &Collector{
		metrics: &Metrics{
			RouteMetrics: make(map[string]*RouteMetrics),
			StartTime:    time.Now(),
		},
		tracked: make(map[string]struct{}),
	}
}

// TrackRoutes registers the fixed set of paths that get their own entry in
// RouteMetrics. Once any path is tracked, requests to every other path are
// folded into the OtherRoute bucket.
func (c *Collector) TrackRoutes(paths ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range paths {
		c.tracked[p] = struct{}{}
	}
}

// routeKey maps a request path onto a bounded set of route labels.
func (c *Collector) routeKey(path string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.tracked) == 0 {
		return path
	}
	if _, ok := c.tracked[path]; ok {
		return path
	}
	return OtherRoute
}

// RecordResponse records a served request with its route, status and duration
func (c *Collector) RecordResponse(route string, status int, responseTime time.Duration) {
	route = c.routeKey(route)

	atomic.AddUint64(&c.metrics.TotalRequests, 1)

	switch {
	case status >= 500:
		atomic.AddUint64(&c.metrics.ServerErrors, 1)
	case status >= 400:
		atomic.AddUint64(&c.metrics.ClientErrors, 1)
	default:
		atomic.AddUint64(&c.metrics.SuccessfulRequests, 1)
	}

	responseTimeMs := uint64(responseTime.Milliseconds())

	c.metrics.mutex.Lock()
	defer c.metrics.mutex.Unlock()

	rm, exists := c.metrics.RouteMetrics[route]
	if !exists {
		rm = &RouteMetrics{Path: route}
		c.metrics.RouteMetrics[route] = rm
	}

	rm.TotalRequests++
	rm.TotalResponseTime += responseTimeMs
	switch {
	case status >= 500:
		rm.ServerErrors++
	case status >= 400:
		rm.ClientErrors++
	default:
		rm.SuccessfulRequests++
	}
	if rm.TotalRequests > 0 {
		rm.AverageResponseTime = float64(rm.TotalResponseTime) / float64(rm.TotalRequests)
	}
}

// RecordComputation records a finished Fibonacci computation
func (c *Collector) RecordComputation(iterations int, elapsed time.Duration) {
	atomic.AddUint64(&c.metrics.Computations, 1)
	atomic.AddUint64(&c.metrics.TotalComputeTime, uint64(elapsed.Milliseconds()))

	// CAS loop keeps the high-water mark without a lock
	for {
		current := atomic.LoadUint64(&c.metrics.MaxIterations)
		if uint64(iterations) <= current {
			break
		}
		if atomic.CompareAndSwapUint64(&c.metrics.MaxIterations, current, uint64(iterations)) {
			break
		}
	}
}

// RecordComputeAbort records a computation abandoned before completion,
// typically because the client disconnected mid-request.
func (c *Collector) RecordComputeAbort() {
	atomic.AddUint64(&c.metrics.ComputeAborts, 1)
}

// RecordRateLimited records a rate-limited request
func (c *Collector) RecordRateLimited() {
	atomic.AddUint64(&c.metrics.RateLimitedRequests, 1)
}

// Snapshot returns a copy of current metrics
func (c *Collector) Snapshot() *Metrics {
	c.metrics.mutex.RLock()
	defer c.metrics.mutex.RUnlock()

	snapshot := &Metrics{
		TotalRequests:       atomic.LoadUint64(&c.metrics.TotalRequests),
		SuccessfulRequests:  atomic.LoadUint64(&c.metrics.SuccessfulRequests),
		ClientErrors:        atomic.LoadUint64(&c.metrics.ClientErrors),
		ServerErrors:        atomic.LoadUint64(&c.metrics.ServerErrors),
		RateLimitedRequests: atomic.LoadUint64(&c.metrics.RateLimitedRequests),
		Computations:        atomic.LoadUint64(&c.metrics.Computations),
		ComputeAborts:       atomic.LoadUint64(&c.metrics.ComputeAborts),
		TotalComputeTime:    atomic.LoadUint64(&c.metrics.TotalComputeTime),
		MaxIterations:       atomic.LoadUint64(&c.metrics.MaxIterations),
		StartTime:           c.metrics.StartTime,
		Uptime:              time.Since(c.metrics.StartTime).String(),
		RouteMetrics:        make(map[string]*RouteMetrics, len(c.metrics.RouteMetrics)),
	}

	if snapshot.Computations > 0 {
		snapshot.AverageComputeTime = float64(snapshot.TotalComputeTime) / float64(snapshot.Computations)
	}

	for path, rm := range c.metrics.RouteMetrics {
		rmCopy := *rm
		snapshot.RouteMetrics[path] = &rmCopy
	}

	return snapshot
}

// Handler returns an HTTP handler for the metrics endpoint
func (c *Collector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot := c.Snapshot()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(snapshot); err != nil {
			http.Error(w, "Failed to encode metrics", http.StatusInternalServerError)
			return
		}
	}
}

// Middleware records per-route request counts and response timings.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(recorder, r)

		c.RecordResponse(r.URL.Path, recorder.status, time.Since(start))
	})
}

// statusRecorder captures the response status code. It passes hijacking
// through so websocket upgrades keep working behind the middleware.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(status int) {
	sr.status = status
	sr.ResponseWriter.WriteHeader(status)
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := sr.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hj.Hijack()
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
