package limiter

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ClientLimiter applies a per-client token bucket across all routes.
type ClientLimiter struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	clients map[string]*clientEntry

	cleanupTick time.Duration
	maxIdle     time.Duration

	closeOnce sync.Once
	done      chan struct{}
}

type clientEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewClientLimiter creates a limiter allowing requestsPerSecond with the
// given burst for each distinct client address.
func NewClientLimiter(requestsPerSecond float64, burst int) *ClientLimiter {
	cl := &ClientLimiter{
		limit:       rate.Limit(requestsPerSecond),
		burst:       burst,
		clients:     make(map[string]*clientEntry),
		cleanupTick: 10 * time.Minute,
		maxIdle:     time.Hour,
		done:        make(chan struct{}),
	}

	go cl.cleanupLoop()

	return cl
}

// Close stops the cleanup goroutine. Safe to call more than once.
func (cl *ClientLimiter) Close() {
	cl.closeOnce.Do(func() { close(cl.done) })
}

// Allow reports whether a request from the given client address may proceed.
func (cl *ClientLimiter) Allow(clientAddr string) bool {
	cl.mu.Lock()
	entry, exists := cl.clients[clientAddr]
	if !exists {
		entry = &clientEntry{limiter: rate.NewLimiter(cl.limit, cl.burst)}
		cl.clients[clientAddr] = entry
	}
	entry.lastSeen = time.Now()
	cl.mu.Unlock()

	return entry.limiter.Allow()
}

func (cl *ClientLimiter) cleanupLoop() {
	ticker := time.NewTicker(cl.cleanupTick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cl.cleanup()
		case <-cl.done:
			return
		}
	}
}

// cleanup drops entries for clients that have been idle longer than maxIdle.
func (cl *ClientLimiter) cleanup() {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	cutoff := time.Now().Add(-cl.maxIdle)
	for addr, entry := range cl.clients {
		if entry.lastSeen.Before(cutoff) {
			delete(cl.clients, addr)
		}
	}
}

// Middleware wraps an http.Handler with per-client rate limiting. Requests
// to any of the exempt paths bypass the limiter (health probes must not be
// throttled). onReject, if non-nil, is invoked for each rejected request.
func Middleware(cl *ClientLimiter, onReject func(), exemptPaths ...string) func(http.Handler) http.Handler {
	exempt := make(map[string]struct{}, len(exemptPaths))
	for _, p := range exemptPaths {
		exempt[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := exempt[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			if !cl.Allow(ClientIP(r)) {
				if onReject != nil {
					onReject()
				}
				http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP extracts the real client IP address from an HTTP request.
// It checks headers in order of priority: X-Forwarded-For, X-Real-IP,
// RemoteAddr. X-Forwarded-For format: "client, proxy1, proxy2, ..." -
// extracts the first IP only. For RemoteAddr, strips the port number using
// net.SplitHostPort. Supports both IPv4 and IPv6 addresses.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
