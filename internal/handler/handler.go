// Package handler exposes the service's HTTP API: the synchronous Fibonacci
// endpoint, health and metrics, and the background CPU load session routes.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/0xReLogic/Ember/internal/config"
	"github.com/0xReLogic/Ember/internal/fibonacci"
	"github.com/0xReLogic/Ember/internal/limiter"
	"github.com/0xReLogic/Ember/internal/loadrunner"
	"github.com/0xReLogic/Ember/internal/logging"
	"github.com/0xReLogic/Ember/internal/metrics"
)

// API carries the handler dependencies. The configuration is resolved once
// at startup and injected here; request handling never reads the environment.
type API struct {
	cfg       *config.Config
	runner    *loadrunner.Runner
	collector *metrics.Collector
}

// computeRequest is the optional JSON body accepted by the compute and
// load-start routes. A pointer distinguishes an absent field from zero.
type computeRequest struct {
	Iterations *int `json:"iterations"`
}

// computeResponse is the wire form of a computation result. The value is a
// decimal string so arbitrary precision survives serialization.
type computeResponse struct {
	Iterations int     `json:"iterations"`
	Value      string  `json:"value"`
	ElapsedMs  float64 `json:"elapsed_ms"`
}

// NewMux builds the service's HTTP routes.
func NewMux(cfg *config.Config, runner *loadrunner.Runner, mc *metrics.Collector) http.Handler {
	api := &API{cfg: cfg, runner: runner, collector: mc}

	// The compute gate only wraps the synchronous endpoint; control and
	// status routes must stay responsive under full compute load.
	sem := limiter.NewSemaphore(cfg.Fibonacci.MaxConcurrent)

	mux := http.NewServeMux()
	mux.Handle("/fibonacci", limiter.ConcurrencyMiddleware(sem, 0)(http.HandlerFunc(api.handleFibonacci)))
	mux.HandleFunc("/health", api.handleHealth)
	mux.HandleFunc("/start_cpu_intensive", api.handleStartLoad)
	mux.HandleFunc("/stop_cpu_intensive", api.handleStopLoad)
	mux.HandleFunc("/status_cpu_load", api.handleLoadStatus)
	mux.HandleFunc("/ws/status", api.handleStatusStream)

	routes := []string{
		"/fibonacci",
		"/health",
		"/start_cpu_intensive",
		"/stop_cpu_intensive",
		"/status_cpu_load",
		"/ws/status",
	}

	if cfg.Metrics.Enabled {
		mux.HandleFunc(cfg.Metrics.Path, mc.Handler())
		routes = append(routes, cfg.Metrics.Path)
	}

	// Only registered paths get their own metrics entry; arbitrary request
	// paths must not allocate anything that outlives the request.
	mc.TrackRoutes(routes...)

	return mux
}

func (a *API) handleFibonacci(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	iterations, err := a.resolveIterations(r, false)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	if a.cfg.Fibonacci.ComputeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(a.cfg.Fibonacci.ComputeTimeout)*time.Second)
		defer cancel()
	}

	res, err := fibonacci.Compute(ctx, iterations)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			writeError(w, http.StatusServiceUnavailable, "computation timed out")
			return
		}
		// Client went away mid-computation; nothing left to write, but
		// the abort rate must stay observable.
		a.collector.RecordComputeAbort()
		abortLogger := logging.WithContext(r.Context())
		abortLogger.Debug().Int("iterations", iterations).Msg("computation aborted")
		return
	}

	a.collector.RecordComputation(res.Iterations, res.Elapsed)
	reqLogger := logging.WithContext(r.Context())
	reqLogger.Info().
		Int("iterations", res.Iterations).
		Dur("elapsed", res.Elapsed).
		Msg("computation served")

	writeJSON(w, http.StatusOK, computeResponse{
		Iterations: res.Iterations,
		Value:      res.Value.String(),
		ElapsedMs:  float64(res.Elapsed.Microseconds()) / 1000.0,
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

func (a *API) handleStartLoad(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	iterations, err := a.resolveIterations(r, true)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.runner.Start(iterations); err != nil {
		if errors.Is(err, loadrunner.ErrLoadActive) {
			writeJSON(w, http.StatusConflict, map[string]string{"message": "cpu load already active"})
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"message": fmt.Sprintf("cpu load started with %d iterations", iterations),
	})
}

func (a *API) handleStopLoad(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if a.runner.Stop() {
		writeJSON(w, http.StatusOK, map[string]string{"message": "stop signal sent"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "no cpu load active"})
}

func (a *API) handleLoadStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, a.statusPayload())
}

// resolveIterations determines the iteration count for a request: the
// `iterations` query parameter wins, then a JSON body field, then the
// configured default. requirePositive enforces the load-session rule that
// zero is not a meaningful workload.
func (a *API) resolveIterations(r *http.Request, requirePositive bool) (int, error) {
	iterations := a.cfg.Fibonacci.DefaultIterations
	overridden := false

	if raw := r.URL.Query().Get("iterations"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid 'iterations' value %q: must be a non-negative integer", raw)
		}
		iterations = n
		overridden = true
	}

	if !overridden && r.Method == http.MethodPost && r.Body != nil {
		var req computeRequest
		err := json.NewDecoder(r.Body).Decode(&req)
		switch {
		case errors.Is(err, io.EOF):
			// Empty body means no override.
		case err != nil:
			return 0, fmt.Errorf("invalid request body: %v", err)
		case req.Iterations != nil:
			if *req.Iterations < 0 {
				return 0, fmt.Errorf("invalid 'iterations' value %d: must be a non-negative integer", *req.Iterations)
			}
			iterations = *req.Iterations
			overridden = true
		}
	}

	if requirePositive && overridden && iterations == 0 {
		return 0, errors.New("'iterations' must be a positive integer")
	}

	return iterations, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
