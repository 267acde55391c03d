package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/0xReLogic/Ember/internal/config"
	"github.com/0xReLogic/Ember/internal/handler"
	"github.com/0xReLogic/Ember/internal/limiter"
	"github.com/0xReLogic/Ember/internal/loadrunner"
	"github.com/0xReLogic/Ember/internal/logging"
	"github.com/0xReLogic/Ember/internal/metrics"
)

// buildHandler constructs the HTTP handler with the middleware chain:
// request context -> metrics recording -> rate limiting -> routes.
func buildHandler(cfg *config.Config, runner *loadrunner.Runner, collector *metrics.Collector) http.Handler {
	logger := logging.L()

	var h http.Handler = handler.NewMux(cfg, runner, collector)

	if cfg.RateLimit.Enabled {
		cl := limiter.NewClientLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
		h = limiter.Middleware(cl, collector.RecordRateLimited, "/health")(h)
		logger.Info().
			Float64("requests_per_second", cfg.RateLimit.RequestsPerSecond).
			Int("burst", cfg.RateLimit.Burst).
			Msg("rate limiting enabled")
	} else {
		logger.Info().Msg("rate limiting disabled")
	}

	h = collector.Middleware(h)
	h = logging.RequestContextMiddleware(cfg.Logging)(h)

	return h
}

// createHTTPServer creates and configures the main HTTP server
func createHTTPServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  time.Duration(cfg.Server.Timeouts.Read) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.Timeouts.Write) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.Timeouts.Idle) * time.Second,
	}
}

// startHTTPServer starts the HTTP server in a goroutine
func startHTTPServer(server *http.Server, cfg *config.Config, serverErrors chan<- error) {
	logger := logging.L()

	go func() {
		logger.Info().Int("port", cfg.Server.Port).Msg("listening for http")
		logger.Info().
			Dur("read_timeout", time.Duration(cfg.Server.Timeouts.Read)*time.Second).
			Dur("write_timeout", time.Duration(cfg.Server.Timeouts.Write)*time.Second).
			Dur("idle_timeout", time.Duration(cfg.Server.Timeouts.Idle)*time.Second).
			Msg("server timeouts configured")

		serverErrors <- server.ListenAndServe()
	}()
}

// logStartupInfo logs the resolved configuration at startup
func logStartupInfo(cfg *config.Config) {
	logger := logging.L()

	logger.Info().Int("port", cfg.Server.Port).Msg("ember compute service starting")
	logger.Info().Int("default_iterations", cfg.Fibonacci.DefaultIterations).Msg("default fibonacci workload")

	if cfg.Fibonacci.MaxConcurrent > 0 {
		logger.Info().Int("max_concurrent", cfg.Fibonacci.MaxConcurrent).Msg("compute concurrency gate enabled")
	} else {
		logger.Info().Msg("compute concurrency gate disabled")
	}

	if cfg.Fibonacci.ComputeTimeout > 0 {
		logger.Info().Int("timeout_seconds", cfg.Fibonacci.ComputeTimeout).Msg("compute timeout enabled")
	} else {
		logger.Info().Msg("compute timeout disabled")
	}

	if cfg.Metrics.Enabled {
		logger.Info().Str("path", cfg.Metrics.Path).Msg("metrics endpoint enabled")
	} else {
		logger.Info().Msg("metrics endpoint disabled")
	}
}

// shutdownGracefully drains the server and stops any running load session
func shutdownGracefully(server *http.Server, runner *loadrunner.Runner, timeout time.Duration) {
	logger := logging.L()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	logger.Info().Dur("timeout", timeout).Msg("shutting down server gracefully")

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("error during server shutdown")
		if closeErr := server.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("error closing server")
		}
	}

	if runner.Stop() {
		logger.Info().Msg("background load session signalled to stop")
	}

	logger.Info().Msg("server shutdown complete")
}
