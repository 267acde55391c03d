package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/0xReLogic/Ember/internal/config"
	"github.com/0xReLogic/Ember/internal/loadrunner"
	"github.com/0xReLogic/Ember/internal/logging"
	"github.com/0xReLogic/Ember/internal/metrics"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "ember.yaml", "Path to the optional YAML config file")
	flag.Parse()

	// Load configuration: defaults, optional file, then environment.
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logging.Init(cfg.Logging)
	logger := logging.L()
	for _, note := range cfg.EnvFallbacks {
		logger.Debug().Msg(note)
	}

	runner := loadrunner.New()
	collector := metrics.NewCollector()

	handler := buildHandler(cfg, runner, collector)
	server := createHTTPServer(cfg, handler)

	logStartupInfo(cfg)

	serverErrors := make(chan error, 1)
	startHTTPServer(server, cfg, serverErrors)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	case sig := <-shutdown:
		logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
		shutdownGracefully(server, runner, shutdownTimeout)
	}
}
