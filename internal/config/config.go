package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultPort is used when PORT is absent or malformed.
	DefaultPort = 5000
	// DefaultIterations is used when FIB_ITERATIONS is absent or malformed.
	DefaultIterations = 500000

	portEnv       = "PORT"
	iterationsEnv = "FIB_ITERATIONS"
)

// Config represents the resolved service configuration. It is built once at
// startup and never mutated afterwards.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Fibonacci FibonacciConfig `yaml:"fibonacci"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// EnvFallbacks records environment values that were present but
	// malformed and therefore replaced during resolution.
	EnvFallbacks []string `yaml:"-"`
}

// ServerConfig holds the HTTP server configuration
type ServerConfig struct {
	Port     int            `yaml:"port"`
	Timeouts TimeoutsConfig `yaml:"timeouts"`
}

// TimeoutsConfig holds HTTP server timeouts in seconds
type TimeoutsConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// FibonacciConfig holds the computation settings
type FibonacciConfig struct {
	// DefaultIterations is the iteration count used when a request does
	// not carry an override.
	DefaultIterations int `yaml:"default_iterations"`
	// MaxConcurrent bounds simultaneous computations. Zero resolves to
	// twice the CPU count; a negative value disables the gate.
	MaxConcurrent int `yaml:"max_concurrent"`
	// ComputeTimeout aborts a single computation after this many seconds.
	// Zero disables the timeout.
	ComputeTimeout int `yaml:"compute_timeout"`
}

// LoggingConfig holds the logger configuration
type LoggingConfig struct {
	Level         string          `yaml:"level"`
	Format        string          `yaml:"format"`
	IncludeCaller bool            `yaml:"include_caller"`
	RequestID     RequestIDConfig `yaml:"request_id"`
}

// RequestIDConfig controls request identifier propagation
type RequestIDConfig struct {
	Enabled bool   `yaml:"enabled"`
	Header  string `yaml:"header"`
}

// MetricsConfig controls the JSON metrics endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// RateLimitConfig controls per-client request limiting
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: DefaultPort,
			Timeouts: TimeoutsConfig{
				Read:  15,
				Write: 120, // must outlast a full default-size computation
				Idle:  60,
			},
		},
		Fibonacci: FibonacciConfig{
			DefaultIterations: DefaultIterations,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Format:    "text",
			RequestID: RequestIDConfig{Enabled: true},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
		},
	}
}

// Load builds the service configuration in three layers: built-in defaults,
// then the YAML file at filePath if one exists, then environment overrides.
// A missing file is not an error; an unparseable one is.
func Load(filePath string) (*Config, error) {
	cfg := defaultConfig()

	if filePath != "" {
		data, err := os.ReadFile(filePath)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("error parsing config file: %w", err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.resolve()
	return cfg, nil
}

// FromEnv resolves configuration from environment and defaults alone. It
// never fails; absent or malformed values fall back to documented defaults.
func FromEnv() *Config {
	cfg := defaultConfig()
	cfg.applyEnv()
	cfg.resolve()
	return cfg
}

// applyEnv overlays environment values. Malformed values are recorded in
// EnvFallbacks and the previous layer's value is kept.
func (c *Config) applyEnv() {
	if raw, ok := os.LookupEnv(portEnv); ok {
		if port, err := strconv.Atoi(raw); err == nil && port >= 1 && port <= 65535 {
			c.Server.Port = port
		} else {
			c.EnvFallbacks = append(c.EnvFallbacks,
				fmt.Sprintf("%s=%q is not a valid port, using %d", portEnv, raw, c.Server.Port))
		}
	}

	if raw, ok := os.LookupEnv(iterationsEnv); ok {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			c.Fibonacci.DefaultIterations = n
		} else {
			c.EnvFallbacks = append(c.EnvFallbacks,
				fmt.Sprintf("%s=%q is not a valid non-negative integer, using %d", iterationsEnv, raw, c.Fibonacci.DefaultIterations))
		}
	}
}

// resolve repairs out-of-range values left by the file layer so that the
// final configuration always satisfies its invariants.
func (c *Config) resolve() {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		c.Server.Port = DefaultPort
	}
	if c.Server.Timeouts.Read < 0 {
		c.Server.Timeouts.Read = 0
	}
	if c.Server.Timeouts.Write < 0 {
		c.Server.Timeouts.Write = 0
	}
	if c.Server.Timeouts.Idle < 0 {
		c.Server.Timeouts.Idle = 0
	}

	if c.Fibonacci.DefaultIterations < 0 {
		c.Fibonacci.DefaultIterations = DefaultIterations
	}
	if c.Fibonacci.MaxConcurrent == 0 {
		c.Fibonacci.MaxConcurrent = 2 * runtime.NumCPU()
	}
	if c.Fibonacci.ComputeTimeout < 0 {
		c.Fibonacci.ComputeTimeout = 0
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	if c.RateLimit.RequestsPerSecond <= 0 {
		c.RateLimit.RequestsPerSecond = 100
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = int(c.RateLimit.RequestsPerSecond) * 2
	}
}
