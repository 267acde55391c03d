package logging

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/0xReLogic/Ember/internal/config"
)

const (
	testCustomReqHeader = "X-Custom-Req"
	testReqID           = "req-1"
)

func swapLoggerForTest(logger zerolog.Logger) func() {
	baseLoggerMu.Lock()
	previous := baseLogger
	baseLogger = logger
	baseLoggerMu.Unlock()
	return func() {
		baseLoggerMu.Lock()
		baseLogger = previous
		baseLoggerMu.Unlock()
	}
}

func firstLine(b []byte) []byte {
	if idx := bytes.IndexByte(b, '\n'); idx >= 0 {
		return b[:idx]
	}
	return b
}

func TestRequestContextMiddleware_GeneratesIdentifier(t *testing.T) {
	cfg := config.LoggingConfig{
		RequestID: config.RequestIDConfig{Enabled: true},
	}

	buffer := bytes.Buffer{}
	restore := swapLoggerForTest(newLogger(&buffer, zerolog.InfoLevel, formatJSON, false))
	defer restore()

	mw := RequestContextMiddleware(cfg)

	var capturedRequestID string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedRequestID = RequestIDFromContext(r.Context())
		logger := WithContext(r.Context())
		logger.Info().Msg("test")
		w.WriteHeader(http.StatusOK)
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	mw(handler).ServeHTTP(rr, req)

	if capturedRequestID == "" {
		t.Fatal("expected generated request id")
	}

	if got := rr.Header().Get(defaultRequestHeader); got != capturedRequestID {
		t.Fatalf("expected response header request id %q, got %q", capturedRequestID, got)
	}

	line := firstLine(buffer.Bytes())
	if len(line) == 0 {
		t.Fatal("expected log output")
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(line, &payload); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}

	if payload["request_id"] != capturedRequestID {
		t.Fatalf("expected log request_id %q, got %v", capturedRequestID, payload["request_id"])
	}
}

func TestRequestContextMiddleware_RespectsHeader(t *testing.T) {
	cfg := config.LoggingConfig{
		RequestID: config.RequestIDConfig{Enabled: true, Header: testCustomReqHeader},
	}

	mw := RequestContextMiddleware(cfg)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := RequestIDFromContext(r.Context()); got != testReqID {
			t.Fatalf("expected request id %s, got %s", testReqID, got)
		}
		w.WriteHeader(http.StatusOK)
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(testCustomReqHeader, testReqID)

	mw(handler).ServeHTTP(rr, req)

	if got := rr.Header().Get(testCustomReqHeader); got != testReqID {
		t.Fatalf("expected response header %q, got %q", testReqID, got)
	}
}

func TestRequestContextMiddleware_Disabled(t *testing.T) {
	cfg := config.LoggingConfig{}

	mw := RequestContextMiddleware(cfg)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := RequestIDFromContext(r.Context()); got != "" {
			t.Fatalf("expected no request id, got %s", got)
		}
		w.WriteHeader(http.StatusOK)
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	mw(handler).ServeHTTP(rr, req)

	if got := rr.Header().Get(defaultRequestHeader); got != "" {
		t.Fatalf("expected no response header, got %q", got)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		value    string
		expected zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"bogus", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.value); got != tt.expected {
			t.Errorf("parseLevel(%q) = %v, expected %v", tt.value, got, tt.expected)
		}
	}
}
