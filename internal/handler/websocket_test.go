package handler

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestStatusStream(t *testing.T) {
	mux := newTestMux(t, testConfig(10))

	server := httptest.NewServer(mux)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/status"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to dial status stream: %v", err)
	}
	defer conn.Close()
	defer resp.Body.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var s loadStatus
	if err := conn.ReadJSON(&s); err != nil {
		t.Fatalf("Failed to read first status frame: %v", err)
	}

	if s.Status != "inactive" {
		t.Errorf("Expected inactive status, got %q", s.Status)
	}
	if s.FibIterationsConfigured != 10 {
		t.Errorf("Expected configured iterations 10, got %d", s.FibIterationsConfigured)
	}
}

func TestStatusStreamReflectsSession(t *testing.T) {
	mux := newTestMux(t, testConfig(10))

	server := httptest.NewServer(mux)
	defer server.Close()

	// Launch a long session through the HTTP API first.
	rr := postJSON(mux, "/start_cpu_intensive", `{"iterations": 50000000}`)
	if rr.Code != 202 {
		t.Fatalf("Expected 202, got %d", rr.Code)
	}
	defer func() {
		postJSON(mux, "/stop_cpu_intensive", "")
		waitForInactive(t, mux, 2*time.Second)
	}()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/status"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to dial status stream: %v", err)
	}
	defer conn.Close()
	defer resp.Body.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var s loadStatus
	if err := conn.ReadJSON(&s); err != nil {
		t.Fatalf("Failed to read status frame: %v", err)
	}
	if !s.SessionActive {
		t.Error("Expected stream to report an active session")
	}
	if s.SessionIterations != 50000000 {
		t.Errorf("Expected session iterations 50000000, got %d", s.SessionIterations)
	}
}

func TestStatusStreamRejectsPlainRequest(t *testing.T) {
	mux := newTestMux(t, testConfig(10))

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest("GET", "/ws/status", nil))

	if rr.Code != 400 {
		t.Fatalf("Expected 400 for non-upgrade request, got %d", rr.Code)
	}
}
