package tracking

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testServer(t *testing.T, status int, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": status == http.StatusOK,
			"message": "ok",
		})
	}))
}

func testSidecar(url string) *Sidecar {
	config := DefaultSidecarConfig()
	config.BaseURL = url
	config.Timeout = 2 * time.Second
	config.RetryAttempts = 2
	config.RetryDelay = time.Millisecond
	return NewSidecar(config)
}

func TestSidecarDisabledDropsEvents(t *testing.T) {
	var hits atomic.Int64
	server := testServer(t, http.StatusOK, &hits)
	defer server.Close()

	s := testSidecar(server.URL)
	if s.IsEnabled() {
		t.Fatal("sidecar should start disabled")
	}

	if err := s.LogScalar("loss", 1.0, 0); err != nil {
		t.Fatalf("LogScalar on disabled sidecar should be a no-op, got %v", err)
	}
	if hits.Load() != 0 {
		t.Errorf("disabled sidecar sent %d requests", hits.Load())
	}
}

func TestSidecarDeliversEvents(t *testing.T) {
	var hits atomic.Int64
	server := testServer(t, http.StatusOK, &hits)
	defer server.Close()

	s := testSidecar(server.URL)
	s.Enable()

	if err := s.LogScalar("loss", 0.5, 3); err != nil {
		t.Fatalf("LogScalar failed: %v", err)
	}
	if err := s.LogImage("grid", []byte{0x89, 'P', 'N', 'G'}, 3); err != nil {
		t.Fatalf("LogImage failed: %v", err)
	}
	if err := s.SetSummary("best_rmse", 0.1); err != nil {
		t.Fatalf("SetSummary failed: %v", err)
	}
	if hits.Load() != 3 {
		t.Errorf("expected 3 requests, got %d", hits.Load())
	}
}

func TestSidecarRetriesOnFailure(t *testing.T) {
	var hits atomic.Int64
	server := testServer(t, http.StatusInternalServerError, &hits)
	defer server.Close()

	s := testSidecar(server.URL)
	s.Enable()

	if err := s.LogScalar("loss", 0.5, 0); err == nil {
		t.Error("expected error after exhausting retries")
	}
	if hits.Load() != 2 {
		t.Errorf("expected 2 attempts, got %d", hits.Load())
	}
}

func TestSidecarHealthCheck(t *testing.T) {
	server := testServer(t, http.StatusOK, nil)
	defer server.Close()

	s := testSidecar(server.URL)
	if err := s.CheckHealth(); err != nil {
		t.Errorf("CheckHealth failed: %v", err)
	}

	bad := testSidecar("http://127.0.0.1:1")
	if err := bad.CheckHealth(); err == nil {
		t.Error("expected health check failure for unreachable service")
	}
}

func TestSidecarCloseDisables(t *testing.T) {
	s := testSidecar("http://localhost:8080")
	s.Enable()
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if s.IsEnabled() {
		t.Error("Close should disable the sidecar")
	}
}

func TestNoopTracker(t *testing.T) {
	n := NewNoop()
	if err := n.LogScalar("x", 1, 0); err != nil {
		t.Errorf("LogScalar: %v", err)
	}
	if err := n.LogImage("x", nil, 0); err != nil {
		t.Errorf("LogImage: %v", err)
	}
	if err := n.SetSummary("x", 1); err != nil {
		t.Errorf("SetSummary: %v", err)
	}
	if err := n.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
