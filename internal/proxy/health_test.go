package proxy

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func testChecker(t *testing.T, r *Registry) *HealthChecker {
	t.Helper()
	return NewHealthChecker(r, time.Second, "/health", 2*time.Second, zap.NewNop())
}

// startBackend runs an HTTP server answering the probe path with the given
// status and returns its host:port.
func startBackend(t *testing.T, status int) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv.Listener.Addr().String()
}

// deadAddr returns an address nothing is listening on.
func deadAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve address: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func TestProbeCycleMarksHealthyUpstreamAlive(t *testing.T) {
	addr := startBackend(t, http.StatusOK)
	r := NewRegistry([]string{addr})
	r.SetAlive(addr, false)

	testChecker(t, r).checkAll()

	if !r.IsAlive(addr) {
		t.Fatal("upstream answering 200 should be marked alive")
	}
}

func TestProbeCycleMarksNon200UpstreamDead(t *testing.T) {
	addr := startBackend(t, http.StatusInternalServerError)
	r := NewRegistry([]string{addr})

	testChecker(t, r).checkAll()

	if r.IsAlive(addr) {
		t.Fatal("upstream answering 500 should be marked dead")
	}
}

func TestProbeCycleMarksUnreachableUpstreamDead(t *testing.T) {
	addr := deadAddr(t)
	r := NewRegistry([]string{addr})

	testChecker(t, r).checkAll()

	if r.IsAlive(addr) {
		t.Fatal("unreachable upstream should be marked dead")
	}
}

func TestProbeCycleConvergesIndependentOfPriorState(t *testing.T) {
	live := startBackend(t, http.StatusOK)
	dead := deadAddr(t)
	r := NewRegistry([]string{live, dead})

	// Invert the real state, then verify one cycle corrects both flags.
	r.SetAlive(live, false)
	r.SetAlive(dead, true)

	checker := testChecker(t, r)
	checker.checkAll()

	if !r.IsAlive(live) || r.IsAlive(dead) {
		t.Fatalf("expected live=%s dead=%s, got snapshot %+v", live, dead, r.Snapshot())
	}

	// A second cycle is idempotent.
	checker.checkAll()
	if !r.IsAlive(live) || r.IsAlive(dead) {
		t.Fatal("second cycle changed converged state")
	}
}
