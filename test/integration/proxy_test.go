package integration

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pivot-proxy/pivot/internal/observability"
	"github.com/pivot-proxy/pivot/internal/proxy"
	"github.com/pivot-proxy/pivot/internal/server"
)

// isPermissionError normalizes OS-specific permission errors (macOS/Linux/BSD)
// so we can gracefully skip when loopback sockets are blocked.
func isPermissionError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, os.ErrPermission) || errors.Is(err, syscall.EACCES) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, fragment := range []string{"permission denied", "operation not permitted", "not permitted"} {
		if strings.Contains(msg, fragment) {
			return true
		}
	}

	return false
}

// listenOrSkip binds to IPv4 loopback explicitly and skips when the sandbox
// refuses to open sockets.
func listenOrSkip(t *testing.T) net.Listener {
	t.Helper()

	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		if isPermissionError(err) {
			t.Skipf("skipping integration test: %v", err)
		}
		require.NoError(t, err)
	}
	return listener
}

// startBackend runs an HTTP backend that echoes a marker header.
func startBackend(t *testing.T) (*httptest.Server, string) {
	t.Helper()

	backend := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Backend", "integration")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("backend response"))
	}))
	backend.Listener.Close()
	backend.Listener = listenOrSkip(t)
	backend.Start()
	t.Cleanup(backend.Close)

	return backend, backend.Listener.Addr().String()
}

// startProxy runs the full data plane on a loopback listener.
func startProxy(t *testing.T, upstreams []string, maxRequestsPerMinute int) (*proxy.Proxy, string) {
	t.Helper()

	pr, err := proxy.New(proxy.Options{
		Upstreams:            upstreams,
		HealthCheckInterval:  time.Hour,
		HealthCheckPath:      "/",
		MaxRequestsPerMinute: maxRequestsPerMinute,
		DialTimeout:          2 * time.Second,
		Logger:               zap.NewNop(),
	})
	require.NoError(t, err)

	listener := listenOrSkip(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	go func() {
		_ = pr.Serve(ctx, listener)
	}()

	return pr, listener.Addr().String()
}

func sendProxyRequest(t *testing.T, addr, path string) *http.Response {
	t.Helper()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	req, err := http.NewRequest(http.MethodGet, path, nil)
	require.NoError(t, err)
	req.Host = "proxy.integration"

	require.NoError(t, req.Write(conn))

	resp, err := http.ReadResponse(bufio.NewReader(conn), req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	return resp
}

func TestProxyEndToEnd(t *testing.T) {
	_, backendAddr := startBackend(t)
	pr, proxyAddr := startProxy(t, []string{backendAddr}, 0)

	resp := sendProxyRequest(t, proxyAddr, "/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "integration", resp.Header.Get("X-Backend"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "backend response", string(body))

	assert.Equal(t, 1, pr.Registry().LiveCount())
}

func TestAdminPlaneAgainstRunningProxy(t *testing.T) {
	observability.InitCLILogger("test", false)
	observability.InitServerLogger("test", "info")

	_, backendAddr := startBackend(t)
	pr, proxyAddr := startProxy(t, []string{backendAddr}, 5)

	// Drive some traffic through the proxy so metrics have data.
	for i := 0; i < 3; i++ {
		resp := sendProxyRequest(t, proxyAddr, "/")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}

	adminSrv := server.New("127.0.0.1", 0, "test", pr.Registry(), pr.Limiter())
	admin := &httptest.Server{
		Listener: listenOrSkip(t),
		Config:   &http.Server{Handler: adminSrv.Handler()},
	}
	admin.Start()
	t.Cleanup(admin.Close)
	client := admin.Client()

	// Readiness reflects the live pool.
	resp, err := client.Get(admin.URL + "/health/ready")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Upstream inspection shows the backend alive.
	resp, err = client.Get(admin.URL + "/api/v1/upstreams")
	require.NoError(t, err)
	var upstreams struct {
		Total     int `json:"total"`
		Live      int `json:"live"`
		Upstreams []struct {
			Address string `json:"address"`
			Alive   bool   `json:"alive"`
		} `json:"upstreams"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&upstreams))
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, 1, upstreams.Total)
	assert.Equal(t, 1, upstreams.Live)
	require.Len(t, upstreams.Upstreams, 1)
	assert.Equal(t, backendAddr, upstreams.Upstreams[0].Address)
	assert.True(t, upstreams.Upstreams[0].Alive)

	// Rate limiter state reflects the proxied requests.
	resp, err = client.Get(admin.URL + "/api/v1/ratelimit")
	require.NoError(t, err)
	var rates struct {
		Enabled              bool           `json:"enabled"`
		MaxRequestsPerMinute int            `json:"max_requests_per_minute"`
		Clients              map[string]int `json:"clients"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rates))
	require.NoError(t, resp.Body.Close())
	assert.True(t, rates.Enabled)
	assert.Equal(t, 5, rates.MaxRequestsPerMinute)
	assert.Equal(t, 3, rates.Clients["127.0.0.1"])

	// Metrics scrape carries the data-plane counters.
	resp, err = client.Get(admin.URL + "/metrics")
	require.NoError(t, err)
	body, readErr := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, readErr)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	metricsContent := string(body)
	assert.Contains(t, metricsContent, "pivot_requests_total", "Should have proxied request metrics")
	assert.Contains(t, metricsContent, "pivot_upstream_alive", "Should have upstream liveness metrics")
	assert.Contains(t, metricsContent, "pivot_connections_total", "Should have connection metrics")
}

func TestProxyServes502WhenBackendGone(t *testing.T) {
	backend, backendAddr := startBackend(t)
	_, proxyAddr := startProxy(t, []string{backendAddr}, 0)

	// Kill the backend, then force the proxy to notice at connect time.
	backend.Close()

	conn, err := net.Dial("tcp", proxyAddr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	require.NoError(t, err)
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}
