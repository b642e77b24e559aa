package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"inputlink/internal/metrics"
	"inputlink/internal/network"
)

var (
	testKey = []byte("0123456789abcdef")
	testIV  = []byte("fedcba9876543210")
)

func newTestServer(t *testing.T, opts ...Option) *httptest.Server {
	t.Helper()
	recv, err := network.NewReceiver(testKey, testIV)
	require.NoError(t, err)
	t.Cleanup(recv.Close)

	srv := httptest.NewServer(NewServer(recv, append(opts, WithLogger(zaptest.NewLogger(t)))...).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestServer_Health(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestServer_Status(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var stats network.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, network.Stats{}, stats)

	post, err := http.Post(srv.URL+"/api/status", "text/plain", nil)
	require.NoError(t, err)
	post.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, post.StatusCode)
}

func TestServer_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewReceiver(metrics.WithRegistry(reg))
	m.Event("scroll")

	srv := newTestServer(t, WithMetrics(reg))
	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `inputlink_receiver_events_total{kind="scroll"} 1`))
}

func TestServer_NoMetricsOrWebSocketByDefault(t *testing.T) {
	srv := newTestServer(t)
	for _, path := range []string{"/metrics", "/input"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}
}

func TestServer_WebSocketRoute(t *testing.T) {
	srv := newTestServer(t, WithWebSocket("/input"))
	resp, err := http.Get(srv.URL + "/input")
	require.NoError(t, err)
	resp.Body.Close()
	// plain GET without upgrade headers is refused by the upgrader
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
