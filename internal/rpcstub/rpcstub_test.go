package rpcstub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"bilidl/internal/config"
	"bilidl/internal/metrics"
	"bilidl/internal/session"
)

func testAPI(t *testing.T) *API {
	t.Helper()
	cfg := &config.Config{SessionDir: t.TempDir(), RequestsPerSecond: 1000, BurstSize: 1000}
	sess := session.NewStore(cfg.SessionDir, nil, nil)
	reg := metrics.NewRegistry()
	return NewAPI(cfg, sess, reg)
}

func TestHealthReportsTaskCounters(t *testing.T) {
	api := testAPI(t)
	reg := api.metrics
	reg.CompletedTasks.Add(3)
	reg.FailedTasks.Add(1)

	srv := httptest.NewServer(api.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "healthy", body["status"])
	require.Equal(t, float64(3), body["completed_tasks"])
	require.Equal(t, float64(1), body["failed_tasks"])
}

func TestReadyIsAlwaysOK(t *testing.T) {
	api := testAPI(t)
	srv := httptest.NewServer(api.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ready")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDestroySessionOnUnknownIDReturnsNotFound(t *testing.T) {
	api := testAPI(t)
	srv := httptest.NewServer(api.Router())
	defer srv.Close()

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/sessions/unknown", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDestroySessionRemovesKnownSession(t *testing.T) {
	api := testAPI(t)
	jar := session.NewJar()
	require.NoError(t, api.sess.CreateSession(context.Background(), "sess-1", jar))
	api.metrics.SessionsActive.Add(1)

	srv := httptest.NewServer(api.Router())
	defer srv.Close()

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/sessions/sess-1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, int64(0), api.metrics.SessionsActive.Load())
}
