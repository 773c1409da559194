package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hasirciogluhq/xwebhost/cmd/webhost/internal/core"
)

type stubSource struct{}

func (stubSource) State() core.State { return core.StateListening }
func (stubSource) RootURL() string   { return "http://10.0.0.5:8080/app" }
func (stubSource) AppID() string     { return "abc123" }
func (stubSource) Stats() core.StatsSnapshot {
	return core.StatsSnapshot{Accepted: 3, Dispatched: 2, RequestsCompleted: 1, InFlight: 1}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	hs := NewHealthServer(":0")
	rec := get(t, hs.Handler(), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestReady(t *testing.T) {
	hs := NewHealthServer(":0")
	assert.Equal(t, http.StatusServiceUnavailable, get(t, hs.Handler(), "/ready").Code)

	hs.SetReady(true)
	assert.Equal(t, http.StatusOK, get(t, hs.Handler(), "/ready").Code)

	hs.SetReady(false)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, hs.Handler(), "/ready").Code)
}

func TestStatus(t *testing.T) {
	hs := NewHealthServer(":0")
	assert.Equal(t, http.StatusServiceUnavailable, get(t, hs.Handler(), "/status").Code)

	hs.SetSource(stubSource{})
	hs.SetReady(true)

	rec := get(t, hs.Handler(), "/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var status Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "listening", status.State)
	assert.Equal(t, "abc123", status.AppID)
	assert.Equal(t, "http://10.0.0.5:8080/app", status.RootURL)
	assert.True(t, status.Ready)
	assert.Equal(t, int64(1), status.Stats.InFlight)
}
