package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/hasirciogluhq/xwebhost/cmd/webhost/internal/core"
	"github.com/hasirciogluhq/xwebhost/cmd/webhost/internal/logger"
)

// StatusSource is the listener state reported on /status.
type StatusSource interface {
	State() core.State
	RootURL() string
	AppID() string
	Stats() core.StatsSnapshot
}

// Status is the /status response body.
type Status struct {
	State   string             `json:"state"`
	AppID   string             `json:"app_id"`
	RootURL string             `json:"root_url"`
	Ready   bool               `json:"ready"`
	Stats   core.StatsSnapshot `json:"stats"`
	Time    time.Time          `json:"time"`
}

type HealthServer struct {
	server *http.Server
	ready  atomic.Bool
	source atomic.Pointer[StatusSource]
}

func NewHealthServer(addr string) *HealthServer {
	mux := http.NewServeMux()
	hs := &HealthServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}

	// Default to not ready until explicitly set
	hs.ready.Store(false)

	mux.HandleFunc("GET /health", hs.handleHealth)
	mux.HandleFunc("GET /ready", hs.handleReady)
	mux.HandleFunc("GET /status", hs.handleStatus)

	return hs
}

func (s *HealthServer) Start() {
	go func() {
		logger.Info("Health server listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Health server error", "error", err)
		}
	}()
}

func (s *HealthServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler exposes the routes, mainly for tests.
func (s *HealthServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HealthServer) SetReady(ready bool) {
	s.ready.Store(ready)
}

// SetSource attaches the listener reported on /status.
func (s *HealthServer) SetSource(src StatusSource) {
	s.source.Store(&src)
}

func (s *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *HealthServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
	}
}

func (s *HealthServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	src := s.source.Load()
	if src == nil {
		http.Error(w, "no listener", http.StatusServiceUnavailable)
		return
	}

	l := *src
	status := Status{
		State:   l.State().String(),
		AppID:   l.AppID(),
		RootURL: l.RootURL(),
		Ready:   s.ready.Load(),
		Stats:   l.Stats(),
		Time:    time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		logger.Debug("Status response not written", "error", err)
	}
}
