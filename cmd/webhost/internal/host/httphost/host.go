// Package httphost runs an application in-process behind a private
// http.Server. The listener hands it accepted connections; it parses HTTP,
// serves content from the application's physical path and reports back
// through core.HostEvents.
package httphost

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/hasirciogluhq/xwebhost/cmd/webhost/internal/cache"
	"github.com/hasirciogluhq/xwebhost/cmd/webhost/internal/core"
	"github.com/hasirciogluhq/xwebhost/cmd/webhost/internal/logger"
	"github.com/hasirciogluhq/xwebhost/cmd/webhost/internal/tracing"
	"github.com/hasirciogluhq/xwebhost/cmd/webhost/internal/watcher"
)

// Config tunes every host a Factory creates.
type Config struct {
	DrainTimeout      time.Duration
	ReadHeaderTimeout time.Duration
	IdleTimeout       time.Duration

	CacheTTL         time.Duration
	CacheMaxFileSize int64

	DirectoryListing bool

	RecycleOnChange bool
	RecycleDebounce time.Duration
}

// DefaultConfig returns the settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		DrainTimeout:      30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		CacheTTL:          cache.DefaultExpiration,
		CacheMaxFileSize:  cache.DefaultMaxFileSize,
		DirectoryListing:  true,
		RecycleOnChange:   false,
		RecycleDebounce:   time.Second,
	}
}

// Factory implements core.HostFactory.
type Factory struct {
	Config Config
	Tracer trace.Tracer

	// Handler, when set, replaces the static content handler. Used to host
	// arbitrary http.Handlers behind the same lifecycle.
	Handler func(app core.AppConfig) http.Handler
}

// NewFactory creates a factory with cfg.
func NewFactory(cfg Config, tracer trace.Tracer) *Factory {
	return &Factory{Config: cfg, Tracer: tracer}
}

// CreateHost builds and starts a host for app.
func (f *Factory) CreateHost(ctx context.Context, app core.AppConfig, events core.HostEvents) (core.Host, error) {
	info, err := os.Stat(app.PhysicalPath)
	if err != nil {
		return nil, fmt.Errorf("application root %s: %w", app.PhysicalPath, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("application root %s is not a directory", app.PhysicalPath)
	}

	cfg := f.Config
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultConfig().DrainTimeout
	}

	h := &Host{
		app:       app,
		events:    events,
		cfg:       cfg,
		files:     cache.NewFileCache(cfg.CacheTTL, cfg.CacheMaxFileSize),
		ln:        newConnListener(hostAddr(app.ID)),
		serveDone: make(chan struct{}),
		stopped:   make(chan struct{}),
	}

	var handler http.Handler
	if f.Handler != nil {
		handler = f.Handler(app)
	} else {
		handler = newStaticHandler(app.VirtualPath, app.PhysicalPath, h.files, cfg.DirectoryListing)
	}
	handler = tracing.Middleware(f.Tracer, app.ID, handler)

	h.server = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		ConnState:         h.connState,
		ErrorLog:          slog.NewLogLogger(logger.With("app_id", app.ID).Handler(), slog.LevelDebug),
	}

	if cfg.RecycleOnChange {
		w, err := watcher.New(watcher.Config{Root: app.PhysicalPath, DebounceDur: cfg.RecycleDebounce})
		if err != nil {
			return nil, err
		}
		changes, err := w.Start()
		if err != nil {
			_ = w.Stop()
			return nil, err
		}
		h.watcher = w
		go h.recycleOn(changes)
	}

	go h.serve()

	logger.Debug("Host started", "app_id", app.ID, "recycle_on_change", cfg.RecycleOnChange)
	return h, nil
}

// Host is one in-process application instance.
type Host struct {
	app     core.AppConfig
	events  core.HostEvents
	cfg     Config
	files   *cache.FileCache
	watcher *watcher.Watcher

	server    *http.Server
	ln        *connListener
	serveDone chan struct{}

	conns        sync.Map // net.Conn -> core.Connection
	stopping     atomic.Bool
	shutdownOnce sync.Once
	stopped      chan struct{}
}

// AppID returns the id of the application this host serves.
func (h *Host) AppID() string {
	return h.app.ID
}

// ProcessRequest hands conn to the host's HTTP server. Work arriving after
// Shutdown is answered with 503.
func (h *Host) ProcessRequest(conn core.Connection) {
	h.conns.Store(net.Conn(conn), conn)

	if h.stopping.Load() || !h.ln.deliver(conn) {
		if _, ok := h.conns.LoadAndDelete(net.Conn(conn)); ok {
			h.reject(conn)
		}
	}
}

func (h *Host) reject(conn core.Connection) {
	logger.Debug("Host stopping, rejecting connection", "app_id", h.app.ID, "conn_id", conn.ID())
	_ = conn.WriteErrorResponse(http.StatusServiceUnavailable)
	_ = conn.Close()
	h.events.OnRequestEnd(conn)
}

// Shutdown starts unloading the host. It returns at once; OnHostStopped
// is reported when teardown finishes.
func (h *Host) Shutdown() {
	h.shutdownOnce.Do(func() {
		h.stopping.Store(true)
		go h.teardown()
	})
}

// Stopped is closed after OnHostStopped has been reported.
func (h *Host) Stopped() <-chan struct{} {
	return h.stopped
}

func (h *Host) serve() {
	defer close(h.serveDone)
	if err := h.server.Serve(h.ln); err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, net.ErrClosed) {
		logger.Error("Host server error", "app_id", h.app.ID, "error", err)
	}
}

func (h *Host) connState(c net.Conn, state http.ConnState) {
	switch state {
	case http.StateClosed, http.StateHijacked:
		if v, ok := h.conns.LoadAndDelete(c); ok {
			h.events.OnRequestEnd(v.(core.Connection))
		}
	}
}

func (h *Host) recycleOn(changes <-chan struct{}) {
	select {
	case <-changes:
		logger.Info("Application files changed, recycling host", "app_id", h.app.ID, "path", h.app.PhysicalPath)
		h.Shutdown()
	case <-h.stopped:
	}
}

func (h *Host) teardown() {
	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.DrainTimeout)
	defer cancel()

	if err := h.server.Shutdown(ctx); err != nil {
		logger.Warn("Host drain timed out, closing connections", "app_id", h.app.ID, "error", err)
		_ = h.server.Close()
	}
	_ = h.ln.Close()
	<-h.serveDone

	if h.watcher != nil {
		if err := h.watcher.Stop(); err != nil {
			logger.Debug("Watcher stop failed", "app_id", h.app.ID, "error", err)
		}
	}
	h.files.Flush()

	// Connections handed over but never picked up by the server.
	h.conns.Range(func(k, _ any) bool {
		if v, ok := h.conns.LoadAndDelete(k); ok {
			conn := v.(core.Connection)
			_ = conn.Close()
			h.events.OnRequestEnd(conn)
		}
		return true
	})

	h.events.OnHostStopped(h)
	close(h.stopped)
}
