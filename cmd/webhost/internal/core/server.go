package core

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hasirciogluhq/xwebhost/cmd/webhost/internal/connection"
	"github.com/hasirciogluhq/xwebhost/cmd/webhost/internal/logger"
)

// State is the listener lifecycle state. It only moves forward.
type State int32

const (
	StateCreated State = iota
	StateListening
	StateShuttingDown
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateListening:
		return "listening"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ListenerConfig is fixed for the life of a Server.
type ListenerConfig struct {
	Port         int
	HostAddress  string
	VirtualPath  string
	PhysicalPath string
}

// Options tunes a Server. Zero values get defaults.
type Options struct {
	// AcceptRetryDelay is the pause after a failed Accept. Default 100ms.
	AcceptRetryDelay time.Duration

	// WaitTimeout bounds the wait for the first request byte. Default 30s.
	WaitTimeout time.Duration

	// TLSConfig, when set, wraps every accepted socket in a TLS server.
	TLSConfig *tls.Config

	// Listen binds sockets. Default net.Listen.
	Listen ListenFunc

	// NewConnection wraps accepted sockets. Default connection.New.
	NewConnection func(net.Conn) Connection
}

// Server accepts raw TCP connections for one web application and forwards
// them to a lazily created host.
type Server struct {
	cfg     ListenerConfig
	opts    Options
	factory HostFactory
	appID   string

	mu       sync.Mutex
	listener net.Listener
	address  net.IP

	port       atomic.Int64
	state      atomic.Int32
	shutdown   atomic.Bool
	acceptDone chan struct{}
	stopDone   chan struct{}
	stopOnce   sync.Once

	hostMu sync.Mutex
	host   atomic.Pointer[hostSlot]

	inflight sync.Map
	stats    stats
}

// New validates cfg and returns a listener in the Created state.
func New(cfg ListenerConfig, factory HostFactory, opts Options) (*Server, error) {
	if factory == nil {
		return nil, fmt.Errorf("%w: host factory is required", ErrInvalidConfig)
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, cfg.Port)
	}

	physical, err := normalizePhysicalPath(cfg.PhysicalPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	cfg.PhysicalPath = physical
	cfg.VirtualPath = normalizeVirtualPath(cfg.VirtualPath)

	if opts.AcceptRetryDelay <= 0 {
		opts.AcceptRetryDelay = 100 * time.Millisecond
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = 30 * time.Second
	}
	if opts.Listen == nil {
		opts.Listen = net.Listen
	}
	if opts.NewConnection == nil {
		waitTimeout := opts.WaitTimeout
		opts.NewConnection = func(c net.Conn) Connection {
			return connection.New(c, connection.Options{WaitTimeout: waitTimeout})
		}
	}

	s := &Server{
		cfg:        cfg,
		opts:       opts,
		factory:    factory,
		appID:      AppID(cfg.VirtualPath, cfg.PhysicalPath),
		acceptDone: make(chan struct{}),
		stopDone:   make(chan struct{}),
	}
	s.port.Store(int64(cfg.Port))
	return s, nil
}

// Start binds the socket and launches the accept loop. A bind failure is
// returned as *BindError and leaves the listener unstarted.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if State(s.state.Load()) != StateCreated {
		return ErrAlreadyStarted
	}

	s.shutdown.Store(false)
	addr := ResolveAddress(s.cfg.HostAddress)

	ln, err := bindAndListen(s.opts.Listen, addr, s.cfg.Port)
	if err != nil {
		logger.Error("Bind failed", "app_id", s.appID, "address", addr.String(), "port", s.cfg.Port, "error", err)
		return err
	}

	if tcp, ok := ln.Addr().(*net.TCPAddr); ok && tcp.IP.IsLoopback() && tcp.IP.To4() == nil {
		addr = tcp.IP
		logger.Warn("Primary bind failed, listening on IPv6 loopback", "app_id", s.appID)
	}

	s.listener = ln
	s.address = addr
	s.port.Store(int64(boundPort(ln, s.cfg.Port)))
	s.state.Store(int32(StateListening))

	go s.acceptLoop(ln)

	logger.Info("Listener started", "app_id", s.appID, "addr", ln.Addr().String(), "root_url", s.rootURL(addr))
	return nil
}

// Stop halts accepting, closes the socket, asks the host to shut down and
// blocks until the host reports it has stopped or ctx ends. Only the first
// call starts the shutdown; later calls wait for the same completion.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	prev := State(s.state.Load())
	if prev == StateShuttingDown || prev == StateStopped {
		s.mu.Unlock()
		return s.waitStopped(ctx)
	}

	s.shutdown.Store(true)
	s.state.Store(int32(StateShuttingDown))

	if s.listener != nil {
		if err := s.listener.Close(); err != nil {
			logger.Debug("Listener close failed", "app_id", s.appID, "error", err)
		}
		s.listener = nil
	}
	s.mu.Unlock()

	if prev == StateListening {
		<-s.acceptDone
	}

	// Taking hostMu waits out any creation already in flight; none can
	// start after this since the shutdown flag is set.
	s.hostMu.Lock()
	slot := s.host.Load()
	s.hostMu.Unlock()

	if slot == nil {
		s.markStopped()
	} else {
		logger.Info("Shutting down host", "app_id", s.appID)
		slot.host.Shutdown()
	}

	return s.waitStopped(ctx)
}

func (s *Server) waitStopped(ctx context.Context) error {
	select {
	case <-s.stopDone:
		return nil
	case <-ctx.Done():
		logger.Warn("Host did not stop in time", "app_id", s.appID, "error", ctx.Err())
		return ctx.Err()
	}
}

// markStopped completes shutdown once the host slot is empty.
func (s *Server) markStopped() {
	s.stopOnce.Do(func() {
		s.state.Store(int32(StateStopped))
		close(s.stopDone)
		logger.Info("Listener stopped", "app_id", s.appID)
	})
}

// Port returns the bound port, or the configured one before Start.
func (s *Server) Port() int {
	return int(s.port.Load())
}

// VirtualPath returns the application-relative URL prefix.
func (s *Server) VirtualPath() string {
	return s.cfg.VirtualPath
}

// PhysicalPath returns the absolute, separator-terminated content root.
func (s *Server) PhysicalPath() string {
	return s.cfg.PhysicalPath
}

// AppID returns the application identifier hosts are created with.
func (s *Server) AppID() string {
	return s.appID
}

// State returns the current lifecycle state.
func (s *Server) State() State {
	return State(s.state.Load())
}

// Address returns the resolved address, resolving it if Start has not run.
func (s *Server) Address() net.IP {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.address != nil {
		return s.address
	}
	return ResolveAddress(s.cfg.HostAddress)
}

// RootURL is the externally reachable URL of the application.
func (s *Server) RootURL() string {
	return s.rootURL(s.Address())
}

func (s *Server) rootURL(addr net.IP) string {
	scheme, defaultPort := "http", 80
	if s.opts.TLSConfig != nil {
		scheme, defaultPort = "https", 443
	}

	host := addr.String()
	if addr.To4() == nil {
		host = "[" + host + "]"
	}
	if port := s.Port(); port != defaultPort {
		host = net.JoinHostPort(addr.String(), strconv.Itoa(port))
	}

	u := url.URL{Scheme: scheme, Host: host, Path: s.cfg.VirtualPath}
	return u.String()
}

// Stats returns a snapshot of the listener counters.
func (s *Server) Stats() StatsSnapshot {
	snap := s.stats.snapshot()
	snap.InFlight = snap.Dispatched - snap.RequestsCompleted
	return snap
}

func normalizePhysicalPath(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("physical path is required")
	}
	if !filepath.IsAbs(p) {
		abs, err := filepath.Abs(p)
		if err != nil {
			return "", fmt.Errorf("resolve physical path %q: %w", p, err)
		}
		p = abs
	}
	if !strings.HasSuffix(p, string(os.PathSeparator)) {
		p += string(os.PathSeparator)
	}
	return p, nil
}

func normalizeVirtualPath(v string) string {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "/") {
		v = "/" + v
	}
	return v
}
