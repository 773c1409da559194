package core

import (
	"context"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/hasirciogluhq/xwebhost/cmd/webhost/internal/logger"
)

// hostSlot holds the current host. stopped is closed by OnHostStopped.
type hostSlot struct {
	host    Host
	stopped chan struct{}
}

// AppID derives a stable identifier for an application from its virtual and
// physical paths. Case is ignored so the same application always maps to
// the same id.
func AppID(virtualPath, physicalPath string) string {
	key := strings.ToLower(virtualPath + physicalPath)
	return strconv.FormatUint(xxhash.Sum64String(key), 16)
}

// getOrCreateHost returns the listener's host, creating it on first use.
// Creation is serialized by hostMu so concurrent first requests observe a
// single host; the common path is a lock-free load.
func (s *Server) getOrCreateHost(ctx context.Context) (Host, error) {
	if s.shutdown.Load() {
		return nil, ErrShuttingDown
	}

	if slot := s.host.Load(); slot != nil {
		return slot.host, nil
	}

	s.hostMu.Lock()
	defer s.hostMu.Unlock()

	if s.shutdown.Load() {
		return nil, ErrShuttingDown
	}
	if slot := s.host.Load(); slot != nil {
		return slot.host, nil
	}

	app := AppConfig{
		ID:           s.appID,
		Port:         s.Port(),
		VirtualPath:  s.cfg.VirtualPath,
		PhysicalPath: s.cfg.PhysicalPath,
	}

	host, err := s.factory.CreateHost(ctx, app, s)
	if err != nil {
		logger.Error("Host creation failed", "app_id", s.appID, "error", err)
		return nil, &HostUnavailableError{AppID: s.appID, Err: err}
	}

	s.host.Store(&hostSlot{host: host, stopped: make(chan struct{})})
	s.stats.hostsCreated.Add(1)
	logger.Info("Host created", "app_id", s.appID, "virtual_path", app.VirtualPath, "physical_path", app.PhysicalPath)

	return host, nil
}

// OnHostStopped is called by the host once it has fully unloaded. It is the
// only place the host slot is cleared. Notifications from a host that is no
// longer current are ignored.
func (s *Server) OnHostStopped(h Host) {
	s.hostMu.Lock()
	defer s.hostMu.Unlock()

	slot := s.host.Load()
	if slot == nil || slot.host != h {
		logger.Debug("Ignoring stop notification from stale host", "app_id", s.appID)
		return
	}

	s.host.Store(nil)
	close(slot.stopped)
	s.stats.hostsStopped.Add(1)
	logger.Info("Host stopped", "app_id", s.appID)

	if State(s.state.Load()) == StateShuttingDown {
		s.markStopped()
	}
}

// OnRequestEnd is called by the host after it finished one connection.
// It releases the listener's handle on the connection and never touches
// the host slot.
func (s *Server) OnRequestEnd(conn Connection) {
	if _, ok := s.inflight.LoadAndDelete(conn.ID()); ok {
		s.stats.requestsCompleted.Add(1)
	}
}
