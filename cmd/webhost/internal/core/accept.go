package core

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/hasirciogluhq/xwebhost/cmd/webhost/internal/logger"
)

// acceptLoop accepts until the shutdown flag is set. Accept errors never end
// the loop; they are followed by a short pause so an error burst cannot spin.
func (s *Server) acceptLoop(ln net.Listener) {
	defer close(s.acceptDone)

	for !s.shutdown.Load() {
		conn, err := ln.Accept()
		if err != nil {
			if s.shutdown.Load() {
				return
			}
			s.stats.acceptErrors.Add(1)
			logger.Debug("Accept failed, retrying", "app_id", s.appID, "error", err, "closed", errors.Is(err, net.ErrClosed))
			time.Sleep(s.opts.AcceptRetryDelay)
			continue
		}

		s.stats.accepted.Add(1)
		go s.dispatch(conn)
	}
}

// dispatch runs per accepted socket. Exactly one of two things happens: the
// connection is handed to the host, or it is answered/dropped and released.
func (s *Server) dispatch(raw net.Conn) {
	if s.shutdown.Load() {
		s.stats.dropped.Add(1)
		_ = raw.Close()
		return
	}

	if s.opts.TLSConfig != nil {
		raw = tls.Server(raw, s.opts.TLSConfig)
	}
	conn := s.opts.NewConnection(raw)

	if conn.WaitForRequestBytes() == 0 {
		s.stats.badRequests.Add(1)
		logger.Debug("No request bytes received", "conn_id", conn.ID(), "remote_addr", conn.RemoteAddr())
		s.fail(conn, http.StatusBadRequest)
		return
	}

	host, err := s.getOrCreateHost(context.Background())
	if err != nil {
		if errors.Is(err, ErrShuttingDown) {
			s.stats.dropped.Add(1)
			_ = conn.Close()
			return
		}
		s.stats.hostErrors.Add(1)
		s.fail(conn, http.StatusInternalServerError)
		return
	}

	s.inflight.Store(conn.ID(), conn)
	s.stats.dispatched.Add(1)
	host.ProcessRequest(conn)
}

func (s *Server) fail(conn Connection, status int) {
	if err := conn.WriteErrorResponse(status); err != nil {
		logger.Debug("Error response not delivered", "conn_id", conn.ID(), "status", status, "error", err)
	}
	_ = conn.Close()
}
