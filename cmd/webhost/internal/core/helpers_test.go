package core

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const okResponse = "HTTP/1.1 200 OK\r\nContent-Length: 2\r\nConnection: close\r\n\r\nok"

// fakeHost answers every connection with okResponse.
type fakeHost struct {
	events HostEvents

	// stopOnShutdown makes Shutdown report OnHostStopped after stopDelay.
	stopOnShutdown bool
	stopDelay      time.Duration

	processed     atomic.Int32
	shutdownCalls atomic.Int32
}

func (h *fakeHost) ProcessRequest(conn Connection) {
	h.processed.Add(1)
	go func() {
		buf := make([]byte, 1024)
		_, _ = conn.Read(buf)
		_, _ = conn.Write([]byte(okResponse))
		_ = conn.Close()
		h.events.OnRequestEnd(conn)
	}()
}

func (h *fakeHost) Shutdown() {
	h.shutdownCalls.Add(1)
	if h.stopOnShutdown {
		go func() {
			time.Sleep(h.stopDelay)
			h.events.OnHostStopped(h)
		}()
	}
}

// fakeFactory counts creations and can fail or stall them.
type fakeFactory struct {
	mu       sync.Mutex
	hosts    []*fakeHost
	created  atomic.Int32
	failures atomic.Int32
	delay    time.Duration

	stopOnShutdown bool
	lastApp        AppConfig
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{stopOnShutdown: true}
}

func (f *fakeFactory) CreateHost(ctx context.Context, app AppConfig, events HostEvents) (Host, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.failures.Load() > 0 {
		f.failures.Add(-1)
		return nil, errors.New("application failed to load")
	}

	h := &fakeHost{events: events, stopOnShutdown: f.stopOnShutdown, stopDelay: 20 * time.Millisecond}
	f.mu.Lock()
	f.hosts = append(f.hosts, h)
	f.lastApp = app
	f.mu.Unlock()
	f.created.Add(1)
	return h, nil
}

func (f *fakeFactory) host(i int) *fakeHost {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hosts[i]
}

func newTestServer(t *testing.T, factory HostFactory, opts Options) *Server {
	t.Helper()
	s, err := New(ListenerConfig{
		Port:         0,
		HostAddress:  "127.0.0.1",
		VirtualPath:  "/app",
		PhysicalPath: t.TempDir(),
	}, factory, opts)
	require.NoError(t, err)
	return s
}

func startTestServer(t *testing.T, factory HostFactory, opts Options) *Server {
	t.Helper()
	s := newTestServer(t, factory, opts)
	require.NoError(t, s.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s
}

func serverAddr(s *Server) string {
	return net.JoinHostPort(s.Address().String(), strconv.Itoa(s.Port()))
}

// roundTrip sends a request and returns everything the server wrote before
// closing the connection.
func roundTrip(t *testing.T, addr, request string) string {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
	if request != "" {
		_, err = conn.Write([]byte(request))
		require.NoError(t, err)
	} else {
		require.NoError(t, conn.(*net.TCPConn).CloseWrite())
	}

	data, err := io.ReadAll(conn)
	require.NoError(t, err)
	return string(data)
}

// flakyListener fails the first n Accept calls.
type flakyListener struct {
	net.Listener
	remaining atomic.Int32
}

func (l *flakyListener) Accept() (net.Conn, error) {
	if l.remaining.Load() > 0 {
		l.remaining.Add(-1)
		return nil, errors.New("accept: too many open files")
	}
	return l.Listener.Accept()
}
