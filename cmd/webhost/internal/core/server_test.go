package core

import (
	"context"
	"crypto/tls"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_NormalizesPaths(t *testing.T) {
	s, err := New(ListenerConfig{Port: 8080, VirtualPath: "app", PhysicalPath: "site"}, newFakeFactory(), Options{})
	require.NoError(t, err)

	cwd, err := os.Getwd()
	require.NoError(t, err)

	require.Equal(t, filepath.Join(cwd, "site")+string(os.PathSeparator), s.PhysicalPath())
	require.Equal(t, "/app", s.VirtualPath())
	require.Equal(t, 8080, s.Port())
	require.Equal(t, StateCreated, s.State())
}

func TestNew_KeepsTrailingSeparator(t *testing.T) {
	root := t.TempDir() + string(os.PathSeparator)
	s, err := New(ListenerConfig{VirtualPath: "/", PhysicalPath: root}, newFakeFactory(), Options{})
	require.NoError(t, err)
	require.Equal(t, root, s.PhysicalPath())
	require.False(t, strings.HasSuffix(s.PhysicalPath(), string(os.PathSeparator)+string(os.PathSeparator)))
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	_, err := New(ListenerConfig{Port: 70000, PhysicalPath: "."}, newFakeFactory(), Options{})
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(ListenerConfig{Port: 80}, newFakeFactory(), Options{})
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(ListenerConfig{Port: 80, PhysicalPath: "."}, nil, Options{})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRootURL(t *testing.T) {
	tests := []struct {
		name  string
		port  int
		addr  string
		vpath string
		tls   bool
		want  string
	}{
		{"default http port omitted", 80, "10.0.0.5", "/app", false, "http://10.0.0.5/app"},
		{"other port kept", 8080, "10.0.0.5", "/app", false, "http://10.0.0.5:8080/app"},
		{"root virtual path", 8080, "10.0.0.5", "/", false, "http://10.0.0.5:8080/"},
		{"ipv6 bracketed", 8080, "::1", "/app", false, "http://[::1]:8080/app"},
		{"ipv6 default port", 80, "::1", "/app", false, "http://[::1]/app"},
		{"https default port omitted", 443, "10.0.0.5", "/app", true, "https://10.0.0.5/app"},
		{"https port 80 kept", 80, "10.0.0.5", "/app", true, "https://10.0.0.5:80/app"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := Options{}
			if tt.tls {
				opts.TLSConfig = &tls.Config{}
			}
			s, err := New(ListenerConfig{Port: tt.port, HostAddress: tt.addr, VirtualPath: tt.vpath, PhysicalPath: t.TempDir()}, newFakeFactory(), opts)
			require.NoError(t, err)
			require.Equal(t, tt.want, s.RootURL())
		})
	}
}

func TestStart_ServesThroughHost(t *testing.T) {
	factory := newFakeFactory()
	s := startTestServer(t, factory, Options{})

	require.Equal(t, StateListening, s.State())
	require.NotZero(t, s.Port(), "ephemeral port should be reported")
	require.True(t, strings.HasPrefix(s.RootURL(), "http://127.0.0.1:"))

	resp := roundTrip(t, serverAddr(s), "GET /app/ HTTP/1.1\r\nHost: test\r\n\r\n")
	require.Equal(t, okResponse, resp)

	require.Equal(t, int32(1), factory.created.Load())
	require.Equal(t, s.AppID(), factory.lastApp.ID)
	require.Equal(t, "/app", factory.lastApp.VirtualPath)
	require.Equal(t, s.PhysicalPath(), factory.lastApp.PhysicalPath)

	require.Eventually(t, func() bool {
		return s.Stats().RequestsCompleted == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(0), s.Stats().InFlight)
}

func TestStart_Twice(t *testing.T) {
	s := startTestServer(t, newFakeFactory(), Options{})
	require.ErrorIs(t, s.Start(), ErrAlreadyStarted)
}

func TestStop_WaitsForHostAndClearsSlot(t *testing.T) {
	factory := newFakeFactory()
	s := newTestServer(t, factory, Options{})
	require.NoError(t, s.Start())
	addr := serverAddr(s)

	roundTrip(t, addr, "GET /app/ HTTP/1.1\r\nHost: test\r\n\r\n")
	require.NotNil(t, s.host.Load())

	factory.host(0).stopDelay = 100 * time.Millisecond

	start := time.Now()
	require.NoError(t, s.Stop(context.Background()))
	require.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond, "Stop must block until the host reports stopped")

	require.Nil(t, s.host.Load(), "host slot must be cleared after Stop")
	require.Equal(t, int32(1), factory.host(0).shutdownCalls.Load())
	require.Equal(t, StateStopped, s.State())
	require.Equal(t, int64(1), s.Stats().HostsStopped)

	_, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
	require.Error(t, err, "listening socket must be closed after Stop")
}

func TestStop_WithoutHost(t *testing.T) {
	s := newTestServer(t, newFakeFactory(), Options{})
	require.NoError(t, s.Start())

	require.NoError(t, s.Stop(context.Background()))
	require.Equal(t, StateStopped, s.State())
}

func TestStop_IsIdempotent(t *testing.T) {
	s := newTestServer(t, newFakeFactory(), Options{})
	require.NoError(t, s.Start())

	require.NoError(t, s.Stop(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
	require.Equal(t, StateStopped, s.State())
}

func TestStop_BeforeStart(t *testing.T) {
	s := newTestServer(t, newFakeFactory(), Options{})
	require.NoError(t, s.Stop(context.Background()))
	require.Equal(t, StateStopped, s.State())
	require.ErrorIs(t, s.Start(), ErrAlreadyStarted)
}

func TestStop_ContextEndsBeforeHostStops(t *testing.T) {
	factory := newFakeFactory()
	factory.stopOnShutdown = false
	s := newTestServer(t, factory, Options{})
	require.NoError(t, s.Start())

	roundTrip(t, serverAddr(s), "GET /app/ HTTP/1.1\r\nHost: test\r\n\r\n")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, s.Stop(ctx), context.DeadlineExceeded)
	require.Equal(t, StateShuttingDown, s.State())

	// A late notification still clears the slot.
	s.OnHostStopped(factory.host(0))
	require.Nil(t, s.host.Load())
	require.Equal(t, StateStopped, s.State())
}

func TestStop_RepeatCallWaitsForHost(t *testing.T) {
	factory := newFakeFactory()
	factory.stopOnShutdown = false
	s := newTestServer(t, factory, Options{})
	require.NoError(t, s.Start())

	roundTrip(t, serverAddr(s), "GET /app/ HTTP/1.1\r\nHost: test\r\n\r\n")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, s.Stop(ctx), context.DeadlineExceeded)

	// Still running: a second call with a short deadline times out too.
	ctx2, cancel2 := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel2()
	require.ErrorIs(t, s.Stop(ctx2), context.DeadlineExceeded)
	require.NotNil(t, s.host.Load())
	require.Equal(t, StateShuttingDown, s.State())

	go func() {
		time.Sleep(50 * time.Millisecond)
		s.OnHostStopped(factory.host(0))
	}()

	require.NoError(t, s.Stop(context.Background()))
	require.Nil(t, s.host.Load())
	require.Equal(t, StateStopped, s.State())
	require.NoError(t, s.Stop(context.Background()))
}

func TestMultipleListenersInOneProcess(t *testing.T) {
	f1, f2 := newFakeFactory(), newFakeFactory()
	s1 := startTestServer(t, f1, Options{})
	s2 := startTestServer(t, f2, Options{})
	require.NotEqual(t, s1.Port(), s2.Port())

	require.Equal(t, okResponse, roundTrip(t, serverAddr(s1), "GET / HTTP/1.1\r\n\r\n"))
	require.Equal(t, okResponse, roundTrip(t, serverAddr(s2), "GET / HTTP/1.1\r\n\r\n"))

	require.NoError(t, s1.Stop(context.Background()))
	require.Equal(t, StateListening, s2.State())
	require.Equal(t, okResponse, roundTrip(t, serverAddr(s2), "GET / HTTP/1.1\r\n\r\n"))
	require.Equal(t, int32(1), f2.created.Load())
}

func TestStateString(t *testing.T) {
	require.Equal(t, "created", StateCreated.String())
	require.Equal(t, "listening", StateListening.String())
	require.Equal(t, "shutting_down", StateShuttingDown.String())
	require.Equal(t, "stopped", StateStopped.String())
	require.Equal(t, "unknown", State(42).String())
}
