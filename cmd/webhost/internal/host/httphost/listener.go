package httphost

import (
	"net"
	"sync"
)

// connListener is a net.Listener fed by ProcessRequest instead of a socket.
type connListener struct {
	addr  net.Addr
	conns chan net.Conn
	done  chan struct{}
	once  sync.Once
}

func newConnListener(addr net.Addr) *connListener {
	return &connListener{
		addr:  addr,
		conns: make(chan net.Conn),
		done:  make(chan struct{}),
	}
}

func (l *connListener) Accept() (net.Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

func (l *connListener) Close() error {
	l.once.Do(func() { close(l.done) })
	return nil
}

func (l *connListener) Addr() net.Addr {
	return l.addr
}

// deliver hands c to the server. It reports false once the listener is closed.
func (l *connListener) deliver(c net.Conn) bool {
	select {
	case <-l.done:
		return false
	default:
	}

	select {
	case l.conns <- c:
		return true
	case <-l.done:
		return false
	}
}

type hostAddr string

func (a hostAddr) Network() string { return "xwebhost" }
func (a hostAddr) String() string  { return string(a) }
