// Package connection wraps accepted sockets with the request-byte buffering
// and error-response writing the listener needs before handing them to a host.
package connection

import (
	"bufio"
	"fmt"
	"html"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ServerName is advertised in the Server header of error responses.
var ServerName = "xwebhost"

const readBufferSize = 4096

// Options configures a Conn.
type Options struct {
	// WaitTimeout bounds WaitForRequestBytes. Zero means no bound.
	WaitTimeout time.Duration
}

// Conn is an accepted socket whose first request bytes may already be
// buffered. Reads drain the buffer before touching the socket.
type Conn struct {
	net.Conn

	id     string
	reader *bufio.Reader
	opts   Options

	closeOnce sync.Once
	closeErr  error
	closed    chan struct{}
}

// New wraps c.
func New(c net.Conn, opts Options) *Conn {
	return &Conn{
		Conn:   c,
		id:     uuid.NewString(),
		reader: bufio.NewReaderSize(c, readBufferSize),
		opts:   opts,
		closed: make(chan struct{}),
	}
}

// ID returns the connection's unique id.
func (c *Conn) ID() string {
	return c.id
}

// Read reads buffered request bytes first, then from the socket.
func (c *Conn) Read(p []byte) (int, error) {
	return c.reader.Read(p)
}

// WaitForRequestBytes blocks until at least one byte is buffered and
// returns how many are. A closed peer, a read error or the wait timeout
// all yield 0.
func (c *Conn) WaitForRequestBytes() int {
	if n := c.reader.Buffered(); n > 0 {
		return n
	}

	if c.opts.WaitTimeout > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.opts.WaitTimeout)); err != nil {
			return 0
		}
		defer func() { _ = c.Conn.SetReadDeadline(time.Time{}) }()
	}

	if _, err := c.reader.Peek(1); err != nil {
		return 0
	}
	return c.reader.Buffered()
}

// WriteErrorResponse writes a self-contained HTTP/1.1 error response.
// The connection is left open; callers close it.
func (c *Conn) WriteErrorResponse(statusCode int) error {
	_, err := c.Conn.Write(FormatErrorResponse(statusCode, time.Now()))
	return err
}

// Close releases the socket. Only the first call reaches it.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.Conn.Close()
		close(c.closed)
	})
	return c.closeErr
}

// Closed is closed once the connection has been released.
func (c *Conn) Closed() <-chan struct{} {
	return c.closed
}

// FormatErrorResponse renders the full response written for statusCode.
func FormatErrorResponse(statusCode int, now time.Time) []byte {
	reason := http.StatusText(statusCode)
	if reason == "" {
		reason = "Unknown Status"
	}

	body := fmt.Sprintf("<html><head><title>%d %s</title></head><body><h1>%d %s</h1><hr><p>%s</p></body></html>\r\n",
		statusCode, html.EscapeString(reason), statusCode, html.EscapeString(reason), html.EscapeString(ServerName))

	var b strings.Builder
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", statusCode, reason)
	fmt.Fprintf(&b, "Server: %s\r\n", ServerName)
	fmt.Fprintf(&b, "Date: %s\r\n", now.UTC().Format(http.TimeFormat))
	b.WriteString("Content-Type: text/html; charset=utf-8\r\n")
	fmt.Fprintf(&b, "Content-Length: %d\r\n", len(body))
	b.WriteString("Connection: close\r\n\r\n")
	b.WriteString(body)
	return []byte(b.String())
}
