package core

import (
	"context"
	"crypto/tls"
	"net"
)

// Connection is one accepted socket plus the bytes already read from it.
// Reads on the embedded net.Conn replay any bytes buffered while waiting
// for the request to arrive.
type Connection interface {
	net.Conn

	// ID identifies the connection in logs and traces.
	ID() string

	// WaitForRequestBytes blocks until at least one byte of the request is
	// buffered. It returns the number of buffered bytes, or 0 if the peer
	// closed the connection (or the wait timed out) before sending anything.
	WaitForRequestBytes() int

	// WriteErrorResponse writes a complete HTTP error response with the
	// given status code. It does not close the connection.
	WriteErrorResponse(statusCode int) error
}

// Host is the isolated unit that parses and answers one application's
// requests. The listener never looks inside it.
type Host interface {
	// ProcessRequest takes ownership of conn. The host writes the response,
	// releases the connection and reports HostEvents.OnRequestEnd.
	ProcessRequest(conn Connection)

	// Shutdown asks the host to unload. It returns immediately; the host
	// reports HostEvents.OnHostStopped once it is fully torn down.
	Shutdown()
}

// HostEvents is the callback surface a listener exposes to its host.
type HostEvents interface {
	OnRequestEnd(conn Connection)
	OnHostStopped(h Host)
}

// AppConfig describes the application a host is created for.
type AppConfig struct {
	ID           string
	Port         int
	VirtualPath  string
	PhysicalPath string
}

// HostFactory creates hosts. Any isolation strategy (in-process handler,
// subprocess, sandboxed worker) can sit behind it.
type HostFactory interface {
	CreateHost(ctx context.Context, app AppConfig, events HostEvents) (Host, error)
}

// TLSProvider defines how to retrieve the server certificate.
// It abstracts away the storage mechanism (K8s Secret, File, Memory).
type TLSProvider interface {
	GetCertificate(ctx context.Context) (*tls.Certificate, error)
	Store(ctx context.Context, certPEM, keyPEM []byte) error
}

// AddressLookup yields the address the listener should advertise and bind,
// e.g. a static value from configuration or the pod IP in Kubernetes.
type AddressLookup interface {
	LookupAddress(ctx context.Context) (string, error)
}
