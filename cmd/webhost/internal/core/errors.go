package core

import (
	"errors"
	"fmt"
)

var (
	// ErrShuttingDown is returned when work arrives after Stop was called.
	ErrShuttingDown = errors.New("listener is shutting down")

	// ErrAlreadyStarted is returned by Start on anything but a fresh listener.
	ErrAlreadyStarted = errors.New("listener already started")

	// ErrInvalidConfig wraps configuration problems found by New.
	ErrInvalidConfig = errors.New("invalid listener config")

	// ErrCertificateNotFound is returned by a TLSProvider that holds no
	// certificate yet.
	ErrCertificateNotFound = errors.New("certificate not found")
)

// BindError reports that neither the primary nor the fallback address
// could be bound. It is fatal for Start.
type BindError struct {
	Port     int
	Address  string
	Primary  error
	Fallback error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("failed to bind port %d on %s (primary: %v, fallback: %v)",
		e.Port, e.Address, e.Primary, e.Fallback)
}

func (e *BindError) Unwrap() []error {
	return []error{e.Primary, e.Fallback}
}

// HostUnavailableError reports that the host factory failed. The request
// that triggered creation is answered with a 500; the next request tries again.
type HostUnavailableError struct {
	AppID string
	Err   error
}

func (e *HostUnavailableError) Error() string {
	return fmt.Sprintf("host %s unavailable: %v", e.AppID, e.Err)
}

func (e *HostUnavailableError) Unwrap() error {
	return e.Err
}
