package memory

import (
	"context"
	"net"
	"strings"

	"github.com/hasirciogluhq/xwebhost/cmd/webhost/internal/logger"
)

// StaticAddress is an AddressLookup backed by a configured value. An empty
// value yields "" so the listener falls back to interface discovery.
type StaticAddress struct {
	addr string
}

// NewStaticAddress trims addr. A value that is not an IP address is dropped
// with a warning, leaving the listener to discover an interface address.
func NewStaticAddress(addr string) *StaticAddress {
	addr = strings.TrimSpace(addr)
	if addr != "" && net.ParseIP(addr) == nil {
		logger.Warn("Ignoring host address that is not an IP", "address", addr)
		addr = ""
	}
	return &StaticAddress{addr: addr}
}

// LookupAddress returns the configured address, or "" when none is usable.
func (s *StaticAddress) LookupAddress(ctx context.Context) (string, error) {
	return s.addr, nil
}
