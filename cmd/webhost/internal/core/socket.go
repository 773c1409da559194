package core

import (
	"net"
	"strconv"
)

// ListenFunc has the shape of net.Listen.
type ListenFunc func(network, address string) (net.Listener, error)

// bindAndListen binds the resolved address over IPv4 and, if that fails
// for any reason, IPv6 loopback on the same port.
func bindAndListen(listen ListenFunc, addr net.IP, port int) (net.Listener, error) {
	p := strconv.Itoa(port)

	ln, primaryErr := listen("tcp4", net.JoinHostPort(addr.String(), p))
	if primaryErr == nil {
		return ln, nil
	}

	ln, fallbackErr := listen("tcp6", net.JoinHostPort(net.IPv6loopback.String(), p))
	if fallbackErr == nil {
		return ln, nil
	}

	return nil, &BindError{
		Port:     port,
		Address:  addr.String(),
		Primary:  primaryErr,
		Fallback: fallbackErr,
	}
}

// boundPort reports the port a listener actually holds, which differs from
// the configured one when port 0 was requested.
func boundPort(ln net.Listener, fallback int) int {
	if tcp, ok := ln.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	return fallback
}
