package core

import (
	"net"
	"strings"
)

// interfaceAddrs is swapped out in tests.
var interfaceAddrs = net.InterfaceAddrs

// ResolveAddress picks the address to bind and advertise. An explicit,
// parseable address wins; otherwise the first IPv4 interface address is used,
// preferring non-loopback ones; otherwise IPv4 loopback. It never fails.
func ResolveAddress(explicit string) net.IP {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		if ip := net.ParseIP(explicit); ip != nil {
			return ip
		}
	}

	addrs, err := interfaceAddrs()
	if err != nil {
		return net.IPv4(127, 0, 0, 1).To4()
	}

	var loopback net.IP
	for _, addr := range addrs {
		var ip net.IP
		switch v := addr.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		ip4 := ip.To4()
		if ip4 == nil {
			continue
		}
		if ip4.IsLoopback() {
			if loopback == nil {
				loopback = ip4
			}
			continue
		}
		return ip4
	}

	if loopback != nil {
		return loopback
	}
	return net.IPv4(127, 0, 0, 1).To4()
}
