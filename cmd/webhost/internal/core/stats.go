package core

import "sync/atomic"

type stats struct {
	accepted          atomic.Int64
	acceptErrors      atomic.Int64
	dispatched        atomic.Int64
	dropped           atomic.Int64
	badRequests       atomic.Int64
	hostErrors        atomic.Int64
	hostsCreated      atomic.Int64
	hostsStopped      atomic.Int64
	requestsCompleted atomic.Int64
}

// StatsSnapshot is a point-in-time copy of the listener counters.
type StatsSnapshot struct {
	Accepted          int64 `json:"accepted"`
	AcceptErrors      int64 `json:"accept_errors"`
	Dispatched        int64 `json:"dispatched"`
	Dropped           int64 `json:"dropped"`
	BadRequests       int64 `json:"bad_requests"`
	HostErrors        int64 `json:"host_errors"`
	HostsCreated      int64 `json:"hosts_created"`
	HostsStopped      int64 `json:"hosts_stopped"`
	RequestsCompleted int64 `json:"requests_completed"`
	InFlight          int64 `json:"in_flight"`
}

func (s *stats) snapshot() StatsSnapshot {
	return StatsSnapshot{
		Accepted:          s.accepted.Load(),
		AcceptErrors:      s.acceptErrors.Load(),
		Dispatched:        s.dispatched.Load(),
		Dropped:           s.dropped.Load(),
		BadRequests:       s.badRequests.Load(),
		HostErrors:        s.hostErrors.Load(),
		HostsCreated:      s.hostsCreated.Load(),
		HostsStopped:      s.hostsStopped.Load(),
		RequestsCompleted: s.requestsCompleted.Load(),
	}
}
