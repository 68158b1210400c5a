package relay

import (
	"sort"
	"sync"
	"time"
)

// PortStats is the feedback history of one input port.
type PortStats struct {
	Port      uint32    `json:"port"`
	Count     int       `json:"count"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`

	// LastLapTime is the time between the last two counted events.
	LastLapTime time.Duration `json:"last_lap_time_ns,omitempty"`
}

// Statistics counts feedback events per port.
//
// With a non-zero filter interval an event arriving sooner than the
// interval after the previous counted event on the same port is ignored.
type Statistics struct {
	mu     sync.RWMutex
	ports  map[uint32]*PortStats
	filter time.Duration
}

// NewStatistics returns empty statistics.
func NewStatistics(filter time.Duration) *Statistics {
	return &Statistics{
		ports:  make(map[uint32]*PortStats),
		filter: filter,
	}
}

// Record counts an event on port at time at. It reports whether the event
// was counted.
func (s *Statistics) Record(port uint32, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ps, ok := s.ports[port]
	if !ok {
		s.ports[port] = &PortStats{Port: port, Count: 1, FirstSeen: at, LastSeen: at}
		return true
	}
	since := at.Sub(ps.LastSeen)
	if s.filter > 0 && since < s.filter {
		return false
	}
	ps.Count++
	ps.LastLapTime = since
	ps.LastSeen = at
	return true
}

// Port returns the statistics of one port.
func (s *Statistics) Port(port uint32) (PortStats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ps, ok := s.ports[port]
	if !ok {
		return PortStats{}, false
	}
	return *ps, true
}

// All returns the statistics of every port seen, sorted by port.
func (s *Statistics) All() []PortStats {
	s.mu.RLock()
	out := make([]PortStats, 0, len(s.ports))
	for _, ps := range s.ports {
		out = append(out, *ps)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Port < out[j].Port })
	return out
}

// Reset clears every port.
func (s *Statistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ports = make(map[uint32]*PortStats)
}

// ResetPort clears one port. It reports whether the port had statistics.
func (s *Statistics) ResetPort(port uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ports[port]; !ok {
		return false
	}
	delete(s.ports, port)
	return true
}
