package leafstream

import (
	"sync"
	"time"
)

// Stats summarizes what a session actually moved over the wire: acknowledged
// leaves, their bytes, and the time they took on the network. Re-sends and
// rejected transfers are not counted. Values only grow; a renegotiated
// session keeps counting into the same Stats.
type Stats struct {
	mu           sync.Mutex
	leaves       int
	bytes        int64
	transferTime time.Duration
}

// NewStats creates a new Stats instance.
func NewStats() *Stats {
	return &Stats{}
}

// Record adds one acknowledged leaf transfer of the given size and duration.
func (s *Stats) Record(bytes int64, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaves++
	s.bytes += bytes
	s.transferTime += d
}

// UploadedLeaves returns the number of acknowledged leaf transfers.
func (s *Stats) UploadedLeaves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leaves
}

// UploadedBytes returns the number of bytes the server acknowledged.
func (s *Stats) UploadedBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytes
}

// AverageLeafTime returns the average duration of an acknowledged transfer.
func (s *Stats) AverageLeafTime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.leaves == 0 {
		return 0
	}
	return s.transferTime / time.Duration(s.leaves)
}

// Throughput returns the observed upload rate in bytes per second, counting
// only time spent on acknowledged transfers.
func (s *Stats) Throughput() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transferTime == 0 {
		return 0
	}
	return float64(s.bytes) / s.transferTime.Seconds()
}
