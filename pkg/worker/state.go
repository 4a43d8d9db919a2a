package worker

import "sync/atomic"

// counter sits alone on its cache line so workers do not contend on
// neighbouring counters.
type counter struct {
	n atomic.Uint64
	_ [56]byte
}

// SharedState is the per-job state shared by the coordinator and its
// workers: the stop flag, one attempt counter per worker, and the claim on
// the single found result.
type SharedState struct {
	stop     atomic.Bool
	found    atomic.Bool
	counters []counter
}

// NewSharedState creates state for n workers
func NewSharedState(n int) *SharedState {
	return &SharedState{counters: make([]counter, n)}
}

// Stop raises the stop flag. Safe to call any number of times.
func (s *SharedState) Stop() {
	s.stop.Store(true)
}

// Stopped reports whether the stop flag is set.
func (s *SharedState) Stopped() bool {
	return s.stop.Load()
}

// ClaimFound returns true for exactly one caller per job.
func (s *SharedState) ClaimFound() bool {
	return s.found.CompareAndSwap(false, true)
}

// Found reports whether a prefix match was claimed.
func (s *SharedState) Found() bool {
	return s.found.Load()
}

// Workers returns the number of counters.
func (s *SharedState) Workers() int {
	return len(s.counters)
}

// Add increments worker id's counter by one.
func (s *SharedState) Add(id int) {
	s.counters[id].n.Add(1)
}

// Attempts returns worker id's counter.
func (s *SharedState) Attempts(id int) uint64 {
	return s.counters[id].n.Load()
}

// Total sums all counters. The result is a snapshot, not a consistent
// cut across workers.
func (s *SharedState) Total() uint64 {
	var total uint64
	for i := range s.counters {
		total += s.counters[i].n.Load()
	}
	return total
}

// Snapshot returns every worker's counter.
func (s *SharedState) Snapshot() []uint64 {
	out := make([]uint64, len(s.counters))
	for i := range s.counters {
		out[i] = s.counters[i].n.Load()
	}
	return out
}
