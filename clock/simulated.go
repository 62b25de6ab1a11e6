package clock

import (
	"sync"
	"time"
)

// SimulatedSource is a TimingSource whose time only moves when Advance is
// called. Callbacks run synchronously inside Advance, in time order.
type SimulatedSource struct {
	mu       sync.Mutex
	now      time.Duration
	queue    *timerQueue
	probeErr error
}

// NewSimulatedSource creates a source at time zero.
func NewSimulatedSource() *SimulatedSource {
	return &SimulatedSource{queue: newTimerQueue()}
}

// Now implements TimingSource.
func (s *SimulatedSource) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// At implements TimingSource. Past deadlines fire on the next Advance.
func (s *SimulatedSource) At(at time.Duration, fn func()) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.add(at, fn)
}

// Stop implements TimingSource.
func (s *SimulatedSource) Stop(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.remove(id)
}

// Probe implements TimingSource.
func (s *SimulatedSource) Probe() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.probeErr
}

// FailProbe makes subsequent probes return err.
func (s *SimulatedSource) FailProbe(err error) {
	s.mu.Lock()
	s.probeErr = err
	s.mu.Unlock()
}

// Advance moves time forward by d, running every callback that falls due.
// Callbacks registered during Advance run too if they fall inside the window.
// It returns the number of callbacks run.
func (s *SimulatedSource) Advance(d time.Duration) int {
	s.mu.Lock()
	target := s.now + d
	s.mu.Unlock()
	return s.AdvanceTo(target)
}

// AdvanceTo moves time forward to t. Moving backwards is a no-op.
func (s *SimulatedSource) AdvanceTo(t time.Duration) int {
	fired := 0
	for {
		s.mu.Lock()
		e := s.queue.popDue(t)
		if e == nil {
			if t > s.now {
				s.now = t
			}
			s.mu.Unlock()
			return fired
		}
		if e.at > s.now {
			s.now = e.at
		}
		s.mu.Unlock()
		e.fn()
		fired++
	}
}

// Pending returns the number of registered callbacks.
func (s *SimulatedSource) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}
