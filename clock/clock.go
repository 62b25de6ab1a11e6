// Package clock provides the timer backends the scheduler runs on.
//
// There are exactly two implementations of Clock: PreciseClock, which drives
// a TimingSource that passed its startup probe, and FallbackClock, which uses
// one runtime timer per callback. Select picks one at startup and the choice
// holds for the life of the process.
package clock

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrUnavailable is reported when the precise timing source fails its probe.
var ErrUnavailable = errors.New("clock: precise timing unavailable")

// Handle identifies one scheduled callback. The zero Handle is never issued.
type Handle uint64

// Clock schedules callbacks against a monotonic time base that starts at zero
// when the clock is created.
type Clock interface {
	// Now returns the time elapsed on this clock.
	Now() time.Duration
	// ScheduleAt runs fn once Now reaches at. Times in the past fire as soon
	// as possible.
	ScheduleAt(at time.Duration, fn func()) Handle
	// Cancel prevents fn from running if it has not started. It reports
	// whether a pending callback was removed.
	Cancel(h Handle) bool
	// CancelAll cancels every pending callback.
	CancelAll()
	// Name identifies the backend in logs and status output.
	Name() string

	sealed()
}

// Select probes src once. If the probe passes the returned clock is a
// PreciseClock over src, otherwise the failure is logged and a FallbackClock
// is returned. A nil src selects the fallback.
func Select(src TimingSource, logger *zap.Logger) Clock {
	if logger == nil {
		logger = zap.NewNop()
	}
	if src == nil {
		logger.Info("no precise timing source, using fallback clock")
		return NewFallbackClock()
	}
	if err := src.Probe(); err != nil {
		logger.Warn("precise clock probe failed, using fallback clock",
			zap.Error(fmt.Errorf("%w: %v", ErrUnavailable, err)))
		return NewFallbackClock()
	}
	logger.Info("precise clock selected")
	return NewPreciseClock(src)
}

// registry tracks the callbacks a clock still owes. A callback only runs if
// it can claim its handle, so a cancel that wins the race always suppresses it.
type registry[T any] struct {
	mu      sync.Mutex
	next    Handle
	pending map[Handle]T
}

func newRegistry[T any]() registry[T] {
	return registry[T]{pending: make(map[Handle]T)}
}

// add reserves a handle and stores the backend token returned by arm. arm runs
// under the registry lock, so a callback firing immediately still finds its
// handle.
func (r *registry[T]) add(arm func(h Handle) T) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	h := r.next
	r.pending[h] = arm(h)
	return h
}

// claim removes h and reports whether it was still pending.
func (r *registry[T]) claim(h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pending[h]; !ok {
		return false
	}
	delete(r.pending, h)
	return true
}

// take removes h and returns its token.
func (r *registry[T]) take(h Handle) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tok, ok := r.pending[h]
	if ok {
		delete(r.pending, h)
	}
	return tok, ok
}

// drain removes and returns every pending token.
func (r *registry[T]) drain() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]T, 0, len(r.pending))
	for h, tok := range r.pending {
		out = append(out, tok)
		delete(r.pending, h)
	}
	return out
}

func (r *registry[T]) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
