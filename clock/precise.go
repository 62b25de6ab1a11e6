package clock

import "time"

// TimingSource is a host timing facility a PreciseClock can drive.
type TimingSource interface {
	// Now returns the source's monotonic time.
	Now() time.Duration
	// At registers fn to run at the given source time and returns an id.
	// fn must not be called while the source holds internal locks.
	At(at time.Duration, fn func()) uint64
	// Stop removes a pending registration and reports whether it was pending.
	Stop(id uint64) bool
	// Probe checks the source can deliver the precision it promises.
	Probe() error
}

// PreciseClock delegates to a TimingSource.
type PreciseClock struct {
	src TimingSource
	ids registry[uint64]
}

// NewPreciseClock wraps src. Callers normally go through Select so the
// source is probed first.
func NewPreciseClock(src TimingSource) *PreciseClock {
	return &PreciseClock{src: src, ids: newRegistry[uint64]()}
}

func (c *PreciseClock) sealed() {}

// Name implements Clock.
func (c *PreciseClock) Name() string { return "precise" }

// Now implements Clock.
func (c *PreciseClock) Now() time.Duration {
	return c.src.Now()
}

// ScheduleAt implements Clock.
func (c *PreciseClock) ScheduleAt(at time.Duration, fn func()) Handle {
	return c.ids.add(func(h Handle) uint64 {
		return c.src.At(at, func() {
			if c.ids.claim(h) {
				fn()
			}
		})
	})
}

// Cancel implements Clock.
func (c *PreciseClock) Cancel(h Handle) bool {
	id, ok := c.ids.take(h)
	if ok {
		c.src.Stop(id)
	}
	return ok
}

// CancelAll implements Clock.
func (c *PreciseClock) CancelAll() {
	for _, id := range c.ids.drain() {
		c.src.Stop(id)
	}
}
