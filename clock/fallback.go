package clock

import "time"

// FallbackClock arms one runtime timer per callback. It is always available
// and typically fires within a few milliseconds.
type FallbackClock struct {
	start  time.Time
	timers registry[*time.Timer]
}

// NewFallbackClock creates a fallback clock whose time base starts now.
func NewFallbackClock() *FallbackClock {
	return &FallbackClock{
		start:  time.Now(),
		timers: newRegistry[*time.Timer](),
	}
}

func (c *FallbackClock) sealed() {}

// Name implements Clock.
func (c *FallbackClock) Name() string { return "fallback" }

// Now implements Clock.
func (c *FallbackClock) Now() time.Duration {
	return time.Since(c.start)
}

// ScheduleAt implements Clock.
func (c *FallbackClock) ScheduleAt(at time.Duration, fn func()) Handle {
	delay := max(at-c.Now(), 0)
	return c.timers.add(func(h Handle) *time.Timer {
		return time.AfterFunc(delay, func() {
			if c.timers.claim(h) {
				fn()
			}
		})
	})
}

// Cancel implements Clock.
func (c *FallbackClock) Cancel(h Handle) bool {
	t, ok := c.timers.take(h)
	if ok {
		t.Stop()
	}
	return ok
}

// CancelAll implements Clock.
func (c *FallbackClock) CancelAll() {
	for _, t := range c.timers.drain() {
		t.Stop()
	}
}

// Pending returns the number of armed timers.
func (c *FallbackClock) Pending() int {
	return c.timers.len()
}
