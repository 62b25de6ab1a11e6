package clock

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"
)

// DefaultSpinWindow is how far ahead of a deadline SpinSource stops sleeping
// and starts polling.
const DefaultSpinWindow = time.Millisecond

// probeTolerance is the lateness a probe callback may show and still pass.
const probeTolerance = 2 * time.Millisecond

// SpinSource is a TimingSource backed by one goroutine locked to an OS
// thread. It sleeps until the spin window before the next deadline, then
// polls so callbacks fire well under a millisecond late.
type SpinSource struct {
	window time.Duration
	start  time.Time

	mu      sync.Mutex
	queue   *timerQueue
	running bool

	wake chan struct{}
	done chan struct{}
	once sync.Once
}

// NewSpinSource creates a spin source. The loop starts on the first Probe or
// At call. A window <= 0 uses DefaultSpinWindow.
func NewSpinSource(window time.Duration) *SpinSource {
	if window <= 0 {
		window = DefaultSpinWindow
	}
	return &SpinSource{
		window: window,
		start:  time.Now(),
		queue:  newTimerQueue(),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Now implements TimingSource.
func (s *SpinSource) Now() time.Duration {
	return time.Since(s.start)
}

// At implements TimingSource.
func (s *SpinSource) At(at time.Duration, fn func()) uint64 {
	s.mu.Lock()
	s.ensureRunning()
	id := s.queue.add(at, fn)
	s.mu.Unlock()
	s.signal()
	return id
}

// Stop implements TimingSource.
func (s *SpinSource) Stop(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.remove(id)
}

// Probe starts the loop and times one callback against the spin window.
func (s *SpinSource) Probe() error {
	if runtime.NumCPU() < 2 {
		return errors.New("spin source needs at least two CPUs")
	}
	select {
	case <-s.done:
		return errors.New("spin source closed")
	default:
	}

	const lead = 2 * time.Millisecond
	fired := make(chan time.Duration, 1)
	want := s.Now() + lead
	s.At(want, func() { fired <- s.Now() })

	select {
	case got := <-fired:
		if late := got - want; late > probeTolerance {
			return fmt.Errorf("probe callback %v late", late)
		}
		return nil
	case <-time.After(100 * time.Millisecond):
		return errors.New("probe callback never fired")
	}
}

// Close stops the loop. Pending callbacks are dropped.
func (s *SpinSource) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

// ensureRunning starts the loop; s.mu must be held.
func (s *SpinSource) ensureRunning() {
	if s.running {
		return
	}
	s.running = true
	go s.loop()
}

func (s *SpinSource) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *SpinSource) loop() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for {
		select {
		case <-s.done:
			return
		default:
		}

		s.mu.Lock()
		now := s.Now()
		if e := s.queue.popDue(now); e != nil {
			s.mu.Unlock()
			e.fn()
			continue
		}
		next := s.queue.peek()
		var wait time.Duration
		if next != nil {
			wait = next.at - now
		}
		s.mu.Unlock()

		switch {
		case next == nil:
			select {
			case <-s.wake:
			case <-s.done:
				return
			}
		case wait > s.window:
			timer := time.NewTimer(wait - s.window)
			select {
			case <-timer.C:
			case <-s.wake:
				timer.Stop()
			case <-s.done:
				timer.Stop()
				return
			}
		default:
			// inside the window: poll
		}
	}
}
