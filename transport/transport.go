// Package transport holds the play state, tempo and position of a
// performance and drives the scheduler accordingly.
package transport

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"go-perform/clock"
	"go-perform/timing"
)

// State is the transport state.
type State int

const (
	Stopped State = iota
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// DefaultBPM is the tempo a new transport starts at.
const DefaultBPM = 120.0

// TempoError is returned for a BPM outside the supported range. The
// transport is left unchanged.
type TempoError struct {
	BPM float64
}

func (e *TempoError) Error() string {
	return fmt.Sprintf("transport: bpm %v outside %v-%v", e.BPM, timing.MinBPM, timing.MaxBPM)
}

// StateError is returned for a transition the current state does not allow.
type StateError struct {
	Op   string
	From State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("transport: cannot %s while %s", e.Op, e.From)
}

// Scheduler is the part of the scheduler the transport drives.
type Scheduler interface {
	Suspend()
	Resume()
	FlushImmediate() int
	CancelAll() int
}

// Silencer stops every sounding note on every channel.
type Silencer interface {
	Silence()
}

// Status is a snapshot of the transport.
type Status struct {
	State    State
	BPM      float64
	Position time.Duration
}

// Beats returns the position in beats at the current tempo.
func (s Status) Beats() float64 {
	return timing.SecondsToBeats(s.Position.Seconds(), s.BPM)
}

// Transport is the state machine
//
//	stopped --Play--> playing --Pause--> paused --Play--> playing
//	playing, paused --Stop--> stopped
//
// It is created explicitly and owned by whoever wires the engine.
type Transport struct {
	clock    clock.Clock
	sched    Scheduler
	silencer Silencer
	logger   *zap.Logger

	mu        sync.Mutex
	state     State
	bpm       float64
	position  time.Duration // accumulated before the current play span
	startedAt time.Duration // clock time of the current play span
}

// New creates a stopped transport at DefaultBPM. The scheduler is suspended
// so sessions scheduled before Play wait for it.
func New(clk clock.Clock, sched Scheduler, silencer Silencer, logger *zap.Logger) *Transport {
	if logger == nil {
		logger = zap.NewNop()
	}
	sched.Suspend()
	return &Transport{
		clock:    clk,
		sched:    sched,
		silencer: silencer,
		logger:   logger,
		state:    Stopped,
		bpm:      DefaultBPM,
	}
}

// Play starts from stopped or resumes from paused, then flushes events
// waiting in the scheduler's immediate queue.
func (t *Transport) Play() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.state {
	case Stopped:
		t.position = 0
	case Paused:
	default:
		return &StateError{Op: "play", From: t.state}
	}
	from := t.state
	t.state = Playing
	t.startedAt = t.clock.Now()
	t.sched.Resume()
	flushed := t.sched.FlushImmediate()
	t.logger.Info("transport playing",
		zap.Stringer("from", from),
		zap.Float64("bpm", t.bpm),
		zap.Int("flushed", flushed))
	return nil
}

// Pause parks pending events and silences sounding notes.
func (t *Transport) Pause() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Playing {
		return &StateError{Op: "pause", From: t.state}
	}
	t.position += t.clock.Now() - t.startedAt
	t.state = Paused
	t.sched.Suspend()
	t.silence()
	t.logger.Info("transport paused", zap.Duration("position", t.position))
	return nil
}

// Stop cancels everything scheduled and sends all-notes-off.
func (t *Transport) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == Stopped {
		return &StateError{Op: "stop", From: t.state}
	}
	t.stopLocked()
	t.logger.Info("transport stopped")
	return nil
}

// Reset stops from any state. The tempo is kept.
func (t *Transport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	t.logger.Debug("transport reset")
}

func (t *Transport) stopLocked() {
	t.sched.Suspend()
	n := t.sched.CancelAll()
	t.silence()
	t.state = Stopped
	t.position = 0
	t.logger.Debug("cancelled sessions", zap.Int("sessions", n))
}

func (t *Transport) silence() {
	if t.silencer != nil {
		t.silencer.Silence()
	}
}

// SetBPM changes the tempo used for future conversions. Events already
// scheduled keep their times.
func (t *Transport) SetBPM(bpm float64) error {
	if !timing.ValidBPM(bpm) {
		return &TempoError{BPM: bpm}
	}
	t.mu.Lock()
	old := t.bpm
	t.bpm = bpm
	t.mu.Unlock()
	if old != bpm {
		t.logger.Info("tempo changed", zap.Float64("from", old), zap.Float64("to", bpm))
	}
	return nil
}

// BPM returns the current tempo.
func (t *Transport) BPM() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bpm
}

// State returns the current state.
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Position returns the time spent playing since the last start.
func (t *Transport) Position() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.positionLocked()
}

func (t *Transport) positionLocked() time.Duration {
	if t.state == Playing {
		return t.position + t.clock.Now() - t.startedAt
	}
	return t.position
}

// Status returns a consistent snapshot.
func (t *Transport) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Status{State: t.state, BPM: t.bpm, Position: t.positionLocked()}
}
