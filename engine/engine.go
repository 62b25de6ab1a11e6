// Package engine wires the clock, scheduler, transport and output into one
// performance engine.
package engine

import (
	"errors"
	"io"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"go-perform/clock"
	"go-perform/midi"
	"go-perform/notation"
	"go-perform/scheduler"
	"go-perform/timeline"
	"go-perform/transport"
)

// Options configures New.
type Options struct {
	// Sink receives output. Nil discards everything.
	Sink midi.Sink
	// Source is the precise timing source to probe. Nil uses the fallback
	// clock.
	Source clock.TimingSource
	// QueueSize is the output queue length. Zero or less uses
	// DefaultQueueSize.
	QueueSize   int
	SendTimeout time.Duration
	// Synchronous skips the output queue and calls Sink from the clock
	// goroutine. Only for sinks that never block, such as midi.Recorder.
	Synchronous bool
	Logger      *zap.Logger
	// Compiler options, e.g. notation.WithStrict.
	CompilerOptions []notation.Option
}

// Status is a snapshot of the whole engine.
type Status struct {
	Transport transport.Status
	Clock     string
	Scheduler scheduler.Stats
	Output    Metrics
	Sessions  []SessionRecord
}

// Engine is the single entry point for playing notation.
type Engine struct {
	logger    *zap.Logger
	clock     clock.Clock
	sched     *scheduler.Scheduler
	transport *transport.Transport
	events    *EventManager
	compiler  *notation.Compiler
	closers   []io.Closer
}

// New builds an engine. The clock is selected once here.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sink := opts.Sink
	if sink == nil {
		sink = midi.NewLogSink(zap.NewNop())
	}

	clk := clock.Select(opts.Source, logger.Named("clock"))
	var events *EventManager
	if opts.Synchronous {
		events = NewSyncEventManager(sink, logger.Named("events"))
	} else {
		events = NewEventManager(sink, opts.QueueSize, opts.SendTimeout, logger.Named("events"))
	}
	sched := scheduler.New(clk,
		scheduler.WithListener(events),
		scheduler.WithLogger(logger.Named("scheduler")))
	tr := transport.New(clk, sched, events, logger.Named("transport"))

	compilerOpts := append([]notation.Option{notation.WithLogger(logger.Named("notation"))}, opts.CompilerOptions...)

	e := &Engine{
		logger:    logger,
		clock:     clk,
		sched:     sched,
		transport: tr,
		events:    events,
		compiler:  notation.NewCompiler(compilerOpts...),
	}
	if c, ok := opts.Source.(io.Closer); ok {
		if _, precise := clk.(*clock.PreciseClock); precise {
			e.closers = append(e.closers, c)
		} else {
			// probe failed, the source is unused
			_ = c.Close()
		}
	}
	if c, ok := sink.(io.Closer); ok {
		e.closers = append(e.closers, c)
	}
	return e
}

// Play starts or resumes the transport.
func (e *Engine) Play() error { return e.transport.Play() }

// Pause pauses the transport.
func (e *Engine) Pause() error { return e.transport.Pause() }

// Stop cancels everything and silences the output.
func (e *Engine) Stop() error { return e.transport.Stop() }

// SetBPM sets the transport tempo for sessions scheduled from now on.
func (e *Engine) SetBPM(bpm float64) error { return e.transport.SetBPM(bpm) }

// BPM returns the transport tempo.
func (e *Engine) BPM() float64 { return e.transport.BPM() }

// Compiler returns the engine's notation compiler.
func (e *Engine) Compiler() *notation.Compiler { return e.compiler }

// Events returns the event manager.
func (e *Engine) Events() *EventManager { return e.events }

// Schedule compiles a single voice on channel 1 and schedules it. A zero
// d.BPM means the transport tempo.
func (e *Engine) Schedule(src string, d notation.Defaults) (string, notation.Diagnostics, error) {
	return e.ScheduleVoices([]notation.VoiceSpec{{Channel: 1, Notation: src}}, d)
}

// ScheduleVoices compiles several voices into one session and schedules it.
func (e *Engine) ScheduleVoices(specs []notation.VoiceSpec, d notation.Defaults) (string, notation.Diagnostics, error) {
	if d.BPM == 0 {
		d.BPM = e.transport.BPM()
	}
	sess, diags, err := e.compiler.CompileVoices(specs, d)
	if err != nil {
		return "", diags, err
	}
	id, err := e.ScheduleSession(sess)
	return id, diags, err
}

// ScheduleSession schedules a compiled session. A session compiled at a
// different tempo is rescaled to the transport tempo first.
func (e *Engine) ScheduleSession(sess *timeline.Session) (string, error) {
	if sess == nil {
		return "", scheduler.ErrInvalidSession
	}
	if bpm := e.transport.BPM(); sess.BPM != bpm && sess.BPM > 0 {
		e.logger.Info("rescaling session to transport tempo",
			zap.String("label", sess.Label),
			zap.Float64("from", sess.BPM),
			zap.Float64("to", bpm))
		sess = sess.Rescale(bpm)
	}
	return e.sched.Schedule(sess)
}

// Cancel cancels one session. An unknown id returns
// scheduler.ErrUnknownSession and changes nothing.
func (e *Engine) Cancel(id string) error {
	err := e.sched.Cancel(id)
	if errors.Is(err, scheduler.ErrUnknownSession) {
		e.logger.Debug("cancel of unknown session", zap.String("session", id))
	}
	return err
}

// Panic sends all-notes-off on every channel without touching the
// transport.
func (e *Engine) Panic() {
	e.logger.Info("panic: all notes off")
	e.events.Silence()
}

// Clear cancels every session, silences the output and resets the
// transport to stopped.
func (e *Engine) Clear() {
	e.transport.Reset()
	e.sched.ResetLatency()
}

// Status returns a snapshot of the engine.
func (e *Engine) Status() Status {
	return Status{
		Transport: e.transport.Status(),
		Clock:     e.clock.Name(),
		Scheduler: e.sched.Stats(),
		Output:    e.events.Metrics(),
		Sessions:  e.events.Sessions(),
	}
}

// Close stops playback, drains the output queue and closes the sink and
// timing source.
func (e *Engine) Close() error {
	e.transport.Reset()
	err := e.events.Close()
	for _, c := range e.closers {
		err = multierr.Append(err, c.Close())
	}
	return err
}
