package engine

import (
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"go-perform/midi"
	"go-perform/scheduler"
)

const (
	// DefaultQueueSize is the output queue length used when none is given.
	DefaultQueueSize = 256
	// DefaultSendTimeout is how long a dispatch waits for room in a full
	// output queue before the message is dropped.
	DefaultSendTimeout = 2 * time.Millisecond
)

// SessionRecord is the registry entry for a live session.
type SessionRecord struct {
	ID           string
	Label        string
	Channels     []int
	Events       int
	Callbacks    int
	Dispatched   int
	RegisteredAt time.Time
}

// Metrics are the EventManager counters.
type Metrics struct {
	Sent       uint64
	Dropped    uint64
	Failed     uint64
	Completed  uint64
	Cancelled  uint64
	QueueDepth int
	QueueCap   int // zero when sending synchronously
}

// outMsg is one sink call waiting for the output worker.
type outMsg func(midi.Sink) error

// EventManager keeps the session registry and moves scheduler dispatches to
// the sink. Sink I/O runs on one worker goroutine so a slow port never holds
// up the clock. A synchronous manager calls the sink directly instead.
type EventManager struct {
	sink        midi.Sink
	logger      *zap.Logger
	dropWarn    *rate.Limiter
	sendTimeout time.Duration

	queue  chan outMsg
	done   chan struct{}
	closed atomic.Bool
	wg     sync.WaitGroup
	once   sync.Once

	mu        sync.Mutex
	sessions  map[string]*SessionRecord
	completed uint64
	cancelled uint64

	sent    atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64

	// Notify TUI of updates
	UpdateChan chan struct{}
}

// NewEventManager creates a manager sending to sink through a queue of
// queueSize messages. queueSize <= 0 uses DefaultQueueSize.
func NewEventManager(sink midi.Sink, queueSize int, sendTimeout time.Duration, logger *zap.Logger) *EventManager {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	m := newEventManager(sink, sendTimeout, logger)
	m.queue = make(chan outMsg, queueSize)
	m.wg.Add(1)
	go m.outputLoop()
	return m
}

// NewSyncEventManager creates a manager that calls the sink on the
// dispatching goroutine, with the scheduler lock held. The sink must never
// block. Tests use it for deterministic output.
func NewSyncEventManager(sink midi.Sink, logger *zap.Logger) *EventManager {
	return newEventManager(sink, 0, logger)
}

func newEventManager(sink midi.Sink, sendTimeout time.Duration, logger *zap.Logger) *EventManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sendTimeout <= 0 {
		sendTimeout = DefaultSendTimeout
	}
	return &EventManager{
		sink:        sink,
		logger:      logger,
		dropWarn:    rate.NewLimiter(rate.Every(time.Second), 1),
		sendTimeout: sendTimeout,
		done:        make(chan struct{}),
		sessions:    make(map[string]*SessionRecord),
		UpdateChan:  make(chan struct{}, 1),
	}
}

// outputLoop drains the queue into the sink.
func (m *EventManager) outputLoop() {
	defer m.wg.Done()
	for {
		select {
		case msg := <-m.queue:
			m.send(msg)
		case <-m.done:
			for {
				select {
				case msg := <-m.queue:
					m.send(msg)
				default:
					return
				}
			}
		}
	}
}

func (m *EventManager) send(msg outMsg) {
	if err := msg(m.sink); err != nil {
		m.failed.Add(1)
		m.logger.Warn("sink error", zap.Error(err))
		return
	}
	m.sent.Add(1)
}

// enqueue hands msg to the worker, waiting at most sendTimeout for room.
func (m *EventManager) enqueue(msg outMsg) {
	if m.closed.Load() {
		m.dropped.Add(1)
		return
	}
	if m.queue == nil {
		m.send(msg)
		return
	}
	select {
	case m.queue <- msg:
		return
	default:
	}
	timer := time.NewTimer(m.sendTimeout)
	defer timer.Stop()
	select {
	case m.queue <- msg:
	case <-timer.C:
		n := m.dropped.Add(1)
		if m.dropWarn.Allow() {
			m.logger.Warn("output queue full, message dropped", zap.Uint64("dropped", n))
		}
	}
}

// enqueueWait hands msg to the worker, blocking until there is room.
func (m *EventManager) enqueueWait(msg outMsg) {
	if m.closed.Load() {
		return
	}
	if m.queue == nil {
		m.send(msg)
		return
	}
	select {
	case m.queue <- msg:
	case <-m.done:
	}
}

// SessionStarted implements scheduler.Listener.
func (m *EventManager) SessionStarted(info scheduler.SessionInfo) {
	m.mu.Lock()
	m.sessions[info.ID] = &SessionRecord{
		ID:           info.ID,
		Label:        info.Label,
		Channels:     info.Channels,
		Events:       info.Events,
		Callbacks:    info.Callbacks,
		RegisteredAt: time.Now(),
	}
	m.mu.Unlock()
	m.notifyUpdate()
}

// SessionEnded implements scheduler.Listener.
func (m *EventManager) SessionEnded(id string, reason scheduler.EndReason) {
	m.mu.Lock()
	rec, ok := m.sessions[id]
	delete(m.sessions, id)
	if reason == scheduler.EndCancelled {
		m.cancelled++
	} else {
		m.completed++
	}
	m.mu.Unlock()
	if ok {
		m.logger.Debug("session ended",
			zap.String("session", id),
			zap.Stringer("reason", reason),
			zap.Int("dispatched", rec.Dispatched),
			zap.Duration("age", time.Since(rec.RegisteredAt)))
	}
	m.notifyUpdate()
}

// Dispatch implements scheduler.Listener. It never blocks longer than the
// send timeout per message.
func (m *EventManager) Dispatch(d scheduler.Dispatch) {
	m.mu.Lock()
	if rec, ok := m.sessions[d.Session]; ok {
		rec.Dispatched++
	}
	m.mu.Unlock()

	ch := uint8(d.Channel)
	switch d.Kind {
	case scheduler.DispatchOn:
		vel := d.Velocity
		for _, p := range d.Pitches {
			key := uint8(p)
			m.enqueue(func(s midi.Sink) error { return s.NoteOn(ch, key, vel) })
		}
	case scheduler.DispatchOff:
		for _, p := range d.Pitches {
			key := uint8(p)
			m.enqueue(func(s midi.Sink) error { return s.NoteOff(ch, key) })
		}
	case scheduler.DispatchControl:
		c := d.Control
		m.enqueue(func(s midi.Sink) error { return s.ControlChange(ch, c.Controller, c.Value) })
	case scheduler.DispatchProgram:
		prog := d.Program
		m.enqueue(func(s midi.Sink) error { return s.ProgramChange(ch, prog) })
	}
}

// Silence implements transport.Silencer: all-notes-off on every channel,
// queued behind anything already waiting.
func (m *EventManager) Silence() {
	m.enqueueWait(func(s midi.Sink) error { return s.AllNotesOff(midi.AllChannels) })
}

// Sessions returns the live sessions, oldest first.
func (m *EventManager) Sessions() []SessionRecord {
	m.mu.Lock()
	out := make([]SessionRecord, 0, len(m.sessions))
	for _, rec := range m.sessions {
		out = append(out, *rec)
	}
	m.mu.Unlock()
	slices.SortFunc(out, func(a, b SessionRecord) int {
		if c := a.RegisteredAt.Compare(b.RegisteredAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Session returns one registry entry.
func (m *EventManager) Session(id string) (SessionRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[id]
	if !ok {
		return SessionRecord{}, false
	}
	return *rec, true
}

// Metrics returns the current counters.
func (m *EventManager) Metrics() Metrics {
	m.mu.Lock()
	completed, cancelled := m.completed, m.cancelled
	m.mu.Unlock()
	return Metrics{
		Sent:       m.sent.Load(),
		Dropped:    m.dropped.Load(),
		Failed:     m.failed.Load(),
		Completed:  completed,
		Cancelled:  cancelled,
		QueueDepth: len(m.queue),
		QueueCap:   cap(m.queue),
	}
}

// Close stops the worker after it drains the queue. Later dispatches are
// dropped.
func (m *EventManager) Close() error {
	m.once.Do(func() {
		m.closed.Store(true)
		close(m.done)
		m.wg.Wait()
	})
	return nil
}

// notifyUpdate pokes the TUI without blocking.
func (m *EventManager) notifyUpdate() {
	select {
	case m.UpdateChan <- struct{}{}:
	default:
	}
}
