// Package scheduler turns compiled sessions into clock callbacks and routes
// each one to a Listener when it fires.
package scheduler

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"go-perform/clock"
	"go-perform/timeline"
)

var (
	// ErrUnknownSession is returned when cancelling an id that is not live.
	// Nothing changes when it is returned.
	ErrUnknownSession = errors.New("scheduler: unknown session")
	// ErrInvalidSession wraps validation failures from Schedule.
	ErrInvalidSession = errors.New("scheduler: invalid session")
)

// DispatchKind says what a fired callback should send.
type DispatchKind int

const (
	DispatchOn DispatchKind = iota
	DispatchOff
	DispatchControl
	DispatchProgram
)

func (k DispatchKind) String() string {
	switch k {
	case DispatchOn:
		return "on"
	case DispatchOff:
		return "off"
	case DispatchControl:
		return "control"
	case DispatchProgram:
		return "program"
	}
	return fmt.Sprintf("DispatchKind(%d)", int(k))
}

// Dispatch is one fired callback.
type Dispatch struct {
	Session  string
	Channel  int
	Kind     DispatchKind
	Pitches  []int
	Velocity uint8 // MIDI velocity, note-on only
	Control  timeline.Control
	Program  uint8
	Expected time.Duration // clock time the callback was due
	Actual   time.Duration // clock time it ran
}

// Latency returns how late the dispatch ran.
func (d Dispatch) Latency() time.Duration {
	return d.Actual - d.Expected
}

// EndReason says why a session left the scheduler.
type EndReason int

const (
	EndCompleted EndReason = iota
	EndCancelled
)

func (r EndReason) String() string {
	if r == EndCancelled {
		return "cancelled"
	}
	return "completed"
}

// SessionInfo describes a session at registration time.
type SessionInfo struct {
	ID        string
	Label     string
	Channels  []int
	Events    int
	Callbacks int
}

// Listener receives scheduler output. Every method is called with the
// scheduler lock held, so implementations must not call back into the
// scheduler and must not block.
type Listener interface {
	SessionStarted(info SessionInfo)
	Dispatch(d Dispatch)
	SessionEnded(id string, reason EndReason)
}

type nopListener struct{}

func (nopListener) SessionStarted(SessionInfo)      {}
func (nopListener) Dispatch(Dispatch)               {}
func (nopListener) SessionEnded(string, EndReason) {}

// item is one pending callback.
type item struct {
	key      uint64
	offset   time.Duration // from session start, or remaining time while parked
	handle   clock.Handle
	dispatch Dispatch
	on       *item // note-on a note-off releases
	fired    bool
}

type session struct {
	id     string
	seq    uint64
	armed  map[uint64]*item
	parked []*item
	queued int // entries in the immediate queue
}

func (s *session) done() bool {
	return len(s.armed) == 0 && len(s.parked) == 0 && s.queued == 0
}

type queued struct {
	sess *session
	it   *item
}

// Stats is a snapshot of scheduler counters.
type Stats struct {
	Running    bool
	Sessions   int
	Armed      int
	Parked     int
	Immediate  int
	Dispatched uint64
	Late       uint64
	Latency    LatencySummary
}

// Scheduler owns every pending callback. One mutex covers sessions, handles
// and the immediate queue; fired callbacks take it too, so Cancel and
// CancelAll are synchronous: once they return nothing from the cancelled
// sessions is dispatched.
type Scheduler struct {
	clock    clock.Clock
	listener Listener
	logger   *zap.Logger
	warn     *rate.Limiter

	mu         sync.Mutex
	running    bool
	sessions   map[string]*session
	immediate  []queued
	ring       latencyRing
	seq        uint64
	dispatched uint64
	late       uint64
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the scheduler logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithListener sets where dispatches go.
func WithListener(l Listener) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.listener = l
		}
	}
}

// WithWarnLimit sets how often latency warnings may be logged.
func WithWarnLimit(every time.Duration, burst int) Option {
	return func(s *Scheduler) {
		s.warn = rate.NewLimiter(rate.Every(every), burst)
	}
}

// New creates a suspended scheduler on clk. Sessions scheduled before Resume
// are parked until it is called.
func New(clk clock.Clock, opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:    clk,
		listener: nopListener{},
		logger:   zap.NewNop(),
		warn:     rate.NewLimiter(rate.Every(time.Second), 5),
		sessions: make(map[string]*session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Clock returns the clock the scheduler runs on.
func (s *Scheduler) Clock() clock.Clock {
	return s.clock
}

// Schedule validates the session and registers its callbacks relative to the
// current clock time. Nothing is armed if validation fails. Events at time
// zero go through the immediate queue, which is flushed before Schedule
// returns when the scheduler is running.
func (s *Scheduler) Schedule(sess *timeline.Session) (string, error) {
	if sess == nil {
		return "", fmt.Errorf("%w: nil session", ErrInvalidSession)
	}
	if err := sess.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	items := buildItems(sess)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	ss := &session{
		id:    fmt.Sprintf("session-%d", s.seq),
		seq:   s.seq,
		armed: make(map[uint64]*item, len(items)),
	}
	s.sessions[ss.id] = ss
	for _, it := range items {
		it.dispatch.Session = ss.id
	}
	s.listener.SessionStarted(SessionInfo{
		ID:        ss.id,
		Label:     sess.Label,
		Channels:  sess.Channels(),
		Events:    sess.EventCount(),
		Callbacks: len(items),
	})

	if s.running {
		now := s.clock.Now()
		for _, it := range items {
			s.armLocked(ss, it, now)
		}
		s.flushLocked()
	} else {
		ss.parked = items
	}
	s.logger.Debug("session scheduled",
		zap.String("session", ss.id),
		zap.String("label", sess.Label),
		zap.Int("callbacks", len(items)),
		zap.Bool("running", s.running))
	s.finishLocked(ss)
	return ss.id, nil
}

// buildItems expands a session into callbacks sorted by offset.
func buildItems(sess *timeline.Session) []*item {
	var items []*item
	var key uint64
	add := func(offset time.Duration, d Dispatch) *item {
		key++
		it := &item{key: key, offset: offset, dispatch: d}
		items = append(items, it)
		return it
	}
	spb := 60 / sess.BPM
	for _, ch := range sess.Channels() {
		for _, e := range sess.Voices[ch].Events {
			at := seconds(e.Time)
			switch e.Kind {
			case timeline.KindNote, timeline.KindChord:
				pitches := slices.Clone(e.Pitches)
				on := add(at, Dispatch{Channel: ch, Kind: DispatchOn, Pitches: pitches, Velocity: e.MIDIVelocity()})
				gate := GateTime(e.Articulation, e.DurationBeats*spb, e.Kind == timeline.KindChord)
				off := add(at+gate, Dispatch{Channel: ch, Kind: DispatchOff, Pitches: pitches})
				off.on = on
			case timeline.KindControl:
				add(at, Dispatch{Channel: ch, Kind: DispatchControl, Control: *e.Control})
			case timeline.KindProgram:
				add(at, Dispatch{Channel: ch, Kind: DispatchProgram, Program: e.Program})
			}
		}
	}
	slices.SortFunc(items, byOffset)
	return items
}

// byOffset orders callbacks by time, then by creation so a note-off never
// overtakes its own note-on.
func byOffset(a, b *item) int {
	if c := cmp.Compare(a.offset, b.offset); c != 0 {
		return c
	}
	return cmp.Compare(a.key, b.key)
}

func seconds(t float64) time.Duration {
	return time.Duration(math.Round(t * float64(time.Second)))
}

// armLocked registers it relative to now, or queues it for immediate
// dispatch when it is already due.
func (s *Scheduler) armLocked(ss *session, it *item, now time.Duration) {
	at := now + it.offset
	it.dispatch.Expected = at
	if it.offset <= 0 {
		s.immediate = append(s.immediate, queued{sess: ss, it: it})
		ss.queued++
		return
	}
	key := it.key
	ss.armed[key] = it
	it.handle = s.clock.ScheduleAt(at, func() { s.fire(ss, key) })
}

// fire runs on the clock's goroutine.
func (s *Scheduler) fire(ss *session, key uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions[ss.id] != ss {
		return
	}
	it, ok := ss.armed[key]
	if !ok {
		return
	}
	delete(ss.armed, key)
	s.dispatchLocked(it)
	s.finishLocked(ss)
}

func (s *Scheduler) dispatchLocked(it *item) {
	it.fired = true
	d := it.dispatch
	d.Actual = s.clock.Now()
	lat := d.Latency()
	s.ring.add(float64(lat) / float64(time.Millisecond))
	s.dispatched++
	if lat > LatencyWarnThreshold || lat < -LatencyWarnThreshold {
		s.late++
		if s.warn.Allow() {
			s.logger.Warn("dispatch latency over threshold",
				zap.String("session", d.Session),
				zap.Int("channel", d.Channel),
				zap.Stringer("kind", d.Kind),
				zap.Duration("latency", lat))
		}
	}
	s.listener.Dispatch(d)
}

// flushLocked drains the immediate queue in order.
func (s *Scheduler) flushLocked() {
	if len(s.immediate) == 0 {
		return
	}
	q := s.immediate
	s.immediate = nil
	touched := make([]*session, 0, 1)
	for _, e := range q {
		if s.sessions[e.sess.id] != e.sess {
			continue
		}
		e.sess.queued--
		s.dispatchLocked(e.it)
		if len(touched) == 0 || touched[len(touched)-1] != e.sess {
			touched = append(touched, e.sess)
		}
	}
	for _, ss := range touched {
		s.finishLocked(ss)
	}
}

// finishLocked retires ss once nothing is left for it.
func (s *Scheduler) finishLocked(ss *session) {
	if !ss.done() || s.sessions[ss.id] != ss {
		return
	}
	delete(s.sessions, ss.id)
	s.logger.Debug("session completed", zap.String("session", ss.id))
	s.listener.SessionEnded(ss.id, EndCompleted)
}

// releaseLocked sends, right away, every note-off of ss whose note-on has
// already gone out, so cancelling a session never leaves a note sounding.
// The sends are not latency samples.
func (s *Scheduler) releaseLocked(ss *session) int {
	var offs []*item
	collect := func(it *item) {
		if it.dispatch.Kind == DispatchOff && it.on != nil && it.on.fired {
			offs = append(offs, it)
		}
	}
	for _, it := range ss.armed {
		collect(it)
	}
	for _, it := range ss.parked {
		collect(it)
	}
	for _, q := range s.immediate {
		if q.sess == ss {
			collect(q.it)
		}
	}
	slices.SortFunc(offs, func(a, b *item) int { return cmp.Compare(a.key, b.key) })
	now := s.clock.Now()
	for _, it := range offs {
		d := it.dispatch
		d.Expected, d.Actual = now, now
		it.fired = true
		s.listener.Dispatch(d)
	}
	return len(offs)
}

// dropLocked cancels everything ss still owes.
func (s *Scheduler) dropLocked(ss *session) {
	for key, it := range ss.armed {
		s.clock.Cancel(it.handle)
		delete(ss.armed, key)
	}
	ss.parked = nil
	if ss.queued > 0 {
		s.immediate = slices.DeleteFunc(s.immediate, func(q queued) bool { return q.sess == ss })
		ss.queued = 0
	}
	delete(s.sessions, ss.id)
}

// Cancel removes one session and every callback it still owes. Notes of the
// session that are sounding get their note-off immediately.
func (s *Scheduler) Cancel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ss, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	released := s.releaseLocked(ss)
	s.dropLocked(ss)
	s.logger.Debug("session cancelled", zap.String("session", id), zap.Int("released", released))
	s.listener.SessionEnded(id, EndCancelled)
	return nil
}

// CancelAll removes every session. Pending note-offs are dropped with them,
// so callers pair this with an all-notes-off on the output.
func (s *Scheduler) CancelAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		s.dropLocked(s.sessions[id])
	}
	s.clock.CancelAll()
	s.immediate = nil
	for _, id := range ids {
		s.listener.SessionEnded(id, EndCancelled)
	}
	if len(ids) > 0 {
		s.logger.Info("all sessions cancelled", zap.Int("sessions", len(ids)))
	}
	return len(ids)
}

// Suspend parks every armed callback with its remaining time. Nothing fires
// until Resume.
func (s *Scheduler) Suspend() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	now := s.clock.Now()
	parked := 0
	for _, ss := range s.sessions {
		for key, it := range ss.armed {
			s.clock.Cancel(it.handle)
			it.offset = max(it.dispatch.Expected-now, 0)
			ss.parked = append(ss.parked, it)
			delete(ss.armed, key)
			parked++
		}
	}
	s.logger.Debug("scheduler suspended", zap.Int("parked", parked))
}

// Resume re-arms parked callbacks relative to now. Callbacks that are already
// due wait in the immediate queue for FlushImmediate.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	now := s.clock.Now()

	ordered := make([]*session, 0, len(s.sessions))
	for _, ss := range s.sessions {
		ordered = append(ordered, ss)
	}
	slices.SortFunc(ordered, func(a, b *session) int { return cmp.Compare(a.seq, b.seq) })

	for _, ss := range ordered {
		parked := ss.parked
		ss.parked = nil
		slices.SortFunc(parked, byOffset)
		for _, it := range parked {
			s.armLocked(ss, it, now)
		}
	}
	s.logger.Debug("scheduler resumed",
		zap.Int("sessions", len(ordered)),
		zap.Int("immediate", len(s.immediate)))
}

// FlushImmediate dispatches queued zero-delay callbacks in order. It does
// nothing while suspended and returns the number dispatched.
func (s *Scheduler) FlushImmediate() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return 0
	}
	n := len(s.immediate)
	s.flushLocked()
	return n
}

// Active returns the number of live sessions.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Has reports whether id is live.
func (s *Scheduler) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[id]
	return ok
}

// Latency summarizes the last LatencyWindow dispatches.
func (s *Scheduler) Latency() LatencySummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ring.summary()
}

// ResetLatency clears the latency window.
func (s *Scheduler) ResetLatency() {
	s.mu.Lock()
	s.ring.reset()
	s.mu.Unlock()
}

// Stats returns a snapshot of scheduler state.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{
		Running:    s.running,
		Sessions:   len(s.sessions),
		Immediate:  len(s.immediate),
		Dispatched: s.dispatched,
		Late:       s.late,
		Latency:    s.ring.summary(),
	}
	for _, ss := range s.sessions {
		st.Armed += len(ss.armed)
		st.Parked += len(ss.parked)
	}
	return st
}
