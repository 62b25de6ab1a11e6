package midi

import (
	"sync"

	gomidi "gitlab.com/gomidi/midi/v2"
	"go.uber.org/zap"
)

// Recorder is a Sink that keeps every message in memory.
type Recorder struct {
	Sink

	mu   sync.Mutex
	msgs []gomidi.Message
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	r := &Recorder{}
	r.Sink = NewSink(r.record)
	return r
}

func (r *Recorder) record(msg gomidi.Message) error {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
	return nil
}

// Messages returns a copy of everything recorded so far.
func (r *Recorder) Messages() []gomidi.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]gomidi.Message(nil), r.msgs...)
}

// Len returns the number of recorded messages.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

// Reset forgets every recorded message.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.msgs = nil
	r.mu.Unlock()
}

// NewLogSink returns a Sink that writes each message to logger at debug
// level instead of sending it anywhere.
func NewLogSink(logger *zap.Logger) Sink {
	return NewSink(func(msg gomidi.Message) error {
		logger.Debug("midi out", zap.Stringer("msg", msg))
		return nil
	})
}
