// Package midi is the output side of the engine: the Sink contract, a sink
// on a gomidi output port, and in-memory sinks for tests and dry runs.
package midi

import (
	"errors"
	"fmt"

	gomidi "gitlab.com/gomidi/midi/v2"
	"go.uber.org/multierr"
)

// AllChannels addresses every channel in AllNotesOff.
const AllChannels uint8 = 0

// Controller numbers used for silencing.
const (
	ControllerSustain     uint8 = 64
	ControllerAllNotesOff uint8 = 123
)

var ErrChannel = errors.New("midi: channel out of range 1-16")

// Sink receives output messages. Channels are 1-16. Implementations must be
// safe to call from one goroutine at a time; the engine never calls a sink
// concurrently.
type Sink interface {
	NoteOn(channel, key, velocity uint8) error
	NoteOff(channel, key uint8) error
	ControlChange(channel, controller, value uint8) error
	ProgramChange(channel, program uint8) error
	// AllNotesOff silences one channel, or all of them for AllChannels.
	AllNotesOff(channel uint8) error
}

// SendFunc delivers one encoded message, the shape gomidi.SendTo returns.
type SendFunc func(gomidi.Message) error

// messageSink implements Sink by encoding with gomidi and handing the
// message to send.
type messageSink struct {
	send SendFunc
}

// NewSink returns a Sink that encodes every call and passes it to send.
func NewSink(send SendFunc) Sink {
	return messageSink{send: send}
}

func wire(channel uint8) (uint8, error) {
	if channel < 1 || channel > 16 {
		return 0, fmt.Errorf("%w: %d", ErrChannel, channel)
	}
	return channel - 1, nil
}

func (s messageSink) NoteOn(channel, key, velocity uint8) error {
	ch, err := wire(channel)
	if err != nil {
		return err
	}
	return s.send(gomidi.NoteOn(ch, key&0x7f, velocity&0x7f))
}

func (s messageSink) NoteOff(channel, key uint8) error {
	ch, err := wire(channel)
	if err != nil {
		return err
	}
	return s.send(gomidi.NoteOff(ch, key&0x7f))
}

func (s messageSink) ControlChange(channel, controller, value uint8) error {
	ch, err := wire(channel)
	if err != nil {
		return err
	}
	return s.send(gomidi.ControlChange(ch, controller&0x7f, value&0x7f))
}

func (s messageSink) ProgramChange(channel, program uint8) error {
	ch, err := wire(channel)
	if err != nil {
		return err
	}
	return s.send(gomidi.ProgramChange(ch, program&0x7f))
}

// AllNotesOff sends All Notes Off and releases the sustain pedal so held
// notes stop too.
func (s messageSink) AllNotesOff(channel uint8) error {
	channels := []uint8{channel}
	if channel == AllChannels {
		channels = channels[:0]
		for ch := uint8(1); ch <= 16; ch++ {
			channels = append(channels, ch)
		}
	}
	var err error
	for _, ch := range channels {
		err = multierr.Append(err, s.ControlChange(ch, ControllerAllNotesOff, 0))
		err = multierr.Append(err, s.ControlChange(ch, ControllerSustain, 0))
	}
	return err
}

// Tee fans every call out to several sinks and joins their errors.
func Tee(sinks ...Sink) Sink {
	return tee(sinks)
}

type tee []Sink

func (t tee) each(fn func(Sink) error) error {
	var err error
	for _, s := range t {
		err = multierr.Append(err, fn(s))
	}
	return err
}

func (t tee) NoteOn(channel, key, velocity uint8) error {
	return t.each(func(s Sink) error { return s.NoteOn(channel, key, velocity) })
}

func (t tee) NoteOff(channel, key uint8) error {
	return t.each(func(s Sink) error { return s.NoteOff(channel, key) })
}

func (t tee) ControlChange(channel, controller, value uint8) error {
	return t.each(func(s Sink) error { return s.ControlChange(channel, controller, value) })
}

func (t tee) ProgramChange(channel, program uint8) error {
	return t.each(func(s Sink) error { return s.ProgramChange(channel, program) })
}

func (t tee) AllNotesOff(channel uint8) error {
	return t.each(func(s Sink) error { return s.AllNotesOff(channel) })
}
