// Package timeline defines the compiled, schedulable representation of a
// performance: events on voices, voices in a session.
package timeline

import (
	"fmt"
	"slices"
)

// Kind tags the payload an Event carries.
type Kind int

const (
	KindNote Kind = iota
	KindChord
	KindRest
	KindControl // controller change, Control is set
	KindProgram // program change, Program is set
)

func (k Kind) String() string {
	switch k {
	case KindNote:
		return "note"
	case KindChord:
		return "chord"
	case KindRest:
		return "rest"
	case KindControl:
		return "cc"
	case KindProgram:
		return "program"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Sounding reports whether the kind produces a note-on/note-off pair.
func (k Kind) Sounding() bool {
	return k == KindNote || k == KindChord
}

// Velocity floor applied to every sounding event.
const MinVelocity = 0.3

// Control is the payload of a KindControl event.
type Control struct {
	Controller uint8
	Value      uint8
}

// Event is one compiled item on a voice.
type Event struct {
	Kind          Kind
	Pitches       []int   // MIDI note numbers, empty for rests and messages
	StartBeat     float64 // beat offset inside its measure
	DurationBeats float64
	Velocity      float64 // 0..1, 0 for rests
	Articulation  float64 // 0 (staccato) .. 1 (legato)
	Measure       int
	Time          float64 // absolute seconds from the start of the voice

	Control *Control // KindControl only
	Program uint8    // KindProgram only
}

// Clone returns a copy that shares no slices with e.
func (e Event) Clone() Event {
	e.Pitches = slices.Clone(e.Pitches)
	if e.Control != nil {
		c := *e.Control
		e.Control = &c
	}
	return e
}

// MIDIVelocity maps Velocity onto 1..127.
func (e Event) MIDIVelocity() uint8 {
	v := int(e.Velocity*127 + 0.5)
	if v < 1 {
		v = 1
	}
	if v > 127 {
		v = 127
	}
	return uint8(v)
}

func (e Event) String() string {
	switch e.Kind {
	case KindControl:
		return fmt.Sprintf("cc %d=%d @%.3fs", e.Control.Controller, e.Control.Value, e.Time)
	case KindProgram:
		return fmt.Sprintf("program %d @%.3fs", e.Program, e.Time)
	case KindRest:
		return fmt.Sprintf("rest %.3gb @%.3fs", e.DurationBeats, e.Time)
	}
	return fmt.Sprintf("%s %v %.3gb vel=%.2f art=%.2f @%.3fs", e.Kind, e.Pitches, e.DurationBeats, e.Velocity, e.Articulation, e.Time)
}

// NewControl builds a controller-change event at an absolute time.
func NewControl(at float64, controller, value uint8) Event {
	return Event{Kind: KindControl, Time: at, Control: &Control{Controller: controller, Value: value}}
}

// NewProgram builds a program-change event at an absolute time.
func NewProgram(at float64, program uint8) Event {
	return Event{Kind: KindProgram, Time: at, Program: program}
}
