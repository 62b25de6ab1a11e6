package timeline

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
)

var (
	ErrChannelRange = errors.New("channel out of range 1-16")
	ErrUnordered    = errors.New("events out of time order")
)

// Voice is the ordered event list for one output channel.
type Voice struct {
	Channel int
	Events  []Event
}

// Sort orders events by Time, keeping the relative order of ties.
func (v *Voice) Sort() {
	sort.SliceStable(v.Events, func(i, j int) bool {
		return v.Events[i].Time < v.Events[j].Time
	})
}

// Duration returns the end time of the last sounding or rest event.
func (v Voice) Duration(bpm float64) float64 {
	end := 0.0
	for _, e := range v.Events {
		t := e.Time + e.DurationBeats*60/bpm
		if t > end {
			end = t
		}
	}
	return end
}

// Session is a compiled performance ready to hand to a scheduler.
type Session struct {
	Label  string
	BPM    float64 // tempo the event times were computed at
	Voices map[int]Voice
}

// NewSession creates an empty session at the given tempo.
func NewSession(label string, bpm float64) *Session {
	return &Session{Label: label, BPM: bpm, Voices: make(map[int]Voice)}
}

// Add merges a voice into the session. Events for a channel that is already
// present are appended and re-sorted.
func (s *Session) Add(v Voice) error {
	if v.Channel < 1 || v.Channel > 16 {
		return fmt.Errorf("%w: %d", ErrChannelRange, v.Channel)
	}
	if existing, ok := s.Voices[v.Channel]; ok {
		existing.Events = append(existing.Events, v.Events...)
		existing.Sort()
		s.Voices[v.Channel] = existing
		return nil
	}
	s.Voices[v.Channel] = v
	return nil
}

// Channels returns the session's channels in ascending order.
func (s *Session) Channels() []int {
	chs := make([]int, 0, len(s.Voices))
	for ch := range s.Voices {
		chs = append(chs, ch)
	}
	slices.Sort(chs)
	return chs
}

// EventCount returns the number of events across all voices.
func (s *Session) EventCount() int {
	n := 0
	for _, v := range s.Voices {
		n += len(v.Events)
	}
	return n
}

// Rescale returns a copy of the session with every time re-expressed at a new
// tempo. Beat positions are unchanged.
func (s *Session) Rescale(bpm float64) *Session {
	out := NewSession(s.Label, bpm)
	ratio := s.BPM / bpm
	for ch, v := range s.Voices {
		events := make([]Event, len(v.Events))
		for i, e := range v.Events {
			e = e.Clone()
			e.Time *= ratio
			events[i] = e
		}
		out.Voices[ch] = Voice{Channel: ch, Events: events}
	}
	return out
}

// Validate checks structural invariants that must hold before scheduling.
// Events of a voice must be in non-decreasing Time order; Add and Voice.Sort
// keep them that way.
func (s *Session) Validate() error {
	if s.BPM <= 0 || math.IsNaN(s.BPM) {
		return fmt.Errorf("invalid tempo %v", s.BPM)
	}
	for ch, v := range s.Voices {
		if ch < 1 || ch > 16 || v.Channel != ch {
			return fmt.Errorf("%w: %d", ErrChannelRange, ch)
		}
		for i, e := range v.Events {
			if math.IsNaN(e.Time) || math.IsInf(e.Time, 0) || e.Time < 0 {
				return fmt.Errorf("channel %d event %d: invalid time %v", ch, i, e.Time)
			}
			if i > 0 && e.Time < v.Events[i-1].Time {
				return fmt.Errorf("channel %d event %d: %w: %v before %v", ch, i, ErrUnordered, e.Time, v.Events[i-1].Time)
			}
			switch e.Kind {
			case KindNote, KindChord:
				if len(e.Pitches) == 0 {
					return fmt.Errorf("channel %d event %d: %s without pitches", ch, i, e.Kind)
				}
				for _, p := range e.Pitches {
					if p < 0 || p > 127 {
						return fmt.Errorf("channel %d event %d: pitch %d out of range", ch, i, p)
					}
				}
				if e.DurationBeats <= 0 {
					return fmt.Errorf("channel %d event %d: non-positive duration", ch, i)
				}
			case KindControl:
				if e.Control == nil || e.Control.Controller > 127 || e.Control.Value > 127 {
					return fmt.Errorf("channel %d event %d: invalid control payload", ch, i)
				}
			case KindProgram:
				if e.Program > 127 {
					return fmt.Errorf("channel %d event %d: program %d out of range", ch, i, e.Program)
				}
			}
		}
	}
	return nil
}
