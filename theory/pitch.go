// Package theory holds the static music tables: pitch names, chord
// qualities and scales. The tables are built once at init and never
// mutated afterwards.
package theory

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedPitch = errors.New("malformed pitch")
	ErrPitchRange     = errors.New("pitch out of MIDI range")
	ErrUnknownChord   = errors.New("unknown chord symbol")
	ErrUnknownScale   = errors.New("unknown scale")
)

// letterClass maps natural note letters to pitch classes.
var letterClass = map[byte]int{
	'C': 0, 'D': 2, 'E': 4, 'F': 5, 'G': 7, 'A': 9, 'B': 11,
}

// sharpNames spells each pitch class with sharps.
var sharpNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// PitchClass resolves a note name such as "Eb" or "F#" to 0-11.
func PitchClass(name string) (int, error) {
	if len(name) == 0 || len(name) > 2 {
		return 0, fmt.Errorf("%w: %q", ErrMalformedPitch, name)
	}
	pc, ok := letterClass[name[0]]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrMalformedPitch, name)
	}
	if len(name) == 2 {
		switch name[1] {
		case '#':
			pc++
		case 'b':
			pc--
		default:
			return 0, fmt.Errorf("%w: %q", ErrMalformedPitch, name)
		}
	}
	return (pc + 12) % 12, nil
}

// Normalize returns the sharp spelling of an enharmonic note name:
// Db -> C#, Cb -> B, E# -> F, B# -> C.
func Normalize(name string) (string, error) {
	pc, err := PitchClass(name)
	if err != nil {
		return "", err
	}
	return sharpNames[pc], nil
}

// PitchName spells a MIDI note number, e.g. 61 -> "C#4".
func PitchName(pitch int) string {
	return fmt.Sprintf("%s%d", sharpNames[((pitch%12)+12)%12], pitch/12-1)
}

// MIDINote returns the MIDI number of a pitch class in an octave (C4 = 60).
func MIDINote(pc, octave int) int {
	return (octave+1)*12 + pc
}

// ParsePitch parses [A-G](#|b)?[0-9] into a MIDI note number.
func ParsePitch(s string) (int, error) {
	if len(s) < 2 || len(s) > 3 {
		return 0, fmt.Errorf("%w: %q", ErrMalformedPitch, s)
	}
	oct := s[len(s)-1]
	if oct < '0' || oct > '9' {
		return 0, fmt.Errorf("%w: %q", ErrMalformedPitch, s)
	}
	pc, err := PitchClass(s[:len(s)-1])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedPitch, s)
	}
	// Cb and B# cross the octave boundary.
	p := MIDINote(pc, int(oct-'0'))
	if s[1] == 'b' && pc == 11 {
		p -= 12
	}
	if s[1] == '#' && pc == 0 {
		p += 12
	}
	if p < 0 || p > 127 {
		return 0, fmt.Errorf("%w: %q", ErrPitchRange, s)
	}
	return p, nil
}

// IsPitch reports whether s is a well-formed pitch token.
func IsPitch(s string) bool {
	_, err := ParsePitch(s)
	return err == nil
}
