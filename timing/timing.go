// Package timing converts between musical time (beats, measures) and
// wall-clock seconds.
package timing

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Tempo limits shared by the compiler and the transport.
const (
	MinBPM = 20.0
	MaxBPM = 300.0
)

var (
	ErrTimeSignature = errors.New("invalid time signature")
	ErrDurationCode  = errors.New("unknown duration code")
)

// TimeSignature is a meter such as 4/4 or 6/8.
type TimeSignature struct {
	Beats int // numerator
	Unit  int // denominator, a power of two
}

// CommonTime is 4/4.
var CommonTime = TimeSignature{Beats: 4, Unit: 4}

// ParseTimeSignature parses "N/D". An empty string yields 4/4.
func ParseTimeSignature(s string) (TimeSignature, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return CommonTime, nil
	}
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		return TimeSignature{}, fmt.Errorf("%w: %q", ErrTimeSignature, s)
	}
	n, err := strconv.Atoi(strings.TrimSpace(num))
	if err != nil || n <= 0 {
		return TimeSignature{}, fmt.Errorf("%w: %q", ErrTimeSignature, s)
	}
	d, err := strconv.Atoi(strings.TrimSpace(den))
	if err != nil || d <= 0 || d&(d-1) != 0 {
		return TimeSignature{}, fmt.Errorf("%w: %q", ErrTimeSignature, s)
	}
	return TimeSignature{Beats: n, Unit: d}, nil
}

// BeatsPerMeasure returns the measure length in quarter-note beats.
func (ts TimeSignature) BeatsPerMeasure() float64 {
	if ts.Beats <= 0 || ts.Unit <= 0 {
		return CommonTime.BeatsPerMeasure()
	}
	return float64(ts.Beats) * 4 / float64(ts.Unit)
}

func (ts TimeSignature) String() string {
	return fmt.Sprintf("%d/%d", ts.Beats, ts.Unit)
}

// codeBeats maps duration codes to quarter-note beats.
var codeBeats = map[byte]float64{
	'w': 4,
	'h': 2,
	'q': 1,
	'e': 0.5,
	's': 0.25,
	't': 0.125,
}

// DurationBeats resolves a duration code ("q", "h.", ...) to beats.
// A trailing '.' makes the note dotted (x1.5).
func DurationBeats(code string) (float64, error) {
	dotted := strings.HasSuffix(code, ".")
	base := strings.TrimSuffix(code, ".")
	if len(base) != 1 {
		return 0, fmt.Errorf("%w: %q", ErrDurationCode, code)
	}
	beats, ok := codeBeats[base[0]]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrDurationCode, code)
	}
	if dotted {
		beats *= 1.5
	}
	return beats, nil
}

// ValidBPM reports whether bpm is inside [MinBPM, MaxBPM].
func ValidBPM(bpm float64) bool {
	return bpm >= MinBPM && bpm <= MaxBPM
}

// SecondsPerBeat returns the length of one quarter-note beat.
func SecondsPerBeat(bpm float64) float64 {
	return 60 / bpm
}

// BeatsToSeconds converts a beat count at the given tempo.
func BeatsToSeconds(beats, bpm float64) float64 {
	return beats / (bpm / 60)
}

// SecondsToBeats converts seconds to beats at the given tempo.
func SecondsToBeats(seconds, bpm float64) float64 {
	return seconds * (bpm / 60)
}

// MeasureTime returns the absolute time of a beat position inside a measure:
// (measure*beatsPerMeasure + beat) / (bpm/60).
func MeasureTime(measure int, beat float64, ts TimeSignature, bpm float64) float64 {
	return BeatsToSeconds(float64(measure)*ts.BeatsPerMeasure()+beat, bpm)
}
