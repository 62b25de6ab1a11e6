package theory

import (
	"fmt"
	"slices"
	"strings"
)

// chordQualities maps a quality suffix to semitone intervals above the root.
// The empty suffix is a major triad.
var chordQualities = map[string][]int{
	"":      {0, 4, 7},
	"maj":   {0, 4, 7},
	"m":     {0, 3, 7},
	"min":   {0, 3, 7},
	"dim":   {0, 3, 6},
	"aug":   {0, 4, 8},
	"+":     {0, 4, 8},
	"sus2":  {0, 2, 7},
	"sus4":  {0, 5, 7},
	"5":     {0, 7},
	"6":     {0, 4, 7, 9},
	"m6":    {0, 3, 7, 9},
	"7":     {0, 4, 7, 10},
	"maj7":  {0, 4, 7, 11},
	"m7":    {0, 3, 7, 10},
	"mmaj7": {0, 3, 7, 11},
	"dim7":  {0, 3, 6, 9},
	"m7b5":  {0, 3, 6, 10},
	"7sus4": {0, 5, 7, 10},
	"add9":  {0, 4, 7, 14},
	"9":     {0, 4, 7, 10, 14},
	"maj9":  {0, 4, 7, 11, 14},
	"m9":    {0, 3, 7, 10, 14},
	"11":    {0, 4, 7, 10, 14, 17},
	"13":    {0, 4, 7, 10, 14, 21},
}

// Chord is a parsed chord symbol such as "Cmaj7", "F#m/A" or "G7/3".
type Chord struct {
	Symbol    string
	Root      int    // pitch class
	Quality   string // key into the quality table
	Intervals []int
	Bass      string // slash note, "" when absent
	Octave    int    // slash octave override, -1 when absent
}

// ParseChord parses a named chord symbol with an optional "/bass" or
// "/octave" suffix.
func ParseChord(symbol string) (Chord, error) {
	body, slash, hasSlash := strings.Cut(symbol, "/")
	if len(body) == 0 {
		return Chord{}, fmt.Errorf("%w: %q", ErrUnknownChord, symbol)
	}

	rootLen := 1
	if len(body) > 1 && (body[1] == '#' || body[1] == 'b') {
		rootLen = 2
	}
	root, err := PitchClass(body[:rootLen])
	if err != nil {
		return Chord{}, fmt.Errorf("%w: %q", ErrUnknownChord, symbol)
	}
	quality := body[rootLen:]
	intervals, ok := chordQualities[quality]
	if !ok {
		return Chord{}, fmt.Errorf("%w: %q", ErrUnknownChord, symbol)
	}

	c := Chord{
		Symbol:    symbol,
		Root:      root,
		Quality:   quality,
		Intervals: intervals,
		Octave:    -1,
	}
	if hasSlash {
		switch {
		case len(slash) == 1 && slash[0] >= '0' && slash[0] <= '9':
			c.Octave = int(slash[0] - '0')
		default:
			if _, err := PitchClass(slash); err != nil {
				return Chord{}, fmt.Errorf("%w: %q", ErrUnknownChord, symbol)
			}
			c.Bass = slash
		}
	}
	return c, nil
}

// Voice returns MIDI pitches for the chord, lowest first. Triads keep close
// position at the given octave; chords of four or more tones are spread over
// two octaves by raising every other chord tone. A slash octave overrides
// octave. A slash bass that is a chord tone inverts the chord: the upper
// voicing starts on that tone and the root drops one octave below into the
// bass. Any other slash bass is added one octave below.
func (c Chord) Voice(octave int) ([]int, error) {
	if c.Octave >= 0 {
		octave = c.Octave
	}
	base := MIDINote(c.Root, octave)

	if c.Bass == "" {
		pitches := make([]int, 0, len(c.Intervals))
		for i, iv := range c.Intervals {
			p := base + iv
			if len(c.Intervals) > 3 && i%2 == 1 {
				p += 12
			}
			pitches = append(pitches, p)
		}
		slices.Sort(pitches)
		return checkRange(c.Symbol, pitches)
	}

	bassPC, _ := PitchClass(c.Bass)
	inversion := -1
	for i, iv := range c.Intervals {
		if (c.Root+iv)%12 == bassPC {
			inversion = i
			break
		}
	}

	var bass int
	var upper []int
	if inversion >= 0 {
		for i := inversion; i < len(c.Intervals); i++ {
			upper = append(upper, base+c.Intervals[i])
		}
		for i := 0; i < inversion; i++ {
			upper = append(upper, base+c.Intervals[i]+12)
		}
		bass = base - 12
	} else {
		for _, iv := range c.Intervals {
			upper = append(upper, base+iv)
		}
		bass = MIDINote(bassPC, octave-1)
	}

	pitches := []int{bass}
	for _, p := range upper {
		if p%12 != bass%12 {
			pitches = append(pitches, p)
		}
	}
	slices.Sort(pitches[1:])
	return checkRange(c.Symbol, pitches)
}

func checkRange(symbol string, pitches []int) ([]int, error) {
	for _, p := range pitches {
		if p < 0 || p > 127 {
			return nil, fmt.Errorf("%w: %q", ErrPitchRange, symbol)
		}
	}
	return pitches, nil
}
