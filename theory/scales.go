package theory

import (
	"fmt"
	"strings"
)

var scaleIntervals = map[string][]int{
	"major":            {0, 2, 4, 5, 7, 9, 11},
	"minor":            {0, 2, 3, 5, 7, 8, 10},
	"harmonic-minor":   {0, 2, 3, 5, 7, 8, 11},
	"melodic-minor":    {0, 2, 3, 5, 7, 9, 11},
	"dorian":           {0, 2, 3, 5, 7, 9, 10},
	"phrygian":         {0, 1, 3, 5, 7, 8, 10},
	"lydian":           {0, 2, 4, 6, 7, 9, 11},
	"mixolydian":       {0, 2, 4, 5, 7, 9, 10},
	"locrian":          {0, 1, 3, 5, 6, 8, 10},
	"pentatonic":       {0, 2, 4, 7, 9},
	"minor-pentatonic": {0, 3, 5, 7, 10},
	"blues":            {0, 3, 5, 6, 7, 10},
	"chromatic":        {0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11},
}

// Key is a root plus scale, e.g. "D dorian".
type Key struct {
	Root    int
	Name    string
	classes [12]bool
}

// ParseKey parses "<root> <scale>". A bare root means major.
func ParseKey(s string) (Key, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 || len(fields) > 2 {
		return Key{}, fmt.Errorf("%w: %q", ErrUnknownScale, s)
	}
	root, err := PitchClass(fields[0])
	if err != nil {
		return Key{}, err
	}
	name := "major"
	if len(fields) == 2 {
		name = strings.ToLower(fields[1])
	}
	intervals, ok := scaleIntervals[name]
	if !ok {
		return Key{}, fmt.Errorf("%w: %q", ErrUnknownScale, name)
	}
	k := Key{Root: root, Name: name}
	for _, iv := range intervals {
		k.classes[(root+iv)%12] = true
	}
	return k, nil
}

// Contains reports whether a MIDI pitch belongs to the key.
func (k Key) Contains(pitch int) bool {
	return k.classes[((pitch%12)+12)%12]
}

func (k Key) String() string {
	return sharpNames[k.Root] + " " + k.Name
}
