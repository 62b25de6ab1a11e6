package notation

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"go-perform/theory"
	"go-perform/timeline"
	"go-perform/timing"
)

// articulation is what an articulation code does to a token.
type articulation struct {
	value    float64 // articulation to use, when set
	set      bool
	velDelta float64 // velocity adjustment for this token only
}

var articulations = map[string]articulation{
	"leg":    {value: 1.0, set: true},
	"stac":   {value: 0.0, set: true},
	"ten":    {value: 0.9, set: true},
	"accent": {velDelta: 0.2},
	"ghost":  {velDelta: -0.3},
}

// suffix is the parsed ":<duration>[@<velocity>[.<articulation>]]" part.
type suffix struct {
	beats       float64
	velocity    float64
	hasVelocity bool
	artCode     string
}

// splitToken separates the body from the suffix. For chord literals the
// suffix starts after the closing bracket.
func splitToken(text string) (body, sfx string, hasSuffix bool) {
	if strings.HasPrefix(text, "[") {
		end := strings.LastIndexByte(text, ']')
		if end < 0 {
			return text, "", false
		}
		rest := text[end+1:]
		if strings.HasPrefix(rest, ":") {
			return text[:end+1], rest[1:], true
		}
		return text[:end+1], rest, rest != ""
	}
	return strings.Cut(text, ":")
}

// parseSuffix resolves duration, velocity and articulation. Problems that have
// a safe default are reported as diagnostics, never as errors.
func parseSuffix(sfx string, hasSuffix bool) (suffix, Diagnostics) {
	s := suffix{beats: 1}
	if !hasSuffix {
		return s, nil
	}
	var diags Diagnostics

	durPart, velPart, hasAt := strings.Cut(sfx, "@")

	code, art, dotted, ok := splitDuration(durPart)
	if ok {
		if art != "" {
			s.artCode = art
		}
		if dotted {
			code += "."
		}
		beats, err := timing.DurationBeats(code)
		if err != nil {
			ok = false
		} else {
			s.beats = beats
		}
	}
	if !ok {
		diags = append(diags, Diagnostic{
			Severity: SeverityWarning,
			Code:     CodeDuration,
			Message:  fmt.Sprintf("unresolvable duration %q, using quarter", durPart),
		})
	}

	if hasAt {
		vel, art, hasVel, d := parseVelocity(velPart)
		diags = append(diags, d...)
		if hasVel {
			s.velocity, s.hasVelocity = vel, true
		}
		if art != "" {
			s.artCode = art
		}
	}
	return s, diags
}

// splitDuration splits "q", "q.", "e.stac" or "q..leg" into code, articulation
// and the dotted flag.
func splitDuration(part string) (code, art string, dotted, ok bool) {
	if part == "" {
		return "", "", false, false
	}
	code, rest := part[:1], part[1:]
	switch {
	case rest == "":
	case rest == ".":
		dotted = true
	case strings.HasPrefix(rest, ".."):
		dotted, art = true, rest[2:]
	case strings.HasPrefix(rest, "."):
		art = rest[1:]
	default:
		return "", "", false, false
	}
	return code, art, dotted, true
}

// parseVelocity applies the '@' disambiguation rule: when the whole remainder
// parses as one float it is a velocity and nothing else. Otherwise the last
// non-numeric dot segment is the articulation and the segments before it form
// the velocity.
func parseVelocity(rem string) (vel float64, art string, hasVel bool, diags Diagnostics) {
	if f, err := strconv.ParseFloat(rem, 64); err == nil && !math.IsNaN(f) {
		return f, "", true, nil
	}

	segs := strings.Split(rem, ".")
	artAt := -1
	for i := len(segs) - 1; i >= 0; i-- {
		if !isNumeric(segs[i]) {
			artAt = i
			break
		}
	}
	if artAt < 0 {
		// e.g. "0.5." : numeric segments that do not form a float
		return 0, "", false, Diagnostics{{
			Severity: SeverityWarning,
			Code:     CodeVelocityParse,
			Message:  fmt.Sprintf("cannot read velocity %q, keeping current", rem),
		}}
	}

	art = segs[artAt]
	if artAt+1 < len(segs) {
		diags = append(diags, Diagnostic{
			Severity: SeverityWarning,
			Code:     CodeIgnoredRemainder,
			Message:  fmt.Sprintf("ignored %q after articulation", strings.Join(segs[artAt+1:], ".")),
		})
	}
	velText := strings.Join(segs[:artAt], ".")
	if velText == "" {
		return 0, art, false, diags
	}
	f, err := strconv.ParseFloat(velText, 64)
	if err != nil || math.IsNaN(f) {
		diags = append(diags, Diagnostic{
			Severity: SeverityWarning,
			Code:     CodeVelocityParse,
			Message:  fmt.Sprintf("cannot read velocity %q, keeping current", velText),
		})
		return 0, art, false, diags
	}
	return f, art, true, diags
}

func isNumeric(seg string) bool {
	if seg == "" {
		return true
	}
	seg = strings.TrimPrefix(seg, "-")
	for _, r := range seg {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// parseBody resolves the pitch, chord or rest part of a token.
func parseBody(body string, octave int) (timeline.Kind, []int, error) {
	switch {
	case body == "r" || body == "rest":
		return timeline.KindRest, nil, nil
	case strings.HasPrefix(body, "["):
		if !strings.HasSuffix(body, "]") {
			return 0, nil, ErrUnterminatedChord
		}
		return parseChordLiteral(strings.TrimSpace(body[1 : len(body)-1]), octave)
	case body == "":
		return 0, nil, ErrMalformedToken
	}
	p, err := theory.ParsePitch(body)
	if err != nil {
		return 0, nil, err
	}
	return timeline.KindNote, []int{p}, nil
}

// parseChordLiteral handles "[C4 E4 G4]" and "[Cmaj7/E]".
func parseChordLiteral(inner string, octave int) (timeline.Kind, []int, error) {
	fields := strings.Fields(inner)
	if len(fields) == 0 {
		return 0, nil, ErrMalformedChord
	}

	explicit := true
	for _, f := range fields {
		if !theory.IsPitch(f) {
			explicit = false
			break
		}
	}
	if explicit {
		pitches := make([]int, len(fields))
		for i, f := range fields {
			pitches[i], _ = theory.ParsePitch(f)
		}
		if len(pitches) == 1 {
			return timeline.KindNote, pitches, nil
		}
		return timeline.KindChord, pitches, nil
	}
	if len(fields) > 1 {
		return 0, nil, fmt.Errorf("%w: %q", ErrMalformedChord, inner)
	}

	chord, err := theory.ParseChord(fields[0])
	if err != nil {
		return 0, nil, err
	}
	pitches, err := chord.Voice(octave)
	if err != nil {
		return 0, nil, err
	}
	return timeline.KindChord, pitches, nil
}
