package notation

import (
	"fmt"
	"math"
	"sort"

	"go-perform/theory"
	"go-perform/timeline"
	"go-perform/timing"
)

// Controller numbers emitted by the effects chain.
const (
	ControllerReverbSend uint8 = 91
)

// reverbArticulationBoost is the articulation added at full reverb.
const reverbArticulationBoost = 0.15

// Effects is the per-voice post-processing applied after compilation.
type Effects struct {
	BPM       float64
	Swing     float64 // 0..1
	Reverb    float64 // 0..1
	Transpose int
	Program   *int
}

// Apply runs transpose, reverb and swing, then prepends the voice setup
// messages (program change, reverb send). The input slice is not modified.
func (fx Effects) Apply(events []timeline.Event) ([]timeline.Event, Diagnostics) {
	out := make([]timeline.Event, len(events))
	for i, e := range events {
		out[i] = e.Clone()
	}

	var diags Diagnostics
	if fx.Transpose != 0 {
		diags = append(diags, Transpose(out, fx.Transpose)...)
	}
	if fx.Reverb > 0 {
		ReverbBoost(out, fx.Reverb)
	}
	if fx.Swing > 0 {
		Swing(out, fx.Swing, fx.BPM)
	}

	var setup []timeline.Event
	if fx.Program != nil {
		p := *fx.Program
		if p < 0 || p > 127 {
			diags = append(diags, Diagnostic{
				Severity: SeverityWarning,
				Code:     CodeBadToken,
				Message:  fmt.Sprintf("program %d out of range, not sent", p),
			})
		} else {
			setup = append(setup, timeline.NewProgram(0, uint8(p)))
		}
	}
	if fx.Reverb > 0 {
		setup = append(setup, timeline.NewControl(0, ControllerReverbSend, uint8(math.Round(clamp01(fx.Reverb)*127))))
	}
	if len(setup) > 0 {
		out = append(setup, out...)
	}
	return out, diags
}

// Swing delays short events that start on the off half of their beat by
// durationBeats*amount*0.5*secondsPerBeat and re-sorts by time.
func Swing(events []timeline.Event, amount, bpm float64) {
	amount = clamp01(amount)
	if amount == 0 || bpm <= 0 {
		return
	}
	spb := timing.SecondsPerBeat(bpm)
	for i := range events {
		e := &events[i]
		if !(e.Kind.Sounding() || e.Kind == timeline.KindRest) {
			continue
		}
		if e.DurationBeats > 0.5+beatEpsilon {
			continue
		}
		frac := e.StartBeat - math.Floor(e.StartBeat)
		if frac < 0.5-beatEpsilon {
			continue
		}
		e.Time += e.DurationBeats * amount * 0.5 * spb
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Time < events[j].Time
	})
}

// ReverbBoost lengthens articulation in proportion to the reverb amount so
// wet voices connect more.
func ReverbBoost(events []timeline.Event, amount float64) {
	boost := clamp01(amount) * reverbArticulationBoost
	for i := range events {
		if events[i].Kind.Sounding() {
			events[i].Articulation = math.Min(1, events[i].Articulation+boost)
		}
	}
}

// Transpose shifts every pitch by semitones. Pitches pushed outside 0-127
// are folded back by octaves.
func Transpose(events []timeline.Event, semitones int) Diagnostics {
	var diags Diagnostics
	for i := range events {
		e := &events[i]
		for j, p := range e.Pitches {
			np := p + semitones
			folded := false
			for np > 127 {
				np -= 12
				folded = true
			}
			for np < 0 {
				np += 12
				folded = true
			}
			if folded {
				diags = append(diags, Diagnostic{
					Severity: SeverityWarning,
					Code:     CodeTransposeFolded,
					Measure:  e.Measure,
					Message:  fmt.Sprintf("%s transposed by %d folded to %s", theory.PitchName(p), semitones, theory.PitchName(np)),
				})
			}
			e.Pitches[j] = np
		}
	}
	return diags
}
