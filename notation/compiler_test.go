package notation_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-perform/notation"
	"go-perform/theory"
	"go-perform/timeline"
)

func defaultsAt(bpm float64) notation.Defaults {
	d := notation.DefaultDefaults()
	d.BPM = bpm
	return d
}

func TestCompileExampleOne(t *testing.T) {
	c := notation.NewCompiler()
	events, diags, err := c.Compile("C4:q@0.8.leg D4:e.stac | E4:h", defaultsAt(120))
	require.NoError(t, err)
	assert.False(t, diags.HasErrors())
	require.Len(t, events, 3)

	c4, d4, e4 := events[0], events[1], events[2]

	assert.Equal(t, []int{60}, c4.Pitches)
	assert.InDelta(t, 1.0, c4.DurationBeats, 1e-9)
	assert.InDelta(t, 0.8, c4.Velocity, 1e-9)
	assert.InDelta(t, 1.0, c4.Articulation, 1e-9)
	assert.InDelta(t, 0.0, c4.Time, 1e-9)

	assert.Equal(t, []int{62}, d4.Pitches)
	assert.InDelta(t, 0.5, d4.DurationBeats, 1e-9)
	assert.InDelta(t, 0.8, d4.Velocity, 1e-9, "velocity is inherited")
	assert.InDelta(t, 0.0, d4.Articulation, 1e-9)
	assert.InDelta(t, 0.5, d4.Time, 1e-9)

	assert.Equal(t, []int{64}, e4.Pitches)
	assert.InDelta(t, 2.0, e4.DurationBeats, 1e-9)
	assert.Equal(t, 1, e4.Measure)
	assert.InDelta(t, 2.0, e4.Time, 1e-9)
}

func TestCompileExampleTwo(t *testing.T) {
	c := notation.NewCompiler()
	events, _, err := c.Compile("r:h C4:q", defaultsAt(60))
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, timeline.KindRest, events[0].Kind)
	assert.InDelta(t, 2.0, events[0].DurationBeats, 1e-9)
	assert.Zero(t, events[0].Velocity)
	assert.Empty(t, events[0].Pitches)

	assert.Equal(t, timeline.KindNote, events[1].Kind)
	assert.InDelta(t, 2.0, events[1].Time, 1e-9)
}

func TestDurationRoundTrip(t *testing.T) {
	cases := map[string]float64{
		"C4:w D4:h E4:q F4:e G4:s A4:t":    4 + 2 + 1 + 0.5 + 0.25 + 0.125,
		"C4:h. D4:q. | E4:e. F4:s.":        3 + 1.5 + 0.75 + 0.375,
		"[C4 E4 G4]:q [Am]:h | [G7/B]:q.": 1 + 2 + 1.5,
		"C4 D4 E4":                         3,
		"C4:e.stac D4:q..leg E4:h@0.5":     0.5 + 1.5 + 2,
	}
	c := notation.NewCompiler()
	for src, want := range cases {
		events, _, err := c.Compile(src, defaultsAt(100))
		require.NoError(t, err, src)
		sum := 0.0
		for _, e := range events {
			sum += e.DurationBeats
		}
		assert.InDelta(t, want, sum, 1e-9, src)
	}
}

func TestMonotonicTimes(t *testing.T) {
	c := notation.NewCompiler()
	events, _, err := c.Compile("C4:e D4:e E4:q r:q F4:h | G4:w | [C]:q [F/A]:q r:h", defaultsAt(90))
	require.NoError(t, err)
	for i := 1; i < len(events); i++ {
		assert.GreaterOrEqual(t, events[i].Time, events[i-1].Time)
	}
}

func TestVelocityFloorAndClamp(t *testing.T) {
	c := notation.NewCompiler()
	events, diags, err := c.Compile("C4:q@0.0 D4:q@5 E4:q@-1 F4:q@0.1.leg G4:q@0.5.ghost A4:q@0.95.accent", defaultsAt(120))
	require.NoError(t, err)
	require.Len(t, events, 6)
	for _, e := range events {
		assert.GreaterOrEqual(t, e.Velocity, timeline.MinVelocity, e.String())
		assert.LessOrEqual(t, e.Velocity, 1.0, e.String())
	}
	assert.InDelta(t, 1.0, events[1].Velocity, 1e-9)
	assert.InDelta(t, 0.3, events[4].Velocity, 1e-9, "ghost floors at 0.3")
	assert.InDelta(t, 1.0, events[5].Velocity, 1e-9, "accent caps at 1.0")
	assert.Len(t, diags.WithCode(notation.CodeVelocityClamped), 2)
	assert.NotEmpty(t, diags.WithCode(notation.CodeVelocityFloor))
}

func TestDefaultVelocityZeroFloors(t *testing.T) {
	d := defaultsAt(120)
	d.Velocity = notation.Ptr(0.0)
	d.Articulation = notation.Ptr(0.0)
	c := notation.NewCompiler()
	events, _, err := c.Compile("C4:q D4:q", d)
	require.NoError(t, err)
	require.Len(t, events, 2)
	for _, e := range events {
		assert.InDelta(t, timeline.MinVelocity, e.Velocity, 1e-9)
		assert.Zero(t, e.Articulation)
	}
}

func TestUnsetDefaultsUseStandardValues(t *testing.T) {
	c := notation.NewCompiler()
	events, _, err := c.Compile("C4:q", notation.Defaults{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.InDelta(t, notation.DefaultVelocity, events[0].Velocity, 1e-9)
	assert.InDelta(t, notation.DefaultArticulation, events[0].Articulation, 1e-9)
}

func TestAccentAppliesToOneToken(t *testing.T) {
	c := notation.NewCompiler()
	events, _, err := c.Compile("C4:q@0.6.accent D4:q", defaultsAt(120))
	require.NoError(t, err)
	assert.InDelta(t, 0.8, events[0].Velocity, 1e-9)
	assert.InDelta(t, 0.6, events[1].Velocity, 1e-9)
}

func TestUnknownArticulationKeepsDefault(t *testing.T) {
	d := defaultsAt(120)
	d.Articulation = notation.Ptr(0.5)
	c := notation.NewCompiler()
	events, diags, err := c.Compile("C4:q@0.7.wobble", d)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.InDelta(t, 0.5, events[0].Articulation, 1e-9)
	assert.InDelta(t, 0.7, events[0].Velocity, 1e-9)
	assert.Len(t, diags.WithCode(notation.CodeArticulation), 1)
}

func TestUnresolvableDurationDefaultsToQuarter(t *testing.T) {
	c := notation.NewCompiler()
	events, diags, err := c.Compile("C4:x D4:qq", defaultsAt(120))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.InDelta(t, 1.0, events[0].DurationBeats, 1e-9)
	assert.InDelta(t, 1.0, events[1].DurationBeats, 1e-9)
	assert.Len(t, diags.WithCode(notation.CodeDuration), 2)
}

func TestNamedChordInversion(t *testing.T) {
	c := notation.NewCompiler()
	events, _, err := c.Compile("[C/E]:h", defaultsAt(120))
	require.NoError(t, err)
	require.Len(t, events, 1)
	c3, _ := theory.ParsePitch("C3")
	assert.Equal(t, timeline.KindChord, events[0].Kind)
	assert.Equal(t, []int{c3, 64, 67}, events[0].Pitches)
}

func TestChordLiteralWithSpacesIsOneToken(t *testing.T) {
	c := notation.NewCompiler()
	events, _, err := c.Compile("[C4 E4 G4]:q@0.9 [ D4  F4 ]:q", defaultsAt(120))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, []int{60, 64, 67}, events[0].Pitches)
	assert.Equal(t, []int{62, 65}, events[1].Pitches)
	assert.InDelta(t, 0.5, events[1].Time, 1e-9)
}

func TestStructuralErrors(t *testing.T) {
	c := notation.NewCompiler()

	_, _, err := c.Compile("C4:q [C4 E4", defaultsAt(120))
	var ce *notation.CompileError
	require.ErrorAs(t, err, &ce)
	assert.ErrorIs(t, err, notation.ErrUnterminatedChord)
	assert.Equal(t, "[C4 E4", ce.Token)

	_, _, err = c.Compile("C4:q ] D4", defaultsAt(120))
	assert.ErrorIs(t, err, notation.ErrUnbalancedBracket)

	_, _, err = c.Compile("   ", defaultsAt(120))
	assert.ErrorIs(t, err, notation.ErrEmptyNotation)

	_, _, err = c.Compile("C4", defaultsAt(400))
	assert.ErrorIs(t, err, notation.ErrTempo)
}

func TestBadTokenIsSkipped(t *testing.T) {
	c := notation.NewCompiler()
	events, diags, err := c.Compile("[Cfoo]:h H4:q D4:q", defaultsAt(120))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.InDelta(t, 3.0, events[0].StartBeat, 1e-9, "failed tokens keep their place")
	assert.True(t, diags.HasErrors())
	assert.Len(t, diags.WithCode(notation.CodeBadToken), 2)
	assert.Len(t, diags.WithCode(notation.CodeCountMismatch), 1)
}

func TestStrictModeFailsOnBadToken(t *testing.T) {
	c := notation.NewCompiler(notation.WithStrict(true))
	_, _, err := c.Compile("C4:q [Cfoo]:h", defaultsAt(120))
	var ce *notation.CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "[Cfoo]:h", ce.Token)
	assert.True(t, errors.Is(err, theory.ErrUnknownChord))
}

func TestRestCollapse(t *testing.T) {
	c := notation.NewCompiler()
	events, diags, err := c.Compile("r:q r:q r:q r:q r:q C4:q", defaultsAt(120))
	require.NoError(t, err)
	require.Len(t, events, 5)
	assert.Equal(t, timeline.KindRest, events[3].Kind)
	assert.InDelta(t, 4.0, events[3].DurationBeats, 1e-9)
	assert.InDelta(t, 7.0, events[4].StartBeat, 1e-9)
	assert.Len(t, diags.WithCode(notation.CodeRestCollapsed), 1)
	assert.Len(t, diags.WithCode(notation.CodeRestRatio), 1)

	off := notation.NewCompiler(notation.WithMaxRestRun(0))
	events, diags, err = off.Compile("r:q r:q r:q r:q r:q C4:q", defaultsAt(120))
	require.NoError(t, err)
	assert.Len(t, events, 6)
	assert.Empty(t, diags.WithCode(notation.CodeRestCollapsed))
}

func TestAdvisoryDiagnostics(t *testing.T) {
	c := notation.NewCompiler()
	d := defaultsAt(120)
	d.Key = "C major"
	_, diags, err := c.Compile("C4:q@0.3 D4:q@0.9 F#4:w", d)
	require.NoError(t, err)
	assert.Len(t, diags.WithCode(notation.CodeDynamicsJump), 1)
	assert.Len(t, diags.WithCode(notation.CodeOutOfKey), 1)
	assert.Len(t, diags.WithCode(notation.CodeMeasureOverflow), 1)
	assert.False(t, diags.HasErrors())
}

func TestTimeSignature(t *testing.T) {
	c := notation.NewCompiler()
	d := defaultsAt(60)
	d.TimeSignature = "3/4"
	events, _, err := c.Compile("C4:h. | D4:q", d)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, events[1].Time, 1e-9)
}

func TestCompileVoices(t *testing.T) {
	c := notation.NewCompiler()
	program := 33
	transpose := -12
	d := defaultsAt(120)
	d.Reverb = 0.5

	session, diags, err := c.CompileVoices([]notation.VoiceSpec{
		{Channel: 1, Notation: "C5:q E5:q G5:h"},
		{Channel: 2, Notation: "C4:w", Transpose: &transpose, Program: &program},
	}, d)
	require.NoError(t, err)
	assert.False(t, diags.HasErrors())
	assert.Equal(t, []int{1, 2}, session.Channels())
	assert.Equal(t, 120.0, session.BPM)

	bass := session.Voices[2].Events
	require.Len(t, bass, 3)
	assert.Equal(t, timeline.KindProgram, bass[0].Kind)
	assert.Equal(t, uint8(33), bass[0].Program)
	assert.Equal(t, timeline.KindControl, bass[1].Kind)
	assert.Equal(t, notation.ControllerReverbSend, bass[1].Control.Controller)
	assert.Equal(t, uint8(64), bass[1].Control.Value)
	assert.Equal(t, []int{48}, bass[2].Pitches)
	assert.InDelta(t, 0.8+0.5*0.15, bass[2].Articulation, 1e-9)

	_, _, err = c.CompileVoices([]notation.VoiceSpec{{Channel: 17, Notation: "C4"}}, d)
	assert.ErrorIs(t, err, timeline.ErrChannelRange)

	_, _, err = c.CompileVoices([]notation.VoiceSpec{{Channel: 1, Notation: "C4"}, {Channel: 2, Notation: "[C4"}}, d)
	var ce *notation.CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 2, ce.Channel)
}
