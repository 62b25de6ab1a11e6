// Package notation compiles the compact performance notation into timed
// events.
//
// A notation string is a list of measures separated by '|'. Each measure holds
// whitespace separated tokens:
//
//	C4:q@0.8.leg      pitch, quarter, velocity 0.8, legato
//	D4:e.stac         pitch, eighth, staccato
//	[C4 E4 G4]:h      explicit chord
//	[Cmaj7/E]:w       named chord with slash bass
//	r:q  rest:h.      rests
package notation

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"go-perform/theory"
	"go-perform/timeline"
	"go-perform/timing"
)

const beatEpsilon = 1e-9

// Compiler turns notation into events. It is safe for concurrent use.
type Compiler struct {
	logger     *zap.Logger
	strict     bool
	maxRestRun int
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithLogger sets the logger auto-repairs are reported to.
func WithLogger(l *zap.Logger) Option {
	return func(c *Compiler) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithStrict makes any token-level failure abort the compile.
func WithStrict(strict bool) Option {
	return func(c *Compiler) {
		c.strict = strict
	}
}

// WithMaxRestRun sets how many consecutive rests survive the rest-collapsing
// repair. Zero disables it.
func WithMaxRestRun(n int) Option {
	return func(c *Compiler) {
		c.maxRestRun = n
	}
}

// NewCompiler creates a compiler. Rest runs are capped at 3 by default.
func NewCompiler(opts ...Option) *Compiler {
	c := &Compiler{
		logger:     zap.NewNop(),
		maxRestRun: 3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// voiceState is the per-voice state carried from token to token.
type voiceState struct {
	velocity     float64 // sticky, updated by explicit velocities
	articulation float64 // voice default
	lastExplicit float64 // previous explicit velocity, -1 if none
	key          *theory.Key
	octave       int
}

// Compile compiles a single voice. Events are returned in notation order with
// non-decreasing Time. No effects are applied.
func (c *Compiler) Compile(src string, d Defaults) ([]timeline.Event, Diagnostics, error) {
	if strings.TrimSpace(src) == "" {
		return nil, nil, &CompileError{Err: ErrEmptyNotation}
	}
	d = d.normalized()
	if !timing.ValidBPM(d.BPM) {
		return nil, nil, &CompileError{Err: fmt.Errorf("%w: %v", ErrTempo, d.BPM)}
	}
	sig, err := timing.ParseTimeSignature(d.TimeSignature)
	if err != nil {
		return nil, nil, &CompileError{Err: err}
	}

	var diags Diagnostics
	st := &voiceState{
		velocity:     *d.Velocity,
		articulation: *d.Articulation,
		lastExplicit: -1,
		octave:       d.Octave,
	}
	if d.Key != "" {
		k, err := theory.ParseKey(d.Key)
		if err != nil {
			diags = append(diags, Diagnostic{Severity: SeverityWarning, Code: CodeOutOfKey, Message: err.Error()})
		} else {
			st.key = &k
		}
	}

	repaired, vd := repairVelocities(src)
	diags = append(diags, vd...)
	measures, err := lex(repaired)
	if err != nil {
		return nil, diags, err
	}
	measures, rd := collapseRests(measures, c.maxRestRun)
	diags = append(diags, rd...)
	if len(vd) > 0 || len(rd) > 0 {
		c.logger.Info("notation repaired",
			zap.Int("repairs", len(vd)+len(rd)),
			zap.String("result", join(measures)))
	}
	diags = append(diags, adviseRestRatio(measures)...)

	perMeasure := sig.BeatsPerMeasure()
	events := make([]timeline.Event, 0, tokenCount(measures))
	for mi, m := range measures {
		beat := 0.0
		for _, text := range m {
			ev, beats, td, err := c.compileToken(text, st)
			for i := range td {
				td[i].Measure, td[i].Token = mi, text
			}
			diags = append(diags, td...)
			if err != nil {
				if c.strict {
					return nil, diags, &CompileError{Token: text, Measure: mi, Err: err}
				}
				diags = append(diags, Diagnostic{
					Severity: SeverityError,
					Code:     CodeBadToken,
					Measure:  mi,
					Token:    text,
					Message:  err.Error(),
				})
				beat += beats
				continue
			}
			ev.StartBeat = beat
			ev.Measure = mi
			ev.Time = timing.MeasureTime(mi, beat, sig, d.BPM)
			events = append(events, ev)
			beat += beats
		}
		if beat > perMeasure+beatEpsilon {
			diags = append(diags, Diagnostic{
				Severity: SeverityInfo,
				Code:     CodeMeasureOverflow,
				Measure:  mi,
				Message:  fmt.Sprintf("measure holds %.3g beats, meter %s allows %.3g", beat, sig, perMeasure),
			})
		}
	}

	if want := tokenCount(measures); want != len(events) {
		diags = append(diags, Diagnostic{
			Severity: SeverityInfo,
			Code:     CodeCountMismatch,
			Message:  fmt.Sprintf("expected %d events, produced %d", want, len(events)),
		})
	}
	c.logDiagnostics(diags)
	return events, diags, nil
}

// compileToken builds the event for one token. The returned beat count is
// valid even on error so the caller can keep later tokens in place.
func (c *Compiler) compileToken(text string, st *voiceState) (timeline.Event, float64, Diagnostics, error) {
	body, sfx, hasSfx := splitToken(text)
	s, diags := parseSuffix(sfx, hasSfx)

	kind, pitches, err := parseBody(body, st.octave)
	if err != nil {
		return timeline.Event{}, s.beats, diags, err
	}
	if kind == timeline.KindRest {
		return timeline.Event{Kind: kind, DurationBeats: s.beats}, s.beats, diags, nil
	}

	if s.hasVelocity {
		v := clamp01(s.velocity)
		if v < timeline.MinVelocity {
			diags = append(diags, Diagnostic{
				Severity: SeverityInfo,
				Code:     CodeVelocityFloor,
				Message:  fmt.Sprintf("velocity %v raised to %v", v, timeline.MinVelocity),
			})
		}
		v = floorVelocity(v)
		if st.lastExplicit >= 0 && math.Abs(v-st.lastExplicit) > dynamicsJumpLimit {
			diags = append(diags, Diagnostic{
				Severity: SeverityInfo,
				Code:     CodeDynamicsJump,
				Message:  fmt.Sprintf("velocity jumps from %.2f to %.2f", st.lastExplicit, v),
			})
		}
		st.velocity, st.lastExplicit = v, v
	}

	vel, art := st.velocity, st.articulation
	if s.artCode != "" {
		a, ok := articulations[s.artCode]
		if !ok {
			diags = append(diags, Diagnostic{
				Severity: SeverityWarning,
				Code:     CodeArticulation,
				Message:  fmt.Sprintf("unknown articulation %q, keeping %.2f", s.artCode, art),
			})
		} else {
			if a.set {
				art = a.value
			}
			vel = floorVelocity(math.Min(1, vel+a.velDelta))
		}
	}

	if st.key != nil {
		for _, p := range pitches {
			if !st.key.Contains(p) {
				diags = append(diags, Diagnostic{
					Severity: SeverityInfo,
					Code:     CodeOutOfKey,
					Message:  fmt.Sprintf("%s is outside %s", theory.PitchName(p), st.key),
				})
			}
		}
	}

	return timeline.Event{
		Kind:          kind,
		Pitches:       pitches,
		DurationBeats: s.beats,
		Velocity:      vel,
		Articulation:  art,
	}, s.beats, diags, nil
}

func (c *Compiler) logDiagnostics(diags Diagnostics) {
	for _, d := range diags {
		fields := []zap.Field{
			zap.String("code", d.Code),
			zap.Int("measure", d.Measure),
			zap.String("token", d.Token),
		}
		switch d.Severity {
		case SeverityError:
			c.logger.Warn(d.Message, fields...)
		case SeverityWarning:
			c.logger.Info(d.Message, fields...)
		default:
			c.logger.Debug(d.Message, fields...)
		}
	}
}

// CompileVoice compiles one voice of a performance and runs the effects
// chain on it.
func (c *Compiler) CompileVoice(spec VoiceSpec, d Defaults) (timeline.Voice, Diagnostics, error) {
	if spec.Channel < 1 || spec.Channel > 16 {
		return timeline.Voice{}, nil, &CompileError{
			Channel: spec.Channel,
			Err:     fmt.Errorf("%w: %d", timeline.ErrChannelRange, spec.Channel),
		}
	}
	vd := spec.apply(d).normalized()
	events, diags, err := c.Compile(spec.Notation, vd)
	diags = diags.withChannel(spec.Channel)
	if err != nil {
		var ce *CompileError
		if errors.As(err, &ce) {
			ce.Channel = spec.Channel
		}
		return timeline.Voice{}, diags, err
	}

	fx := Effects{
		BPM:       vd.BPM,
		Swing:     vd.Swing,
		Reverb:    vd.Reverb,
		Transpose: vd.Transpose,
		Program:   spec.Program,
	}
	events, fd := fx.Apply(events)
	diags = append(diags, fd.withChannel(spec.Channel)...)
	return timeline.Voice{Channel: spec.Channel, Events: events}, diags, nil
}

// CompileVoices compiles every voice independently and merges them into one
// session. Any voice failing to compile fails the whole call.
func (c *Compiler) CompileVoices(specs []VoiceSpec, d Defaults) (*timeline.Session, Diagnostics, error) {
	if len(specs) == 0 {
		return nil, nil, &CompileError{Err: ErrEmptyNotation}
	}
	d = d.normalized()
	session := timeline.NewSession("", d.BPM)
	var diags Diagnostics
	for _, spec := range specs {
		voice, vd, err := c.CompileVoice(spec, d)
		diags = append(diags, vd...)
		if err != nil {
			return nil, diags, err
		}
		if err := session.Add(voice); err != nil {
			return nil, diags, &CompileError{Channel: spec.Channel, Err: err}
		}
	}
	return session, diags, nil
}
