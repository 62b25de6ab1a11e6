package notation

import "go-perform/timeline"

// Defaults are the global settings a notation string is compiled against.
type Defaults struct {
	BPM           float64
	Velocity      *float64 // 0..1, floored at timeline.MinVelocity; nil is DefaultVelocity
	Articulation  *float64 // 0 staccato .. 1 legato; nil is DefaultArticulation
	TimeSignature string   // "N/D", empty means 4/4
	Swing         float64  // 0..1
	Reverb        float64  // 0..1
	Transpose     int      // semitones
	Octave        int      // octave for named chords
	Key           string   // optional "<root> <scale>" for out-of-key advice
}

// Values used when Defaults leaves velocity or articulation unset.
const (
	DefaultVelocity     = 0.8
	DefaultArticulation = 0.8
)

// Ptr returns a pointer to v, for the optional fields of Defaults and
// VoiceSpec.
func Ptr[T any](v T) *T {
	return &v
}

// DefaultDefaults returns the settings used when nothing is configured.
func DefaultDefaults() Defaults {
	return Defaults{
		BPM:           120,
		Velocity:      Ptr(DefaultVelocity),
		Articulation:  Ptr(DefaultArticulation),
		TimeSignature: "4/4",
		Octave:        4,
	}
}

// normalized fills unset fields and clamps ranged ones. Velocity and
// Articulation are always non-nil afterwards.
func (d Defaults) normalized() Defaults {
	if d.BPM == 0 {
		d.BPM = DefaultDefaults().BPM
	}
	vel, art := DefaultVelocity, DefaultArticulation
	if d.Velocity != nil {
		vel = *d.Velocity
	}
	if d.Articulation != nil {
		art = *d.Articulation
	}
	d.Velocity = Ptr(floorVelocity(clamp01(vel)))
	d.Articulation = Ptr(clamp01(art))
	d.Swing = clamp01(d.Swing)
	d.Reverb = clamp01(d.Reverb)
	if d.Octave == 0 {
		d.Octave = DefaultDefaults().Octave
	}
	return d
}

// VoiceSpec is one voice of a multi-voice performance. Nil overrides fall
// back to the shared Defaults.
type VoiceSpec struct {
	Channel      int
	Notation     string
	Velocity     *float64
	Articulation *float64
	Transpose    *int
	Swing        *float64
	Program      *int // program change sent at the start of the voice
	Key          string
}

func (v VoiceSpec) apply(d Defaults) Defaults {
	if v.Velocity != nil {
		d.Velocity = v.Velocity
	}
	if v.Articulation != nil {
		d.Articulation = v.Articulation
	}
	if v.Transpose != nil {
		d.Transpose = *v.Transpose
	}
	if v.Swing != nil {
		d.Swing = *v.Swing
	}
	if v.Key != "" {
		d.Key = v.Key
	}
	return d
}

func clamp01(v float64) float64 {
	if v != v || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func floorVelocity(v float64) float64 {
	if v < timeline.MinVelocity {
		return timeline.MinVelocity
	}
	return v
}
