package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"go-perform/notation"
)

// VoiceConfig is one voice of a performance file.
type VoiceConfig struct {
	Channel      int      `yaml:"channel"`
	Notation     string   `yaml:"notation"`
	Velocity     *float64 `yaml:"velocity,omitempty"`
	Articulation *float64 `yaml:"articulation,omitempty"`
	Transpose    *int     `yaml:"transpose,omitempty"`
	Swing        *float64 `yaml:"swing,omitempty"`
	Program      *int     `yaml:"program,omitempty"`
	Key          string   `yaml:"key,omitempty"`
}

// Performance is a multi-voice piece read from YAML:
//
//	label: intro
//	defaults:
//	  bpm: 96
//	voices:
//	  - channel: 1
//	    notation: "C4:q E4:q G4:h"
//	  - channel: 2
//	    notation: "[C3 G3]:w"
//	    program: 33
type Performance struct {
	Label    string          `yaml:"label,omitempty"`
	Defaults *DefaultsConfig `yaml:"defaults,omitempty"`
	Voices   []VoiceConfig   `yaml:"voices"`
}

var ErrNoVoices = errors.New("performance has no voices")

// LoadPerformance reads a performance file.
func LoadPerformance(path string) (*Performance, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p Performance
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(p.Voices) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoVoices)
	}
	return &p, nil
}

// Specs converts the voices for the compiler.
func (p *Performance) Specs() []notation.VoiceSpec {
	specs := make([]notation.VoiceSpec, len(p.Voices))
	for i, v := range p.Voices {
		specs[i] = notation.VoiceSpec{
			Channel:      v.Channel,
			Notation:     v.Notation,
			Velocity:     v.Velocity,
			Articulation: v.Articulation,
			Transpose:    v.Transpose,
			Swing:        v.Swing,
			Program:      v.Program,
			Key:          v.Key,
		}
	}
	return specs
}

// MergeDefaults overlays the file's defaults on base. Only fields set in
// the file override; an explicit velocity or articulation of 0 counts as set.
func (p *Performance) MergeDefaults(base notation.Defaults) notation.Defaults {
	if p.Defaults == nil {
		return base
	}
	d := p.Defaults
	if d.BPM != 0 {
		base.BPM = d.BPM
	}
	if d.Velocity != nil {
		base.Velocity = d.Velocity
	}
	if d.Articulation != nil {
		base.Articulation = d.Articulation
	}
	if d.TimeSignature != "" {
		base.TimeSignature = d.TimeSignature
	}
	if d.Swing != 0 {
		base.Swing = d.Swing
	}
	if d.Reverb != 0 {
		base.Reverb = d.Reverb
	}
	if d.Transpose != 0 {
		base.Transpose = d.Transpose
	}
	if d.Octave != 0 {
		base.Octave = d.Octave
	}
	if d.Key != "" {
		base.Key = d.Key
	}
	return base
}
