package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"go-perform/notation"
	"go-perform/timing"
)

// DefaultsConfig holds the notation defaults applied to every voice.
type DefaultsConfig struct {
	BPM           float64  `yaml:"bpm,omitempty"`
	Velocity      *float64 `yaml:"velocity,omitempty"`
	Articulation  *float64 `yaml:"articulation,omitempty"`
	TimeSignature string   `yaml:"timeSignature,omitempty"`
	Swing         float64  `yaml:"swing,omitempty"`
	Reverb        float64  `yaml:"reverb,omitempty"`
	Transpose     int      `yaml:"transpose,omitempty"`
	Octave        int      `yaml:"octave,omitempty"`
	Key           string   `yaml:"key,omitempty"`
}

// OutputConfig defines the MIDI output
type OutputConfig struct {
	PortName    string        `yaml:"portName,omitempty"`
	Channel     int           `yaml:"channel"`
	QueueSize   int           `yaml:"queueSize"`
	SendTimeout time.Duration `yaml:"sendTimeout"`
}

// ClockConfig selects the timing backend
type ClockConfig struct {
	Precise    bool          `yaml:"precise"`
	SpinWindow time.Duration `yaml:"spinWindow,omitempty"`
}

// CompilerConfig tunes the notation compiler
type CompilerConfig struct {
	Strict     bool `yaml:"strict,omitempty"`
	MaxRestRun int  `yaml:"maxRestRun"`
}

// LogConfig controls the process logger
type LogConfig struct {
	Level string `yaml:"level"`
	File  bool   `yaml:"file"`
}

// Config is the main configuration structure
type Config struct {
	Defaults DefaultsConfig `yaml:"defaults"`
	Output   OutputConfig   `yaml:"output"`
	Clock    ClockConfig    `yaml:"clock"`
	Compiler CompilerConfig `yaml:"compiler"`
	Log      LogConfig      `yaml:"log"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Defaults: DefaultsConfig{
			BPM:           120,
			Velocity:      notation.Ptr(notation.DefaultVelocity),
			Articulation:  notation.Ptr(notation.DefaultArticulation),
			TimeSignature: "4/4",
			Octave:        4,
		},
		Output: OutputConfig{
			Channel:     1,
			QueueSize:   256,
			SendTimeout: 2 * time.Millisecond,
		},
		Clock: ClockConfig{
			Precise:    true,
			SpinWindow: time.Millisecond,
		},
		Compiler: CompilerConfig{
			MaxRestRun: 3,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "go-perform"), nil
}

// ConfigPath returns the full path to config.yaml
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads the config from disk, or returns defaults if not found
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}
	return LoadFrom(path)
}

// LoadFrom reads the config at path. Keys missing from the file keep their
// default values; a missing file yields the defaults.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to the default path
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

// SaveTo writes the config to path, creating its directory.
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate reports every invalid field.
func (c *Config) Validate() error {
	var err error
	d := c.Defaults
	if d.BPM != 0 && !timing.ValidBPM(d.BPM) {
		err = multierr.Append(err, fmt.Errorf("defaults.bpm %v outside %v-%v", d.BPM, timing.MinBPM, timing.MaxBPM))
	}
	for name, v := range map[string]*float64{
		"velocity":     d.Velocity,
		"articulation": d.Articulation,
		"swing":        &d.Swing,
		"reverb":       &d.Reverb,
	} {
		if v != nil && (*v < 0 || *v > 1) {
			err = multierr.Append(err, fmt.Errorf("defaults.%s %v outside 0-1", name, *v))
		}
	}
	if _, perr := timing.ParseTimeSignature(d.TimeSignature); perr != nil {
		err = multierr.Append(err, fmt.Errorf("defaults.timeSignature: %w", perr))
	}
	if c.Output.Channel < 1 || c.Output.Channel > 16 {
		err = multierr.Append(err, fmt.Errorf("output.channel %d outside 1-16", c.Output.Channel))
	}
	if c.Output.QueueSize < 0 {
		err = multierr.Append(err, fmt.Errorf("output.queueSize %d is negative", c.Output.QueueSize))
	}
	if c.Compiler.MaxRestRun < 0 {
		err = multierr.Append(err, fmt.Errorf("compiler.maxRestRun %d is negative", c.Compiler.MaxRestRun))
	}
	if _, lerr := zapcore.ParseLevel(c.Log.Level); lerr != nil {
		err = multierr.Append(err, fmt.Errorf("log.level: %w", lerr))
	}
	return err
}

// NotationDefaults converts the defaults section for the compiler.
func (c *Config) NotationDefaults() notation.Defaults {
	d := c.Defaults
	return notation.Defaults{
		BPM:           d.BPM,
		Velocity:      d.Velocity,
		Articulation:  d.Articulation,
		TimeSignature: d.TimeSignature,
		Swing:         d.Swing,
		Reverb:        d.Reverb,
		Transpose:     d.Transpose,
		Octave:        d.Octave,
		Key:           d.Key,
	}
}

// CompilerOptions converts the compiler section.
func (c *Config) CompilerOptions() []notation.Option {
	return []notation.Option{
		notation.WithStrict(c.Compiler.Strict),
		notation.WithMaxRestRun(c.Compiler.MaxRestRun),
	}
}
