// Package debug builds the process logger.
package debug

import (
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// FileName is the log file written while the TUI owns the terminal.
const FileName = "debug.log"

// LogPath returns ~/.config/go-perform/debug.log
func LogPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "go-perform", FileName), nil
}

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	return cfg
}

// NewConsole logs to stderr.
func NewConsole(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig()), zapcore.Lock(os.Stderr), lvl)
	return zap.New(core, zap.AddCaller()), nil
}

// NewFile logs to path, truncating it. High-frequency messages are sampled
// per second: the first 10 of each pass, then every 100th. The returned
// func syncs and closes the file.
func NewFile(path, level string) (*zap.Logger, func(), error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, nil, err
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig()), zapcore.Lock(f), lvl)
	core = zapcore.NewSamplerWithOptions(core, time.Second, 10, 100)
	logger := zap.New(core)
	logger.Info("=== Debug logging started ===")
	closeFn := func() {
		_ = logger.Sync()
		_ = f.Close()
	}
	return logger, closeFn, nil
}

// New picks the file logger when toFile is set and the console otherwise.
func New(level string, toFile bool) (*zap.Logger, func(), error) {
	if !toFile {
		l, err := NewConsole(level)
		if err != nil {
			return nil, nil, err
		}
		return l, func() { _ = l.Sync() }, nil
	}
	path, err := LogPath()
	if err != nil {
		return nil, nil, err
	}
	return NewFile(path, level)
}
