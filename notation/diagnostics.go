package notation

import (
	"errors"
	"fmt"
)

// Severity ranks a diagnostic.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	}
	return "unknown"
}

// Diagnostic codes.
const (
	CodeRestCollapsed    = "rest-collapsed"
	CodeVelocityClamped  = "velocity-clamped"
	CodeVelocityFloor    = "velocity-floor"
	CodeVelocityParse    = "velocity-parse"
	CodeDuration         = "duration-default"
	CodeArticulation     = "articulation-unknown"
	CodeRestRatio        = "rest-ratio"
	CodeDynamicsJump     = "dynamics-jump"
	CodeMeasureOverflow  = "measure-overflow"
	CodeOutOfKey         = "out-of-key"
	CodeCountMismatch    = "count-mismatch"
	CodeBadToken         = "bad-token"
	CodeTransposeFolded  = "transpose-folded"
	CodeIgnoredRemainder = "ignored-remainder"
)

// Diagnostic is a non-fatal note about the input or a repair applied to it.
type Diagnostic struct {
	Severity Severity
	Code     string
	Channel  int // 0 for single-voice compiles
	Measure  int
	Token    string
	Message  string
}

func (d Diagnostic) String() string {
	loc := fmt.Sprintf("m%d", d.Measure)
	if d.Channel > 0 {
		loc = fmt.Sprintf("ch%d %s", d.Channel, loc)
	}
	if d.Token != "" {
		return fmt.Sprintf("%s %s [%s] %q: %s", d.Severity, d.Code, loc, d.Token, d.Message)
	}
	return fmt.Sprintf("%s %s [%s]: %s", d.Severity, d.Code, loc, d.Message)
}

// Diagnostics is the ordered list produced by a compile.
type Diagnostics []Diagnostic

// HasErrors reports whether any token was dropped.
func (ds Diagnostics) HasErrors() bool {
	for _, d := range ds {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// WithCode returns the diagnostics carrying code.
func (ds Diagnostics) WithCode(code string) Diagnostics {
	var out Diagnostics
	for _, d := range ds {
		if d.Code == code {
			out = append(out, d)
		}
	}
	return out
}

func (ds Diagnostics) withChannel(ch int) Diagnostics {
	for i := range ds {
		ds[i].Channel = ch
	}
	return ds
}

var (
	ErrEmptyNotation     = errors.New("empty notation")
	ErrUnterminatedChord = errors.New("unterminated chord bracket")
	ErrUnbalancedBracket = errors.New("unbalanced bracket")
	ErrNestedBracket     = errors.New("nested chord bracket")
	ErrTempo             = errors.New("tempo out of range 20-300")
	ErrMalformedChord    = errors.New("malformed chord literal")
	ErrMalformedToken    = errors.New("malformed token")
)

// CompileError aborts a compile. Token is empty for input-level failures.
type CompileError struct {
	Token   string
	Channel int
	Measure int
	Err     error
}

func (e *CompileError) Error() string {
	if e.Token == "" {
		return fmt.Sprintf("compile: %v", e.Err)
	}
	return fmt.Sprintf("compile: token %q in measure %d: %v", e.Token, e.Measure, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }
