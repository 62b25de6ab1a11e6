package notation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// velocityLiteral matches the numeric velocity right after '@'.
var velocityLiteral = regexp.MustCompile(`@(-?[0-9]+(?:\.[0-9]+)?)`)

// Advisory thresholds.
const (
	restRatioLimit    = 0.30
	dynamicsJumpLimit = 0.4
)

// repairVelocities clamps out-of-range velocity literals to [0,1].
func repairVelocities(src string) (string, Diagnostics) {
	var diags Diagnostics
	out := velocityLiteral.ReplaceAllStringFunc(src, func(m string) string {
		v, err := strconv.ParseFloat(m[1:], 64)
		if err != nil || (v >= 0 && v <= 1) {
			return m
		}
		clamped := clamp01(v)
		repl := "@" + strconv.FormatFloat(clamped, 'f', -1, 64)
		diags = append(diags, Diagnostic{
			Severity: SeverityWarning,
			Code:     CodeVelocityClamped,
			Token:    m,
			Message:  fmt.Sprintf("velocity %v clamped to %v", v, clamped),
		})
		return repl
	})
	return out, diags
}

func isRestToken(tok string) bool {
	body, _, _ := strings.Cut(tok, ":")
	return body == "r" || body == "rest"
}

// collapseRests caps runs of consecutive rests inside a measure at maxRun and
// replaces the remainder with a single whole-note rest. maxRun <= 0 disables
// the repair.
func collapseRests(measures []measure, maxRun int) ([]measure, Diagnostics) {
	if maxRun <= 0 {
		return measures, nil
	}
	var diags Diagnostics
	out := make([]measure, len(measures))
	for mi, m := range measures {
		var kept measure
		run := 0
		dropped := 0
		flush := func() {
			if dropped > 0 {
				kept = append(kept, "r:w")
				diags = append(diags, Diagnostic{
					Severity: SeverityWarning,
					Code:     CodeRestCollapsed,
					Measure:  mi,
					Message:  fmt.Sprintf("%d consecutive rests collapsed to %d plus one whole rest", run, maxRun),
				})
			}
			run, dropped = 0, 0
		}
		for _, tok := range m {
			if !isRestToken(tok) {
				flush()
				kept = append(kept, tok)
				continue
			}
			run++
			if run > maxRun {
				dropped++
				continue
			}
			kept = append(kept, tok)
		}
		flush()
		out[mi] = kept
	}
	return out, diags
}

// adviseRestRatio flags inputs that are mostly silence.
func adviseRestRatio(measures []measure) Diagnostics {
	total, rests := 0, 0
	for _, m := range measures {
		for _, tok := range m {
			total++
			if isRestToken(tok) {
				rests++
			}
		}
	}
	if total == 0 {
		return nil
	}
	ratio := float64(rests) / float64(total)
	if ratio <= restRatioLimit {
		return nil
	}
	return Diagnostics{{
		Severity: SeverityInfo,
		Code:     CodeRestRatio,
		Message:  fmt.Sprintf("%.0f%% of tokens are rests", ratio*100),
	}}
}
