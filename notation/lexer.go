package notation

import (
	"strings"
	"unicode"
)

// measure is the token list between two bar lines.
type measure []string

// lex splits notation into measures on '|' and each measure into tokens on
// whitespace. Both splits ignore separators inside a chord bracket, so
// "[C4 E4 G4]:q" stays one token.
func lex(src string) ([]measure, error) {
	var (
		measures []measure
		current  measure
		tok      strings.Builder
		depth    int
	)

	flushToken := func() {
		if tok.Len() > 0 {
			current = append(current, tok.String())
			tok.Reset()
		}
	}

	for _, r := range src {
		switch {
		case r == '[':
			if depth > 0 {
				return nil, &CompileError{Token: tok.String() + "[", Measure: len(measures), Err: ErrNestedBracket}
			}
			depth++
			tok.WriteRune(r)
		case r == ']':
			if depth == 0 {
				tok.WriteRune(r)
				return nil, &CompileError{Token: tok.String(), Measure: len(measures), Err: ErrUnbalancedBracket}
			}
			depth--
			tok.WriteRune(r)
		case depth > 0:
			if r == '|' {
				return nil, &CompileError{Token: tok.String(), Measure: len(measures), Err: ErrUnterminatedChord}
			}
			tok.WriteRune(r)
		case r == '|':
			flushToken()
			measures = append(measures, current)
			current = nil
		case unicode.IsSpace(r):
			flushToken()
		default:
			tok.WriteRune(r)
		}
	}
	if depth > 0 {
		return nil, &CompileError{Token: tok.String(), Measure: len(measures), Err: ErrUnterminatedChord}
	}
	flushToken()
	measures = append(measures, current)
	return measures, nil
}

// join renders measures back into notation text.
func join(measures []measure) string {
	parts := make([]string, len(measures))
	for i, m := range measures {
		parts[i] = strings.Join(m, " ")
	}
	return strings.Join(parts, " | ")
}

func tokenCount(measures []measure) int {
	n := 0
	for _, m := range measures {
		n += len(m)
	}
	return n
}
