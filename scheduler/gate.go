package scheduler

import "time"

// MinGate is the shortest note the scheduler will dispatch.
const MinGate = 50 * time.Millisecond

// GateRatio maps articulation to the fraction of the nominal duration a note
// actually sounds. Staccato (<= 0.1) holds half the value, up to 0.7 the ratio
// rises to 85%, and above that it reaches 95% for single notes or 105% for
// chords so legato chords overlap their successor slightly.
func GateRatio(articulation float64, chord bool) float64 {
	switch {
	case articulation <= 0.1:
		return 0.5
	case articulation <= 0.7:
		return 0.5 + (articulation-0.1)/0.6*0.35
	}
	top := 0.95
	if chord {
		top = 1.05
	}
	if articulation > 1 {
		articulation = 1
	}
	return 0.85 + (articulation-0.7)/0.3*(top-0.85)
}

// GateTime returns how long a note of the given nominal length sounds.
func GateTime(articulation, seconds float64, chord bool) time.Duration {
	gate := time.Duration(seconds * GateRatio(articulation, chord) * float64(time.Second))
	return max(gate, MinGate)
}
