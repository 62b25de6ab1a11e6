package scheduler

import (
	"math"
	"time"
)

// LatencyWindow is the number of samples kept for latency statistics.
const LatencyWindow = 100

// LatencyWarnThreshold is the dispatch lateness that gets logged.
const LatencyWarnThreshold = 15 * time.Millisecond

// LatencySummary describes the most recent dispatch latencies in
// milliseconds (actual minus expected).
type LatencySummary struct {
	Samples int
	AvgMs   float64
	MinMs   float64
	MaxMs   float64
	AbsAvg  float64
}

// latencyRing is a fixed window of signed samples.
type latencyRing struct {
	samples [LatencyWindow]float64
	next    int
	count   int
}

func (r *latencyRing) add(ms float64) {
	r.samples[r.next] = ms
	r.next = (r.next + 1) % LatencyWindow
	if r.count < LatencyWindow {
		r.count++
	}
}

func (r *latencyRing) summary() LatencySummary {
	if r.count == 0 {
		return LatencySummary{}
	}
	s := LatencySummary{
		Samples: r.count,
		MinMs:   math.Inf(1),
		MaxMs:   math.Inf(-1),
	}
	var sum, abs float64
	for _, v := range r.samples[:r.count] {
		sum += v
		abs += math.Abs(v)
		s.MinMs = math.Min(s.MinMs, v)
		s.MaxMs = math.Max(s.MaxMs, v)
	}
	s.AvgMs = sum / float64(r.count)
	s.AbsAvg = abs / float64(r.count)
	return s
}

func (r *latencyRing) reset() {
	*r = latencyRing{}
}
