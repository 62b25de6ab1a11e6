package transport_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-perform/clock"
	"go-perform/transport"
)

type fakeScheduler struct {
	calls []string
}

func (f *fakeScheduler) Suspend()       { f.calls = append(f.calls, "suspend") }
func (f *fakeScheduler) Resume()        { f.calls = append(f.calls, "resume") }
func (f *fakeScheduler) CancelAll() int { f.calls = append(f.calls, "cancel"); return 0 }
func (f *fakeScheduler) FlushImmediate() int {
	f.calls = append(f.calls, "flush")
	return 0
}

type fakeSilencer struct{ n int }

func (f *fakeSilencer) Silence() { f.n++ }

func newTransport() (*transport.Transport, *clock.SimulatedSource, *fakeScheduler, *fakeSilencer) {
	src := clock.NewSimulatedSource()
	sched := &fakeScheduler{}
	sil := &fakeSilencer{}
	tr := transport.New(clock.NewPreciseClock(src), sched, sil, nil)
	sched.calls = nil
	return tr, src, sched, sil
}

func TestTransitions(t *testing.T) {
	tr, _, sched, sil := newTransport()
	assert.Equal(t, transport.Stopped, tr.State())

	require.NoError(t, tr.Play())
	assert.Equal(t, transport.Playing, tr.State())
	require.NoError(t, tr.Pause())
	assert.Equal(t, transport.Paused, tr.State())
	require.NoError(t, tr.Play())
	require.NoError(t, tr.Stop())
	assert.Equal(t, transport.Stopped, tr.State())

	assert.Equal(t, []string{"resume", "flush", "suspend", "resume", "flush", "suspend", "cancel"}, sched.calls)
	assert.Equal(t, 2, sil.n, "pause and stop both silence")
}

func TestIllegalTransitions(t *testing.T) {
	tr, _, _, _ := newTransport()

	var se *transport.StateError
	require.ErrorAs(t, tr.Pause(), &se)
	assert.Equal(t, "pause", se.Op)
	assert.Equal(t, transport.Stopped, se.From)
	require.ErrorAs(t, tr.Stop(), &se)
	assert.Equal(t, transport.Stopped, tr.State())

	require.NoError(t, tr.Play())
	require.ErrorAs(t, tr.Play(), &se)
	assert.Equal(t, transport.Playing, tr.State())
}

func TestSetBPM(t *testing.T) {
	tr, _, _, _ := newTransport()
	assert.Equal(t, transport.DefaultBPM, tr.BPM())

	for _, bad := range []float64{0, 19.9, 300.1, -5} {
		var te *transport.TempoError
		require.ErrorAs(t, tr.SetBPM(bad), &te, "bpm %v", bad)
		assert.Equal(t, bad, te.BPM)
		assert.Equal(t, transport.DefaultBPM, tr.BPM())
	}

	require.NoError(t, tr.SetBPM(20))
	require.NoError(t, tr.SetBPM(300))
	require.NoError(t, tr.Play())
	require.NoError(t, tr.SetBPM(90))
	assert.Equal(t, 90.0, tr.BPM())
	assert.Equal(t, transport.Playing, tr.State())
}

func TestPositionTracksClock(t *testing.T) {
	tr, src, _, _ := newTransport()

	src.Advance(time.Second)
	assert.Zero(t, tr.Position())

	require.NoError(t, tr.Play())
	src.Advance(1500 * time.Millisecond)
	assert.Equal(t, 1500*time.Millisecond, tr.Position())

	require.NoError(t, tr.Pause())
	src.Advance(5 * time.Second)
	assert.Equal(t, 1500*time.Millisecond, tr.Position())

	require.NoError(t, tr.Play())
	src.Advance(500 * time.Millisecond)
	st := tr.Status()
	assert.Equal(t, 2*time.Second, st.Position)
	assert.InDelta(t, 4.0, st.Beats(), 1e-9)

	tr.Reset()
	assert.Zero(t, tr.Position())
	assert.Equal(t, transport.Stopped, tr.State())
	assert.Equal(t, 120.0, tr.BPM())
}
