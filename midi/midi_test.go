package midi

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomidi "gitlab.com/gomidi/midi/v2"
)

func TestRecorderEncodesChannels(t *testing.T) {
	r := NewRecorder()
	require.NoError(t, r.NoteOn(1, 60, 100))
	require.NoError(t, r.NoteOff(16, 60))
	require.NoError(t, r.ControlChange(10, 91, 64))
	require.NoError(t, r.ProgramChange(2, 33))

	msgs := r.Messages()
	require.Len(t, msgs, 4)

	var ch, key, vel, cc, val, prog uint8
	require.True(t, msgs[0].GetNoteOn(&ch, &key, &vel))
	assert.Equal(t, []uint8{0, 60, 100}, []uint8{ch, key, vel})

	require.True(t, msgs[1].GetNoteOff(&ch, &key, &vel))
	assert.Equal(t, uint8(15), ch)

	require.True(t, msgs[2].GetControlChange(&ch, &cc, &val))
	assert.Equal(t, []uint8{9, 91, 64}, []uint8{ch, cc, val})

	require.True(t, msgs[3].GetProgramChange(&ch, &prog))
	assert.Equal(t, []uint8{1, 33}, []uint8{ch, prog})
}

func TestChannelRange(t *testing.T) {
	r := NewRecorder()
	assert.ErrorIs(t, r.NoteOn(0, 60, 100), ErrChannel)
	assert.ErrorIs(t, r.NoteOff(17, 60), ErrChannel)
	assert.Zero(t, r.Len())
}

func TestAllNotesOff(t *testing.T) {
	r := NewRecorder()
	require.NoError(t, r.AllNotesOff(3))
	msgs := r.Messages()
	require.Len(t, msgs, 2)

	var ch, cc, val uint8
	require.True(t, msgs[0].GetControlChange(&ch, &cc, &val))
	assert.Equal(t, []uint8{2, ControllerAllNotesOff, 0}, []uint8{ch, cc, val})
	require.True(t, msgs[1].GetControlChange(&ch, &cc, &val))
	assert.Equal(t, ControllerSustain, cc)

	r.Reset()
	require.NoError(t, r.AllNotesOff(AllChannels))
	assert.Equal(t, 32, r.Len())
}

func TestTeeJoinsErrors(t *testing.T) {
	a, b := NewRecorder(), NewRecorder()
	failing := NewSink(func(gomidi.Message) error { return errors.New("port gone") })

	err := Tee(a, failing, b).NoteOn(1, 64, 90)
	assert.EqualError(t, err, "port gone")
	assert.Equal(t, 1, a.Len())
	assert.Equal(t, 1, b.Len())
}

func TestMatchPort(t *testing.T) {
	names := []string{"Midi Through Port-0", "IAC Driver Bus 1", "FluidSynth virt"}

	i, ok := matchPort(names, "IAC Driver Bus 1")
	assert.True(t, ok)
	assert.Equal(t, 1, i)

	i, ok = matchPort(names, "fluid")
	assert.True(t, ok)
	assert.Equal(t, 2, i)

	_, ok = matchPort(names, "launchpad")
	assert.False(t, ok)
}

func TestPortWatcherReportsChanges(t *testing.T) {
	var mu sync.Mutex
	current := []string{"A", "B"}

	w := NewPortWatcher(nil)
	w.pollRate = 5 * time.Millisecond
	w.list = func(context.Context) ([]string, error) {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), current...), nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	got := map[string]PortEventType{}
	for len(got) < 2 {
		ev := <-w.Events()
		got[ev.Name] = ev.Type
	}
	assert.Equal(t, map[string]PortEventType{"A": PortConnected, "B": PortConnected}, got)
	assert.Equal(t, []string{"A", "B"}, w.Ports())

	mu.Lock()
	current = []string{"B"}
	mu.Unlock()

	select {
	case ev := <-w.Events():
		assert.Equal(t, PortEvent{Type: PortDisconnected, Name: "A"}, ev)
	case <-time.After(time.Second):
		t.Fatal("no disconnect event")
	}
	assert.False(t, w.Has("A"))
	assert.True(t, w.Has("B"))

	cancel()
	for range w.Events() {
	}
}
