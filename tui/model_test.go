package tui

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-perform/engine"
	"go-perform/midi"
	"go-perform/scheduler"
	"go-perform/transport"
)

type fakeEngine struct {
	state  transport.State
	bpm    float64
	calls  []string
	status engine.Status
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{state: transport.Stopped, bpm: transport.DefaultBPM}
}

func (f *fakeEngine) Play() error {
	if f.state == transport.Playing {
		return &transport.StateError{Op: "play", From: f.state}
	}
	f.calls = append(f.calls, "play")
	f.state = transport.Playing
	return nil
}

func (f *fakeEngine) Pause() error {
	f.calls = append(f.calls, "pause")
	f.state = transport.Paused
	return nil
}

func (f *fakeEngine) Stop() error {
	f.calls = append(f.calls, "stop")
	f.state = transport.Stopped
	return nil
}

func (f *fakeEngine) SetBPM(bpm float64) error {
	if bpm > 300 {
		return &transport.TempoError{BPM: bpm}
	}
	f.calls = append(f.calls, "bpm")
	f.bpm = bpm
	return nil
}

func (f *fakeEngine) BPM() float64 { return f.bpm }
func (f *fakeEngine) Panic()       { f.calls = append(f.calls, "panic") }
func (f *fakeEngine) Clear()       { f.calls = append(f.calls, "clear") }

func (f *fakeEngine) Status() engine.Status {
	st := f.status
	st.Transport = transport.Status{State: f.state, BPM: f.bpm, Position: 3 * time.Second}
	st.Clock = "fallback"
	return st
}

func key(s string) tea.KeyMsg {
	if s == " " {
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune(" ")}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(t *testing.T, m Model, keys ...string) Model {
	t.Helper()
	for _, k := range keys {
		next, _ := m.Update(key(k))
		m = next.(Model)
	}
	return m
}

func TestKeysDriveTransport(t *testing.T) {
	eng := newFakeEngine()
	m := NewModel(eng, nil, nil, "")

	m = press(t, m, "p", "p", " ", "s", "+", "+", "-", "x", "c")
	assert.Equal(t, []string{"play", "pause", "play", "stop", "bpm", "bpm", "bpm", "panic", "clear"}, eng.calls)
	assert.Equal(t, 125.0, eng.bpm)
	assert.Contains(t, m.View(), "125bpm")
}

func TestTempoErrorShown(t *testing.T) {
	eng := newFakeEngine()
	eng.bpm = 300
	m := press(t, NewModel(eng, nil, nil, ""), "+")
	assert.Contains(t, m.View(), "305")
	assert.Equal(t, 300.0, eng.bpm)

	m = press(t, m, "x")
	assert.NotContains(t, m.View(), "305")
}

func TestQuit(t *testing.T) {
	eng := newFakeEngine()
	next, cmd := NewModel(eng, nil, nil, "").Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	_, ok := cmd().(tea.QuitMsg)
	assert.True(t, ok)
	assert.Empty(t, next.View())
	assert.Equal(t, []string{"clear"}, eng.calls)
}

func TestViewShowsStatus(t *testing.T) {
	eng := newFakeEngine()
	eng.state = transport.Playing
	eng.status = engine.Status{
		Scheduler: scheduler.Stats{Late: 2, Latency: scheduler.LatencySummary{Samples: 4, AvgMs: 1.5, MaxMs: 3}},
		Output:    engine.Metrics{Sent: 12345, Completed: 7},
		Sessions: []engine.SessionRecord{
			{ID: "session-3", Label: "intro", Channels: []int{1, 2}, Callbacks: 10, Dispatched: 4},
		},
	}
	m := NewModel(eng, nil, nil, "")
	view := m.View()
	assert.Contains(t, view, "PLAYING")
	assert.Contains(t, view, "beat 6.00")
	assert.Contains(t, view, "clock:fallback")
	assert.Contains(t, view, "12,345")
	assert.Contains(t, view, "session-3")
	assert.Contains(t, view, "4/10")
	assert.Contains(t, view, "avg 1.50ms")

	eng.status.Sessions = nil
	next, _ := m.Update(TickMsg(time.Now()))
	assert.Contains(t, next.View(), "no active sessions")
}

func TestPortEvents(t *testing.T) {
	ports := make(chan midi.PortEvent, 1)
	m := NewModel(newFakeEngine(), nil, ports, "IAC Bus 1")
	assert.NotContains(t, m.View(), "disconnected")

	next, cmd := m.Update(PortEventMsg{Type: midi.PortDisconnected, Name: "IAC Bus 1"})
	m = next.(Model)
	assert.Contains(t, m.View(), "IAC Bus 1 (disconnected)")
	require.NotNil(t, cmd)

	ports <- midi.PortEvent{Type: midi.PortConnected, Name: "IAC Bus 1"}
	next, _ = m.Update(cmd())
	assert.NotContains(t, next.View(), "disconnected")
}

func TestUpdatesRelisten(t *testing.T) {
	updates := make(chan struct{}, 1)
	m := NewModel(newFakeEngine(), updates, nil, "")
	updates <- struct{}{}
	msg := ListenForUpdates(updates)()
	_, cmd := m.Update(msg)
	assert.NotNil(t, cmd)
	assert.Nil(t, ListenForUpdates(nil))
}

func TestPaletteLookup(t *testing.T) {
	p := DefaultPalette()
	assert.Equal(t, p.Colors[0], p.Lookup(-1))
	assert.Equal(t, p.Colors[len(p.Colors)-1], p.Lookup(2))
	mid := p.Lookup(0.5 / float64(len(p.Colors)-1))
	assert.Equal(t, lerp(p.Colors[0][0], p.Colors[1][0], 0.5), mid[0])
}
