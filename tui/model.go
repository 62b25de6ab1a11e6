// Package tui is a terminal monitor for a running engine.
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"

	"go-perform/engine"
	"go-perform/midi"
	"go-perform/transport"
)

// RefreshInterval is how often the view polls the engine while nothing
// else happens.
const RefreshInterval = 100 * time.Millisecond

// BPMStep is the tempo change per +/- key press.
const BPMStep = 5.0

// Controller is the part of the engine the monitor drives.
type Controller interface {
	Play() error
	Pause() error
	Stop() error
	SetBPM(bpm float64) error
	BPM() float64
	Panic()
	Clear()
	Status() engine.Status
}

type Model struct {
	Engine   Controller
	Updates  <-chan struct{}
	Ports    <-chan midi.PortEvent
	Theme    *Theme
	PortName string

	status   engine.Status
	portUp   bool
	lastErr  error
	quitting bool
}

type UpdateMsg struct{}

type TickMsg time.Time

type PortEventMsg midi.PortEvent

// NewModel creates a monitor. updates and ports may be nil.
func NewModel(eng Controller, updates <-chan struct{}, ports <-chan midi.PortEvent, portName string) Model {
	return Model{
		Engine:   eng,
		Updates:  updates,
		Ports:    ports,
		Theme:    NewTheme(nil),
		PortName: portName,
		status:   eng.Status(),
		portUp:   portName != "",
	}
}

func ListenForUpdates(ch <-chan struct{}) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		<-ch
		return UpdateMsg{}
	}
}

func ListenForPorts(ch <-chan midi.PortEvent) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		event, ok := <-ch
		if !ok {
			return nil
		}
		return PortEventMsg(event)
	}
}

func tick() tea.Cmd {
	return tea.Tick(RefreshInterval, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tick(),
		ListenForUpdates(m.Updates),
		ListenForPorts(m.Ports),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			m.Engine.Clear()
			return m, tea.Quit

		case "p", " ":
			if m.Engine.Status().Transport.State == transport.Playing {
				m.lastErr = m.Engine.Pause()
			} else {
				m.lastErr = m.Engine.Play()
			}

		case "s":
			m.lastErr = m.Engine.Stop()

		case "+", "=":
			m.lastErr = m.Engine.SetBPM(m.Engine.BPM() + BPMStep)

		case "-", "_":
			m.lastErr = m.Engine.SetBPM(m.Engine.BPM() - BPMStep)

		case "x":
			m.Engine.Panic()
			m.lastErr = nil

		case "c":
			m.Engine.Clear()
			m.lastErr = nil
		}

	case TickMsg:
		cmd = tick()

	case UpdateMsg:
		cmd = ListenForUpdates(m.Updates)

	case PortEventMsg:
		if msg.Name == m.PortName {
			m.portUp = msg.Type == midi.PortConnected
		}
		cmd = ListenForPorts(m.Ports)
	}

	m.status = m.Engine.Status()
	return m, cmd
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	th := m.Theme
	st := m.status

	state := strings.ToUpper(st.Transport.State.String())
	switch st.Transport.State {
	case transport.Playing:
		state = th.Playing.Render(state)
	case transport.Paused:
		state = th.Paused.Render(state)
	default:
		state = th.Dim.Render(state)
	}

	header := th.Header.Render(fmt.Sprintf("go-perform  %3.0fbpm", st.Transport.BPM)) +
		"  " + state +
		th.Value.Render(fmt.Sprintf("  beat %.2f", st.Transport.Beats())) +
		th.Label.Render("  clock:"+st.Clock)

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(header)
	out.WriteString("\n")

	if m.PortName != "" {
		port := th.Value.Render(m.PortName)
		if !m.portUp {
			port = th.Warning.Render(m.PortName + " (disconnected)")
		}
		out.WriteString(th.Label.Render("port ") + port + "\n")
	}
	out.WriteString("\n")

	if len(st.Sessions) == 0 {
		out.WriteString(th.Dim.Render("no active sessions"))
		out.WriteString("\n")
	}
	for _, s := range st.Sessions {
		label := s.Label
		if label == "" {
			label = "-"
		}
		out.WriteString(fmt.Sprintf("%s %s %s %s\n",
			th.Value.Render(s.ID),
			th.Label.Render(label),
			th.Label.Render(fmt.Sprintf("ch%v", s.Channels)),
			th.Value.Render(fmt.Sprintf("%d/%d", s.Dispatched, s.Callbacks))))
	}
	out.WriteString("\n")

	lat := st.Scheduler.Latency
	out.WriteString(th.Label.Render("sent ") + th.Value.Render(humanize.Comma(int64(st.Output.Sent))))
	out.WriteString(th.Label.Render("  dropped ") + m.counter(st.Output.Dropped))
	out.WriteString(th.Label.Render("  late ") + m.counter(st.Scheduler.Late))
	out.WriteString(th.Label.Render("  done ") + th.Value.Render(humanize.Comma(int64(st.Output.Completed))))
	out.WriteString("\n")
	out.WriteString(th.Label.Render("latency ") + th.Value.Render(
		fmt.Sprintf("avg %.2fms  min %.2fms  max %.2fms  (%d samples)", lat.AvgMs, lat.MinMs, lat.MaxMs, lat.Samples)))
	out.WriteString("\n")

	if m.lastErr != nil {
		out.WriteString("\n")
		out.WriteString(th.Warning.Render(m.lastErr.Error()))
		out.WriteString("\n")
	}

	out.WriteString("\n")
	out.WriteString(th.Dim.Render("p:play/pause  s:stop  +/-:tempo  x:panic  c:clear  q:quit"))
	return out.String()
}

func (m Model) counter(n uint64) string {
	s := humanize.Comma(int64(n))
	if n > 0 {
		return m.Theme.Warning.Render(s)
	}
	return m.Theme.Value.Render(s)
}
