package midi

import (
	"context"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PortEvent is emitted when an output port appears or disappears.
type PortEvent struct {
	Type PortEventType
	Name string
}

type PortEventType int

const (
	PortConnected PortEventType = iota
	PortDisconnected
)

func (t PortEventType) String() string {
	if t == PortDisconnected {
		return "disconnected"
	}
	return "connected"
}

// PortWatcher polls the driver for output ports and reports hot-plug
// changes.
type PortWatcher struct {
	mu       sync.RWMutex
	ports    map[string]bool
	events   chan PortEvent
	pollRate time.Duration
	list     func(context.Context) ([]string, error)
	logger   *zap.Logger
}

// NewPortWatcher creates a watcher polling once a second.
func NewPortWatcher(logger *zap.Logger) *PortWatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PortWatcher{
		ports:    make(map[string]bool),
		events:   make(chan PortEvent, 16),
		pollRate: time.Second,
		list:     OutPortNames,
		logger:   logger,
	}
}

// Events returns the connect/disconnect stream. It is closed when Run
// returns.
func (w *PortWatcher) Events() <-chan PortEvent {
	return w.events
}

// Ports returns the currently known ports, sorted.
func (w *PortWatcher) Ports() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	names := make([]string, 0, len(w.ports))
	for n := range w.ports {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Has reports whether a port with exactly this name is present.
func (w *PortWatcher) Has(name string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.ports[name]
}

// Run polls until ctx is done (blocking - run in goroutine).
func (w *PortWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.pollRate)
	defer ticker.Stop()
	defer close(w.events)

	w.scan(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.scan(ctx)
		}
	}
}

func (w *PortWatcher) scan(ctx context.Context) {
	names, err := w.list(ctx)
	if err != nil {
		// a hung driver skips this round
		w.logger.Warn("port scan failed", zap.Error(err))
		return
	}

	seen := make(map[string]bool, len(names))
	var changes []PortEvent

	w.mu.Lock()
	for _, n := range names {
		seen[n] = true
		if !w.ports[n] {
			w.ports[n] = true
			changes = append(changes, PortEvent{Type: PortConnected, Name: n})
		}
	}
	for n := range w.ports {
		if !seen[n] {
			delete(w.ports, n)
			changes = append(changes, PortEvent{Type: PortDisconnected, Name: n})
		}
	}
	w.mu.Unlock()

	for _, ev := range changes {
		w.logger.Info("output port "+ev.Type.String(), zap.String("port", ev.Name))
		select {
		case w.events <- ev:
		case <-ctx.Done():
			return
		}
	}
}
