package midi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// ScanTimeout bounds a port listing. Some platform MIDI services hang
// instead of failing.
const ScanTimeout = 3 * time.Second

var (
	ErrPortNotFound = errors.New("midi: output port not found")
	ErrScanTimeout  = errors.New("midi: port scan timed out")
)

// OutPortNames lists the output ports of the registered driver.
func OutPortNames(ctx context.Context) ([]string, error) {
	ports, err := outPorts(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(ports))
	for i, p := range ports {
		names[i] = p.String()
	}
	return names, nil
}

func outPorts(ctx context.Context) ([]drivers.Out, error) {
	ctx, cancel := context.WithTimeout(ctx, ScanTimeout)
	defer cancel()

	ch := make(chan []drivers.Out, 1)
	go func() {
		ch <- gomidi.GetOutPorts()
	}()

	select {
	case ports := <-ch:
		return ports, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrScanTimeout, ctx.Err())
	}
}

// matchPort picks the port named exactly name, or else the first whose name
// contains it case-insensitively.
func matchPort(names []string, name string) (int, bool) {
	for i, n := range names {
		if n == name {
			return i, true
		}
	}
	want := strings.ToLower(name)
	for i, n := range names {
		if strings.Contains(strings.ToLower(n), want) {
			return i, true
		}
	}
	return -1, false
}

// PortSink sends to a gomidi output port.
type PortSink struct {
	Sink
	port drivers.Out
}

// OpenPort opens the output port matching name.
func OpenPort(ctx context.Context, name string) (*PortSink, error) {
	ports, err := outPorts(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(ports))
	for i, p := range ports {
		names[i] = p.String()
	}
	i, ok := matchPort(names, name)
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %s)", ErrPortNotFound, name, strings.Join(names, ", "))
	}
	send, err := gomidi.SendTo(ports[i])
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", names[i], err)
	}
	return &PortSink{Sink: NewSink(send), port: ports[i]}, nil
}

// Name returns the port name.
func (p *PortSink) Name() string {
	return p.port.String()
}

// Close closes the port.
func (p *PortSink) Close() error {
	return p.port.Close()
}
