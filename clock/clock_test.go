package clock_test

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"go-perform/clock"
)

func TestSelectFallsBackWhenProbeFails(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	src := clock.NewSimulatedSource()
	src.FailProbe(errors.New("no host timer"))

	c := clock.Select(src, zap.New(core))
	assert.Equal(t, "fallback", c.Name())
	require.Equal(t, 1, logs.Len())
	assert.Contains(t, logs.All()[0].ContextMap()["error"], clock.ErrUnavailable.Error())
}

func TestSelectUsesProbedSource(t *testing.T) {
	c := clock.Select(clock.NewSimulatedSource(), nil)
	assert.Equal(t, "precise", c.Name())
	assert.Equal(t, "fallback", clock.Select(nil, nil).Name())
}

func TestPreciseClockFiresInOrder(t *testing.T) {
	src := clock.NewSimulatedSource()
	c := clock.NewPreciseClock(src)

	var order []int
	c.ScheduleAt(30*time.Millisecond, func() { order = append(order, 3) })
	c.ScheduleAt(10*time.Millisecond, func() { order = append(order, 1) })
	c.ScheduleAt(10*time.Millisecond, func() { order = append(order, 2) })

	assert.Equal(t, 2, src.Advance(20*time.Millisecond))
	assert.Equal(t, []int{1, 2}, order)
	assert.Equal(t, 20*time.Millisecond, c.Now())

	assert.Equal(t, 1, src.Advance(time.Second))
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestPreciseClockCancel(t *testing.T) {
	src := clock.NewSimulatedSource()
	c := clock.NewPreciseClock(src)

	var fired atomic.Int32
	h := c.ScheduleAt(5*time.Millisecond, func() { fired.Add(1) })
	c.ScheduleAt(6*time.Millisecond, func() { fired.Add(1) })
	c.ScheduleAt(7*time.Millisecond, func() { fired.Add(1) })

	assert.True(t, c.Cancel(h))
	assert.False(t, c.Cancel(h))
	src.Advance(5 * time.Millisecond)
	assert.Zero(t, fired.Load())

	c.CancelAll()
	assert.Zero(t, src.Pending())
	src.Advance(time.Second)
	assert.Zero(t, fired.Load())
}

func TestSimulatedCallbacksMayReschedule(t *testing.T) {
	src := clock.NewSimulatedSource()
	c := clock.NewPreciseClock(src)

	var times []time.Duration
	c.ScheduleAt(time.Millisecond, func() {
		times = append(times, c.Now())
		c.ScheduleAt(c.Now()+time.Millisecond, func() {
			times = append(times, c.Now())
		})
	})
	src.Advance(10 * time.Millisecond)
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, times)
}

func TestFallbackClockFires(t *testing.T) {
	c := clock.NewFallbackClock()
	var fired atomic.Int32
	c.ScheduleAt(c.Now()+2*time.Millisecond, func() { fired.Add(1) })
	c.ScheduleAt(0, func() { fired.Add(1) })

	assert.Eventually(t, func() bool { return fired.Load() == 2 }, time.Second, time.Millisecond)
	assert.Zero(t, c.Pending())
}

func TestFallbackClockCancelAll(t *testing.T) {
	c := clock.NewFallbackClock()
	var fired atomic.Int32
	for i := 0; i < 10; i++ {
		c.ScheduleAt(c.Now()+50*time.Millisecond, func() { fired.Add(1) })
	}
	assert.Equal(t, 10, c.Pending())
	c.CancelAll()
	assert.Zero(t, c.Pending())

	time.Sleep(80 * time.Millisecond)
	assert.Zero(t, fired.Load())
}

func TestSpinSourceFires(t *testing.T) {
	src := clock.NewSpinSource(0)
	defer src.Close()

	c := clock.NewPreciseClock(src)
	done := make(chan time.Duration, 1)
	want := c.Now() + 5*time.Millisecond
	c.ScheduleAt(want, func() { done <- c.Now() })

	select {
	case got := <-done:
		assert.GreaterOrEqual(t, got, want)
	case <-time.After(time.Second):
		t.Fatal("spin callback never fired")
	}
}

func TestSpinSourceStop(t *testing.T) {
	src := clock.NewSpinSource(0)
	defer src.Close()

	var fired atomic.Int32
	id := src.At(src.Now()+20*time.Millisecond, func() { fired.Add(1) })
	assert.True(t, src.Stop(id))
	assert.False(t, src.Stop(id))

	time.Sleep(40 * time.Millisecond)
	assert.Zero(t, fired.Load())
}
