package timeline_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-perform/timeline"
)

func note(at float64, pitch int) timeline.Event {
	return timeline.Event{Kind: timeline.KindNote, Pitches: []int{pitch}, DurationBeats: 1, Velocity: 0.8, Time: at}
}

func TestSessionAddMergesChannel(t *testing.T) {
	s := timeline.NewSession("test", 120)
	require.NoError(t, s.Add(timeline.Voice{Channel: 2, Events: []timeline.Event{note(1, 60)}}))
	require.NoError(t, s.Add(timeline.Voice{Channel: 2, Events: []timeline.Event{note(0.5, 62)}}))
	require.NoError(t, s.Add(timeline.Voice{Channel: 1, Events: []timeline.Event{note(0, 64)}}))

	assert.Equal(t, []int{1, 2}, s.Channels())
	assert.Equal(t, 3, s.EventCount())
	assert.Equal(t, 62, s.Voices[2].Events[0].Pitches[0])

	assert.ErrorIs(t, s.Add(timeline.Voice{Channel: 17}), timeline.ErrChannelRange)
}

func TestRescaleDoesNotTouchOriginal(t *testing.T) {
	s := timeline.NewSession("test", 120)
	require.NoError(t, s.Add(timeline.Voice{Channel: 1, Events: []timeline.Event{note(1, 60)}}))

	slower := s.Rescale(60)
	assert.InDelta(t, 2.0, slower.Voices[1].Events[0].Time, 1e-9)
	assert.InDelta(t, 1.0, s.Voices[1].Events[0].Time, 1e-9)
	assert.Equal(t, 60.0, slower.BPM)
}

func TestValidate(t *testing.T) {
	s := timeline.NewSession("test", 120)
	require.NoError(t, s.Add(timeline.Voice{Channel: 1, Events: []timeline.Event{
		note(0, 60),
		timeline.NewControl(0, 91, 64),
		timeline.NewProgram(0, 5),
	}}))
	assert.NoError(t, s.Validate())

	bad := timeline.NewSession("bad", 120)
	bad.Voices[1] = timeline.Voice{Channel: 1, Events: []timeline.Event{{Kind: timeline.KindNote, DurationBeats: 1}}}
	assert.Error(t, bad.Validate())

	bad.Voices[1] = timeline.Voice{Channel: 1, Events: []timeline.Event{note(-1, 60)}}
	assert.Error(t, bad.Validate())

	bad.Voices[1] = timeline.Voice{Channel: 1, Events: []timeline.Event{note(0, 128)}}
	assert.Error(t, bad.Validate())
}

func TestValidateRejectsUnorderedVoice(t *testing.T) {
	s := timeline.NewSession("test", 120)
	s.Voices[1] = timeline.Voice{Channel: 1, Events: []timeline.Event{note(1, 60), note(0.5, 62)}}
	assert.ErrorIs(t, s.Validate(), timeline.ErrUnordered)

	v := s.Voices[1]
	v.Sort()
	s.Voices[1] = v
	assert.NoError(t, s.Validate())

	s.Voices[1] = timeline.Voice{Channel: 1, Events: []timeline.Event{
		note(0.5, 60),
		timeline.NewControl(0.5, 64, 127),
		note(0.5, 64),
	}}
	assert.NoError(t, s.Validate(), "equal times are allowed")
}

func TestVoiceDuration(t *testing.T) {
	v := timeline.Voice{Channel: 1, Events: []timeline.Event{
		note(0, 60),
		{Kind: timeline.KindNote, Pitches: []int{62}, DurationBeats: 4, Time: 0.5},
		note(1.5, 64),
	}}
	assert.InDelta(t, 2.5, v.Duration(120), 1e-9)
	assert.InDelta(t, 4.5, v.Duration(60), 1e-9)
	assert.Zero(t, timeline.Voice{}.Duration(120))
}

func TestMIDIVelocity(t *testing.T) {
	assert.Equal(t, uint8(127), timeline.Event{Velocity: 1}.MIDIVelocity())
	assert.Equal(t, uint8(38), timeline.Event{Velocity: 0.3}.MIDIVelocity())
	assert.Equal(t, uint8(1), timeline.Event{Velocity: 0}.MIDIVelocity())
}
