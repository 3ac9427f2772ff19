package live

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T, now float64) (*Scheduler, *fakeOutputContext, *[]error) {
	t.Helper()
	var warnings []error
	s := newScheduler(nil, inlinePost, func(err error) { warnings = append(warnings, err) })
	s.spawn = inlineSpawn
	out := &fakeOutputContext{now: now}
	s.Attach(out)
	return s, out, &warnings
}

func TestScheduler_GaplessPlayback(t *testing.T) {
	s, out, _ := newTestScheduler(t, 1.0)

	// 4800 samples @ 24 kHz = 0.2 s
	s.Enqueue(pcmBlob(4800))
	s.Enqueue(pcmBlob(4800))
	s.Enqueue(pcmBlob(2400))

	nodes := out.Nodes()
	require.Len(t, nodes, 3)
	assert.InDelta(t, 1.0, nodes[0].when, 1e-9)
	assert.InDelta(t, 1.2, nodes[1].when, 1e-9)
	assert.InDelta(t, 1.4, nodes[2].when, 1e-9)
	assert.InDelta(t, 1.5, s.NextStartTime(), 1e-9)
	assert.Equal(t, 3, s.ActiveCount())

	// every start equals the previous start plus its duration
	for i := 1; i < len(nodes); i++ {
		assert.InDelta(t, nodes[i-1].when+nodes[i-1].buf.Duration(), nodes[i].when, 1e-9)
	}
}

func TestScheduler_ClampsToClock(t *testing.T) {
	s, out, _ := newTestScheduler(t, 1.0)

	s.Enqueue(pcmBlob(4800))
	out.Nodes()[0].Finish()
	assert.Equal(t, 0, s.ActiveCount())

	// the clock ran past the end of the schedule
	out.SetTime(3.0)
	s.Enqueue(pcmBlob(4800))

	nodes := out.Nodes()
	require.Len(t, nodes, 2)
	assert.InDelta(t, 3.0, nodes[1].when, 1e-9)
	assert.GreaterOrEqual(t, nodes[1].when, out.CurrentTime())
}

func TestScheduler_ResetStopsEverything(t *testing.T) {
	s, out, _ := newTestScheduler(t, 2.0)

	s.Enqueue(pcmBlob(4800))
	s.Enqueue(pcmBlob(4800))
	out.Nodes()[0].Finish()

	s.Reset()

	assert.Equal(t, 0, s.ActiveCount())
	assert.Equal(t, 0.0, s.NextStartTime())
	assert.Equal(t, 1, out.Nodes()[1].Stopped())

	// after a reset the next fragment starts at the current time
	out.SetTime(2.05)
	s.Enqueue(pcmBlob(2400))
	nodes := out.Nodes()
	require.Len(t, nodes, 3)
	assert.InDelta(t, 2.05, nodes[2].when, 1e-9)
}

func TestScheduler_StopAllIgnoresErrors(t *testing.T) {
	s, out, _ := newTestScheduler(t, 0)
	s.Enqueue(pcmBlob(100))
	n := out.Nodes()[0]

	// ended but the end notification has not been processed yet
	n.mu.Lock()
	n.ended = true
	n.mu.Unlock()

	assert.NotPanics(t, s.StopAll)
	assert.Equal(t, 0, s.ActiveCount())
	assert.Equal(t, 1, n.Stopped())
}

func TestScheduler_ArrivalOrderUnderConcurrentDecode(t *testing.T) {
	s, out, _ := newTestScheduler(t, 1.0)
	jobs := &manualSpawn{}
	s.spawn = jobs.spawn

	s.Enqueue(pcmBlob(4800)) // A, slow
	s.Enqueue(pcmBlob(2400)) // B, fast
	require.Equal(t, 2, jobs.Len())

	jobs.Run(1)
	assert.Empty(t, out.Nodes(), "B must wait for A")

	jobs.Run(0)
	nodes := out.Nodes()
	require.Len(t, nodes, 2)
	assert.Equal(t, 4800, nodes[0].buf.Frames())
	assert.Equal(t, 2400, nodes[1].buf.Frames())
	assert.InDelta(t, 1.0, nodes[0].when, 1e-9)
	assert.InDelta(t, 1.2, nodes[1].when, 1e-9)
}

func TestScheduler_StaleDecodeDiscarded(t *testing.T) {
	s, out, _ := newTestScheduler(t, 1.0)
	jobs := &manualSpawn{}
	s.spawn = jobs.spawn

	s.Enqueue(pcmBlob(4800))
	s.Reset()
	jobs.Run(0)

	assert.Empty(t, out.Nodes())
	assert.Equal(t, 0.0, s.NextStartTime())

	// fragments after the reset are unaffected by the stale one
	s.Enqueue(pcmBlob(2400))
	jobs.Run(1)
	assert.Len(t, out.Nodes(), 1)
}

func TestScheduler_DetachedDropsBuffers(t *testing.T) {
	s, out, _ := newTestScheduler(t, 1.0)
	s.Detach()
	s.Enqueue(pcmBlob(4800))
	assert.Empty(t, out.Nodes())
	assert.Equal(t, 0, s.ActiveCount())
}

func TestScheduler_DecodeErrorSkipsFragment(t *testing.T) {
	s, out, warnings := newTestScheduler(t, 1.0)

	s.Enqueue(AudioChunk{Data: "!!not base64!!", MIMEType: "audio/pcm;rate=24000"})
	s.Enqueue(pcmBlob(2400))

	require.Len(t, *warnings, 1)
	assert.True(t, errors.Is((*warnings)[0], ErrDecode))
	nodes := out.Nodes()
	require.Len(t, nodes, 1)
	assert.InDelta(t, 1.0, nodes[0].when, 1e-9)
}

func TestScheduler_ScheduleFailureNotTracked(t *testing.T) {
	s, out, warnings := newTestScheduler(t, 1.0)
	out.Close()

	s.Enqueue(pcmBlob(4800))
	assert.Equal(t, 0, s.ActiveCount())
	assert.Equal(t, 1.0, s.NextStartTime(), "a failed schedule does not advance the timeline")

	require.Len(t, *warnings, 1)
	assert.True(t, errors.Is((*warnings)[0], ErrDecode))
	assert.Contains(t, (*warnings)[0].Error(), "schedule audio fragment")
}
