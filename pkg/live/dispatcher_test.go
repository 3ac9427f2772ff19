package live

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realtime-ai/livevoice/pkg/connection"
)

type dispatchFixture struct {
	d      *Dispatcher
	out    *fakeOutputContext
	timers *fakeTimers
	turns  [][2]string
}

func newDispatchFixture(t *testing.T) *dispatchFixture {
	f := &dispatchFixture{timers: &fakeTimers{}}
	s, out, _ := newTestScheduler(t, 1.0)
	c := newCaptionAggregator(DefaultCaptionClearDelay, f.timers.AfterFunc, inlinePost, nil)
	h := newInterruptHandler(s, c, 0, f.timers.AfterFunc, inlinePost, nil)
	tt := &turnTracker{onTurn: func(user, model string) { f.turns = append(f.turns, [2]string{user, model}) }}
	f.d = &Dispatcher{caption: c, interrupt: h, scheduler: s, turns: tt}
	f.out = out
	return f
}

func TestDispatcher_RoutesAudioInOrder(t *testing.T) {
	f := newDispatchFixture(t)

	f.d.Dispatch(&connection.ServerEvent{
		OutputTranscript: "Hola",
		Audio:            []connection.Blob{pcmBlob(4800), pcmBlob(2400)},
	})

	assert.Equal(t, "Hola", f.d.caption.Text())
	nodes := f.out.Nodes()
	require.Len(t, nodes, 2)
	assert.Equal(t, 4800, nodes[0].buf.Frames())
	assert.Equal(t, 2400, nodes[1].buf.Frames())
}

func TestDispatcher_InterruptIgnoresAudioInSameMessage(t *testing.T) {
	f := newDispatchFixture(t)
	f.d.Dispatch(&connection.ServerEvent{Audio: []connection.Blob{pcmBlob(4800)}})

	f.d.Dispatch(&connection.ServerEvent{
		Interrupted: true,
		Audio:       []connection.Blob{pcmBlob(4800)},
	})

	assert.Len(t, f.out.Nodes(), 1)
	assert.Equal(t, 0, f.d.scheduler.ActiveCount())
	assert.True(t, f.d.interrupt.Active())
}

func TestDispatcher_TurnComplete(t *testing.T) {
	f := newDispatchFixture(t)

	f.d.Dispatch(&connection.ServerEvent{InputTranscript: "¿Qué hora "})
	f.d.Dispatch(&connection.ServerEvent{InputTranscript: "es?", OutputTranscript: "Son las"})
	f.d.Dispatch(&connection.ServerEvent{OutputTranscript: " tres.", TurnComplete: true})

	assert.Equal(t, [][2]string{{"¿Qué hora es?", "Son las tres."}}, f.turns)
	assert.True(t, f.d.caption.Pending())
	assert.Equal(t, "Son las tres.", f.d.caption.Text())

	// an empty turn is not recorded
	f.d.Dispatch(&connection.ServerEvent{TurnComplete: true})
	assert.Len(t, f.turns, 1)
}

func TestDispatcher_IgnoresNil(t *testing.T) {
	f := newDispatchFixture(t)
	assert.NotPanics(t, func() { f.d.Dispatch(nil) })
	assert.NotPanics(t, func() { f.d.Dispatch(&connection.ServerEvent{}) })
}
