package live

import (
	"github.com/realtime-ai/livevoice/pkg/connection"
)

// Dispatcher routes one server message to the components, in field order:
// transcript, turn-complete, interruption, audio. An interruption ends the
// processing of its message. It holds no state of its own.
type Dispatcher struct {
	caption   *CaptionAggregator
	interrupt *InterruptHandler
	scheduler *Scheduler
	turns     *turnTracker
}

// Dispatch routes evt.
func (d *Dispatcher) Dispatch(evt *connection.ServerEvent) {
	if evt == nil {
		return
	}

	if evt.OutputTranscript != "" {
		d.caption.Append(evt.OutputTranscript)
	}
	if d.turns != nil {
		d.turns.add(evt.InputTranscript, evt.OutputTranscript)
	}

	if evt.TurnComplete {
		d.caption.TurnComplete()
		if d.turns != nil {
			d.turns.complete()
		}
	}

	if evt.Interrupted {
		d.interrupt.Handle()
		return
	}

	for _, chunk := range evt.Audio {
		d.scheduler.Enqueue(chunk)
	}
}
