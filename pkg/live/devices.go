package live

import (
	"context"
	"time"

	"github.com/realtime-ai/livevoice/pkg/audio"
)

// Microphone opens capture streams.
type Microphone interface {
	// Open acquires the input device at the given rate. It fails when no
	// device exists or permission is denied.
	Open(sampleRate, channels int) (InputStream, error)
}

// InputStream delivers captured samples until closed.
type InputStream interface {
	// Start begins delivering float32 samples in [-1, 1]. onSamples is
	// called from the device thread with periods of arbitrary length.
	Start(onSamples func(samples []float32)) error
	// Close stops capture and releases the device.
	Close() error
}

// AudioOutput opens playback contexts.
type AudioOutput interface {
	Open(sampleRate int) (OutputContext, error)
}

// OutputContext is a playback clock plus a scheduler of buffers against it.
type OutputContext interface {
	// CurrentTime returns the clock in seconds; it only moves forward.
	CurrentTime() float64
	// Schedule plays buf starting exactly at when (seconds on the clock).
	// onEnded is called once, from any goroutine, when the node finishes
	// or is stopped.
	Schedule(buf *audio.Buffer, when float64, onEnded func()) (PlaybackNode, error)
	// Close stops everything and releases the device.
	Close() error
}

// PlaybackNode is one scheduled buffer.
type PlaybackNode interface {
	// Stop halts playback. Stopping a finished node may return an error,
	// which callers ignore.
	Stop() error
}

// KeySelector provides the API key used to authorize sessions.
type KeySelector interface {
	HasSelectedKey(ctx context.Context) bool
	// OpenSelectKey asks the user to (re)select a key.
	OpenSelectKey(ctx context.Context) error
	APIKey() string
}

// Decoder turns an inbound base64 payload into a playable buffer.
type Decoder func(data, mimeType string) (*audio.Buffer, error)

// Timer is a stoppable one-shot timer.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules fn after d. The default is time.AfterFunc.
type AfterFunc func(d time.Duration, fn func()) Timer

func defaultAfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}
