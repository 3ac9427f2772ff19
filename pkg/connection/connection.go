// Package connection provides the remote conversational session used by the
// live voice pipeline.
//
// A Connector opens a bidirectional streaming session with a live model.
// Audio flows up through Session.SendRealtimeInput; server messages come
// back through Callbacks. Two transports are provided: the genai SDK
// (NewGeminiConnector) and the raw BidiGenerateContent websocket protocol
// (NewWebSocketConnector).
package connection

import (
	"context"
	"sync"
)

// DefaultModel is the native-audio live model used when none is configured.
const DefaultModel = "gemini-2.5-flash-native-audio-preview-09-2025"

// Blob is base64 encoded media with its MIME type.
type Blob struct {
	Data     string
	MIMEType string
}

// ServerEvent is one message received from the live session. Empty strings
// and false flags mean the field was absent.
type ServerEvent struct {
	// OutputTranscript is a fragment of the transcript of the model's speech.
	OutputTranscript string
	// InputTranscript is a fragment of the transcript of the user's speech.
	InputTranscript string
	// TurnComplete marks the end of the model's turn.
	TurnComplete bool
	// Interrupted reports that the user started talking over the model.
	Interrupted bool
	// Audio holds inline audio parts of the model turn, in order.
	Audio []Blob
}

// Empty reports whether the event carries nothing the pipeline acts on.
func (e *ServerEvent) Empty() bool {
	return e.OutputTranscript == "" && e.InputTranscript == "" &&
		!e.TurnComplete && !e.Interrupted && len(e.Audio) == 0
}

// Config holds the parameters of a live session.
type Config struct {
	// Model is the live model name, e.g. gemini-2.5-flash-native-audio-preview-09-2025.
	Model string
	// Voice is the prebuilt voice name (Zephyr, Puck, Charon, Kore, Fenrir).
	Voice string
	// APIKey authorizes the session.
	APIKey string
	// SystemInstruction is optional.
	SystemInstruction string
	// InputTranscription asks the server to transcribe the user's speech.
	InputTranscription bool
	// OutputTranscription asks the server to transcribe the model's speech.
	OutputTranscription bool
}

// Callbacks receive session events. They are invoked from the transport's
// receive goroutine, one at a time, in arrival order. Nil callbacks are
// skipped.
type Callbacks struct {
	OnOpen    func()
	OnMessage func(evt *ServerEvent)
	OnError   func(err error)
	OnClose   func()
}

// Session is an established live session.
type Session interface {
	// SendRealtimeInput streams one chunk of realtime audio.
	SendRealtimeInput(chunk Blob) error
	// Close closes the session. Closing twice is not an error.
	Close() error
}

// Connector opens live sessions.
type Connector interface {
	Connect(ctx context.Context, cfg Config, cb Callbacks) (Session, error)
}

// callbackGate delivers callbacks and guarantees that at most one terminal
// callback (OnError or OnClose) is delivered and nothing follows it.
// Callbacks run without the lock held so they may call Session.Close.
type callbackGate struct {
	cb   Callbacks
	mu   sync.Mutex
	done bool
}

func (g *callbackGate) closed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.done
}

// finish marks the gate done and reports whether this call did it.
func (g *callbackGate) finish() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.done {
		return false
	}
	g.done = true
	return true
}

func (g *callbackGate) open() {
	if !g.closed() && g.cb.OnOpen != nil {
		g.cb.OnOpen()
	}
}

func (g *callbackGate) message(evt *ServerEvent) {
	if !g.closed() && g.cb.OnMessage != nil {
		g.cb.OnMessage(evt)
	}
}

func (g *callbackGate) fail(err error) {
	if g.finish() && g.cb.OnError != nil {
		g.cb.OnError(err)
	}
}

func (g *callbackGate) close() {
	if g.finish() && g.cb.OnClose != nil {
		g.cb.OnClose()
	}
}

// silence marks the gate done without delivering anything; used when the
// local side closes the session.
func (g *callbackGate) silence() {
	g.finish()
}
