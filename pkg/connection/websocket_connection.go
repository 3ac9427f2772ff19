package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// DefaultLiveEndpoint is the BidiGenerateContent websocket endpoint.
	DefaultLiveEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	DefaultWSWriteWait = 10 * time.Second
)

// WebSocketConfig holds configuration for the raw websocket transport.
type WebSocketConfig struct {
	// Endpoint is the websocket URL; the API key is added as the "key" query parameter.
	Endpoint  string
	WriteWait time.Duration
	Dialer    *websocket.Dialer
}

// DefaultWebSocketConfig returns the default WebSocket configuration.
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		Endpoint:  DefaultLiveEndpoint,
		WriteWait: DefaultWSWriteWait,
		Dialer:    websocket.DefaultDialer,
	}
}

// wire types of the BidiGenerateContent protocol

type wsBlob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type wsPart struct {
	Text       string  `json:"text,omitempty"`
	InlineData *wsBlob `json:"inlineData,omitempty"`
}

type wsContent struct {
	Role  string   `json:"role,omitempty"`
	Parts []wsPart `json:"parts"`
}

type wsPrebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type wsVoiceConfig struct {
	PrebuiltVoiceConfig wsPrebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type wsSpeechConfig struct {
	VoiceConfig wsVoiceConfig `json:"voiceConfig"`
}

type wsGenerationConfig struct {
	ResponseModalities []string        `json:"responseModalities"`
	SpeechConfig       *wsSpeechConfig `json:"speechConfig,omitempty"`
}

type wsTranscriptionConfig struct{}

type wsSetup struct {
	Model                    string                 `json:"model"`
	GenerationConfig         wsGenerationConfig     `json:"generationConfig"`
	SystemInstruction        *wsContent             `json:"systemInstruction,omitempty"`
	InputAudioTranscription  *wsTranscriptionConfig `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *wsTranscriptionConfig `json:"outputAudioTranscription,omitempty"`
}

type wsClientMessage struct {
	Setup         *wsSetup         `json:"setup,omitempty"`
	RealtimeInput *wsRealtimeInput `json:"realtimeInput,omitempty"`
}

type wsRealtimeInput struct {
	Audio *wsBlob `json:"audio,omitempty"`
}

type wsTranscription struct {
	Text string `json:"text"`
}

type wsServerContent struct {
	ModelTurn           *wsContent       `json:"modelTurn,omitempty"`
	TurnComplete        bool             `json:"turnComplete,omitempty"`
	Interrupted         bool             `json:"interrupted,omitempty"`
	InputTranscription  *wsTranscription `json:"inputTranscription,omitempty"`
	OutputTranscription *wsTranscription `json:"outputTranscription,omitempty"`
}

type wsGoAway struct {
	TimeLeft string `json:"timeLeft,omitempty"`
}

type wsServerMessage struct {
	SetupComplete *struct{}        `json:"setupComplete,omitempty"`
	ServerContent *wsServerContent `json:"serverContent,omitempty"`
	GoAway        *wsGoAway        `json:"goAway,omitempty"`
}

// toServerEvent converts server content into a ServerEvent.
func (c *wsServerContent) toServerEvent() *ServerEvent {
	evt := &ServerEvent{
		TurnComplete: c.TurnComplete,
		Interrupted:  c.Interrupted,
	}
	if c.OutputTranscription != nil {
		evt.OutputTranscript = c.OutputTranscription.Text
	}
	if c.InputTranscription != nil {
		evt.InputTranscript = c.InputTranscription.Text
	}
	if c.ModelTurn != nil {
		for _, part := range c.ModelTurn.Parts {
			if part.InlineData != nil && part.InlineData.Data != "" {
				evt.Audio = append(evt.Audio, Blob{Data: part.InlineData.Data, MIMEType: part.InlineData.MIMEType})
			}
		}
	}
	return evt
}

func newSetupMessage(cfg Config) *wsClientMessage {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}

	setup := &wsSetup{
		Model: model,
		GenerationConfig: wsGenerationConfig{
			ResponseModalities: []string{"AUDIO"},
		},
	}
	if cfg.Voice != "" {
		setup.GenerationConfig.SpeechConfig = &wsSpeechConfig{
			VoiceConfig: wsVoiceConfig{PrebuiltVoiceConfig: wsPrebuiltVoiceConfig{VoiceName: cfg.Voice}},
		}
	}
	if cfg.SystemInstruction != "" {
		setup.SystemInstruction = &wsContent{Parts: []wsPart{{Text: cfg.SystemInstruction}}}
	}
	if cfg.InputTranscription {
		setup.InputAudioTranscription = &wsTranscriptionConfig{}
	}
	if cfg.OutputTranscription {
		setup.OutputAudioTranscription = &wsTranscriptionConfig{}
	}
	return &wsClientMessage{Setup: setup}
}

type websocketConnector struct {
	cfg WebSocketConfig
}

var _ Connector = (*websocketConnector)(nil)

// NewWebSocketConnector creates a Connector speaking the BidiGenerateContent
// JSON protocol directly over a websocket.
func NewWebSocketConnector(cfg WebSocketConfig) Connector {
	def := DefaultWebSocketConfig()
	if cfg.Endpoint == "" {
		cfg.Endpoint = def.Endpoint
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = def.WriteWait
	}
	if cfg.Dialer == nil {
		cfg.Dialer = def.Dialer
	}
	return &websocketConnector{cfg: cfg}
}

func (c *websocketConnector) Connect(ctx context.Context, cfg Config, cb Callbacks) (Session, error) {
	u, err := url.Parse(c.cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse live endpoint: %w", err)
	}
	if cfg.APIKey != "" {
		q := u.Query()
		q.Set("key", cfg.APIKey)
		u.RawQuery = q.Encode()
	}

	conn, resp, err := c.cfg.Dialer.DialContext(ctx, u.String(), http.Header{})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial live endpoint: %w (http status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial live endpoint: %w", err)
	}

	ws := &websocketSession{
		conn:      conn,
		gate:      &callbackGate{cb: cb},
		writeWait: c.cfg.WriteWait,
	}

	if err := ws.writeJSON(newSetupMessage(cfg)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send setup: %w", err)
	}

	go ws.readPump()

	log.Printf("[WebSocketConnector] connected to %s (model: %s)", u.Host, cfg.Model)
	return ws, nil
}

type websocketSession struct {
	conn      *websocket.Conn
	gate      *callbackGate
	writeWait time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

var _ Session = (*websocketSession)(nil)

func (w *websocketSession) writeJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	w.conn.SetWriteDeadline(time.Now().Add(w.writeWait))
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *websocketSession) SendRealtimeInput(chunk Blob) error {
	if w.gate.closed() {
		return ErrSessionClosed
	}
	return w.writeJSON(&wsClientMessage{
		RealtimeInput: &wsRealtimeInput{
			Audio: &wsBlob{MIMEType: chunk.MIMEType, Data: chunk.Data},
		},
	})
}

func (w *websocketSession) Close() error {
	w.closeOnce.Do(func() {
		w.gate.silence()

		w.writeMu.Lock()
		_ = w.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(w.writeWait))
		w.writeMu.Unlock()

		w.closeErr = w.conn.Close()
	})
	return w.closeErr
}

func (w *websocketSession) readPump() {
	opened := false
	for {
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			if w.gate.closed() {
				return
			}
			if isNormalClose(err) {
				w.gate.close()
			} else {
				log.Printf("[WebSocketConnector] read error: %v", err)
				w.gate.fail(fmt.Errorf("live session: %w", err))
			}
			w.conn.Close()
			return
		}

		var msg wsServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("[WebSocketConnector] failed to unmarshal server message: %v", err)
			continue
		}

		if msg.SetupComplete != nil {
			if !opened {
				opened = true
				w.gate.open()
			}
			continue
		}

		if msg.GoAway != nil {
			log.Printf("[WebSocketConnector] server going away, time left: %s", msg.GoAway.TimeLeft)
		}

		if msg.ServerContent != nil {
			if !opened {
				opened = true
				w.gate.open()
			}
			evt := msg.ServerContent.toServerEvent()
			if !evt.Empty() {
				w.gate.message(evt)
			}
		}
	}
}

// ErrSessionClosed is returned when sending on a closed session.
var ErrSessionClosed = errors.New("live session closed")

// isNormalClose reports whether err is a clean websocket close.
func isNormalClose(err error) bool {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway
	}
	return false
}
