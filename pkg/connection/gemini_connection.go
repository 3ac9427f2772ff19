package connection

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"sync"

	"google.golang.org/genai"
)

// GeminiConfig holds configuration for the genai-backed connector.
type GeminiConfig struct {
	// Backend defaults to genai.BackendGeminiAPI.
	Backend genai.Backend
	// HTTPOptions overrides the API endpoint or version, mainly for tests.
	HTTPOptions genai.HTTPOptions
}

type geminiConnector struct {
	cfg GeminiConfig
}

var _ Connector = (*geminiConnector)(nil)

// NewGeminiConnector creates a Connector backed by the genai Live API.
func NewGeminiConnector(cfg GeminiConfig) Connector {
	if cfg.Backend == genai.BackendUnspecified {
		cfg.Backend = genai.BackendGeminiAPI
	}
	return &geminiConnector{cfg: cfg}
}

// liveConnectConfig builds the genai session config: audio responses in the
// selected voice with both directions transcribed.
func liveConnectConfig(cfg Config) *genai.LiveConnectConfig {
	lc := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
	}
	if cfg.Voice != "" {
		lc.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		}
	}
	if cfg.SystemInstruction != "" {
		lc.SystemInstruction = genai.NewContentFromText(cfg.SystemInstruction, genai.RoleUser)
	}
	if cfg.InputTranscription {
		lc.InputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	if cfg.OutputTranscription {
		lc.OutputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	return lc
}

func (c *geminiConnector) Connect(ctx context.Context, cfg Config, cb Callbacks) (Session, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     c.cfg.Backend,
		HTTPOptions: c.cfg.HTTPOptions,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	log.Printf("[GeminiConnector] connecting to model: %s (voice: %s)", model, cfg.Voice)
	session, err := client.Live.Connect(ctx, model, liveConnectConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("connect live model: %w", err)
	}

	gs := &geminiSession{
		session: session,
		gate:    &callbackGate{cb: cb},
	}
	go gs.receiveLoop()

	return gs, nil
}

type geminiSession struct {
	session *genai.Session
	gate    *callbackGate

	closeOnce sync.Once
	closeErr  error
}

var _ Session = (*geminiSession)(nil)

func (g *geminiSession) SendRealtimeInput(chunk Blob) error {
	if g.gate.closed() {
		return ErrSessionClosed
	}
	data, err := base64.StdEncoding.DecodeString(chunk.Data)
	if err != nil {
		return fmt.Errorf("decode realtime chunk: %w", err)
	}
	return g.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{Data: data, MIMEType: chunk.MIMEType},
	})
}

func (g *geminiSession) Close() error {
	g.closeOnce.Do(func() {
		g.gate.silence()
		g.closeErr = g.session.Close()
	})
	return g.closeErr
}

func (g *geminiSession) receiveLoop() {
	opened := false
	for {
		msg, err := g.session.Receive()
		if err != nil {
			if g.gate.closed() {
				return
			}
			if isNormalClose(err) {
				g.gate.close()
			} else {
				log.Printf("[GeminiConnector] receive error: %v", err)
				g.gate.fail(fmt.Errorf("live session: %w", err))
			}
			return
		}

		if msg.SetupComplete != nil {
			if !opened {
				opened = true
				g.gate.open()
			}
			continue
		}

		if msg.GoAway != nil {
			log.Printf("[GeminiConnector] server going away, time left: %v", msg.GoAway.TimeLeft)
		}

		if msg.ServerContent != nil {
			if !opened {
				opened = true
				g.gate.open()
			}
			evt := fromLiveServerContent(msg.ServerContent)
			if !evt.Empty() {
				g.gate.message(evt)
			}
		}
	}
}

// fromLiveServerContent converts genai server content into a ServerEvent,
// re-encoding inline audio as base64.
func fromLiveServerContent(sc *genai.LiveServerContent) *ServerEvent {
	evt := &ServerEvent{
		TurnComplete: sc.TurnComplete,
		Interrupted:  sc.Interrupted,
	}
	if sc.OutputTranscription != nil {
		evt.OutputTranscript = sc.OutputTranscription.Text
	}
	if sc.InputTranscription != nil {
		evt.InputTranscript = sc.InputTranscription.Text
	}
	if sc.ModelTurn != nil {
		for _, part := range sc.ModelTurn.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			evt.Audio = append(evt.Audio, Blob{
				Data:     base64.StdEncoding.EncodeToString(part.InlineData.Data),
				MIMEType: part.InlineData.MIMEType,
			})
		}
	}
	return evt
}
