package connection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestLiveConnectConfig(t *testing.T) {
	lc := liveConnectConfig(Config{
		Voice:               "Kore",
		SystemInstruction:   "hablas español",
		InputTranscription:  true,
		OutputTranscription: true,
	})

	assert.Equal(t, []genai.Modality{genai.ModalityAudio}, lc.ResponseModalities)
	require.NotNil(t, lc.SpeechConfig)
	assert.Equal(t, "Kore", lc.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName)
	assert.NotNil(t, lc.InputAudioTranscription)
	assert.NotNil(t, lc.OutputAudioTranscription)
	require.NotNil(t, lc.SystemInstruction)
	assert.Equal(t, "hablas español", lc.SystemInstruction.Parts[0].Text)

	bare := liveConnectConfig(Config{})
	assert.Nil(t, bare.SpeechConfig)
	assert.Nil(t, bare.InputAudioTranscription)
	assert.Nil(t, bare.SystemInstruction)
}

func TestFromLiveServerContent(t *testing.T) {
	evt := fromLiveServerContent(&genai.LiveServerContent{
		ModelTurn: &genai.Content{
			Parts: []*genai.Part{
				{Text: "ignored"},
				{InlineData: &genai.Blob{Data: []byte{0x01, 0x02}, MIMEType: "audio/pcm;rate=24000"}},
				nil,
				{InlineData: &genai.Blob{Data: []byte{0x03, 0x04}, MIMEType: "audio/pcm;rate=24000"}},
			},
		},
		OutputTranscription: &genai.Transcription{Text: "Hola"},
		InputTranscription:  &genai.Transcription{Text: "hi"},
		TurnComplete:        true,
	})

	assert.Equal(t, "Hola", evt.OutputTranscript)
	assert.Equal(t, "hi", evt.InputTranscript)
	assert.True(t, evt.TurnComplete)
	assert.False(t, evt.Interrupted)
	assert.Equal(t, []Blob{
		{Data: "AQI=", MIMEType: "audio/pcm;rate=24000"},
		{Data: "AwQ=", MIMEType: "audio/pcm;rate=24000"},
	}, evt.Audio)

	assert.True(t, fromLiveServerContent(&genai.LiveServerContent{}).Empty())
}

func TestCallbackGate(t *testing.T) {
	var opened, messages, errs, closes int
	g := &callbackGate{cb: Callbacks{
		OnOpen:    func() { opened++ },
		OnMessage: func(*ServerEvent) { messages++ },
		OnError:   func(error) { errs++ },
		OnClose:   func() { closes++ },
	}}

	g.open()
	g.message(&ServerEvent{})
	g.fail(assert.AnError)
	g.close()
	g.message(&ServerEvent{})
	g.fail(assert.AnError)

	assert.Equal(t, 1, opened)
	assert.Equal(t, 1, messages)
	assert.Equal(t, 1, errs)
	assert.Equal(t, 0, closes, "only one terminal callback is delivered")

	silent := &callbackGate{cb: Callbacks{OnClose: func() { closes++ }}}
	silent.silence()
	silent.close()
	assert.Equal(t, 0, closes)
}
