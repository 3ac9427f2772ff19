package live

import (
	"log"

	"github.com/realtime-ai/livevoice/pkg/audio"
)

// capturePipeline turns microphone periods into fixed-size PCM16 chunks.
type capturePipeline struct {
	stream  InputStream
	blocker *audio.Blocker
	mime    string
	send    func(AudioChunk) bool
}

// startCapture opens the microphone and starts streaming chunks to send.
func startCapture(mic Microphone, sampleRate, blockSize int, send func(AudioChunk) bool) (*capturePipeline, error) {
	stream, err := mic.Open(sampleRate, audio.Channels)
	if err != nil {
		return nil, newError(KindDevice, "open microphone", err)
	}

	p := &capturePipeline{
		stream:  stream,
		blocker: audio.NewBlockerWithConfig(audio.BlockerConfig{BlockSize: blockSize}),
		mime:    audio.PCMMIMEType(sampleRate),
		send:    send,
	}

	if err := stream.Start(p.onSamples); err != nil {
		stream.Close()
		return nil, newError(KindDevice, "start microphone", err)
	}

	log.Printf("[Capture] microphone started: %d Hz, %d samples per chunk", sampleRate, p.blocker.BlockSize())
	return p, nil
}

func (p *capturePipeline) onSamples(samples []float32) {
	p.blocker.Write(samples, func(block []float32) {
		p.send(AudioChunk{Data: audio.EncodeChunk(block), MIMEType: p.mime})
	})
}

// stop closes the microphone stream; no chunk is sent after it returns
// unless the device delivers a late callback, which send drops.
func (p *capturePipeline) stop() {
	if err := p.stream.Close(); err != nil {
		log.Printf("[Capture] close microphone error: %v", err)
	}
	p.blocker.Reset()
}
