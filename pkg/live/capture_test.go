package live

import (
	"encoding/base64"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realtime-ai/livevoice/pkg/audio"
)

type chunkRecorder struct {
	mu     sync.Mutex
	chunks []AudioChunk
}

func (r *chunkRecorder) send(c AudioChunk) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks = append(r.chunks, c)
	return true
}

func TestCapture_FixedSizeChunks(t *testing.T) {
	mic := &fakeMic{}
	rec := &chunkRecorder{}

	p, err := startCapture(mic, audio.CaptureSampleRate, 4096, rec.send)
	require.NoError(t, err)
	assert.Equal(t, 16000, mic.rate)

	stream := mic.Stream(0)
	stream.Push(make([]float32, 3000))
	assert.Empty(t, rec.chunks)

	samples := make([]float32, 6000)
	samples[1000] = 0.5 // lands at index 4000 of the first chunk
	stream.Push(samples)

	require.Len(t, rec.chunks, 2)
	for _, c := range rec.chunks {
		assert.Equal(t, "audio/pcm;rate=16000", c.MIMEType)
		raw, err := base64.StdEncoding.DecodeString(c.Data)
		require.NoError(t, err)
		assert.Len(t, raw, 4096*2)
	}

	raw, _ := base64.StdEncoding.DecodeString(rec.chunks[0].Data)
	pcm, err := audio.PCM16ToFloat(raw)
	require.NoError(t, err)
	assert.Equal(t, float32(0.5), pcm[4000])
	assert.Equal(t, 808, p.blocker.Pending())

	p.stop()
	assert.Equal(t, 1, stream.Closed())
	assert.Equal(t, 0, p.blocker.Pending())
}

func TestCapture_OpenFailure(t *testing.T) {
	mic := &fakeMic{err: errors.New("NotAllowedError: permission denied by user")}

	_, err := startCapture(mic, audio.CaptureSampleRate, 4096, func(AudioChunk) bool { return true })
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDevice)
	assert.Equal(t, KindDevice, KindOf(err))
}
