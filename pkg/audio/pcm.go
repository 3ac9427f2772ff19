// Package audio provides PCM conversion and framing utilities for the live
// voice pipeline.
//
// Outbound audio is captured as float32 samples in [-1, 1] and sent as
// base64 little-endian int16 PCM; inbound audio arrives the same way and is
// decoded back into float32 buffers for playback.
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"mime"
	"strconv"
	"strings"
)

const (
	// CaptureSampleRate 麦克风采集采样率
	CaptureSampleRate = 16000
	// PlaybackSampleRate 模型返回音频的采样率
	PlaybackSampleRate = 24000
	// Channels 通道数（单声道）
	Channels = 1
	// BytesPerSample 每个采样点的字节数 (16-bit)
	BytesPerSample = 2
	// DefaultBlockSize 每个上行音频块的采样点数
	DefaultBlockSize = 4096
)

// CaptureMIMEType is the MIME descriptor attached to every outbound chunk.
var CaptureMIMEType = PCMMIMEType(CaptureSampleRate)

var (
	// ErrOddLength is returned when a PCM16 payload has a dangling byte.
	ErrOddLength = errors.New("pcm16 payload has odd byte length")
	// ErrEmptyPayload is returned when a payload carries no samples.
	ErrEmptyPayload = errors.New("pcm16 payload is empty")
)

// PCMMIMEType returns "audio/pcm;rate=<rate>".
func PCMMIMEType(rate int) string {
	return "audio/pcm;rate=" + strconv.Itoa(rate)
}

// RateFromMIME extracts the rate parameter of an audio/pcm MIME type. It
// returns fallback when the parameter is absent.
func RateFromMIME(mimeType string, fallback int) (int, error) {
	if strings.TrimSpace(mimeType) == "" {
		return fallback, nil
	}
	mediaType, params, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return 0, fmt.Errorf("parse mime type %q: %w", mimeType, err)
	}
	if !strings.HasPrefix(mediaType, "audio/") {
		return 0, fmt.Errorf("unsupported media type %q", mediaType)
	}
	raw, ok := params["rate"]
	if !ok {
		return fallback, nil
	}
	rate, err := strconv.Atoi(raw)
	if err != nil || rate <= 0 {
		return 0, fmt.Errorf("invalid rate %q in mime type", raw)
	}
	return rate, nil
}

// Buffer is a decoded, playable block of mono or interleaved audio.
type Buffer struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// Frames returns the number of sample frames in the buffer.
func (b *Buffer) Frames() int {
	if b == nil || b.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Duration returns the playback length in seconds.
func (b *Buffer) Duration() float64 {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return float64(b.Frames()) / float64(b.SampleRate)
}

// FloatToPCM16 converts float samples to little-endian int16 PCM. Each
// sample is multiplied by 32768 and truncated; values outside the int16
// range are clamped.
func FloatToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		v := float64(s) * 32768
		switch {
		case v > 32767:
			v = 32767
		case v < -32768:
			v = -32768
		}
		binary.LittleEndian.PutUint16(out[i*BytesPerSample:], uint16(int16(v)))
	}
	return out
}

// PCM16ToFloat converts little-endian int16 PCM to float samples using
// int16/32768.
func PCM16ToFloat(data []byte) ([]float32, error) {
	if len(data)%BytesPerSample != 0 {
		return nil, ErrOddLength
	}
	out := make([]float32, len(data)/BytesPerSample)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(data[i*BytesPerSample:]))) / 32768
	}
	return out, nil
}

// EncodeChunk converts a block of float samples into base64 PCM16.
func EncodeChunk(samples []float32) string {
	return base64.StdEncoding.EncodeToString(FloatToPCM16(samples))
}

// DecodePCM16 decodes a base64 PCM16 payload into a playable buffer. The
// sample rate comes from the MIME type and defaults to PlaybackSampleRate.
func DecodePCM16(data, mimeType string) (*Buffer, error) {
	rate, err := RateFromMIME(mimeType, PlaybackSampleRate)
	if err != nil {
		return nil, err
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	if len(raw) == 0 {
		return nil, ErrEmptyPayload
	}
	samples, err := PCM16ToFloat(raw)
	if err != nil {
		return nil, err
	}
	return &Buffer{Samples: samples, SampleRate: rate, Channels: Channels}, nil
}
