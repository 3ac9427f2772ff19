// Package device provides the local microphone and speaker used by a live
// conversation, on top of miniaudio (malgo).
package device

import (
	"encoding/binary"
	"fmt"
	"log"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
)

// PeriodSizeInMilliseconds is the device callback period.
const PeriodSizeInMilliseconds = 20

// Context owns the miniaudio context shared by the microphone and speaker.
type Context struct {
	mu  sync.Mutex
	ctx *malgo.AllocatedContext
}

// NewContext initializes the platform audio backend.
func NewContext() (*Context, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		log.Printf("[malgo] %s", message)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}
	return &Context{ctx: ctx}, nil
}

func (c *Context) malgoContext() (malgo.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx == nil {
		return malgo.Context{}, fmt.Errorf("audio context closed")
	}
	return c.ctx.Context, nil
}

// Close releases the audio backend. Devices must be closed first.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx == nil {
		return nil
	}
	err := c.ctx.Uninit()
	c.ctx.Free()
	c.ctx = nil
	return err
}

// Microphone returns a microphone on this context.
func (c *Context) Microphone() *Microphone {
	return &Microphone{ctx: c}
}

// Speaker returns a speaker on this context.
func (c *Context) Speaker() *Speaker {
	return &Speaker{ctx: c}
}

// bytesToFloat32 decodes little-endian float32 samples into dst.
func bytesToFloat32(dst []float32, src []byte) []float32 {
	n := len(src) / 4
	if cap(dst) < n {
		dst = make([]float32, n)
	}
	dst = dst[:n]
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
	}
	return dst
}

// float32ToBytes encodes samples as little-endian float32 into dst.
func float32ToBytes(dst []byte, src []float32) {
	for i, s := range src {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(s))
	}
}
