package device

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/realtime-ai/livevoice/pkg/audio"
	"github.com/realtime-ai/livevoice/pkg/live"
)

// Speaker plays scheduled buffers on the default output device.
type Speaker struct {
	ctx *Context
}

var _ live.AudioOutput = (*Speaker)(nil)

// Open starts a mono playback device at sampleRate whose clock is driven
// by the frames it renders.
func (s *Speaker) Open(sampleRate int) (live.OutputContext, error) {
	mctx, err := s.ctx.malgoContext()
	if err != nil {
		return nil, err
	}

	mixer := NewMixer(sampleRate)
	out := &outputContext{Mixer: mixer}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.PeriodSizeInMilliseconds = PeriodSizeInMilliseconds
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = audio.Channels
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.Alsa.NoMMap = 1

	var buf []float32
	out.device, err = malgo.InitDevice(mctx, deviceConfig, malgo.DeviceCallbacks{
		Data: func(outputSamples, _ []byte, _ uint32) {
			n := len(outputSamples) / 4
			if cap(buf) < n {
				buf = make([]float32, n)
			}
			buf = buf[:n]
			mixer.Render(buf)
			float32ToBytes(outputSamples, buf)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize playback device: %w", err)
	}

	if err := out.device.Start(); err != nil {
		out.device.Uninit()
		return nil, fmt.Errorf("failed to start playback device: %w", err)
	}
	return out, nil
}

// outputContext ties a Mixer to the device rendering it.
type outputContext struct {
	*Mixer
	device *malgo.Device

	closeOnce sync.Once
}

func (o *outputContext) Close() error {
	var err error
	o.closeOnce.Do(func() {
		err = o.device.Stop()
		o.device.Uninit()
		_ = o.Mixer.Close()
	})
	return err
}
