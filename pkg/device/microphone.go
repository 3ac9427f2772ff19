package device

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/realtime-ai/livevoice/pkg/live"
)

// Microphone captures float32 samples from the default input device.
type Microphone struct {
	ctx *Context
}

var _ live.Microphone = (*Microphone)(nil)

// Open initializes the capture device. Opening fails when there is no
// input device or the OS denies access.
func (m *Microphone) Open(sampleRate, channels int) (live.InputStream, error) {
	mctx, err := m.ctx.malgoContext()
	if err != nil {
		return nil, err
	}

	s := &inputStream{}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.PeriodSizeInMilliseconds = PeriodSizeInMilliseconds
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = uint32(channels)
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.Alsa.NoMMap = 1

	s.device, err = malgo.InitDevice(mctx, deviceConfig, malgo.DeviceCallbacks{
		Data: func(_, inputSamples []byte, _ uint32) {
			s.mu.Lock()
			fn := s.onSamples
			s.mu.Unlock()
			if fn == nil {
				return
			}
			// 每次回调都分配新切片，下游可以持有
			fn(bytesToFloat32(nil, inputSamples))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize capture device: %w", err)
	}
	return s, nil
}

type inputStream struct {
	device *malgo.Device

	mu        sync.Mutex
	onSamples func([]float32)
	closed    bool
}

func (s *inputStream) Start(onSamples func(samples []float32)) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("capture device closed")
	}
	s.onSamples = onSamples
	s.mu.Unlock()

	if err := s.device.Start(); err != nil {
		return fmt.Errorf("failed to start capture device: %w", err)
	}
	return nil
}

func (s *inputStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.onSamples = nil
	s.mu.Unlock()

	err := s.device.Stop()
	s.device.Uninit()
	return err
}
