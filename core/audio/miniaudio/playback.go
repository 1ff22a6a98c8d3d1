package miniaudio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/ema-convai/core/audio"
)

type playbackClient struct {
	device *malgo.Device

	pending []byte

	mu      sync.Mutex
	audioMu sync.Mutex
}

func (c *playbackClient) Init(audioContext *malgo.AllocatedContext, encoding audio.EncodingInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if encoding.Format != audio.EncodingLinear16 {
		return fmt.Errorf("unsupported playback format %q", encoding.Format.Name())
	}

	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.SampleRate = uint32(encoding.SampleRate)
	config.Playback.Format = malgo.FormatS16
	config.Playback.Channels = uint32(max(encoding.Channels, 1))
	config.Alsa.NoMMap = 1
	config.PeriodSizeInFrames = uint32(encoding.SampleRate / 10) // ~100ms of audio
	config.Periods = 4

	var err error
	if c.device, err = malgo.InitDevice(
		audioContext.Context,
		config,
		malgo.DeviceCallbacks{Data: c.processAudio(encoding.FrameSize())},
	); err != nil {
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}

	return nil
}

func (c *playbackClient) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return fmt.Errorf("device not initialized")
	}

	if err := c.device.Start(); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}

	return nil
}

func (c *playbackClient) SendAudio(audio []byte) error {
	c.mu.Lock()
	device := c.device
	c.mu.Unlock()
	if device == nil {
		return fmt.Errorf("device not initialized")
	} else if !device.IsStarted() {
		return fmt.Errorf("device not started")
	}

	c.audioMu.Lock()
	defer c.audioMu.Unlock()
	c.pending = append(c.pending, audio...)
	return nil
}

// ClearBuffer drops queued agent audio, used when the agent is interrupted.
func (c *playbackClient) ClearBuffer() {
	c.audioMu.Lock()
	defer c.audioMu.Unlock()
	c.pending = nil
}

func (c *playbackClient) Uninit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device == nil {
		return nil
	}

	c.device.Uninit()
	c.device = nil
	return nil
}

func (c *playbackClient) processAudio(bytesPerFrame int) malgo.DataProc {
	return func(pOutput, _ []byte, frameCount uint32) {
		need := min(int(frameCount)*bytesPerFrame, len(pOutput))

		c.audioMu.Lock()
		defer c.audioMu.Unlock()
		if len(c.pending) == 0 {
			return
		}

		n := copy(pOutput[:need], c.pending)
		c.pending = c.pending[n:]
	}
}
