package miniaudio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/ema-convai/core/audio"
)

type captureClient struct {
	device   *malgo.Device
	encoding audio.EncodingInfo

	onAudio func(audio []byte)

	mu sync.Mutex
}

func (c *captureClient) Init(audioContext *malgo.AllocatedContext, encoding audio.EncodingInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if encoding.Format != audio.EncodingLinear16 {
		return fmt.Errorf("unsupported capture format %q", encoding.Format.Name())
	}

	c.encoding = encoding
	bytesPerFrame := encoding.FrameSize()

	config := malgo.DefaultDeviceConfig(malgo.Capture)
	config.SampleRate = uint32(encoding.SampleRate)
	config.Capture.Format = malgo.FormatS16
	config.Capture.Channels = uint32(max(encoding.Channels, 1))
	config.Alsa.NoMMap = 1
	config.PerformanceProfile = malgo.LowLatency
	config.PeriodSizeInFrames = uint32(encoding.SampleRate / 50) // 20ms
	config.Periods = 3

	var err error
	c.device, err = malgo.InitDevice(audioContext.Context, config, malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			if len(pInput) < n || n == 0 {
				return
			}

			c.mu.Lock()
			onAudio := c.onAudio
			c.mu.Unlock()
			if onAudio != nil {
				chunk := make([]byte, n)
				copy(chunk, pInput[:n])
				onAudio(chunk)
			}
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize capture device: %w", err)
	}

	return nil
}

func (c *captureClient) Start(onAudio func(audio []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return fmt.Errorf("device not initialized")
	}

	c.onAudio = onAudio
	if c.device.IsStarted() {
		return nil
	}

	if err := c.device.Start(); err != nil {
		c.onAudio = nil
		return fmt.Errorf("failed to start capture device: %w", err)
	}
	return nil
}

func (c *captureClient) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return fmt.Errorf("device not initialized")
	}

	c.onAudio = nil
	if !c.device.IsStarted() {
		return nil
	}

	if err := c.device.Stop(); err != nil {
		return fmt.Errorf("failed to stop capture device: %w", err)
	}
	return nil
}

func (c *captureClient) Uninit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device != nil {
		c.device.Uninit()
		c.device = nil
	}

	c.onAudio = nil
	return nil
}
