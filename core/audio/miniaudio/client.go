package miniaudio

import (
	"context"
	"fmt"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/ema-convai/core/audio"
)

var (
	_ audio.Source = (*Client)(nil)
	_ audio.Sink   = (*Client)(nil)
)

// Client owns a miniaudio context with one capture device for the user's
// microphone and one playback device for agent speech.
type Client struct {
	// audioContext is only saved to be able to uninitialize it, it is an
	// ownership thing
	audioContext *malgo.AllocatedContext
	playbackClient
	captureClient
}

type Option func(*options)

type options struct {
	captureEncoding  audio.EncodingInfo
	playbackEncoding audio.EncodingInfo
}

func WithCaptureEncoding(encoding audio.EncodingInfo) Option {
	return func(o *options) { o.captureEncoding = encoding }
}

// WithPlaybackEncoding should match the agent output format announced in
// the conversation metadata.
func WithPlaybackEncoding(encoding audio.EncodingInfo) Option {
	return func(o *options) { o.playbackEncoding = encoding }
}

func NewClient(opts ...Option) (*Client, error) {
	o := options{
		captureEncoding:  audio.GetDefaultEncodingInfo(),
		playbackEncoding: audio.GetDefaultEncodingInfo(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(string) {})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize miniaudio context: %w", err)
	}

	client := Client{audioContext: audioCtx}

	if err := client.playbackClient.Init(audioCtx, o.playbackEncoding); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize playback client: %w", err)
	}

	if err := client.playbackClient.Start(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to start playback device: %w", err)
	}

	if err := client.captureClient.Init(audioCtx, o.captureEncoding); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize capture client: %w", err)
	}

	return &client, nil
}

func (c *Client) StartCapture(_ context.Context, onAudio func(audio []byte)) error {
	return c.captureClient.Start(onAudio)
}

func (c *Client) StopCapture() error {
	return c.captureClient.Stop()
}

func (c *Client) Close() {
	_ = c.captureClient.Uninit()
	_ = c.playbackClient.Uninit()
	if c.audioContext != nil {
		_ = c.audioContext.Uninit()
		c.audioContext.Free()
		c.audioContext = nil
	}
}

func (c *Client) SendAudio(audio []byte) error {
	return c.playbackClient.SendAudio(audio)
}

func (c *Client) ClearBuffer() {
	c.playbackClient.ClearBuffer()
}

// EncodingInfo reports the capture format, which is what transports need
// to know when publishing the microphone.
func (c *Client) EncodingInfo() audio.EncodingInfo {
	return c.captureClient.encoding
}
