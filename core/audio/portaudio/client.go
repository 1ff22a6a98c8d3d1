package portaudio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/koscakluka/ema-convai/core/audio"
)

var (
	_ audio.Source = (*Client)(nil)
	_ audio.Sink   = (*Client)(nil)
)

// Client is a full-duplex PortAudio stream. Reads and writes are blocking,
// so capture runs on its own goroutine until StopCapture or ctx is done.
type Client struct {
	bufferSize int
	stream     *portaudio.Stream

	in  []int16
	out []int16

	captureMu     sync.Mutex
	cancelCapture context.CancelFunc
	captureDone   chan struct{}

	writeMu       sync.Mutex
	leftoverAudio []byte
}

func NewClient(bufferSize int) (*Client, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	in := make([]int16, bufferSize)
	out := make([]int16, bufferSize)
	stream, err := portaudio.OpenDefaultStream(1, 1, audio.DefaultSampleRate, bufferSize, in, out)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open portaudio stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to start portaudio stream: %w", err)
	}

	return &Client{
		bufferSize: bufferSize,
		stream:     stream,
		in:         in,
		out:        out,
	}, nil
}

func (c *Client) StartCapture(ctx context.Context, onAudio func(audio []byte)) error {
	c.captureMu.Lock()
	defer c.captureMu.Unlock()
	if c.cancelCapture != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.cancelCapture = cancel
	c.captureDone = done

	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			if err := c.stream.Read(); err != nil {
				// Input overflow is recoverable, drop the buffer.
				continue
			}

			audioBuffer := bytes.Buffer{}
			_ = binary.Write(&audioBuffer, binary.LittleEndian, c.in)
			onAudio(audioBuffer.Bytes())
		}
	}()

	return nil
}

func (c *Client) StopCapture() error {
	c.captureMu.Lock()
	cancel, done := c.cancelCapture, c.captureDone
	c.cancelCapture, c.captureDone = nil, nil
	c.captureMu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func (c *Client) Close() {
	_ = c.StopCapture()
	c.stream.Stop()
	c.stream.Close()
	portaudio.Terminate()
}

func (c *Client) SendAudio(audio []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	bufferSize := c.bufferSize * 2
	audio = append(c.leftoverAudio, audio...)
	for len(audio) >= bufferSize {
		if err := binary.Read(bytes.NewReader(audio[:bufferSize]), binary.LittleEndian, c.out); err != nil {
			return fmt.Errorf("failed to decode audio: %w", err)
		}
		if err := c.stream.Write(); err != nil {
			return fmt.Errorf("failed to write to portaudio stream: %w", err)
		}
		audio = audio[bufferSize:]
	}

	c.leftoverAudio = append(c.leftoverAudio[:0], audio...)
	return nil
}

func (c *Client) ClearBuffer() {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.leftoverAudio = nil
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.GetDefaultEncodingInfo()
}
