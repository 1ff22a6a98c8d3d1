package audio

import "context"

// Source is a local audio capture device. Transports publish whatever it
// produces as the user's microphone.
type Source interface {
	EncodingInfo() EncodingInfo
	StartCapture(ctx context.Context, onAudio func(audio []byte)) error
	StopCapture() error
}

// Sink plays agent audio received from the conversation.
type Sink interface {
	EncodingInfo() EncodingInfo
	SendAudio(audio []byte) error
	ClearBuffer()
}
