// Package livekit carries the conversation protocol over a LiveKit room.
// Protocol messages travel as reliable user data packets, the microphone is
// published as a PCM track.
package livekit

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/koscakluka/ema-convai/core/audio"
	"github.com/koscakluka/ema-convai/core/transport"
	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	lkmedia "github.com/livekit/server-sdk-go/v2/pkg/media"
	"github.com/pion/webrtc/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	DefaultServerURL = "wss://livekit.rtc.elevenlabs.io"
	defaultTrackName = "microphone"
)

var ErrAlreadyConnected = errors.New("livekit: already connected")

type Transport struct {
	source    audio.Source
	trackName string
	streams   *transport.Streams

	mu            sync.Mutex
	room          *lksdk.Room
	track         *lkmedia.PCMLocalTrack
	publication   *lksdk.LocalTrackPublication
	cancelCapture context.CancelFunc
	muted         bool
}

type Option func(*Transport)

// WithAudioSource publishes source as the user's microphone. Without it
// the conversation is text only on the user side.
func WithAudioSource(source audio.Source) Option {
	return func(t *Transport) { t.source = source }
}

func WithTrackName(name string) Option {
	return func(t *Transport) { t.trackName = name }
}

func New(opts ...Option) *Transport {
	t := &Transport{
		trackName: defaultTrackName,
		streams:   transport.NewStreams(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Transport) Connect(ctx context.Context, serverURL, token string) error {
	ctx, span := tracer.Start(ctx, "connect livekit room")
	defer span.End()
	span.SetAttributes(attribute.String("server.url", serverURL))

	t.mu.Lock()
	if t.room != nil {
		t.mu.Unlock()
		return ErrAlreadyConnected
	}
	t.streams.Reset()
	t.mu.Unlock()
	t.streams.PublishState(transport.StateConnecting)

	room, err := lksdk.ConnectToRoomWithToken(serverURL, token, t.roomCallback(), lksdk.WithAutoSubscribe(true))
	if err != nil {
		err = fmt.Errorf("failed to connect to room: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if err := ctx.Err(); err != nil {
		room.Disconnect()
		return err
	}

	t.mu.Lock()
	t.room = room
	t.mu.Unlock()

	if t.source != nil {
		if err := t.publishMicrophone(ctx, room); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			_ = t.Disconnect(ctx)
			return err
		}
	}

	logger.InfoContext(ctx, "connected to room", "room", room.Name(), "identity", room.LocalParticipant.Identity())
	t.streams.PublishState(transport.StateConnected)
	return nil
}

func (t *Transport) roomCallback() *lksdk.RoomCallback {
	return &lksdk.RoomCallback{
		ParticipantCallback: lksdk.ParticipantCallback{
			OnDataPacket: func(data lksdk.DataPacket, params lksdk.DataReceiveParams) {
				payload := data.ToProto().GetUser().GetPayload()
				if len(payload) == 0 {
					return
				}
				t.streams.PublishMessage(payload)
			},
			OnTrackSubscribed: func(track *webrtc.TrackRemote, pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
				logger.Debug("subscribed to remote track", "participant", rp.Identity(), "kind", track.Kind().String(), "track", pub.SID())
			},
		},
		OnDisconnected: func() {
			t.streams.PublishState(transport.StateDisconnected)
		},
		OnReconnecting: func() {
			t.streams.PublishState(transport.StateReconnecting)
		},
		OnReconnected: func() {
			t.streams.PublishState(transport.StateConnected)
		},
		OnActiveSpeakersChanged: func(speakers []lksdk.Participant) {
			t.mu.Lock()
			room := t.room
			t.mu.Unlock()
			if room == nil {
				return
			}

			identities := make([]string, 0, len(speakers))
			for _, speaker := range speakers {
				identities = append(identities, speaker.Identity())
			}
			t.streams.PublishSpeaking(remoteSpeaking(identities, room.LocalParticipant.Identity()))
		},
	}
}

func (t *Transport) publishMicrophone(ctx context.Context, room *lksdk.Room) error {
	info := t.source.EncodingInfo()
	if info.IsZero() {
		info = audio.EncodingInfo{SampleRate: audio.DefaultSampleRate, Channels: audio.DefaultChannels, Format: audio.EncodingLinear16}
	}

	track, err := lkmedia.NewPCMLocalTrack(info.SampleRate, info.Channels, nil)
	if err != nil {
		return fmt.Errorf("failed to create audio track: %w", err)
	}

	publication, err := room.LocalParticipant.PublishTrack(track, &lksdk.TrackPublicationOptions{
		Name:   t.trackName,
		Source: livekit.TrackSource_MICROPHONE,
	})
	if err != nil {
		track.Close()
		return fmt.Errorf("failed to publish audio track: %w", err)
	}

	captureCtx, cancelCapture := context.WithCancel(context.WithoutCancel(ctx))
	t.mu.Lock()
	t.track = track
	t.publication = publication
	t.cancelCapture = cancelCapture
	publication.SetMuted(t.muted)
	t.mu.Unlock()

	err = t.source.StartCapture(captureCtx, func(chunk []byte) {
		if t.IsMuted() {
			return
		}
		if err := track.WriteSample(bytesToPCM16(chunk)); err != nil {
			logger.Debug("failed to write microphone sample", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to start microphone capture: %w", err)
	}
	return nil
}

// Disconnect leaves the room and releases the microphone. It is safe to
// call when not connected.
func (t *Transport) Disconnect(ctx context.Context) error {
	t.mu.Lock()
	room, track, cancelCapture := t.room, t.track, t.cancelCapture
	t.room, t.track, t.publication, t.cancelCapture = nil, nil, nil, nil
	t.mu.Unlock()

	t.streams.Close()
	if room == nil {
		return nil
	}

	var errs []error
	if cancelCapture != nil {
		cancelCapture()
		if err := t.source.StopCapture(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop microphone capture: %w", err))
		}
	}
	if track != nil {
		track.Close()
	}
	room.Disconnect()

	logger.InfoContext(ctx, "left room")
	return errors.Join(errs...)
}

func (t *Transport) Send(ctx context.Context, payload []byte) error {
	t.mu.Lock()
	room := t.room
	t.mu.Unlock()
	if room == nil {
		return transport.ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return room.LocalParticipant.PublishDataPacket(lksdk.UserData(payload), lksdk.WithDataPublishReliable(true))
}

func (t *Transport) Messages() <-chan []byte        { return t.streams.Messages() }
func (t *Transport) States() <-chan transport.State { return t.streams.States() }

// AgentSpeaking reports active speaker changes of the remote participants.
func (t *Transport) AgentSpeaking() <-chan bool { return t.streams.AgentSpeaking() }

func (t *Transport) SetMuted(muted bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.muted = muted
	if t.publication != nil {
		t.publication.SetMuted(muted)
	}
	return nil
}

func (t *Transport) IsMuted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.muted
}

// remoteSpeaking reports whether anyone but the local participant is among
// the active speakers.
func remoteSpeaking(speakers []string, localIdentity string) bool {
	for _, identity := range speakers {
		if identity != localIdentity {
			return true
		}
	}
	return false
}

// bytesToPCM16 reads little endian 16 bit samples. A trailing odd byte is
// dropped.
func bytesToPCM16(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}
