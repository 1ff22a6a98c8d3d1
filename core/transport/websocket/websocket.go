// Package websocket carries the conversation protocol over a plain
// websocket. Agent audio arrives as audio events, microphone audio is sent
// as base64 user audio chunks.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-convai/core/audio"
	"github.com/koscakluka/ema-convai/core/messages"
	"github.com/koscakluka/ema-convai/core/transport"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	DefaultServerURL = "wss://api.elevenlabs.io/v1/convai/conversation"
	closeTimeout     = time.Second
)

var ErrAlreadyConnected = errors.New("websocket: already connected")

type Transport struct {
	source  audio.Source
	dialer  *websocket.Dialer
	agentID string
	streams *transport.Streams

	mu            sync.Mutex
	conn          *websocket.Conn
	cancelCapture context.CancelFunc
	muted         bool
	readers       sync.WaitGroup

	connMu sync.Mutex
}

type Option func(*Transport)

// WithAudioSource streams source to the agent as the user's microphone.
func WithAudioSource(source audio.Source) Option {
	return func(t *Transport) { t.source = source }
}

func WithDialer(dialer *websocket.Dialer) Option {
	return func(t *Transport) { t.dialer = dialer }
}

// WithAgentID connects to a public agent. The token passed to Connect may
// then be empty.
func WithAgentID(agentID string) Option {
	return func(t *Transport) { t.agentID = agentID }
}

func New(opts ...Option) *Transport {
	t := &Transport{
		dialer:  websocket.DefaultDialer,
		streams: transport.NewStreams(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Connect dials the conversation endpoint. token is either a signed
// conversation URL or the signature to add to serverURL.
func (t *Transport) Connect(ctx context.Context, serverURL, token string) error {
	ctx, span := tracer.Start(ctx, "connect websocket")
	defer span.End()

	conversationURL, err := t.conversationURL(serverURL, token)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.String("server.host", conversationURL.Host))

	t.mu.Lock()
	if t.conn != nil {
		t.mu.Unlock()
		return ErrAlreadyConnected
	}
	t.streams.Reset()
	t.mu.Unlock()
	t.streams.PublishState(transport.StateConnecting)

	conn, resp, err := t.dialer.DialContext(ctx, conversationURL.String(), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		err = fmt.Errorf("failed to open socket connection: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()

	t.readers.Add(1)
	go t.readMessages(conn)

	if t.source != nil {
		if err := t.startCapture(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			_ = t.Disconnect(ctx)
			return err
		}
	}

	t.streams.PublishState(transport.StateConnected)
	return nil
}

func (t *Transport) conversationURL(serverURL, token string) (*url.URL, error) {
	if strings.HasPrefix(token, "wss://") || strings.HasPrefix(token, "ws://") {
		return url.Parse(token)
	}

	if serverURL == "" {
		serverURL = DefaultServerURL
	}
	conversationURL, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	query := conversationURL.Query()
	if token != "" {
		query.Set("conversation_signature", token)
	}
	if t.agentID != "" {
		query.Set("agent_id", t.agentID)
	}
	conversationURL.RawQuery = query.Encode()
	return conversationURL, nil
}

func (t *Transport) readMessages(conn *websocket.Conn) {
	defer t.readers.Done()

	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				logger.Debug("websocket read ended", "error", err)
			}
			t.streams.PublishState(transport.StateDisconnected)
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if !t.streams.PublishMessage(msg) {
			return
		}
	}
}

func (t *Transport) startCapture(ctx context.Context) error {
	captureCtx, cancelCapture := context.WithCancel(context.WithoutCancel(ctx))
	t.mu.Lock()
	t.cancelCapture = cancelCapture
	t.mu.Unlock()

	err := t.source.StartCapture(captureCtx, func(chunk []byte) {
		if t.IsMuted() {
			return
		}
		payload, err := messages.Encode(messages.UserAudioChunk(chunk))
		if err != nil {
			return
		}
		if err := t.Send(captureCtx, payload); err != nil {
			logger.Debug("failed to send microphone audio", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to start microphone capture: %w", err)
	}
	return nil
}

// Disconnect closes the socket and stops the microphone. It is safe to call
// when not connected.
func (t *Transport) Disconnect(ctx context.Context) error {
	t.mu.Lock()
	conn, cancelCapture := t.conn, t.cancelCapture
	t.conn, t.cancelCapture = nil, nil
	t.mu.Unlock()

	t.streams.Close()
	if conn == nil {
		return nil
	}

	var errs []error
	if cancelCapture != nil {
		cancelCapture()
		if err := t.source.StopCapture(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop microphone capture: %w", err))
		}
	}

	t.connMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeTimeout))
	t.connMu.Unlock()
	if err := conn.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close socket: %w", err))
	}
	t.readers.Wait()

	logger.InfoContext(ctx, "websocket closed")
	return errors.Join(errs...)
}

func (t *Transport) Send(ctx context.Context, payload []byte) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return transport.ErrNotConnected
	}

	t.connMu.Lock()
	defer t.connMu.Unlock()

	deadline, _ := ctx.Deadline()
	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("failed to write to socket: %w", err)
	}
	return nil
}

func (t *Transport) Messages() <-chan []byte        { return t.streams.Messages() }
func (t *Transport) States() <-chan transport.State { return t.streams.States() }

func (t *Transport) SetMuted(muted bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.muted = muted
	return nil
}

func (t *Transport) IsMuted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.muted
}
