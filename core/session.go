// Package convai runs a client-side conversation with a real-time voice
// agent. A Session owns the connection lifecycle, routes inbound protocol
// events to callbacks and answers the agent's client tool calls.
package convai

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	"github.com/koscakluka/ema-convai/core/messages"
	"github.com/koscakluka/ema-convai/core/token"
	"github.com/koscakluka/ema-convai/core/transport"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultServerURL = "wss://livekit.rtc.elevenlabs.io"
	// EndCallToolName is the system tool the agent uses to hang up.
	EndCallToolName = "end_call"
)

type Session struct {
	transport     Transport
	tokenProvider TokenProvider
	serverURL     string
	tools         map[string]ClientTool
	callbacks     sessionCallbacks
	emit          eventEmitter

	mu                   sync.Mutex
	status               Status
	mode                 Mode
	conversationID       string
	currentEventID       int
	lastFeedbackEventID  int
	lastInterruptEventID int
	// sessionID identifies a single start attempt, a late failure of an
	// abandoned attempt must not tear down its successor.
	sessionID     string
	sessionCtx    context.Context
	cancelStart   context.CancelFunc
	cancelReceive context.CancelFunc
	lastSend      chan struct{}

	sendMu  sync.Mutex
	workers sync.WaitGroup
}

func NewSession(opts ...SessionOption) *Session {
	s := &Session{
		serverURL: DefaultServerURL,
		tools:     map[string]ClientTool{},
		emit:      noopEventEmitter,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.tokenProvider == nil {
		s.tokenProvider = token.NewClient()
	}
	s.emit = newCallbackEventEmitter(s.callbacks)
	return s
}

// StartSession connects to the conversation server and sends the
// conversation initiation. It returns once the session is connected, or
// with the error that prevented it, in which case the session is back to
// disconnected.
func (s *Session) StartSession(ctx context.Context, opts ...StartOption) error {
	var options StartOptions
	for _, opt := range opts {
		opt(&options)
	}

	if err := s.validateStart(options); err != nil {
		s.reportError(err)
		return err
	}

	var snapshot StartOptions
	if err := copier.CopyWithOption(&snapshot, &options, copier.Option{DeepCopy: true}); err != nil {
		err = fmt.Errorf("%w: failed to copy start options: %w", ErrInvalidArgument, err)
		s.reportError(err)
		return err
	}

	startCtx, cancelStart := context.WithCancel(ctx)
	defer cancelStart()

	s.mu.Lock()
	if s.status != StatusDisconnected {
		status := s.status
		s.mu.Unlock()
		err := fmt.Errorf("%w: session is %s", ErrAlreadyActive, status)
		s.reportError(err)
		return err
	}
	sessionID := uuid.NewString()
	s.sessionID = sessionID
	s.cancelStart = cancelStart
	change := s.updateStatusLocked(StatusConnecting)
	s.mu.Unlock()
	s.notifyStatus(change)

	ctx, span := tracer.Start(startCtx, "start session", trace.WithAttributes(
		attribute.String("session.id", sessionID),
		attribute.String("agent.id", snapshot.AgentID),
	))
	defer span.End()

	if err := s.connect(ctx, sessionID, snapshot); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.abortStart(sessionID, err)
		return err
	}

	logger.InfoContext(ctx, "session started", "session_id", sessionID)
	return nil
}

func (s *Session) validateStart(options StartOptions) error {
	if s.transport == nil {
		return fmt.Errorf("%w: no transport configured", ErrInvalidArgument)
	}
	if options.AgentID == "" && options.ConversationToken == "" {
		return fmt.Errorf("%w: agent id or conversation token is required", ErrInvalidArgument)
	}
	return nil
}

func (s *Session) connect(ctx context.Context, sessionID string, options StartOptions) error {
	conversationToken := options.ConversationToken
	if conversationToken == "" {
		fetched, err := s.tokenProvider.FetchToken(ctx, options.AgentID)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrTokenFetch, err)
		}
		conversationToken = fetched
	}

	if err := s.transport.Connect(ctx, s.serverURL, conversationToken); err != nil {
		return fmt.Errorf("%w: failed to connect: %w", ErrTransport, err)
	}

	var speaking <-chan bool
	if reporter, ok := s.transport.(AgentSpeakingReporter); ok {
		speaking = reporter.AgentSpeaking()
	}

	sessionCtx := context.WithoutCancel(ctx)
	receiveCtx, cancelReceive := context.WithCancel(sessionCtx)
	s.mu.Lock()
	if s.sessionID != sessionID || ctx.Err() != nil {
		// The transport connected after the session was ended, so its
		// Disconnect ran too early. This attempt still owns the connection.
		owned := s.sessionID == sessionID || s.status == StatusDisconnected
		s.mu.Unlock()
		cancelReceive()
		if owned {
			if err := s.transport.Disconnect(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("failed to release transport connected after end", "error", err)
			}
		}
		return fmt.Errorf("%w: session ended while connecting: %w", ErrTransport, context.Canceled)
	}
	s.sessionCtx = sessionCtx
	s.cancelReceive = cancelReceive
	s.mu.Unlock()

	go s.receive(receiveCtx, s.transport.Messages(), s.transport.States(), speaking)

	initiation := messages.ConversationInitiation(messages.InitiationOptions{
		UserID:             options.UserID,
		Overrides:          options.Overrides,
		CustomLLMExtraBody: options.CustomLLMExtraBody,
		DynamicVariables:   options.DynamicVariables,
	})
	if err := s.send(ctx, initiation); err != nil {
		return err
	}

	s.mu.Lock()
	if s.sessionID != sessionID || s.status != StatusConnecting {
		s.mu.Unlock()
		return fmt.Errorf("%w: session ended while connecting: %w", ErrTransport, context.Canceled)
	}
	s.cancelStart = nil
	change := s.updateStatusLocked(StatusConnected)
	s.mu.Unlock()
	s.notifyStatus(change)
	return nil
}

// abortStart releases what a failed start attempt acquired. Cleanup errors
// are logged, the start error is the one reported.
func (s *Session) abortStart(sessionID string, err error) {
	s.mu.Lock()
	if s.sessionID != sessionID {
		s.mu.Unlock()
		s.reportError(err)
		return
	}
	cancelReceive := s.cancelReceive
	s.cancelStart, s.cancelReceive = nil, nil
	alreadyEnded := s.status == StatusDisconnected
	s.mu.Unlock()

	if cancelReceive != nil {
		cancelReceive()
	}
	if !alreadyEnded {
		if disconnectErr := s.transport.Disconnect(context.Background()); disconnectErr != nil {
			logger.Warn("failed to release transport after failed start", "error", disconnectErr)
		}
		s.resetConversation()
		s.setStatus(StatusDisconnected)
	}
	s.reportError(err)
}

// EndSession ends the conversation. Ending a session that is not running
// is a no-op. Calling it while the session is still connecting cancels the
// start.
func (s *Session) EndSession(ctx context.Context) error {
	return s.end(ctx, DisconnectDetails{Reason: DisconnectReasonUser})
}

func (s *Session) end(ctx context.Context, details DisconnectDetails) error {
	s.mu.Lock()
	if s.status == StatusDisconnected || s.status == StatusDisconnecting {
		s.mu.Unlock()
		return nil
	}
	cancelStart, cancelReceive := s.cancelStart, s.cancelReceive
	s.cancelStart, s.cancelReceive = nil, nil
	var change statusChange
	// A lost connection goes straight to disconnected.
	if details.Reason != DisconnectReasonError {
		change = s.updateStatusLocked(StatusDisconnecting)
	}
	s.mu.Unlock()
	s.notifyStatus(change)

	ctx, span := tracer.Start(ctx, "end session", trace.WithAttributes(
		attribute.String("disconnect.reason", string(details.Reason)),
	))
	defer span.End()

	if cancelStart != nil {
		cancelStart()
	}
	if cancelReceive != nil {
		cancelReceive()
	}

	var err error
	if disconnectErr := s.transport.Disconnect(ctx); disconnectErr != nil {
		err = fmt.Errorf("%w: failed to disconnect: %w", ErrTransport, disconnectErr)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.reportError(err)
	}

	s.resetConversation()
	s.setStatus(StatusDisconnected)

	logger.InfoContext(ctx, "session ended", "reason", string(details.Reason), "error", details.Err)
	if s.callbacks.onDisconnect != nil {
		s.callbacks.onDisconnect(details)
	}
	return err
}

func (s *Session) resetConversation() {
	s.mu.Lock()
	s.conversationID = ""
	s.currentEventID = 0
	s.lastFeedbackEventID = 0
	s.lastInterruptEventID = 0
	s.mu.Unlock()

	s.setMode(ModeListening)
}

func (s *Session) receive(ctx context.Context, inbound <-chan []byte, states <-chan transport.State, speaking <-chan bool) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-inbound:
			if ctx.Err() != nil {
				return
			}
			s.handleMessage(ctx, payload)
		case state := <-states:
			if ctx.Err() != nil {
				return
			}
			s.handleTransportState(ctx, state)
		case isSpeaking := <-speaking:
			if ctx.Err() != nil {
				return
			}
			if isSpeaking {
				s.setMode(ModeSpeaking)
			} else {
				s.setMode(ModeListening)
			}
		}
	}
}

func (s *Session) handleTransportState(ctx context.Context, state transport.State) {
	switch state {
	case transport.StateReconnecting:
		logger.WarnContext(ctx, "transport reconnecting")
	case transport.StateDisconnected:
		if status := s.Status(); status != StatusConnected && status != StatusConnecting {
			return
		}
		logger.WarnContext(ctx, "transport disconnected unexpectedly")
		_ = s.end(context.WithoutCancel(ctx), DisconnectDetails{Reason: DisconnectReasonError, Err: ErrConnectionLost})
	default:
		logger.DebugContext(ctx, "transport state changed", "state", state.String())
	}
}
