package convai

import (
	"context"
	"errors"

	"github.com/koscakluka/ema-convai/core/events"
	"github.com/koscakluka/ema-convai/core/messages"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// handleMessage decodes one inbound payload and routes it. It never fails,
// undecodable payloads are reported and dropped.
func (s *Session) handleMessage(ctx context.Context, payload []byte) {
	event, err := events.Decode(payload)
	if err != nil {
		s.handleDecodeError(ctx, payload, err)
		return
	}

	inboundEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("event.type", string(event.Kind()))))
	s.emitDebug(Debug{Kind: DebugRawEvent, EventType: string(event.Kind()), Payload: event.Raw()})
	s.dispatch(ctx, event)
}

func (s *Session) handleDecodeError(ctx context.Context, payload []byte, err error) {
	switch {
	case errors.Is(err, events.ErrMissingType):
		logger.DebugContext(ctx, "discarding inbound message without type")
	case errors.Is(err, events.ErrInvalidEvent):
		var eventType string
		var fieldErr *events.FieldError
		if errors.As(err, &fieldErr) {
			eventType = string(fieldErr.Kind)
		}
		logger.WarnContext(ctx, "skipping invalid inbound event", "type", eventType, "error", err)
		s.emitDebug(Debug{Kind: DebugSkippedEvent, EventType: eventType, Payload: payload, Err: err})
	default:
		s.reportError(&ParseError{Payload: payload, Err: err})
	}
}

func (s *Session) dispatch(ctx context.Context, event events.Event) {
	switch e := event.(type) {
	case events.ConversationMetadata:
		s.mu.Lock()
		s.conversationID = e.ConversationID
		s.mu.Unlock()

		logger.InfoContext(ctx, "conversation started", "conversation_id", e.ConversationID)
		s.emit(e)
		if s.callbacks.onConnect != nil {
			s.callbacks.onConnect(e.ConversationID)
		}

	case events.Ping:
		if err := s.send(ctx, messages.Pong(e.EventID)); err != nil {
			s.reportError(err)
		}

	case events.Interruption:
		if e.EventID != nil {
			s.mu.Lock()
			s.lastInterruptEventID = max(s.lastInterruptEventID, *e.EventID)
			s.mu.Unlock()
		}
		s.setMode(ModeListening)
		s.emit(e)

	case events.Audio:
		if s.interrupted(e.EventID) {
			logger.DebugContext(ctx, "dropping audio of an interrupted response", "event_id", *e.EventID)
			return
		}
		s.setMode(ModeSpeaking)
		s.emit(e)

	case events.AgentResponse:
		if e.EventID != nil {
			s.advanceEventID(*e.EventID, e)
		}
		s.emit(e)

	case events.AgentResponseCorrection:
		if e.EventID != nil {
			s.advanceEventID(*e.EventID, e)
		}
		s.emit(e)

	case events.ClientToolCall:
		s.handleClientToolCall(ctx, e)

	case events.AgentToolResponse:
		s.emit(e)
		if e.ToolName == EndCallToolName {
			logger.InfoContext(ctx, "agent ended the call")
			_ = s.end(context.WithoutCancel(ctx), DisconnectDetails{Reason: DisconnectReasonAgent})
		}

	default:
		s.emit(event)
	}
}

// interrupted reports whether audio with eventID belongs to a response the
// user already interrupted.
func (s *Session) interrupted(eventID *int) bool {
	if eventID == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return *eventID < s.lastInterruptEventID
}
