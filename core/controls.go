package convai

import (
	"fmt"

	"github.com/koscakluka/ema-convai/core/messages"
)

// SendUserMessage sends text as if the user had said it. The agent answers
// it like any other user turn.
func (s *Session) SendUserMessage(text string) error {
	return s.sendCommand(messages.UserMessage(text))
}

// SendContextualUpdate adds background information to the conversation
// without prompting a response.
func (s *Session) SendContextualUpdate(text string) error {
	return s.sendCommand(messages.ContextualUpdate(text))
}

// SendUserActivity keeps the agent from starting to speak for a moment,
// e.g. while the user is typing.
func (s *Session) SendUserActivity() error {
	return s.sendCommand(messages.UserActivity())
}

// sendCommand enqueues msg if the session is connected. Only the
// connection check is synchronous, send failures go to the error callback.
func (s *Session) sendCommand(msg messages.Message) error {
	if s.Status() != StatusConnected {
		return ErrNotConnected
	}

	s.enqueueSend(msg)
	return nil
}

// SendFeedback rates the latest agent response. Each response can be rated
// once, a repeated rating is reported as ErrFeedbackUnavailable through the
// error callback.
func (s *Session) SendFeedback(positive bool) error {
	s.mu.Lock()
	if s.status != StatusConnected {
		s.mu.Unlock()
		return ErrNotConnected
	}
	if !s.canSendFeedbackLocked() {
		eventID := s.currentEventID
		s.mu.Unlock()
		s.reportError(fmt.Errorf("%w: event %d was already rated", ErrFeedbackUnavailable, eventID))
		return nil
	}
	eventID := s.currentEventID
	s.lastFeedbackEventID = eventID
	s.mu.Unlock()

	if s.callbacks.onCanSendFeedbackChange != nil {
		s.callbacks.onCanSendFeedbackChange(false)
	}
	s.enqueueSend(messages.Feedback(positive, eventID))
	return nil
}

// SetMicMuted mutes or unmutes the local microphone. Failures leave the
// mute state unchanged.
func (s *Session) SetMicMuted(muted bool) error {
	if s.transport == nil {
		err := fmt.Errorf("%w: no transport configured", ErrInvalidArgument)
		s.reportError(err)
		return err
	}

	wasMuted := s.transport.IsMuted()
	if err := s.transport.SetMuted(muted); err != nil {
		err = fmt.Errorf("%w: failed to set microphone mute: %w", ErrTransport, err)
		s.reportError(err)
		return err
	}

	if wasMuted != muted && s.callbacks.onMuteChange != nil {
		s.callbacks.onMuteChange(muted)
	}
	return nil
}

func (s *Session) ToggleMute() error {
	return s.SetMicMuted(!s.IsMuted())
}
