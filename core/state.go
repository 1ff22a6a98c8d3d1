package convai

import (
	"encoding/json"

	"github.com/koscakluka/ema-convai/core/events"
)

type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusDisconnecting
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// Mode tells whether the agent is currently producing audio.
type Mode int

const (
	ModeListening Mode = iota
	ModeSpeaking
)

func (m Mode) String() string {
	if m == ModeSpeaking {
		return "speaking"
	}
	return "listening"
}

type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

type Message struct {
	Role    Role
	Text    string
	EventID *int
}

type DisconnectReason string

const (
	DisconnectReasonUser  DisconnectReason = "user"
	DisconnectReasonAgent DisconnectReason = "agent"
	DisconnectReasonError DisconnectReason = "error"
)

type DisconnectDetails struct {
	Reason DisconnectReason
	// Err is set when Reason is DisconnectReasonError.
	Err error
}

type DebugKind string

const (
	// DebugRawEvent carries every classified inbound envelope.
	DebugRawEvent DebugKind = "raw_event"
	// DebugUnhandledEvent carries envelopes of types this client does not know.
	DebugUnhandledEvent DebugKind = "unhandled_event"
	// DebugSkippedEvent carries envelopes dropped for missing or invalid
	// fields.
	DebugSkippedEvent DebugKind = "skipped_event"
	// DebugEventIDRegression is emitted when an agent response carries an
	// event id lower than the current one. The current id is kept.
	DebugEventIDRegression DebugKind = "event_id_regression"
)

type Debug struct {
	Kind      DebugKind
	EventType string
	Payload   json.RawMessage
	Err       error
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *Session) IsSpeaking() bool {
	return s.Mode() == ModeSpeaking
}

// ConversationID is empty until the server has confirmed the conversation.
func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

func (s *Session) CurrentEventID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentEventID
}

// CanSendFeedback reports whether the latest agent response can still be
// rated.
func (s *Session) CanSendFeedback() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canSendFeedbackLocked()
}

func (s *Session) IsMuted() bool {
	if s.transport == nil {
		return false
	}
	return s.transport.IsMuted()
}

func (s *Session) canSendFeedbackLocked() bool {
	return s.status == StatusConnected && s.currentEventID != s.lastFeedbackEventID
}

type statusChange struct {
	changed         bool
	status          Status
	feedbackChanged bool
	canSendFeedback bool
}

// updateStatusLocked moves the session to status. The returned change is
// passed to notifyStatus once the lock is released.
func (s *Session) updateStatusLocked(status Status) statusChange {
	if s.status == status {
		return statusChange{}
	}
	couldSendFeedback := s.canSendFeedbackLocked()
	s.status = status
	canSendFeedback := s.canSendFeedbackLocked()
	return statusChange{
		changed:         true,
		status:          status,
		feedbackChanged: couldSendFeedback != canSendFeedback,
		canSendFeedback: canSendFeedback,
	}
}

func (s *Session) notifyStatus(change statusChange) {
	if !change.changed {
		return
	}

	logger.Debug("session status changed", "status", change.status.String())
	if s.callbacks.onStatusChange != nil {
		s.callbacks.onStatusChange(change.status)
	}
	if change.feedbackChanged && s.callbacks.onCanSendFeedbackChange != nil {
		s.callbacks.onCanSendFeedbackChange(change.canSendFeedback)
	}
}

func (s *Session) setStatus(status Status) {
	s.mu.Lock()
	change := s.updateStatusLocked(status)
	s.mu.Unlock()
	s.notifyStatus(change)
}

func (s *Session) setMode(mode Mode) {
	s.mu.Lock()
	if s.mode == mode {
		s.mu.Unlock()
		return
	}
	s.mode = mode
	s.mu.Unlock()

	if s.callbacks.onModeChange != nil {
		s.callbacks.onModeChange(mode)
	}
}

// advanceEventID records the event id of the latest agent response.
func (s *Session) advanceEventID(eventID int, event events.Event) {
	s.mu.Lock()
	current := s.currentEventID
	switch {
	case eventID == current:
		s.mu.Unlock()
		return
	case eventID < current:
		s.mu.Unlock()
		logger.Warn("agent response event id went backwards", "event_id", eventID, "current_event_id", current)
		s.emitDebug(Debug{Kind: DebugEventIDRegression, EventType: string(event.Kind()), Payload: event.Raw()})
		return
	}
	couldSendFeedback := s.canSendFeedbackLocked()
	s.currentEventID = eventID
	canSendFeedback := s.canSendFeedbackLocked()
	s.mu.Unlock()

	if (canSendFeedback || couldSendFeedback != canSendFeedback) && s.callbacks.onCanSendFeedbackChange != nil {
		s.callbacks.onCanSendFeedbackChange(canSendFeedback)
	}
}

func (s *Session) emitDebug(debug Debug) {
	if s.callbacks.onDebug != nil {
		s.callbacks.onDebug(debug)
	}
}

func (s *Session) reportError(err error) {
	if err == nil {
		return
	}
	logger.Error("session error", "error", err)
	if s.callbacks.onError != nil {
		s.callbacks.onError(err)
	}
}
