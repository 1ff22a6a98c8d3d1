// Package messages builds the outbound protocol envelopes a client sends to
// the conversation server. Constructors are pure, Encode turns any of them
// into wire bytes.
package messages

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

type Type string

const (
	TypeConversationInitiation Type = "conversation_initiation_client_data"
	TypeUserMessage            Type = "user_message"
	TypeContextualUpdate       Type = "contextual_update"
	TypeUserActivity           Type = "user_activity"
	TypeFeedback               Type = "feedback"
	TypeClientToolResult       Type = "client_tool_result"
	TypePong                   Type = "pong"
)

const (
	SourceName = "go_sdk"
	// SourceVersion is reported to the server as the client version.
	SourceVersion = "0.4.0"
)

// Message is a single outbound envelope.
type Message interface {
	MessageType() Type
}

func Encode(msg Message) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("nil message")
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s message: %w", msg.MessageType(), err)
	}
	return data, nil
}

type UserMessageEnvelope struct {
	Type Type   `json:"type"`
	Text string `json:"text"`
}

func (m UserMessageEnvelope) MessageType() Type { return m.Type }

func UserMessage(text string) UserMessageEnvelope {
	return UserMessageEnvelope{Type: TypeUserMessage, Text: text}
}

// ContextualUpdateEnvelope adds background information to the conversation
// without prompting the agent to respond.
type ContextualUpdateEnvelope struct {
	Type Type   `json:"type"`
	Text string `json:"text"`
}

func (m ContextualUpdateEnvelope) MessageType() Type { return m.Type }

func ContextualUpdate(text string) ContextualUpdateEnvelope {
	return ContextualUpdateEnvelope{Type: TypeContextualUpdate, Text: text}
}

// UserActivityEnvelope tells the agent the user is active and it should not
// start speaking for a moment.
type UserActivityEnvelope struct {
	Type Type `json:"type"`
}

func (m UserActivityEnvelope) MessageType() Type { return m.Type }

func UserActivity() UserActivityEnvelope {
	return UserActivityEnvelope{Type: TypeUserActivity}
}

type Score string

const (
	ScoreLike    Score = "like"
	ScoreDislike Score = "dislike"
)

type FeedbackEnvelope struct {
	Type    Type  `json:"type"`
	Score   Score `json:"score"`
	EventID int   `json:"event_id"`
}

func (m FeedbackEnvelope) MessageType() Type { return m.Type }

func Feedback(isPositive bool, eventID int) FeedbackEnvelope {
	score := ScoreDislike
	if isPositive {
		score = ScoreLike
	}
	return FeedbackEnvelope{Type: TypeFeedback, Score: score, EventID: eventID}
}

type PongEnvelope struct {
	Type    Type `json:"type"`
	EventID int  `json:"event_id"`
}

func (m PongEnvelope) MessageType() Type { return m.Type }

func Pong(eventID int) PongEnvelope {
	return PongEnvelope{Type: TypePong, EventID: eventID}
}

// ClientToolResultEnvelope answers a client tool call. Result carries
// either the tool output or, when IsError is set, the error message.
type ClientToolResultEnvelope struct {
	Type       Type   `json:"type"`
	ToolCallID string `json:"tool_call_id"`
	Result     any    `json:"result"`
	IsError    bool   `json:"is_error"`
}

func (m ClientToolResultEnvelope) MessageType() Type { return m.Type }

func ClientToolResult(toolCallID string, result any) ClientToolResultEnvelope {
	return ClientToolResultEnvelope{Type: TypeClientToolResult, ToolCallID: toolCallID, Result: result}
}

func ClientToolError(toolCallID string, errMessage string) ClientToolResultEnvelope {
	return ClientToolResultEnvelope{Type: TypeClientToolResult, ToolCallID: toolCallID, Result: errMessage, IsError: true}
}

// UserAudioChunkEnvelope carries base64 PCM microphone audio on transports
// without a dedicated media track. It has no type field on the wire.
type UserAudioChunkEnvelope struct {
	UserAudioChunk string `json:"user_audio_chunk"`
}

func (m UserAudioChunkEnvelope) MessageType() Type { return "user_audio_chunk" }

func UserAudioChunk(pcm []byte) UserAudioChunkEnvelope {
	return UserAudioChunkEnvelope{UserAudioChunk: base64.StdEncoding.EncodeToString(pcm)}
}
