package events

import "encoding/json"

const (
	KindConversationMetadata  Kind = "conversation_initiation_metadata"
	KindASRInitiationMetadata Kind = "asr_initiation_metadata"
	KindPing                  Kind = "ping"
	KindVADScore              Kind = "vad_score"
	KindInterruption          Kind = "interruption"
)

// ConversationMetadata arrives once the server has accepted the
// conversation.
type ConversationMetadata struct {
	Base
	ConversationID         string
	AgentOutputAudioFormat string
	UserInputAudioFormat   string
}

type conversationMetadataPayload struct {
	ConversationID         *string `json:"conversation_id"`
	AgentOutputAudioFormat string  `json:"agent_output_audio_format"`
	UserInputAudioFormat   string  `json:"user_input_audio_format"`
}

func decodeConversationMetadata(fields envelope, raw json.RawMessage) (Event, error) {
	payload, err := decodeNested[conversationMetadataPayload](fields, KindConversationMetadata, "conversation_initiation_metadata_event")
	if err != nil {
		return nil, err
	}
	if payload.ConversationID == nil || *payload.ConversationID == "" {
		return nil, missingField(KindConversationMetadata, "conversation_initiation_metadata_event.conversation_id")
	}

	return ConversationMetadata{
		Base:                   NewBase(KindConversationMetadata, raw),
		ConversationID:         *payload.ConversationID,
		AgentOutputAudioFormat: payload.AgentOutputAudioFormat,
		UserInputAudioFormat:   payload.UserInputAudioFormat,
	}, nil
}

type ASRInitiationMetadata struct {
	Base
	Metadata map[string]any
}

func decodeASRInitiationMetadata(fields envelope, raw json.RawMessage) (Event, error) {
	metadata := map[string]any{}
	if nested, ok := fields["asr_initiation_metadata_event"]; ok {
		if err := json.Unmarshal(nested, &metadata); err != nil {
			return nil, invalidField(KindASRInitiationMetadata, "asr_initiation_metadata_event", err)
		}
	}

	return ASRInitiationMetadata{Base: NewBase(KindASRInitiationMetadata, raw), Metadata: metadata}, nil
}

type Ping struct {
	Base
	EventID int
	PingMs  *int
}

type pingPayload struct {
	EventID *int `json:"event_id"`
	PingMs  *int `json:"ping_ms"`
}

func decodePing(fields envelope, raw json.RawMessage) (Event, error) {
	payload, err := decodeNested[pingPayload](fields, KindPing, "ping_event")
	if err != nil {
		return nil, err
	}
	if payload.EventID == nil {
		return nil, missingField(KindPing, "ping_event.event_id")
	}

	return Ping{Base: NewBase(KindPing, raw), EventID: *payload.EventID, PingMs: payload.PingMs}, nil
}

type VADScore struct {
	Base
	Score float64
}

type vadScorePayload struct {
	VADScore *float64 `json:"vad_score"`
}

func decodeVADScore(fields envelope, raw json.RawMessage) (Event, error) {
	payload, err := decodeNested[vadScorePayload](fields, KindVADScore, "vad_score_event")
	if err != nil {
		return nil, err
	}
	if payload.VADScore == nil {
		return nil, missingField(KindVADScore, "vad_score_event.vad_score")
	}

	return VADScore{Base: NewBase(KindVADScore, raw), Score: *payload.VADScore}, nil
}

type Interruption struct {
	Base
	EventID *int
	Reason  string
}

type interruptionPayload struct {
	EventID *int   `json:"event_id"`
	Reason  string `json:"reason"`
}

// Interruption payloads are informational, an envelope without one is
// still a valid interruption.
func decodeInterruption(fields envelope, raw json.RawMessage) (Event, error) {
	var payload interruptionPayload
	if nested, ok := fields["interruption_event"]; ok {
		if err := json.Unmarshal(nested, &payload); err != nil {
			return nil, invalidField(KindInterruption, "interruption_event", err)
		}
	}

	return Interruption{Base: NewBase(KindInterruption, raw), EventID: payload.EventID, Reason: payload.Reason}, nil
}
