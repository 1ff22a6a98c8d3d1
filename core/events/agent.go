package events

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

const (
	KindAgentResponse           Kind = "agent_response"
	KindAgentResponsePart       Kind = "agent_response_part"
	KindAgentChatResponsePart   Kind = "agent_chat_response_part"
	KindAgentResponseCorrection Kind = "agent_response_correction"
	KindTentativeAgentResponse  Kind = "internal_tentative_agent_response"
	KindAudio                   Kind = "audio"
)

// AgentResponse is the complete text of one agent turn. EventID is what
// feedback for this turn refers to.
type AgentResponse struct {
	Base
	Response string
	EventID  *int
}

type agentResponsePayload struct {
	AgentResponse *string `json:"agent_response"`
	EventID       *int    `json:"event_id"`
}

func decodeAgentResponse(fields envelope, raw json.RawMessage) (Event, error) {
	payload, err := decodeNested[agentResponsePayload](fields, KindAgentResponse, "agent_response_event")
	if err != nil {
		return nil, err
	}
	if payload.AgentResponse == nil {
		return nil, missingField(KindAgentResponse, "agent_response_event.agent_response")
	}

	return AgentResponse{
		Base:     NewBase(KindAgentResponse, raw),
		Response: *payload.AgentResponse,
		EventID:  payload.EventID,
	}, nil
}

type ResponsePartType string

const (
	ResponsePartStart ResponsePartType = "start"
	ResponsePartDelta ResponsePartType = "delta"
	ResponsePartStop  ResponsePartType = "stop"
)

// AgentResponsePart is one piece of a streamed text response.
type AgentResponsePart struct {
	Base
	Text     string
	PartType ResponsePartType
	EventID  *int
}

type agentResponsePartPayload struct {
	Text    string            `json:"text"`
	Type    *ResponsePartType `json:"type"`
	EventID *int              `json:"event_id"`
}

func decodeAgentResponsePart(kind Kind) decodeFunc {
	return func(fields envelope, raw json.RawMessage) (Event, error) {
		payload, err := decodeNested[agentResponsePartPayload](fields, kind, "text_response_part")
		if err != nil {
			return nil, err
		}
		if payload.Type == nil {
			return nil, missingField(kind, "text_response_part.type")
		}

		return AgentResponsePart{
			Base:     NewBase(kind, raw),
			Text:     payload.Text,
			PartType: *payload.Type,
			EventID:  payload.EventID,
		}, nil
	}
}

// AgentResponseCorrection replaces the text of an earlier agent turn,
// typically because the user interrupted it.
type AgentResponseCorrection struct {
	Base
	OriginalResponse  string
	CorrectedResponse string
	EventID           *int
}

type agentResponseCorrectionPayload struct {
	OriginalAgentResponse  string  `json:"original_agent_response"`
	CorrectedAgentResponse *string `json:"corrected_agent_response"`
	EventID                *int    `json:"event_id"`
}

func decodeAgentResponseCorrection(fields envelope, raw json.RawMessage) (Event, error) {
	payload, err := decodeNested[agentResponseCorrectionPayload](fields, KindAgentResponseCorrection, "agent_response_correction_event")
	if err != nil {
		return nil, err
	}
	if payload.CorrectedAgentResponse == nil {
		return nil, missingField(KindAgentResponseCorrection, "agent_response_correction_event.corrected_agent_response")
	}

	return AgentResponseCorrection{
		Base:              NewBase(KindAgentResponseCorrection, raw),
		OriginalResponse:  payload.OriginalAgentResponse,
		CorrectedResponse: *payload.CorrectedAgentResponse,
		EventID:           payload.EventID,
	}, nil
}

type TentativeAgentResponse struct {
	Base
	Response string
}

type tentativeAgentResponsePayload struct {
	TentativeAgentResponse *string `json:"tentative_agent_response"`
}

func decodeTentativeAgentResponse(fields envelope, raw json.RawMessage) (Event, error) {
	payload, err := decodeNested[tentativeAgentResponsePayload](fields, KindTentativeAgentResponse, "tentative_agent_response_internal_event")
	if err != nil {
		return nil, err
	}
	if payload.TentativeAgentResponse == nil {
		return nil, missingField(KindTentativeAgentResponse, "tentative_agent_response_internal_event.tentative_agent_response")
	}

	return TentativeAgentResponse{Base: NewBase(KindTentativeAgentResponse, raw), Response: *payload.TentativeAgentResponse}, nil
}

// Alignment maps characters of the spoken text onto the audio chunk.
type Alignment struct {
	Chars            []string `json:"chars"`
	CharStartTimesMs []int    `json:"char_start_times_ms"`
	CharDurationsMs  []int    `json:"char_durations_ms"`
}

type Audio struct {
	Base
	Audio     []byte
	EventID   *int
	Alignment *Alignment
}

type audioPayload struct {
	AudioBase64 *string    `json:"audio_base_64"`
	EventID     *int       `json:"event_id"`
	Alignment   *Alignment `json:"alignment"`
}

func decodeAudio(fields envelope, raw json.RawMessage) (Event, error) {
	payload, err := decodeNested[audioPayload](fields, KindAudio, "audio_event")
	if err != nil {
		return nil, err
	}
	if payload.AudioBase64 == nil {
		return nil, missingField(KindAudio, "audio_event.audio_base_64")
	}

	audio, err := base64.StdEncoding.DecodeString(*payload.AudioBase64)
	if err != nil {
		return nil, invalidField(KindAudio, "audio_event.audio_base_64", fmt.Errorf("invalid base64: %w", err))
	}

	return Audio{
		Base:      NewBase(KindAudio, raw),
		Audio:     audio,
		EventID:   payload.EventID,
		Alignment: payload.Alignment,
	}, nil
}
