package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

var (
	// ErrMissingType marks envelopes without a type. The protocol uses them
	// as no-op frames, they are not errors for the session.
	ErrMissingType = errors.New("events: envelope has no type")
	// ErrMalformed marks payloads that are not a JSON object or not valid
	// UTF-8.
	ErrMalformed = errors.New("events: malformed envelope")
	// ErrInvalidEvent marks envelopes of a known type whose payload is
	// missing or has the wrong shape.
	ErrInvalidEvent = errors.New("events: invalid event payload")
)

// FieldError describes the payload field that made an event unusable.
type FieldError struct {
	Kind  Kind
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s event: missing required field %q", e.Kind, e.Field)
	}
	return fmt.Sprintf("%s event: invalid field %q: %v", e.Kind, e.Field, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

func (e *FieldError) Is(target error) bool { return target == ErrInvalidEvent }

func missingField(kind Kind, field string) error {
	return &FieldError{Kind: kind, Field: field}
}

func invalidField(kind Kind, field string, err error) error {
	return &FieldError{Kind: kind, Field: field, Err: err}
}

// Unknown carries envelopes of a type this package does not model yet.
type Unknown struct {
	Base
	Type string
}

type envelope map[string]json.RawMessage

type decodeFunc func(fields envelope, raw json.RawMessage) (Event, error)

// Decode parses one inbound envelope. It returns ErrMissingType for
// envelopes without a type, an error matching ErrMalformed when the bytes
// are not a JSON object, and a *FieldError (matching ErrInvalidEvent) when
// a known event lacks a required field.
func Decode(data []byte) (Event, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: invalid utf-8", ErrMalformed)
	}

	var fields envelope
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: not an object", ErrMalformed)
	}

	rawType, ok := fields["type"]
	if !ok {
		return nil, ErrMissingType
	}
	var eventType string
	if err := json.Unmarshal(rawType, &eventType); err != nil {
		return nil, fmt.Errorf("%w: type is not a string", ErrMalformed)
	}
	if eventType == "" {
		return nil, ErrMissingType
	}

	raw := json.RawMessage(append([]byte(nil), data...))
	return decoderFor(Kind(eventType))(fields, raw)
}

func decoderFor(kind Kind) decodeFunc {
	switch kind {
	case KindConversationMetadata:
		return decodeConversationMetadata
	case KindASRInitiationMetadata:
		return decodeASRInitiationMetadata
	case KindPing:
		return decodePing
	case KindVADScore:
		return decodeVADScore
	case KindInterruption:
		return decodeInterruption
	case KindUserTranscript:
		return decodeUserTranscript
	case KindTentativeUserTranscript:
		return decodeTentativeUserTranscript
	case KindAgentResponse:
		return decodeAgentResponse
	case KindAgentResponsePart, KindAgentChatResponsePart:
		return decodeAgentResponsePart(kind)
	case KindAgentResponseCorrection:
		return decodeAgentResponseCorrection
	case KindTentativeAgentResponse:
		return decodeTentativeAgentResponse
	case KindAudio:
		return decodeAudio
	case KindClientToolCall:
		return decodeClientToolCall
	case KindMCPToolCall:
		return decodeMCPToolCall
	case KindMCPConnectionStatus:
		return decodeMCPConnectionStatus
	case KindAgentToolResponse:
		return decodeAgentToolResponse
	default:
		return func(_ envelope, raw json.RawMessage) (Event, error) {
			return Unknown{Base: NewBase(kind, raw), Type: string(kind)}, nil
		}
	}
}

func decodeNested[T any](fields envelope, kind Kind, key string) (T, error) {
	var payload T
	nested, ok := fields[key]
	if !ok || string(nested) == "null" {
		return payload, missingField(kind, key)
	}
	if err := json.Unmarshal(nested, &payload); err != nil {
		return payload, invalidField(kind, key, err)
	}
	return payload, nil
}
