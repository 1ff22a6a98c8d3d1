package events

import "encoding/json"

const (
	KindUserTranscript          Kind = "user_transcript"
	KindTentativeUserTranscript Kind = "tentative_user_transcript"
)

type UserTranscript struct {
	Base
	Transcript string
	EventID    *int
}

type TentativeUserTranscript struct {
	Base
	Transcript string
	EventID    *int
}

type userTranscriptPayload struct {
	UserTranscript *string `json:"user_transcript"`
	EventID        *int    `json:"event_id"`
}

func decodeUserTranscript(fields envelope, raw json.RawMessage) (Event, error) {
	payload, err := decodeNested[userTranscriptPayload](fields, KindUserTranscript, "user_transcription_event")
	if err != nil {
		return nil, err
	}
	if payload.UserTranscript == nil {
		return nil, missingField(KindUserTranscript, "user_transcription_event.user_transcript")
	}

	return UserTranscript{
		Base:       NewBase(KindUserTranscript, raw),
		Transcript: *payload.UserTranscript,
		EventID:    payload.EventID,
	}, nil
}

func decodeTentativeUserTranscript(fields envelope, raw json.RawMessage) (Event, error) {
	payload, err := decodeNested[userTranscriptPayload](fields, KindTentativeUserTranscript, "tentative_user_transcription_event")
	if err != nil {
		return nil, err
	}
	if payload.UserTranscript == nil {
		return nil, missingField(KindTentativeUserTranscript, "tentative_user_transcription_event.user_transcript")
	}

	return TentativeUserTranscript{
		Base:       NewBase(KindTentativeUserTranscript, raw),
		Transcript: *payload.UserTranscript,
		EventID:    payload.EventID,
	}, nil
}
