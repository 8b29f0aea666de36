package event

import "time"

// Type identifies raw provider callback variants.
type Type string

const (
	TypeParticipantJoined Type = "participant_joined"
	TypeParticipantLeft   Type = "participant_left"
	TypeTrackSubscribed   Type = "track_subscribed"
	TypeDataReceived      Type = "data_received"
	TypeDtmfDigit         Type = "dtmf_digit"
)

// RawEvent is the provider callback as it arrives on the ingress, before
// normalization. Fields beyond Type and SessionID are variant-specific.
type RawEvent struct {
	Type          Type              `json:"type"`
	SessionID     string            `json:"session_id"`
	ParticipantID string            `json:"participant_id,omitempty"`
	Attributes    map[string]string `json:"attributes,omitempty"`
	TrackKind     string            `json:"track_kind,omitempty"`
	Topic         string            `json:"topic,omitempty"`
	Data          []byte            `json:"data,omitempty"`
	Digit         string            `json:"digit,omitempty"`
	TSMs          int64             `json:"ts_ms,omitempty"`
}

// SessionEvent is one normalized event in a session's totally ordered stream.
// Sequence is strictly increasing and gapless per session.
type SessionEvent struct {
	SessionID string
	Sequence  uint64
	Timestamp time.Time
	Payload   Payload
}

// Payload is the closed set of normalized event variants.
type Payload interface {
	EventType() Type
}

type ParticipantJoined struct {
	ParticipantID string
	Attributes    map[string]string
}

type ParticipantLeft struct {
	ParticipantID string
}

type TrackSubscribed struct {
	ParticipantID string
	TrackKind     string
}

type DataReceived struct {
	Topic    string
	Data     []byte
	SenderID string
}

type DtmfDigit struct {
	ParticipantID string
	Digit         string
}

func (ParticipantJoined) EventType() Type { return TypeParticipantJoined }
func (ParticipantLeft) EventType() Type   { return TypeParticipantLeft }
func (TrackSubscribed) EventType() Type   { return TypeTrackSubscribed }
func (DataReceived) EventType() Type      { return TypeDataReceived }
func (DtmfDigit) EventType() Type         { return TypeDtmfDigit }
