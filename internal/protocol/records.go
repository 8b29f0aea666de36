package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// RecordKind classifies a conversation record.
type RecordKind string

const (
	KindAudio         RecordKind = "audio"
	KindText          RecordKind = "text"
	KindTranscription RecordKind = "transcription"
	KindEvent         RecordKind = "event"
	KindAgentResponse RecordKind = "agent_response"
)

// Topic names used by convention across the relay.
const (
	TopicTranscription        = "transcription"
	TopicAgentResponse        = "agent_response"
	TopicConversationAnalysis = "conversation_analysis"
)

var ErrUnsupportedKind = errors.New("unsupported record kind")

// ConversationRecord is the payload format carried on relay topics. Immutable
// once created; the core keeps no history of records after forwarding.
type ConversationRecord struct {
	Participant string            `json:"participant"`
	Content     string            `json:"content"`
	Timestamp   time.Time         `json:"timestamp"`
	Kind        RecordKind        `json:"type"`
	Metadata    map[string]string `json:"metadata"`
}

func validKind(k RecordKind) bool {
	switch k {
	case KindAudio, KindText, KindTranscription, KindEvent, KindAgentResponse:
		return true
	default:
		return false
	}
}

// Encode serializes the record to its topic JSON form. Metadata is always
// emitted, as an empty object when unset.
func (r ConversationRecord) Encode() ([]byte, error) {
	if r.Participant == "" {
		return nil, errors.New("record missing participant")
	}
	if !validKind(r.Kind) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKind, r.Kind)
	}
	if r.Metadata == nil {
		r.Metadata = map[string]string{}
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	return json.Marshal(r)
}

// ParseRecord decodes and validates a topic payload.
func ParseRecord(raw []byte) (ConversationRecord, error) {
	var r ConversationRecord
	if err := json.Unmarshal(raw, &r); err != nil {
		return ConversationRecord{}, fmt.Errorf("invalid record payload: %w", err)
	}
	if r.Participant == "" {
		return ConversationRecord{}, errors.New("record missing participant")
	}
	if !validKind(r.Kind) {
		return ConversationRecord{}, fmt.Errorf("%w: %q", ErrUnsupportedKind, r.Kind)
	}
	if r.Timestamp.IsZero() {
		return ConversationRecord{}, errors.New("record missing timestamp")
	}
	if r.Metadata == nil {
		r.Metadata = map[string]string{}
	}
	return r, nil
}
