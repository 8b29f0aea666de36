package event

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"
)

// MalformedEventError reports a raw event the normalizer could not accept.
// The event is dropped; the session's stream continues.
type MalformedEventError struct {
	Type   Type
	Reason string
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("malformed event %q: %s", e.Type, e.Reason)
}

// Normalizer converts raw provider callbacks into SessionEvents, assigning a
// strictly increasing, gapless sequence number per session. Dropped events do
// not consume a sequence number. Safe for use across sessions; per-session
// arrival order is the caller's responsibility.
type Normalizer struct {
	mu   sync.Mutex
	next map[string]uint64
}

func NewNormalizer() *Normalizer {
	return &Normalizer{next: make(map[string]uint64)}
}

// Parse decodes a raw callback from its JSON wire form.
func Parse(raw []byte) (RawEvent, error) {
	var ev RawEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return RawEvent{}, &MalformedEventError{Reason: fmt.Sprintf("invalid envelope: %v", err)}
	}
	return ev, nil
}

// Normalize validates one raw event and assigns its sequence number.
func (n *Normalizer) Normalize(raw RawEvent) (SessionEvent, error) {
	if strings.TrimSpace(raw.SessionID) == "" {
		return SessionEvent{}, &MalformedEventError{Type: raw.Type, Reason: "missing session_id"}
	}

	payload, err := buildPayload(raw)
	if err != nil {
		return SessionEvent{}, err
	}

	ts := time.Now().UTC()
	if raw.TSMs > 0 {
		ts = time.UnixMilli(raw.TSMs).UTC()
	}

	n.mu.Lock()
	n.next[raw.SessionID]++
	seq := n.next[raw.SessionID]
	n.mu.Unlock()

	return SessionEvent{
		SessionID: raw.SessionID,
		Sequence:  seq,
		Timestamp: ts,
		Payload:   payload,
	}, nil
}

// Release drops the sequence counter for an ended session.
func (n *Normalizer) Release(sessionID string) {
	n.mu.Lock()
	delete(n.next, sessionID)
	n.mu.Unlock()
}

func buildPayload(raw RawEvent) (Payload, error) {
	switch raw.Type {
	case TypeParticipantJoined:
		if raw.ParticipantID == "" {
			return nil, &MalformedEventError{Type: raw.Type, Reason: "missing participant_id"}
		}
		attrs := make(map[string]string, len(raw.Attributes))
		maps.Copy(attrs, raw.Attributes)
		return ParticipantJoined{ParticipantID: raw.ParticipantID, Attributes: attrs}, nil
	case TypeParticipantLeft:
		if raw.ParticipantID == "" {
			return nil, &MalformedEventError{Type: raw.Type, Reason: "missing participant_id"}
		}
		return ParticipantLeft{ParticipantID: raw.ParticipantID}, nil
	case TypeTrackSubscribed:
		if raw.ParticipantID == "" {
			return nil, &MalformedEventError{Type: raw.Type, Reason: "missing participant_id"}
		}
		if raw.TrackKind == "" {
			return nil, &MalformedEventError{Type: raw.Type, Reason: "missing track_kind"}
		}
		return TrackSubscribed{ParticipantID: raw.ParticipantID, TrackKind: raw.TrackKind}, nil
	case TypeDataReceived:
		if raw.Topic == "" {
			return nil, &MalformedEventError{Type: raw.Type, Reason: "missing topic"}
		}
		data := make([]byte, len(raw.Data))
		copy(data, raw.Data)
		return DataReceived{Topic: raw.Topic, Data: data, SenderID: raw.ParticipantID}, nil
	case TypeDtmfDigit:
		if raw.ParticipantID == "" {
			return nil, &MalformedEventError{Type: raw.Type, Reason: "missing participant_id"}
		}
		if !validDigit(raw.Digit) {
			return nil, &MalformedEventError{Type: raw.Type, Reason: fmt.Sprintf("invalid digit %q", raw.Digit)}
		}
		return DtmfDigit{ParticipantID: raw.ParticipantID, Digit: raw.Digit}, nil
	default:
		return nil, &MalformedEventError{Type: raw.Type, Reason: "unknown event type"}
	}
}

func validDigit(d string) bool {
	if len(d) != 1 {
		return false
	}
	c := d[0]
	return (c >= '0' && c <= '9') || c == '*' || c == '#'
}
