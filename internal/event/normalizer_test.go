package event

import (
	"errors"
	"testing"
)

func TestNormalizeAssignsGaplessSequences(t *testing.T) {
	n := NewNormalizer()

	for want := uint64(1); want <= 5; want++ {
		ev, err := n.Normalize(RawEvent{
			Type:          TypeDtmfDigit,
			SessionID:     "s1",
			ParticipantID: "p1",
			Digit:         "1",
		})
		if err != nil {
			t.Fatalf("Normalize() error = %v", err)
		}
		if ev.Sequence != want {
			t.Fatalf("Sequence = %d, want %d", ev.Sequence, want)
		}
	}
}

func TestNormalizeDroppedEventDoesNotConsumeSequence(t *testing.T) {
	n := NewNormalizer()

	if _, err := n.Normalize(RawEvent{Type: TypeDtmfDigit, SessionID: "s1", ParticipantID: "p1", Digit: "12"}); err == nil {
		t.Fatalf("Normalize() expected error for multi-char digit")
	}

	ev, err := n.Normalize(RawEvent{Type: TypeParticipantLeft, SessionID: "s1", ParticipantID: "p1"})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if ev.Sequence != 1 {
		t.Fatalf("Sequence = %d, want 1 after a dropped event", ev.Sequence)
	}
}

func TestNormalizeSequencesAreIndependentAcrossSessions(t *testing.T) {
	n := NewNormalizer()

	a, err := n.Normalize(RawEvent{Type: TypeParticipantLeft, SessionID: "a", ParticipantID: "p"})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	b, err := n.Normalize(RawEvent{Type: TypeParticipantLeft, SessionID: "b", ParticipantID: "p"})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if a.Sequence != 1 || b.Sequence != 1 {
		t.Fatalf("sequences = %d, %d; each session starts at 1", a.Sequence, b.Sequence)
	}
}

func TestNormalizeRejectsUnknownType(t *testing.T) {
	n := NewNormalizer()

	_, err := n.Normalize(RawEvent{Type: "room_metadata_changed", SessionID: "s1"})
	var malformed *MalformedEventError
	if !errors.As(err, &malformed) {
		t.Fatalf("Normalize() error = %v, want MalformedEventError", err)
	}
}

func TestNormalizeCopiesJoinAttributes(t *testing.T) {
	n := NewNormalizer()
	attrs := map[string]string{"sip.phoneNumber": "+15551234567"}

	ev, err := n.Normalize(RawEvent{
		Type:          TypeParticipantJoined,
		SessionID:     "s1",
		ParticipantID: "p1",
		Attributes:    attrs,
	})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	attrs["sip.phoneNumber"] = "mutated"
	joined, ok := ev.Payload.(ParticipantJoined)
	if !ok {
		t.Fatalf("Payload type = %T, want ParticipantJoined", ev.Payload)
	}
	if joined.Attributes["sip.phoneNumber"] != "+15551234567" {
		t.Fatalf("attributes were not copied: %q", joined.Attributes["sip.phoneNumber"])
	}
}

func TestParseRejectsInvalidJSON(t *testing.T) {
	_, err := Parse([]byte("{not json"))
	var malformed *MalformedEventError
	if !errors.As(err, &malformed) {
		t.Fatalf("Parse() error = %v, want MalformedEventError", err)
	}
}

func TestReleaseResetsSessionCounter(t *testing.T) {
	n := NewNormalizer()

	if _, err := n.Normalize(RawEvent{Type: TypeParticipantLeft, SessionID: "s1", ParticipantID: "p"}); err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	n.Release("s1")

	ev, err := n.Normalize(RawEvent{Type: TypeParticipantLeft, SessionID: "s1", ParticipantID: "p"})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if ev.Sequence != 1 {
		t.Fatalf("Sequence = %d, want fresh counter after Release", ev.Sequence)
	}
}
