package session

import (
	"context"
	"testing"
	"time"

	"github.com/medvoice/farah/internal/callcontext"
)

func TestManagerCreateGetEnd(t *testing.T) {
	m := NewManager(time.Minute)
	s := m.Create("outbound_15551234567")
	if s.ID == "" {
		t.Fatalf("session ID should not be empty")
	}

	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.RoomName != "outbound_15551234567" || got.Status != StatusActive {
		t.Fatalf("unexpected session state: %+v", got)
	}

	ended, err := m.End(s.ID)
	if err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if ended.Status != StatusEnded {
		t.Fatalf("ended status = %q, want %q", ended.Status, StatusEnded)
	}
}

func TestManagerSetPrimaryIsWriteOnce(t *testing.T) {
	m := NewManager(time.Minute)
	s := m.Create("room")

	if err := m.SetPrimary(s.ID, "caller", callcontext.KindTelephony, "+15551234567"); err != nil {
		t.Fatalf("SetPrimary() error = %v", err)
	}
	if err := m.SetPrimary(s.ID, "late-joiner", callcontext.KindWeb, ""); err != nil {
		t.Fatalf("SetPrimary() error = %v", err)
	}

	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.PrimaryParticipant != "caller" || got.ConnectionKind != callcontext.KindTelephony {
		t.Fatalf("primary binding changed: %+v", got)
	}
}

func TestManagerRecordOutcome(t *testing.T) {
	m := NewManager(time.Minute)
	s := m.Create("room")

	if err := m.RecordOutcome(s.ID, "confirmed"); err != nil {
		t.Fatalf("RecordOutcome() error = %v", err)
	}
	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Outcome != "confirmed" {
		t.Fatalf("Outcome = %q, want confirmed", got.Outcome)
	}
}

func TestManagerJanitorExpiresInactive(t *testing.T) {
	m := NewManager(30 * time.Millisecond)
	s := m.Create("room")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	expired := make(chan string, 1)
	m.SetExpireHook(func(sess *Session) { expired <- sess.ID })
	m.StartJanitor(ctx, 10*time.Millisecond)

	select {
	case id := <-expired:
		if id != s.ID {
			t.Fatalf("expired session = %q, want %q", id, s.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("janitor did not expire the inactive session")
	}

	if m.ActiveCount() != 0 {
		t.Fatalf("ActiveCount = %d, want 0", m.ActiveCount())
	}
}

func TestManagerGetUnknownSession(t *testing.T) {
	m := NewManager(time.Minute)
	if _, err := m.Get("missing"); err != ErrNotFound {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
}
