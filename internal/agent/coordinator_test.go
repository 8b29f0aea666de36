package agent

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/medvoice/farah/internal/appointments"
	"github.com/medvoice/farah/internal/callcontext"
	"github.com/medvoice/farah/internal/dialogue"
	"github.com/medvoice/farah/internal/event"
	"github.com/medvoice/farah/internal/protocol"
	"github.com/medvoice/farah/internal/relay"
	"github.com/medvoice/farah/internal/session"
)

type captureSink struct {
	mu      sync.Mutex
	actions []dialogue.Action
}

func (s *captureSink) Perform(_ context.Context, _ *session.Session, act dialogue.Action) error {
	s.mu.Lock()
	s.actions = append(s.actions, act)
	s.mu.Unlock()
	return nil
}

func (s *captureSink) snapshot() []dialogue.Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]dialogue.Action, len(s.actions))
	copy(out, s.actions)
	return out
}

func (s *captureSink) speeches() []string {
	var out []string
	for _, a := range s.snapshot() {
		if sp, ok := a.(dialogue.Speak); ok {
			out = append(out, sp.Text)
		}
	}
	return out
}

func newTestCoordinator(t *testing.T) (*Coordinator, *session.Manager, *appointments.InMemoryStore, *relay.Relay, *captureSink) {
	t.Helper()
	sessions := session.NewManager(time.Minute)
	store := appointments.NewInMemoryStore()
	r := relay.NewRelay(16, 2*time.Second, nil)
	sink := &captureSink{}
	c := New(sessions, store, r, sink, nil)
	t.Cleanup(c.Close)
	return c, sessions, store, r, sink
}

// waitFor polls cond until it holds or the deadline passes. Dialogue actions
// run on tracked jobs, so assertions after Submit need a short settle window.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}

func joinEvent(sessionID, participantID string, attrs map[string]string) event.RawEvent {
	return event.RawEvent{
		Type:          event.TypeParticipantJoined,
		SessionID:     sessionID,
		ParticipantID: participantID,
		Attributes:    attrs,
	}
}

func TestWebJoinGreets(t *testing.T) {
	c, sessions, _, r, sink := newTestCoordinator(t)
	sess := sessions.Create("room-a")
	sub := r.Subscribe(protocol.TopicAgentResponse)
	defer sub.Close()

	if err := c.Submit(joinEvent(sess.ID, "visitor-1", nil)); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	waitFor(t, func() bool { return len(sink.speeches()) > 0 })
	if got := sink.speeches()[0]; !strings.Contains(got, "confirm your appointment") {
		t.Errorf("greeting = %q, want confirmation phrasing", got)
	}

	select {
	case payload := <-sub.C():
		rec, err := protocol.ParseRecord(payload)
		if err != nil {
			t.Fatalf("ParseRecord() error = %v", err)
		}
		if rec.Kind != protocol.KindAgentResponse {
			t.Errorf("record kind = %q, want %q", rec.Kind, protocol.KindAgentResponse)
		}
		if rec.Participant != "visitor-1" {
			t.Errorf("record participant = %q, want visitor-1", rec.Participant)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no agent response relayed")
	}

	got, err := sessions.Get(sess.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ConnectionKind != callcontext.KindWeb {
		t.Errorf("connection kind = %q, want %q", got.ConnectionKind, callcontext.KindWeb)
	}
}

func TestTelephonyJoinLooksUpAppointment(t *testing.T) {
	c, sessions, store, _, sink := newTestCoordinator(t)
	store.Seed("+15550100", appointments.Details{
		PatientName: "Alex Moreau",
		Doctor:      "Dr. Osei",
		Service:     "annual checkup",
		Date:        "Tuesday at 9:00 AM",
		Location:    "Lakeside Clinic",
	})
	sess := sessions.Create("room-b")

	err := c.Submit(joinEvent(sess.ID, "caller-1", map[string]string{
		callcontext.AttrParticipantKind: "sip",
		callcontext.AttrPhoneNumber:     "+15550100",
	}))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	waitFor(t, func() bool { return len(sink.speeches()) > 0 })
	if got := sink.speeches()[0]; !strings.Contains(got, "Dr. Osei") {
		t.Errorf("greeting = %q, want seeded doctor", got)
	}

	waitFor(t, func() bool {
		for _, a := range sink.snapshot() {
			if _, ok := a.(dialogue.PlayDigitMenu); ok {
				return true
			}
		}
		return false
	})

	got, err := sessions.Get(sess.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ConnectionKind != callcontext.KindTelephony {
		t.Errorf("connection kind = %q, want %q", got.ConnectionKind, callcontext.KindTelephony)
	}
	if got.PhoneNumber != "+15550100" {
		t.Errorf("phone = %q, want +15550100", got.PhoneNumber)
	}
}

func TestDigitRetryThenConfirm(t *testing.T) {
	c, sessions, _, r, sink := newTestCoordinator(t)
	sess := sessions.Create("room-c")
	sub := r.Subscribe(protocol.TopicConversationAnalysis)
	defer sub.Close()

	events := []event.RawEvent{
		joinEvent(sess.ID, "caller-1", map[string]string{callcontext.AttrParticipantKind: "sip"}),
		{Type: event.TypeDtmfDigit, SessionID: sess.ID, ParticipantID: "caller-1", Digit: "9"},
		{Type: event.TypeDtmfDigit, SessionID: sess.ID, ParticipantID: "caller-1", Digit: "1"},
		{Type: event.TypeParticipantLeft, SessionID: sess.ID, ParticipantID: "caller-1"},
	}
	for _, ev := range events {
		if err := c.Submit(ev); err != nil {
			t.Fatalf("Submit(%s) error = %v", ev.Type, err)
		}
	}

	select {
	case payload := <-sub.C():
		rec, err := protocol.ParseRecord(payload)
		if err != nil {
			t.Fatalf("ParseRecord() error = %v", err)
		}
		if rec.Metadata["outcome"] != "confirmed" {
			t.Errorf("summary outcome = %q, want confirmed", rec.Metadata["outcome"])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no call summary published")
	}

	// Actions run on tracked jobs; capture order across actions is not
	// deterministic, only the set is.
	waitFor(t, func() bool { return len(sink.speeches()) >= 3 })
	var sawRetry, sawConfirm bool
	for _, s := range sink.speeches() {
		if strings.Contains(s, "didn't catch that") {
			sawRetry = true
		}
		if strings.Contains(s, "confirmed") {
			sawConfirm = true
		}
	}
	if !sawRetry || !sawConfirm {
		t.Errorf("speeches missing retry ack or confirmation: %q", sink.speeches())
	}

	got, err := sessions.Get(sess.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != session.StatusEnded {
		t.Errorf("session status = %q, want ended", got.Status)
	}
	if got.Outcome != "confirmed" {
		t.Errorf("session outcome = %q, want confirmed", got.Outcome)
	}

	if err := c.Submit(joinEvent(sess.ID, "caller-2", nil)); err != ErrSessionClosed {
		t.Errorf("Submit() after end error = %v, want ErrSessionClosed", err)
	}
}

func TestMalformedEventDroppedStreamContinues(t *testing.T) {
	c, sessions, _, _, sink := newTestCoordinator(t)
	sess := sessions.Create("room-d")

	bad := event.RawEvent{Type: event.TypeDtmfDigit, SessionID: sess.ID, ParticipantID: "caller-1", Digit: "12"}
	if err := c.Submit(bad); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := c.Submit(joinEvent(sess.ID, "caller-1", nil)); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	waitFor(t, func() bool { return len(sink.speeches()) > 0 })
}

func TestTranscriptionForwarded(t *testing.T) {
	c, sessions, _, r, _ := newTestCoordinator(t)
	sess := sessions.Create("room-e")
	sub := r.Subscribe(protocol.TopicTranscription)
	defer sub.Close()

	rec := protocol.ConversationRecord{
		Participant: "caller-1",
		Content:     "I would like to confirm",
		Timestamp:   time.Now().UTC(),
		Kind:        protocol.KindTranscription,
	}
	payload, err := rec.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	if err := c.Submit(joinEvent(sess.ID, "caller-1", nil)); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	err = c.Submit(event.RawEvent{
		Type:      event.TypeDataReceived,
		SessionID: sess.ID,
		Topic:     protocol.TopicTranscription,
		Data:      payload,
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	select {
	case got := <-sub.C():
		parsed, err := protocol.ParseRecord(got)
		if err != nil {
			t.Fatalf("ParseRecord() error = %v", err)
		}
		if parsed.Content != rec.Content {
			t.Errorf("forwarded content = %q, want %q", parsed.Content, rec.Content)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("transcription not forwarded")
	}
}

func TestIntentConfirmsWebSession(t *testing.T) {
	c, sessions, _, _, sink := newTestCoordinator(t)
	sess := sessions.Create("room-f")

	if err := c.Submit(joinEvent(sess.ID, "visitor-1", nil)); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	body, _ := json.Marshal(map[string]string{"intent": "confirm"})
	err := c.Submit(event.RawEvent{
		Type:      event.TypeDataReceived,
		SessionID: sess.ID,
		Topic:     "intent",
		Data:      body,
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	waitFor(t, func() bool {
		for _, s := range sink.speeches() {
			if strings.Contains(s, "confirmed") {
				return true
			}
		}
		return false
	})
}

func TestPreferenceCaptured(t *testing.T) {
	c, sessions, store, _, sink := newTestCoordinator(t)
	sess := sessions.Create("room-g")

	if err := c.Submit(joinEvent(sess.ID, "visitor-1", nil)); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	waitFor(t, func() bool { return len(sink.speeches()) > 0 })

	body, _ := json.Marshal(map[string]string{"kind": "time_of_day", "details": "mornings only"})
	err := c.Submit(event.RawEvent{
		Type:      event.TypeDataReceived,
		SessionID: sess.ID,
		Topic:     "preference",
		Data:      body,
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	waitFor(t, func() bool { return len(store.PreferencesFor("visitor-1")) == 1 })
	pref := store.PreferencesFor("visitor-1")[0]
	if pref.Kind != "time_of_day" || pref.Details != "mornings only" {
		t.Errorf("preference = %+v", pref)
	}
}

func TestCloseSessionExplicit(t *testing.T) {
	c, sessions, _, _, sink := newTestCoordinator(t)
	sess := sessions.Create("room-h")

	if err := c.Submit(joinEvent(sess.ID, "visitor-1", nil)); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	waitFor(t, func() bool { return len(sink.speeches()) > 0 })

	if err := c.CloseSession(sess.ID); err != nil {
		t.Fatalf("CloseSession() error = %v", err)
	}

	waitFor(t, func() bool {
		got, err := sessions.Get(sess.ID)
		return err == nil && got.Status == session.StatusEnded
	})

	waitFor(t, func() bool {
		for _, a := range sink.snapshot() {
			if end, ok := a.(dialogue.EndCall); ok && end.Reason == endReasonAPI {
				return true
			}
		}
		return false
	})
}

func TestCloseSessionWithoutWorker(t *testing.T) {
	c, sessions, _, _, _ := newTestCoordinator(t)
	sess := sessions.Create("room-i")

	if err := c.CloseSession(sess.ID); err != nil {
		t.Fatalf("CloseSession() error = %v", err)
	}
	got, err := sessions.Get(sess.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != session.StatusEnded {
		t.Errorf("session status = %q, want ended", got.Status)
	}
}
