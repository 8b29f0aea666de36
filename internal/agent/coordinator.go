// Package agent runs one logical worker per session, consuming normalized
// events in arrival order and driving the confirmation dialogue. Slow side
// effects never run on the event path: every dialogue action and relay
// forward is a tracked asynchronous job.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/medvoice/farah/internal/appointments"
	"github.com/medvoice/farah/internal/callcontext"
	"github.com/medvoice/farah/internal/dialogue"
	"github.com/medvoice/farah/internal/event"
	"github.com/medvoice/farah/internal/observability"
	"github.com/medvoice/farah/internal/policy"
	"github.com/medvoice/farah/internal/protocol"
	"github.com/medvoice/farah/internal/relay"
	"github.com/medvoice/farah/internal/session"
)

var ErrSessionClosed = errors.New("session closed")

const (
	workerInboxSize  = 256
	lookupTimeout    = 500 * time.Millisecond
	intentDataTopic  = "intent"
	prefDataTopic    = "preference"
	endReasonAPI     = "api_close"
	endReasonExpired = "inactivity_timeout"
)

// Coordinator owns the per-session workers and their shared collaborators.
type Coordinator struct {
	sessions *session.Manager
	store    appointments.Store
	relay    *relay.Relay
	sink     ActionSink
	norm     *event.Normalizer
	cache    *callcontext.Cache
	metrics  *observability.Metrics

	mu      sync.Mutex
	workers map[string]*worker
	wg      sync.WaitGroup
}

type worker struct {
	sessionID string
	inbox     chan event.RawEvent
	control   chan string
	ctx       context.Context
	cancel    context.CancelFunc

	// Owned by the worker goroutine only.
	machine *dialogue.Machine
	jobs    sync.WaitGroup
}

func New(sessions *session.Manager, store appointments.Store, r *relay.Relay, sink ActionSink, metrics *observability.Metrics) *Coordinator {
	if sink == nil {
		sink = LogSink()
	}
	return &Coordinator{
		sessions: sessions,
		store:    store,
		relay:    r,
		sink:     sink,
		norm:     event.NewNormalizer(),
		cache:    callcontext.NewCache(),
		metrics:  metrics,
		workers:  make(map[string]*worker),
	}
}

// Submit routes one raw provider callback to its session worker, creating the
// worker on first use. Within a session, submission order is processing
// order.
func (c *Coordinator) Submit(raw event.RawEvent) error {
	sess, err := c.sessions.Get(raw.SessionID)
	if err != nil {
		return err
	}
	if sess.Status != session.StatusActive {
		return ErrSessionClosed
	}

	w, err := c.workerFor(raw.SessionID)
	if err != nil {
		return err
	}

	select {
	case w.inbox <- raw:
		return nil
	case <-w.ctx.Done():
		return ErrSessionClosed
	}
}

// CloseSession ends a session explicitly (operator hangup, API close).
func (c *Coordinator) CloseSession(sessionID string) error {
	return c.close(sessionID, endReasonAPI)
}

// ExpireSession ends a session the janitor found inactive. The registry entry
// is already marked ended; only the worker teardown remains.
func (c *Coordinator) ExpireSession(sessionID string) {
	_ = c.close(sessionID, endReasonExpired)
}

func (c *Coordinator) close(sessionID, reason string) error {
	c.mu.Lock()
	w, ok := c.workers[sessionID]
	c.mu.Unlock()
	if !ok {
		// No worker ever started; just end the registry entry.
		_, err := c.sessions.End(sessionID)
		if err == nil && c.metrics != nil {
			c.metrics.ActiveSessions.Set(float64(c.sessions.ActiveCount()))
		}
		return err
	}

	select {
	case w.control <- reason:
		return nil
	case <-w.ctx.Done():
		return nil
	}
}

// Close stops all workers and waits for their tracked jobs.
func (c *Coordinator) Close() {
	c.mu.Lock()
	for _, w := range c.workers {
		w.cancel()
	}
	c.mu.Unlock()
	c.wg.Wait()
}

func (c *Coordinator) workerFor(sessionID string) (*worker, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if w, ok := c.workers[sessionID]; ok {
		return w, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &worker{
		sessionID: sessionID,
		inbox:     make(chan event.RawEvent, workerInboxSize),
		control:   make(chan string, 1),
		ctx:       ctx,
		cancel:    cancel,
	}
	c.workers[sessionID] = w

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(w)
	}()
	return w, nil
}

// run is the per-session loop: strictly serial, no blocking I/O besides the
// bounded appointment lookup at join time.
func (c *Coordinator) run(w *worker) {
	defer w.jobs.Wait()

	for {
		select {
		case <-w.ctx.Done():
			return
		case reason := <-w.control:
			if w.machine != nil {
				c.applyActions(w, w.machine.End(reason))
			}
			c.finish(w, reason)
			return
		case raw := <-w.inbox:
			ev, err := c.norm.Normalize(raw)
			if err != nil {
				var malformed *event.MalformedEventError
				reason := "invalid"
				if errors.As(err, &malformed) {
					reason = string(malformed.Type)
					if reason == "" {
						reason = "unknown_type"
					}
				}
				if c.metrics != nil {
					c.metrics.NormalizationDrops.WithLabelValues(reason).Inc()
				}
				log.Printf("session %s: dropping malformed event: %v", w.sessionID, err)
				continue
			}

			if c.metrics != nil {
				c.metrics.SessionEvents.WithLabelValues(string(ev.Payload.EventType())).Inc()
			}
			_ = c.sessions.Touch(w.sessionID)

			if done := c.handle(w, ev); done {
				return
			}
		}
	}
}

// handle reacts to one normalized event. It reports true once the session is
// finished and the worker should stop.
func (c *Coordinator) handle(w *worker, ev event.SessionEvent) bool {
	switch p := ev.Payload.(type) {
	case event.ParticipantJoined:
		c.handleJoin(w, p)
	case event.TrackSubscribed:
		// Media plumbing only; nothing for the dialogue to do.
	case event.DataReceived:
		c.handleData(w, p)
	case event.DtmfDigit:
		if c.metrics != nil {
			c.metrics.DtmfDigits.WithLabelValues(p.Digit).Inc()
		}
		if w.machine == nil {
			log.Printf("session %s: digit before any participant joined", w.sessionID)
			return false
		}
		c.applyActions(w, w.machine.HandleEvent(ev))
	case event.ParticipantLeft:
		if w.machine == nil {
			c.finish(w, "participant_left")
			return true
		}
		c.applyActions(w, w.machine.HandleEvent(ev))
		if w.machine.State() == dialogue.StateEnded {
			c.finish(w, "participant_left")
			return true
		}
	}
	return false
}

func (c *Coordinator) handleJoin(w *worker, p event.ParticipantJoined) {
	kind, call := c.cache.Resolve(p.ParticipantID, p.Attributes)
	if callcontext.Ambiguous(p.Attributes) {
		if c.metrics != nil {
			c.metrics.ClassificationWarnings.Inc()
		}
		log.Printf("session %s: participant %s has telephony hints without a kind marker, treating as web",
			w.sessionID, p.ParticipantID)
	}

	if w.machine != nil {
		// Only the first counterparty drives the dialogue.
		return
	}

	_ = c.sessions.SetPrimary(w.sessionID, p.ParticipantID, kind, call.PhoneNumber)

	appt := appointments.FallbackDetails()
	if kind == callcontext.KindTelephony && call.PhoneNumber != "" {
		ctx, cancel := context.WithTimeout(w.ctx, lookupTimeout)
		found, ok, err := c.store.LookupByPhone(ctx, call.PhoneNumber)
		cancel()
		if err != nil {
			log.Printf("session %s: appointment lookup failed: %v", w.sessionID, err)
		} else if ok {
			appt = found
		}
	}

	w.machine = dialogue.NewMachine(kind, p.ParticipantID, appt)
	actions := w.machine.Start()
	if kind == callcontext.KindTelephony {
		actions = append(actions, w.machine.OfferDigitMenu()...)
	}
	c.applyActions(w, actions)
}

func (c *Coordinator) handleData(w *worker, p event.DataReceived) {
	switch p.Topic {
	case intentDataTopic:
		var body struct {
			Intent string `json:"intent"`
		}
		if err := json.Unmarshal(p.Data, &body); err != nil || body.Intent == "" {
			log.Printf("session %s: unparseable intent payload", w.sessionID)
			return
		}
		if w.machine != nil {
			c.applyActions(w, w.machine.HandleIntent(dialogue.Intent(body.Intent)))
		}
	case prefDataTopic:
		var body struct {
			Kind    string `json:"kind"`
			Details string `json:"details"`
		}
		if err := json.Unmarshal(p.Data, &body); err != nil || body.Kind == "" {
			log.Printf("session %s: unparseable preference payload", w.sessionID)
			return
		}
		if w.machine != nil {
			c.applyActions(w, w.machine.HandlePreference(body.Kind, body.Details))
		}
	case protocol.TopicTranscription:
		// Inbound transcript fragments fan out reliably to downstream agents.
		c.forward(w, protocol.TopicTranscription, p.Data, true)
	default:
		c.forward(w, p.Topic, p.Data, false)
	}
}

// forward relays a payload as a tracked job. In-flight publishes represent
// already-decided side effects and are allowed to outlive the session.
func (c *Coordinator) forward(w *worker, topic string, payload []byte, reliable bool) {
	ctx := context.WithoutCancel(w.ctx)
	w.jobs.Add(1)
	go func() {
		defer w.jobs.Done()
		if err := c.relay.Publish(ctx, topic, payload, reliable); err != nil {
			log.Printf("session %s: relay publish to %q failed: %v", w.sessionID, topic, err)
		}
	}()
}

func (c *Coordinator) applyActions(w *worker, actions []dialogue.Action) {
	sess, err := c.sessions.Get(w.sessionID)
	if err != nil {
		return
	}

	for _, act := range actions {
		if c.metrics != nil {
			c.metrics.DialogueActions.WithLabelValues(act.ActionName()).Inc()
		}

		switch a := act.(type) {
		case dialogue.Diagnostic:
			log.Printf("session %s: %s", w.sessionID, a.Detail)
		case dialogue.PersistPreference:
			c.persistPreference(w, sess, a)
		case dialogue.Speak:
			c.publishAgentResponse(w, sess, a.Text)
			c.performAction(w, sess, act)
		default:
			c.performAction(w, sess, act)
		}
	}
}

// performAction hands one side effect to the sink on a tracked job. The job
// context is the session's: ending the session cancels in-flight actions.
func (c *Coordinator) performAction(w *worker, sess *session.Session, act dialogue.Action) {
	w.jobs.Add(1)
	go func() {
		defer w.jobs.Done()
		if err := c.sink.Perform(w.ctx, sess, act); err != nil {
			if c.metrics != nil {
				c.metrics.ActionFailures.WithLabelValues(act.ActionName()).Inc()
			}
			log.Printf("session %s: %s action failed: %v", w.sessionID, act.ActionName(), err)
		}
	}()
}

func (c *Coordinator) persistPreference(w *worker, sess *session.Session, pref dialogue.PersistPreference) {
	ctx := context.WithoutCancel(w.ctx)
	w.jobs.Add(1)
	go func() {
		defer w.jobs.Done()
		err := c.store.AppendPreference(ctx, appointments.PreferenceRecord{
			ParticipantID: sess.PrimaryParticipant,
			Kind:          pref.Kind,
			Details:       pref.Details,
			CapturedAt:    time.Now().UTC(),
		})
		if err != nil {
			if c.metrics != nil {
				c.metrics.ActionFailures.WithLabelValues("persist_preference").Inc()
			}
			log.Printf("session %s: preference persist failed: %v", w.sessionID, err)
		}
	}()
}

func (c *Coordinator) publishAgentResponse(w *worker, sess *session.Session, text string) {
	payload, err := protocol.ConversationRecord{
		Participant: sess.PrimaryParticipant,
		Content:     text,
		Timestamp:   time.Now().UTC(),
		Kind:        protocol.KindAgentResponse,
	}.Encode()
	if err != nil {
		log.Printf("session %s: encode agent response: %v", w.sessionID, err)
		return
	}
	c.forward(w, protocol.TopicAgentResponse, payload, true)
}

// finish tears the session down: records the outcome, publishes the call
// summary, releases per-session state and cancels any in-flight actions.
func (c *Coordinator) finish(w *worker, reason string) {
	outcome := ""
	if w.machine != nil {
		outcome = w.machine.Outcome()
	}
	if outcome != "" {
		_ = c.sessions.RecordOutcome(w.sessionID, outcome)
	}

	if sess, err := c.sessions.Get(w.sessionID); err == nil {
		c.publishSummary(w, sess, outcome, reason)
		c.cache.Forget(sess.PrimaryParticipant)
	}

	_, _ = c.sessions.End(w.sessionID)
	c.norm.Release(w.sessionID)

	c.mu.Lock()
	delete(c.workers, w.sessionID)
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.ActiveSessions.Set(float64(c.sessions.ActiveCount()))
	}

	w.cancel()
}

func (c *Coordinator) publishSummary(w *worker, sess *session.Session, outcome, reason string) {
	if outcome == "" {
		outcome = "unresolved"
	}
	participant := sess.PrimaryParticipant
	if participant == "" {
		// Nobody ever joined; the record still marks the room's outcome.
		participant = "none"
	}
	meta := map[string]string{
		"outcome":         outcome,
		"end_reason":      reason,
		"connection_kind": string(sess.ConnectionKind),
		"room":            sess.RoomName,
	}
	if sess.PhoneNumber != "" {
		meta["phone"] = policy.MaskPhone(sess.PhoneNumber)
	}
	payload, err := protocol.ConversationRecord{
		Participant: participant,
		Content:     "call completed",
		Timestamp:   time.Now().UTC(),
		Kind:        protocol.KindEvent,
		Metadata:    meta,
	}.Encode()
	if err != nil {
		log.Printf("session %s: encode call summary: %v", w.sessionID, err)
		return
	}
	c.forward(w, protocol.TopicConversationAnalysis, payload, true)
}
