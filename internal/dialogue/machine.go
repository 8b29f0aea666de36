// Package dialogue drives the appointment-confirmation conversation for one
// session. The machine consumes normalized session events and recognized
// intents, and expresses every side effect as a returned Action.
package dialogue

import (
	"fmt"
	"time"

	"github.com/medvoice/farah/internal/appointments"
	"github.com/medvoice/farah/internal/callcontext"
	"github.com/medvoice/farah/internal/event"
)

// State is the dialogue position within one session.
type State string

const (
	StateIdle                 State = "idle"
	StateGreeting             State = "greeting"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateAwaitingDtmf         State = "awaiting_dtmf"
	StateConfirmed            State = "confirmed"
	StateRescheduling         State = "rescheduling"
	StateTransferRequested    State = "transfer_requested"
	StateEnded                State = "ended"
)

// Intent is a recognized natural-language intent label. Intent classification
// itself happens outside this core; only the label is consumed here.
type Intent string

const (
	IntentConfirm    Intent = "confirm"
	IntentReschedule Intent = "reschedule"
	IntentTransfer   Intent = "transfer"
)

// Machine is the per-session confirmation state machine. It is exclusively
// owned by one worker; methods are not safe for concurrent use.
type Machine struct {
	state   State
	kind    callcontext.ConnectionKind
	primary string
	appt    appointments.Details
	outcome string
	now     func() time.Time
}

func NewMachine(kind callcontext.ConnectionKind, primaryParticipant string, appt appointments.Details) *Machine {
	return &Machine{
		state:   StateIdle,
		kind:    kind,
		primary: primaryParticipant,
		appt:    appt,
		now:     time.Now,
	}
}

func (m *Machine) State() State { return m.state }

// Outcome reports the final confirmation status, empty until decided.
func (m *Machine) Outcome() string { return m.outcome }

// Start opens the dialogue: greeting is emitted and the machine waits for the
// counterparty's answer.
func (m *Machine) Start() []Action {
	if m.state != StateIdle {
		return m.noTransition("start")
	}
	m.state = StateGreeting
	actions := []Action{Speak{Text: greeting(m.kind, m.appt, m.now())}}
	m.state = StateAwaitingConfirmation
	return actions
}

// OfferDigitMenu moves a telephony dialogue onto keypad input.
func (m *Machine) OfferDigitMenu() []Action {
	if m.state != StateAwaitingConfirmation || m.kind != callcontext.KindTelephony {
		return m.noTransition("offer_digit_menu")
	}
	m.state = StateAwaitingDtmf
	return []Action{PlayDigitMenu{Prompt: digitMenuPrompt()}}
}

// HandleEvent advances the dialogue on one session event. Events the current
// state has no transition for yield a single diagnostic and no state change.
// Once ended, every event is a no-op.
func (m *Machine) HandleEvent(ev event.SessionEvent) []Action {
	if m.state == StateEnded {
		return nil
	}

	switch p := ev.Payload.(type) {
	case event.DtmfDigit:
		if p.ParticipantID != m.primary {
			return m.noTransition("dtmf_from_non_primary")
		}
		return m.handleDigit(p.Digit)
	case event.ParticipantLeft:
		if p.ParticipantID != m.primary {
			return m.noTransition("non_primary_left")
		}
		return m.End("participant_left")
	default:
		return m.noTransition(string(ev.Payload.EventType()))
	}
}

// HandleIntent applies a recognized natural-language intent. Direct
// confirmation by intent is the web path; a telephony dialogue that has moved
// onto keypad input ignores intents.
func (m *Machine) HandleIntent(intent Intent) []Action {
	if m.state != StateAwaitingConfirmation {
		return m.noTransition(fmt.Sprintf("intent_%s", intent))
	}

	switch intent {
	case IntentConfirm:
		m.state = StateConfirmed
		m.outcome = "confirmed"
		return []Action{Speak{Text: confirmedPhrase(m.appt)}}
	case IntentReschedule:
		m.state = StateRescheduling
		m.outcome = "rescheduled"
		return []Action{Speak{Text: reschedulePhrase()}}
	case IntentTransfer:
		m.state = StateTransferRequested
		m.outcome = "transfer_requested"
		return []Action{Speak{Text: transferPhrase()}, TransferCall{Target: "operator"}}
	default:
		return m.noTransition(fmt.Sprintf("intent_%s", intent))
	}
}

// HandlePreference records a stated preference without changing state.
func (m *Machine) HandlePreference(kind, details string) []Action {
	if m.state == StateEnded || m.state == StateIdle {
		return m.noTransition("preference")
	}
	return []Action{PersistPreference{Kind: kind, Details: details}}
}

// End terminates the dialogue from any state. Abrupt termination is a valid
// terminal transition, not an error. Ending twice is a no-op.
func (m *Machine) End(reason string) []Action {
	if m.state == StateEnded {
		return nil
	}
	m.state = StateEnded
	return []Action{EndCall{Reason: reason}}
}

func (m *Machine) handleDigit(digit string) []Action {
	if m.state != StateAwaitingDtmf {
		return m.noTransition("dtmf_digit")
	}

	switch digit {
	case "1":
		m.state = StateConfirmed
		m.outcome = "confirmed"
		return []Action{Speak{Text: confirmedPhrase(m.appt)}}
	case "2":
		m.state = StateRescheduling
		m.outcome = "rescheduled"
		return []Action{Speak{Text: reschedulePhrase()}}
	case "0":
		m.state = StateTransferRequested
		m.outcome = "transfer_requested"
		return []Action{Speak{Text: transferPhrase()}, TransferCall{Target: "operator"}}
	default:
		// Unlimited retries: one acknowledgment per unrecognized digit,
		// state unchanged. A retry cap, if any, is the caller's policy.
		return []Action{Speak{Text: badDigitAck()}}
	}
}

func (m *Machine) noTransition(detail string) []Action {
	return []Action{Diagnostic{Detail: fmt.Sprintf("no transition from %s on %s", m.state, detail)}}
}
