package dialogue

// Action is a side effect requested by the state machine. The machine never
// performs actions itself; the caller hands them to a sink that does the
// actual speech synthesis, call transfer or persistence.
type Action interface {
	ActionName() string
}

// Speak requests speech synthesis of the given text.
type Speak struct {
	Text string
}

// PlayDigitMenu requests the keypad prompt for telephony callers.
type PlayDigitMenu struct {
	Prompt string
}

// TransferCall requests handing the call to a human.
type TransferCall struct {
	Target string
}

// EndCall requests hanging up / closing the session.
type EndCall struct {
	Reason string
}

// PersistPreference requests storing a stated reminder, callback or walk-in
// preference.
type PersistPreference struct {
	Kind    string
	Details string
}

// Diagnostic reports an event the current state defines no transition for.
// It is informational; the dialogue continues unchanged.
type Diagnostic struct {
	Detail string
}

func (Speak) ActionName() string             { return "speak" }
func (PlayDigitMenu) ActionName() string     { return "play_digit_menu" }
func (TransferCall) ActionName() string      { return "transfer_call" }
func (EndCall) ActionName() string           { return "end_call" }
func (PersistPreference) ActionName() string { return "persist_preference" }
func (Diagnostic) ActionName() string        { return "diagnostic" }
