// Package callcontext determines whether a session counterparty reached us
// over the telephone network or from a browser, based on the attribute map the
// provider attaches to the participant at join time.
package callcontext

import "strings"

// ConnectionKind labels how the participant is connected.
type ConnectionKind string

const (
	KindWeb       ConnectionKind = "web"
	KindTelephony ConnectionKind = "telephony"
)

// Well-known attribute keys set by the telephony bridge.
const (
	AttrParticipantKind = "participant.kind"
	AttrPhoneNumber     = "sip.phoneNumber"
	AttrTrunkID         = "sip.trunkID"
	AttrCallID          = "sip.callID"

	participantKindSIP = "sip"
)

// CallAttributes holds telephony metadata extracted at classification time.
// Any field may be empty; missing attributes are tolerated, not errors.
type CallAttributes struct {
	PhoneNumber string
	TrunkID     string
	CallID      string
}

// Classify inspects a participant's join attributes. Pure and deterministic:
// the SIP kind marker decides telephony, everything else is web. Telephony
// metadata is extracted best-effort.
func Classify(attrs map[string]string) (ConnectionKind, CallAttributes) {
	if !isSIP(attrs) {
		return KindWeb, CallAttributes{}
	}
	return KindTelephony, CallAttributes{
		PhoneNumber: attrs[AttrPhoneNumber],
		TrunkID:     attrs[AttrTrunkID],
		CallID:      attrs[AttrCallID],
	}
}

// Ambiguous reports attribute maps that carry telephony hints without the kind
// marker. Such participants classify as web; callers log a warning.
func Ambiguous(attrs map[string]string) bool {
	if isSIP(attrs) {
		return false
	}
	for k := range attrs {
		if strings.HasPrefix(k, "sip.") {
			return true
		}
	}
	return false
}

func isSIP(attrs map[string]string) bool {
	return strings.EqualFold(attrs[AttrParticipantKind], participantKindSIP)
}
