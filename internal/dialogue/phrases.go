package dialogue

import (
	"fmt"
	"time"

	"github.com/medvoice/farah/internal/appointments"
	"github.com/medvoice/farah/internal/callcontext"
)

const coordinatorName = "Farah"

func timeOfDay(now time.Time) string {
	switch h := now.Hour(); {
	case h < 12:
		return "morning"
	case h < 17:
		return "afternoon"
	default:
		return "evening"
	}
}

// greeting builds the opening line. Telephony callers get slower, more
// explicit phrasing that repeats the key details, since audio quality on the
// phone leg varies.
func greeting(kind callcontext.ConnectionKind, appt appointments.Details, now time.Time) string {
	if kind == callcontext.KindTelephony {
		return fmt.Sprintf(
			"Good %s. This is %s calling from %s. I'm calling to confirm your appointment "+
				"with %s, %s, for your %s. Again, that is %s with %s. Are you still able to make it?",
			timeOfDay(now), coordinatorName, appt.Location,
			appt.Doctor, appt.Date, appt.Service, appt.Date, appt.Doctor,
		)
	}
	return fmt.Sprintf(
		"Good %s! This is %s from %s. I'm reaching out to confirm your appointment "+
			"with %s %s for your %s. Are you still able to make it?",
		timeOfDay(now), coordinatorName, appt.Location,
		appt.Doctor, appt.Date, appt.Service,
	)
}

func digitMenuPrompt() string {
	return "Press 1 to confirm your appointment, press 2 to reschedule, or press 0 to speak with our staff."
}

func badDigitAck() string {
	return "Sorry, I didn't catch that. Please press 1 to confirm, 2 to reschedule, or 0 for an operator."
}

func confirmedPhrase(appt appointments.Details) string {
	return fmt.Sprintf(
		"Perfect, I have you confirmed. We'll see you %s for your %s. Have a great day!",
		appt.Date, appt.Service,
	)
}

func reschedulePhrase() string {
	return "No problem at all. I can offer you Thursday at 2:00 PM or Friday at 10:30 AM. Would either of those work?"
}

func transferPhrase() string {
	return "Of course, one moment while I connect you with our staff."
}
