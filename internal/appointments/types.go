package appointments

import (
	"context"
	"time"
)

// Details describes the appointment a confirmation call is about.
type Details struct {
	PatientName string `json:"patient_name"`
	Doctor      string `json:"doctor"`
	Service     string `json:"service"`
	Date        string `json:"date"`
	Location    string `json:"location"`
}

// FallbackDetails is used when the caller's number has no appointment on file.
func FallbackDetails() Details {
	return Details{
		PatientName: "there",
		Doctor:      "one of our doctors",
		Service:     "consultation",
		Date:        "your upcoming appointment",
		Location:    "our medical center",
	}
}

// PreferenceRecord captures a reminder, callback or walk-in preference stated
// during a call.
type PreferenceRecord struct {
	ID            string    `json:"id"`
	ParticipantID string    `json:"participant_id"`
	Kind          string    `json:"kind"`
	Details       string    `json:"details"`
	CapturedAt    time.Time `json:"captured_at"`
}

// Store is the keyed lookup/append service backing the dialogue.
type Store interface {
	LookupByPhone(ctx context.Context, phoneNumber string) (Details, bool, error)
	AppendPreference(ctx context.Context, record PreferenceRecord) error
	Close() error
}
