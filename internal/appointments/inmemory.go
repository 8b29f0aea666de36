package appointments

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a simple in-process store for local/dev use.
type InMemoryStore struct {
	mu          sync.RWMutex
	byPhone     map[string]Details
	preferences []PreferenceRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byPhone: make(map[string]Details)}
}

// Seed registers an appointment under a phone number.
func (s *InMemoryStore) Seed(phoneNumber string, details Details) {
	s.mu.Lock()
	s.byPhone[phoneNumber] = details
	s.mu.Unlock()
}

func (s *InMemoryStore) LookupByPhone(_ context.Context, phoneNumber string) (Details, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.byPhone[phoneNumber]
	if !ok {
		return Details{}, false, nil
	}
	return d, true, nil
}

func (s *InMemoryStore) AppendPreference(_ context.Context, record PreferenceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CapturedAt.IsZero() {
		record.CapturedAt = time.Now().UTC()
	}
	s.preferences = append(s.preferences, record)
	return nil
}

// PreferencesFor returns captured preferences for one participant.
func (s *InMemoryStore) PreferencesFor(participantID string) []PreferenceRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []PreferenceRecord
	for _, p := range s.preferences {
		if p.ParticipantID == participantID {
			out = append(out, p)
		}
	}
	return out
}

func (s *InMemoryStore) Close() error { return nil }
