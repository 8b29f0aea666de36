package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists appointments and captured preferences in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS appointments (
			phone_number TEXT PRIMARY KEY,
			patient_name TEXT NOT NULL,
			doctor TEXT NOT NULL,
			service TEXT NOT NULL,
			date TEXT NOT NULL,
			location TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS call_preferences (
			id TEXT PRIMARY KEY,
			participant_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			details TEXT NOT NULL,
			captured_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_call_preferences_participant ON call_preferences (participant_id, captured_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) LookupByPhone(ctx context.Context, phoneNumber string) (Details, bool, error) {
	var d Details
	err := s.pool.QueryRow(ctx,
		`SELECT patient_name, doctor, service, date, location
		 FROM appointments WHERE phone_number=$1`,
		phoneNumber,
	).Scan(&d.PatientName, &d.Doctor, &d.Service, &d.Date, &d.Location)
	if errors.Is(err, pgx.ErrNoRows) {
		return Details{}, false, nil
	}
	if err != nil {
		return Details{}, false, fmt.Errorf("lookup appointment: %w", err)
	}
	return d, true, nil
}

func (s *PostgresStore) AppendPreference(ctx context.Context, record PreferenceRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CapturedAt.IsZero() {
		record.CapturedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO call_preferences (id, participant_id, kind, details, captured_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		record.ID,
		record.ParticipantID,
		record.Kind,
		record.Details,
		record.CapturedAt,
	)
	if err != nil {
		return fmt.Errorf("append preference: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
