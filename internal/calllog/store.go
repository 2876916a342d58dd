package calllog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Direction distinguishes caller-initiated from system-initiated calls.
type Direction string

const (
	DirectionInbound  Direction = "Inbound"
	DirectionOutbound Direction = "Outbound"
)

// Purposes recorded on call logs.
const (
	PurposeInboundCoverage    = "InboundCoverage"
	PurposeOutboundShiftOffer = "OutboundShiftOffer"
)

// Outcomes recorded on call logs.
const (
	OutcomeRescheduled            = "Rescheduled"
	OutcomeReleased               = "Released"
	OutcomeTransferred            = "Transferred"
	OutcomeTransferFailedNoNumber = "TransferFailedNoNumber"
	OutcomeAbandoned              = "Abandoned"
	OutcomeAccepted               = "Accepted"
	OutcomeDeclined               = "Declined"
	OutcomeNoAnswer               = "NoAnswer"
	OutcomeError                  = "Error"
)

// Entry is one call's log row. Created on call start, finalised on call end,
// never mutated thereafter.
type Entry struct {
	ID           uuid.UUID
	CallID       string
	Direction    Direction
	ProviderID   uuid.UUID
	EmployeeID   *uuid.UUID
	PatientID    *uuid.UUID
	OccurrenceID *uuid.UUID
	StartedAt    time.Time
	EndedAt      *time.Time
	Purpose      string
	Outcome      string
	DTMFResponse string
	AttemptRound int
	RecordingRef string
}

// Store persists call logs to PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a call log store. A nil db yields a nil store; all methods
// are no-ops on a nil receiver so call logging degrades quietly in tests.
func NewStore(db *sql.DB) *Store {
	if db == nil {
		return nil
	}
	return &Store{db: db}
}

// Start inserts the log row at call start. The entry's ID is assigned when zero.
func (s *Store) Start(ctx context.Context, entry *Entry) error {
	if s == nil || s.db == nil {
		return nil
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.StartedAt.IsZero() {
		entry.StartedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO call_logs (
			id, call_id, direction, provider_id, employee_id, patient_id, occurrence_id,
			started_at, purpose, outcome, dtmf_response, attempt_round, recording_ref
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, '', '', $10, '')`,
		entry.ID, entry.CallID, string(entry.Direction), entry.ProviderID,
		entry.EmployeeID, entry.PatientID, entry.OccurrenceID,
		entry.StartedAt, entry.Purpose, entry.AttemptRound,
	)
	if err != nil {
		return fmt.Errorf("calllog: insert: %w", err)
	}
	return nil
}

// Finalization captures the terminal facts of a call.
type Finalization struct {
	Outcome      string
	DTMFResponse string
	EmployeeID   *uuid.UUID
	OccurrenceID *uuid.UUID
	RecordingRef string
}

// Finalize closes the log row for the call. Only rows not yet ended are
// touched, so duplicate call-end webhooks are benign.
func (s *Store) Finalize(ctx context.Context, callID string, fin Finalization) error {
	if s == nil || s.db == nil {
		return nil
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE call_logs
		SET ended_at = $2,
		    outcome = $3,
		    dtmf_response = $4,
		    employee_id = COALESCE($5, employee_id),
		    occurrence_id = COALESCE($6, occurrence_id),
		    recording_ref = COALESCE(NULLIF($7, ''), recording_ref)
		WHERE call_id = $1 AND ended_at IS NULL`,
		callID, time.Now().UTC(), fin.Outcome, fin.DTMFResponse,
		fin.EmployeeID, fin.OccurrenceID, fin.RecordingRef,
	)
	if err != nil {
		return fmt.Errorf("calllog: finalize: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// already finalised; the first webhook won
		return nil
	}
	return nil
}

// ListForOccurrence returns the call history for one occurrence, oldest first.
func (s *Store) ListForOccurrence(ctx context.Context, occurrenceID uuid.UUID) ([]Entry, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, call_id, direction, provider_id, employee_id, patient_id, occurrence_id,
		       started_at, ended_at, purpose, outcome, dtmf_response, attempt_round, recording_ref
		FROM call_logs
		WHERE occurrence_id = $1
		ORDER BY started_at`,
		occurrenceID)
	if err != nil {
		return nil, fmt.Errorf("calllog: list for occurrence: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var direction string
		if err := rows.Scan(
			&e.ID, &e.CallID, &direction, &e.ProviderID, &e.EmployeeID, &e.PatientID, &e.OccurrenceID,
			&e.StartedAt, &e.EndedAt, &e.Purpose, &e.Outcome, &e.DTMFResponse, &e.AttemptRound, &e.RecordingRef,
		); err != nil {
			return nil, fmt.Errorf("calllog: scan: %w", err)
		}
		e.Direction = Direction(direction)
		entries = append(entries, e)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("calllog: list for occurrence: %w", rows.Err())
	}
	return entries, nil
}
