package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type db interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// OfferStore records which employees were offered which occurrence, anchoring
// the SMS reply window: a "yes" only counts against an offer recorded at
// Wave 1 and still inside the window.
type OfferStore struct {
	db db
}

// NewOfferStore creates a store backed by pgx.
func NewOfferStore(db db) *OfferStore {
	if db == nil {
		panic("notifications: db required")
	}
	return &OfferStore{db: db}
}

// ActiveOffer is one outstanding shift offer.
type ActiveOffer struct {
	OccurrenceID uuid.UUID
	EmployeeID   uuid.UUID
	ProviderID   uuid.UUID
	SentAt       time.Time
}

// RecordOffer stores the Wave 1 send time for (occurrence, employee).
// Re-running a wave never moves the window: the first send wins.
func (s *OfferStore) RecordOffer(ctx context.Context, occurrenceID, employeeID, providerID uuid.UUID, sentAt time.Time) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO shift_offers (occurrence_id, employee_id, provider_id, sent_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (occurrence_id, employee_id) DO NOTHING`,
		occurrenceID, employeeID, providerID, sentAt)
	if err != nil {
		return fmt.Errorf("notifications: record offer: %w", err)
	}
	return nil
}

// FindActiveOffers returns the offers sent to any of the given employees at
// or after since, newest first. The caller submits an Accept for the newest
// and lets the arbiter's compare-and-set sort out races.
func (s *OfferStore) FindActiveOffers(ctx context.Context, employeeIDs []uuid.UUID, since time.Time) ([]ActiveOffer, error) {
	if len(employeeIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, `
		SELECT occurrence_id, employee_id, provider_id, sent_at
		FROM shift_offers
		WHERE employee_id = ANY($1) AND sent_at >= $2
		ORDER BY sent_at DESC`,
		employeeIDs, since)
	if err != nil {
		return nil, fmt.Errorf("notifications: find offers: %w", err)
	}
	defer rows.Close()

	var offers []ActiveOffer
	for rows.Next() {
		var o ActiveOffer
		if scanErr := rows.Scan(&o.OccurrenceID, &o.EmployeeID, &o.ProviderID, &o.SentAt); scanErr != nil {
			return nil, fmt.Errorf("notifications: scan offer: %w", scanErr)
		}
		offers = append(offers, o)
	}
	if rows.Err() != nil && !errors.Is(rows.Err(), pgx.ErrNoRows) {
		return nil, fmt.Errorf("notifications: find offers: %w", rows.Err())
	}
	return offers, nil
}
