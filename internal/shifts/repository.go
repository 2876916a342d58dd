package shifts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound indicates the occurrence does not exist.
	ErrNotFound = errors.New("shifts: not found")
	// ErrBackendUnavailable indicates a transient store failure.
	ErrBackendUnavailable = errors.New("shifts: backend unavailable")
)

type db interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Repository persists shift occurrences. Status is only ever written through
// CompareAndSetStatus; the assignment arbiter is the sole caller.
type Repository struct {
	db db
}

// NewRepository creates a repository backed by pgx.
func NewRepository(db db) *Repository {
	if db == nil {
		panic("shifts: db required")
	}
	return &Repository{db: db}
}

const occurrenceColumns = `id, template_id, provider_id, patient_id, assigned_employee_id,
		scheduled_date, to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI'),
		status, COALESCE(release_reason, ''), COALESCE(reason_category, '')`

func scanOccurrence(row pgx.Row) (*Occurrence, error) {
	var o Occurrence
	err := row.Scan(
		&o.ID, &o.TemplateID, &o.ProviderID, &o.PatientID, &o.AssignedEmployeeID,
		&o.ScheduledDate, &o.StartTime, &o.EndTime,
		&o.Status, &o.ReleaseReason, &o.ReasonCategory,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// Get fetches an occurrence by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*Occurrence, error) {
	row := r.db.QueryRow(ctx, `SELECT `+occurrenceColumns+` FROM shift_occurrences WHERE id = $1`, id)
	o, err := scanOccurrence(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, backendErr("get occurrence", err)
	}
	return o, nil
}

// upcomingStatuses are the statuses a caller can still act on over the phone.
var upcomingStatuses = []string{string(StatusScheduled), string(StatusAssigned), string(StatusRescheduled)}

// ListUpcomingForEmployee returns the employee's occurrences starting at or
// after now within a 14-day horizon, soonest first. When templateID is set the
// listing is narrowed to that template.
func (r *Repository) ListUpcomingForEmployee(ctx context.Context, providerID, employeeID uuid.UUID, templateID *uuid.UUID, now time.Time) ([]Occurrence, error) {
	horizon := now.AddDate(0, 0, 14)
	rows, err := r.db.Query(ctx, `
		SELECT `+occurrenceColumns+`
		FROM shift_occurrences
		WHERE provider_id = $1
		  AND assigned_employee_id = $2
		  AND status = ANY($3)
		  AND (scheduled_date + start_time) >= $4
		  AND scheduled_date <= $5
		  AND ($6::uuid IS NULL OR template_id = $6)
		ORDER BY scheduled_date, start_time`,
		providerID, employeeID, upcomingStatuses, now, horizon, templateID)
	if err != nil {
		return nil, backendErr("list upcoming", err)
	}
	defer rows.Close()

	var occurrences []Occurrence
	for rows.Next() {
		var o Occurrence
		if scanErr := rows.Scan(
			&o.ID, &o.TemplateID, &o.ProviderID, &o.PatientID, &o.AssignedEmployeeID,
			&o.ScheduledDate, &o.StartTime, &o.EndTime,
			&o.Status, &o.ReleaseReason, &o.ReasonCategory,
		); scanErr != nil {
			return nil, backendErr("scan occurrence", scanErr)
		}
		occurrences = append(occurrences, o)
	}
	if rows.Err() != nil {
		return nil, backendErr("list upcoming", rows.Err())
	}
	return occurrences, nil
}

// CompareAndSetStatus atomically moves the occurrence from expected to next.
// It reports false, without error, when the current status differs from
// expected. A failed CAS is a clean no-op and must not be retried.
func (r *Repository) CompareAndSetStatus(ctx context.Context, id uuid.UUID, expected, next Status) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE shift_occurrences
		SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2`,
		id, string(expected), string(next))
	if err != nil {
		return false, backendErr("compare and set status", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetSchedule writes the new date and time window after a reschedule wins.
func (r *Repository) SetSchedule(ctx context.Context, id uuid.UUID, date time.Time, start, end string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE shift_occurrences
		SET scheduled_date = $2, start_time = $3, end_time = $4, updated_at = now()
		WHERE id = $1`,
		id, date, start, end)
	if err != nil {
		return backendErr("set schedule", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetAssignedEmployee records the accepting employee after an Accept wins.
func (r *Repository) SetAssignedEmployee(ctx context.Context, id, employeeID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE shift_occurrences
		SET assigned_employee_id = $2, updated_at = now()
		WHERE id = $1`,
		id, employeeID)
	if err != nil {
		return backendErr("set assigned employee", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetReleaseReason records the caller's stated reason alongside its category tag.
func (r *Repository) SetReleaseReason(ctx context.Context, id uuid.UUID, reason, category string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE shift_occurrences
		SET release_reason = $2, reason_category = $3, updated_at = now()
		WHERE id = $1`,
		id, reason, category)
	if err != nil {
		return backendErr("set release reason", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListUnfilled returns the provider's occurrences stuck in an unfilled status,
// soonest first. Surfaces in the admin API.
func (r *Repository) ListUnfilled(ctx context.Context, providerID uuid.UUID) ([]Occurrence, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+occurrenceColumns+`
		FROM shift_occurrences
		WHERE provider_id = $1 AND status = ANY($2)
		ORDER BY scheduled_date, start_time`,
		providerID, []string{string(StatusUnfilledAfterSMS), string(StatusUnfilledAfterCalls)})
	if err != nil {
		return nil, backendErr("list unfilled", err)
	}
	defer rows.Close()

	var occurrences []Occurrence
	for rows.Next() {
		var o Occurrence
		if scanErr := rows.Scan(
			&o.ID, &o.TemplateID, &o.ProviderID, &o.PatientID, &o.AssignedEmployeeID,
			&o.ScheduledDate, &o.StartTime, &o.EndTime,
			&o.Status, &o.ReleaseReason, &o.ReasonCategory,
		); scanErr != nil {
			return nil, backendErr("scan occurrence", scanErr)
		}
		occurrences = append(occurrences, o)
	}
	if rows.Err() != nil {
		return nil, backendErr("list unfilled", rows.Err())
	}
	return occurrences, nil
}

func backendErr(op string, err error) error {
	return fmt.Errorf("shifts: %s: %w", op, errors.Join(ErrBackendUnavailable, err))
}
