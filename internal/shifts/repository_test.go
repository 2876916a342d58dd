package shifts

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareAndSetStatusWins(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectExec("UPDATE shift_occurrences").
		WithArgs(id, "Open", "Assigned").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	repo := NewRepository(mock)
	ok, err := repo.CompareAndSetStatus(context.Background(), id, StatusOpen, StatusAssigned)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompareAndSetStatusLoses(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectExec("UPDATE shift_occurrences").
		WithArgs(id, "Open", "Assigned").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	repo := NewRepository(mock)
	ok, err := repo.CompareAndSetStatus(context.Background(), id, StatusOpen, StatusAssigned)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetOccurrence(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	providerID := uuid.New()
	patientID := uuid.New()
	mock.ExpectQuery("FROM shift_occurrences WHERE id").
		WithArgs(id).
		WillReturnRows(mock.NewRows([]string{
			"id", "template_id", "provider_id", "patient_id", "assigned_employee_id",
			"scheduled_date", "start_time", "end_time", "status", "release_reason", "reason_category",
		}).AddRow(id, nil, providerID, patientID, nil,
			time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC), "14:00", "18:00", "Scheduled", "", ""))

	repo := NewRepository(mock)
	occ, err := repo.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, occ.Status)
	assert.Equal(t, "14:00", occ.StartTime)
}

func TestGetOccurrenceNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery("FROM shift_occurrences WHERE id").
		WithArgs(id).
		WillReturnRows(mock.NewRows([]string{
			"id", "template_id", "provider_id", "patient_id", "assigned_employee_id",
			"scheduled_date", "start_time", "end_time", "status", "release_reason", "reason_category",
		}))

	repo := NewRepository(mock)
	_, err = repo.Get(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, StatusScheduled.CanTransitionTo(StatusRescheduled))
	assert.True(t, StatusAssigned.CanTransitionTo(StatusOpen))
	assert.True(t, StatusOpen.CanTransitionTo(StatusAssigned))
	assert.True(t, StatusOpen.CanTransitionTo(StatusUnfilledAfterSMS))
	assert.True(t, StatusUnfilledAfterSMS.CanTransitionTo(StatusAssigned))
	assert.True(t, StatusUnfilledAfterSMS.CanTransitionTo(StatusUnfilledAfterCalls))

	// portal-side closeout and late manual assignment
	assert.True(t, StatusAssigned.CanTransitionTo(StatusCompleted))
	assert.True(t, StatusScheduled.CanTransitionTo(StatusCancelled))
	assert.True(t, StatusUnfilledAfterCalls.CanTransitionTo(StatusAssigned))

	assert.False(t, StatusOpen.CanTransitionTo(StatusRescheduled))
	assert.False(t, StatusCompleted.CanTransitionTo(StatusOpen))
	assert.False(t, StatusCancelled.CanTransitionTo(StatusOpen))
	assert.False(t, StatusUnfilledAfterCalls.CanTransitionTo(StatusUnfilledAfterSMS))
	assert.False(t, StatusScheduled.CanTransitionTo(StatusUnfilledAfterSMS))
}

func TestStatusValid(t *testing.T) {
	assert.True(t, StatusOpen.Valid())
	assert.True(t, StatusUnfilledAfterCalls.Valid())
	assert.False(t, Status("bogus").Valid())
}

func TestStartsAt(t *testing.T) {
	loc, err := time.LoadLocation("Australia/Sydney")
	require.NoError(t, err)

	occ := &Occurrence{
		ScheduledDate: time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC),
		StartTime:     "14:00",
	}
	at := occ.StartsAt(loc)
	assert.Equal(t, 14, at.Hour())
	assert.Equal(t, loc, at.Location())
	assert.Equal(t, 25, at.Day())
}
