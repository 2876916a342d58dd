package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordOfferIgnoresDuplicates(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	occID := uuid.New()
	empID := uuid.New()
	provID := uuid.New()
	sentAt := time.Date(2026, 3, 2, 18, 5, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO shift_offers").
		WithArgs(occID, empID, provID, sentAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	store := NewOfferStore(mock)
	require.NoError(t, store.RecordOffer(context.Background(), occID, empID, provID, sentAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindActiveOffers(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	empID := uuid.New()
	occNew := uuid.New()
	occOld := uuid.New()
	provID := uuid.New()
	since := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM shift_offers").
		WithArgs([]uuid.UUID{empID}, since).
		WillReturnRows(mock.NewRows([]string{"occurrence_id", "employee_id", "provider_id", "sent_at"}).
			AddRow(occNew, empID, provID, since.Add(10*time.Hour)).
			AddRow(occOld, empID, provID, since.Add(time.Hour)))

	store := NewOfferStore(mock)
	offers, err := store.FindActiveOffers(context.Background(), []uuid.UUID{empID}, since)
	require.NoError(t, err)
	require.Len(t, offers, 2)
	assert.Equal(t, occNew, offers[0].OccurrenceID, "newest offer first")
	assert.Equal(t, occOld, offers[1].OccurrenceID)
}

func TestFindActiveOffersNoEmployees(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewOfferStore(mock)
	offers, err := store.FindActiveOffers(context.Background(), nil, time.Now())
	require.NoError(t, err)
	assert.Nil(t, offers)
	assert.NoError(t, mock.ExpectationsWereMet())
}
