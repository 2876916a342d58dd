package pgretry

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errConnReset = errors.New("connection reset by peer")

func TestQueryRetriesTransientFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT n FROM counters").WillReturnError(errConnReset)
	mock.ExpectQuery("SELECT n FROM counters").
		WillReturnRows(mock.NewRows([]string{"n"}).AddRow(int64(7)))

	rows, err := Wrap(mock).Query(context.Background(), "SELECT n FROM counters")
	require.NoError(t, err)
	defer rows.Close()

	require.True(t, rows.Next())
	var n int64
	require.NoError(t, rows.Scan(&n))
	assert.Equal(t, int64(7), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryGivesUpAfterRetries(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	for i := 0; i < 3; i++ {
		mock.ExpectQuery("SELECT n FROM counters").WillReturnError(errConnReset)
	}

	_, err = Wrap(mock).Query(context.Background(), "SELECT n FROM counters")
	assert.ErrorIs(t, err, errConnReset)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryRowRetriesAtScanTime(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT name FROM providers").WillReturnError(errConnReset)
	mock.ExpectQuery("SELECT name FROM providers").
		WillReturnRows(mock.NewRows([]string{"name"}).AddRow("Sunrise Care"))

	var name string
	row := Wrap(mock).QueryRow(context.Background(), "SELECT name FROM providers")
	require.NoError(t, row.Scan(&name))
	assert.Equal(t, "Sunrise Care", name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryRowNoRowsIsNotRetried(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT name FROM providers").WillReturnError(pgx.ErrNoRows)

	var name string
	err = Wrap(mock).QueryRow(context.Background(), "SELECT name FROM providers").Scan(&name)
	assert.ErrorIs(t, err, pgx.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecIsNeverRetried(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("UPDATE shift_occurrences SET status").WillReturnError(errConnReset)

	_, err = Wrap(mock).Exec(context.Background(), "UPDATE shift_occurrences SET status = $1")
	assert.ErrorIs(t, err, errConnReset)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// cancellingQuerier fails every read and cancels the context on the first
// call, so a retry would have to outlive its own context.
type cancellingQuerier struct {
	cancel context.CancelFunc
	calls  int
}

func (q *cancellingQuerier) Query(context.Context, string, ...any) (pgx.Rows, error) {
	q.calls++
	q.cancel()
	return nil, errConnReset
}

func (q *cancellingQuerier) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("not used")
}

func (q *cancellingQuerier) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	panic("not used")
}

func TestCancelledContextStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := &cancellingQuerier{cancel: cancel}

	_, err := Wrap(q).Query(ctx, "SELECT n FROM counters")
	assert.ErrorIs(t, err, errConnReset)
	assert.Equal(t, 1, q.calls, "no retry once the context is gone")
}
