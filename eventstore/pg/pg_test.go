package pg

import (
	"context"
	"database/sql"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rakhimjonshokirov/eventkit/corerr"
	"github.com/rakhimjonshokirov/eventkit/eventstore"
)

func v(i int64) *eventstore.Version {
	x := eventstore.Version(i)
	return &x
}

func TestAppendEventsUnconditionalSuccess(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(version\), 0\) FROM events WHERE stream_id = \$1`).
		WithArgs("order-1").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(int64(0)))
	mock.ExpectExec(`INSERT INTO events`).
		WithArgs("order-1", int64(1), "OrderPlaced.v1", []byte("{}"), []byte("{}")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	store := New(db, nil)
	ver, err := store.AppendEvents(context.Background(), "order-1", nil, []eventstore.SerializedEvent{
		{EventType: "OrderPlaced.v1", Data: []byte("{}")},
	})
	require.NoError(t, err)
	assert.Equal(t, eventstore.Version(1), ver)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendEventsConcurrencyConflictOnVersionMismatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(version\), 0\) FROM events WHERE stream_id = \$1`).
		WithArgs("order-1").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(int64(5)))
	mock.ExpectRollback()

	store := New(db, nil)
	_, err = store.AppendEvents(context.Background(), "order-1", v(3), []eventstore.SerializedEvent{
		{EventType: "E"},
	})
	require.Error(t, err)
	assert.True(t, corerr.Of(err, corerr.KindConcurrencyConflict))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendEventsEmptyListFailsWithoutTouchingDB(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := New(db, nil)
	_, err = store.AppendEvents(context.Background(), "order-1", nil, nil)
	require.Error(t, err)
	assert.True(t, corerr.Of(err, corerr.KindEmptyInput))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadSnapshotAbsentIsNotAnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT version, state_data FROM snapshots WHERE stream_id = \$1`).
		WithArgs("order-1").
		WillReturnError(sql.ErrNoRows)

	store := New(db, nil)
	_, ok, err := store.LoadSnapshot(context.Background(), "order-1")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}
