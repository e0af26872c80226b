package state

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/gridpulse/errors"
	gptest "github.com/teranos/gridpulse/internal/testing"
	"github.com/teranos/gridpulse/pulse/job"
)

var completed = time.Date(2026, 3, 3, 4, 12, 0, 0, time.UTC)

func TestRecordCompletionCreatesState(t *testing.T) {
	store := NewStore(gptest.CreateTestDB(t), nil)
	ctx := context.Background()

	st, err := store.RecordCompletion(ctx, "backup", 12*time.Minute, completed)
	require.NoError(t, err)
	assert.Equal(t, 12*time.Minute, st.AvgDuration)

	got, err := store.Get(ctx, "backup")
	require.NoError(t, err)
	assert.Equal(t, "backup", got.JobID)
	assert.Equal(t, []time.Duration{12 * time.Minute}, got.History)
	assert.Equal(t, 12*time.Minute, got.AvgDuration)
	require.NotNil(t, got.LastRunAt)
	assert.True(t, completed.Equal(*got.LastRunAt))
}

func TestRecordCompletionKeepsNewestThirty(t *testing.T) {
	store := NewStore(gptest.CreateTestDB(t), nil)
	ctx := context.Background()

	for i := 1; i <= 35; i++ {
		_, err := store.RecordCompletion(ctx, "backup", time.Duration(i)*time.Second, completed.Add(time.Duration(i)*time.Hour))
		require.NoError(t, err)
	}

	got, err := store.Get(ctx, "backup")
	require.NoError(t, err)
	require.Len(t, got.History, job.HistoryLimit)
	assert.Equal(t, 6*time.Second, got.History[0])
	assert.Equal(t, 35*time.Second, got.History[job.HistoryLimit-1])
	assert.Equal(t, 20500*time.Millisecond, got.AvgDuration)
	assert.True(t, completed.Add(35*time.Hour).Equal(*got.LastRunAt))
}

func TestLoad(t *testing.T) {
	store := NewStore(gptest.CreateTestDB(t), nil)
	ctx := context.Background()

	empty, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = store.RecordCompletion(ctx, "backup", time.Minute, completed)
	require.NoError(t, err)
	_, err = store.RecordCompletion(ctx, "backup", 3*time.Minute, completed.Add(time.Hour))
	require.NoError(t, err)
	_, err = store.RecordCompletion(ctx, "mover", 10*time.Minute, completed)
	require.NoError(t, err)

	states, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, []time.Duration{time.Minute, 3 * time.Minute}, states["backup"].History)
	assert.Equal(t, 2*time.Minute, states["backup"].AvgDuration)
	assert.Equal(t, []time.Duration{10 * time.Minute}, states["mover"].History)
}

func TestGetUnknownJob(t *testing.T) {
	store := NewStore(gptest.CreateTestDB(t), nil)

	_, err := store.Get(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestReset(t *testing.T) {
	store := NewStore(gptest.CreateTestDB(t), nil)
	ctx := context.Background()

	_, err := store.RecordCompletion(ctx, "backup", time.Minute, completed)
	require.NoError(t, err)

	existed, err := store.Reset(ctx, "backup")
	require.NoError(t, err)
	assert.True(t, existed)

	_, err = store.Get(ctx, "backup")
	assert.True(t, errors.IsNotFoundError(err))

	existed, err = store.Reset(ctx, "backup")
	require.NoError(t, err)
	assert.False(t, existed)

	// history went with the row, a new run starts fresh
	st, err := store.RecordCompletion(ctx, "backup", 4*time.Minute, completed)
	require.NoError(t, err)
	assert.Len(t, st.History, 1)
}

// --- Sqlmock Tests ---

func TestRecordCompletionRollsBackOnInsertFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT job_id, avg_duration_seconds, last_run_at\s+FROM job_state\s+WHERE job_id = \?`).
		WithArgs("backup").
		WillReturnRows(sqlmock.NewRows([]string{"job_id", "avg_duration_seconds", "last_run_at"}))
	mock.ExpectExec(`INSERT INTO job_state`).
		WithArgs("backup", 60.0, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO job_runs`).
		WithArgs("backup", 60.0, sqlmock.AnyArg()).
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	store := NewStore(db, nil)
	_, err = store.RecordCompletion(context.Background(), "backup", time.Minute, completed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to append run for backup")
	assert.Contains(t, err.Error(), "disk I/O error")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordCompletionBeginFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin().WillReturnError(errors.New("database is locked"))

	_, err = NewStore(db, nil).RecordCompletion(context.Background(), "backup", time.Minute, completed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to begin transaction")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadSkipsCorruptTimestamp(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT job_id, avg_duration_seconds, last_run_at\s+FROM job_state`).
		WillReturnRows(sqlmock.NewRows([]string{"job_id", "avg_duration_seconds", "last_run_at"}).
			AddRow("backup", 60.0, "2026-03-03T04:12:00Z").
			AddRow("scrub", 60.0, "yesterday"))
	mock.ExpectQuery(`SELECT job_id, duration_seconds\s+FROM job_runs`).
		WillReturnRows(sqlmock.NewRows([]string{"job_id", "duration_seconds"}).
			AddRow("backup", 60.0).
			AddRow("scrub", 60.0))

	states, err := NewStore(db, nil).Load(context.Background())
	require.NoError(t, err)
	require.Contains(t, states, "backup")
	assert.NotContains(t, states, "scrub")
	assert.Equal(t, []time.Duration{time.Minute}, states["backup"].History)
	assert.True(t, completed.Equal(*states["backup"].LastRunAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadKeepsValidRowsNextToCorruptOne(t *testing.T) {
	database := gptest.CreateTestDB(t)
	store := NewStore(database, nil)
	ctx := context.Background()

	_, err := store.RecordCompletion(ctx, "backup", 5*time.Minute, completed)
	require.NoError(t, err)
	_, err = database.Exec(`INSERT INTO job_state (job_id, avg_duration_seconds, last_run_at, updated_at)
		VALUES ('scrub', 60, 'garbage', '2026-03-03T04:12:00Z')`)
	require.NoError(t, err)

	states, err := store.Load(ctx)
	require.NoError(t, err)
	require.Contains(t, states, "backup")
	assert.NotContains(t, states, "scrub")
	assert.Equal(t, 5*time.Minute, states["backup"].AvgDuration)
	require.NotNil(t, states["backup"].LastRunAt)
}

func TestResetRemovesHistoryWithoutCascade(t *testing.T) {
	database := gptest.CreateTestDB(t)
	_, err := database.Exec("PRAGMA foreign_keys = OFF")
	require.NoError(t, err)

	store := NewStore(database, nil)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := store.RecordCompletion(ctx, "backup", time.Minute, completed.Add(time.Duration(i)*time.Hour))
		require.NoError(t, err)
	}

	existed, err := store.Reset(ctx, "backup")
	require.NoError(t, err)
	assert.True(t, existed)

	var runs int
	require.NoError(t, database.QueryRow(`SELECT COUNT(*) FROM job_runs WHERE job_id = 'backup'`).Scan(&runs))
	assert.Zero(t, runs)

	st, err := store.RecordCompletion(ctx, "backup", 4*time.Minute, completed.Add(5*time.Hour))
	require.NoError(t, err)
	assert.Len(t, st.History, 1)
	assert.Equal(t, 4*time.Minute, st.AvgDuration)
}
