package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/gbif/content-crawler-sub000/internal/store"
)

func newMockStore(t *testing.T) (*RunStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	s, err := NewRunStoreWithPool(mock)
	require.NoError(t, err)
	return s, mock
}

func TestUpsertRunStart(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	runID := uuid.New()
	at := time.Unix(1700000000, 0).UTC()

	mock.ExpectExec("INSERT INTO crawl_runs").
		WithArgs(runID, at, store.RunRunning).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.UpsertRunStart(context.Background(), runID, at))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteRun(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	runID := uuid.New()
	at := time.Unix(1700000600, 0).UTC()
	msg := "2 content types failed"

	mock.ExpectExec("UPDATE crawl_runs").
		WithArgs(at, store.RunError, &msg, runID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, s.CompleteRun(context.Background(), runID, at, store.RunError, &msg))

	mock.ExpectExec("UPDATE crawl_runs").
		WithArgs(at, store.RunSuccess, (*string)(nil), runID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	err := s.CompleteRun(context.Background(), runID, at, store.RunSuccess, nil)
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertContentTypeStats(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	runID := uuid.New()
	at := time.Unix(1700000100, 0).UTC()
	delta := store.StatsDelta{Indexed: 100, Failed: 2, Skipped: 1, TagsApplied: 7, TagsDropped: 3, Recreated: true}

	mock.ExpectExec("INSERT INTO crawl_content_types").
		WithArgs(runID, "news", "news-idx", at,
			int64(100), int64(2), int64(1), int64(7), int64(0), int64(3), true).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.UpsertContentTypeStats(context.Background(), runID, "news", "news-idx", delta, at))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertContentTypeStatsWrapsErrors(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	boom := errors.New("connection reset")
	mock.ExpectExec("INSERT INTO crawl_content_types").WillReturnError(boom)

	err := s.UpsertContentTypeStats(context.Background(), uuid.New(), "news", "", store.StatsDelta{}, time.Now())
	require.ErrorIs(t, err, boom)
	require.ErrorContains(t, err, "upsert content type stats")
}

func TestGetRunNotFound(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	runID := uuid.New()
	mock.ExpectQuery("SELECT id, started_at").
		WithArgs(runID).
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), runID)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListRunsQueryError(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	status := store.RunRunning
	mock.ExpectQuery("FROM crawl_runs").
		WithArgs(&status, 10, 0).
		WillReturnError(errors.New("syntax error"))

	_, err := s.ListRuns(context.Background(), &status, 10, 0)
	require.ErrorContains(t, err, "list runs")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS crawl_runs").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewRunStoreValidation(t *testing.T) {
	t.Parallel()

	_, err := NewRunStore(context.Background(), RunStoreConfig{})
	require.ErrorContains(t, err, "dsn")
	_, err = NewRunStoreWithPool(nil)
	require.Error(t, err)
}

func TestPing(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	s, err := NewRunStoreWithPool(mock)
	require.NoError(t, err)

	mock.ExpectPing()
	require.NoError(t, s.Ping(context.Background()))
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	require.ErrorContains(t, s.Ping(context.Background()), "ping ledger")
	require.NoError(t, mock.ExpectationsWereMet())
}
