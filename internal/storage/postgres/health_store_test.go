package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/notaspider/comick-source-api/internal/health"
)

type fixedIDs struct {
	id  string
	err error
}

func (f fixedIDs) NewID() (string, error) { return f.id, f.err }

func TestRecordCycleInsertsOneRowPerSource(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewHealthStoreWithPool(mock, "", fixedIDs{id: "0190c6d4-0000-7000-8000-000000000001"})
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	ms := int64(230)
	snap := health.Snapshot{
		Timestamp: now,
		Results: map[string]health.Result{
			"mangakatana": {Status: health.StatusTimeout, Message: "Request timed out after 10s", LastChecked: now},
			"asurascan":   {Status: health.StatusHealthy, Message: "Source is accessible", ResponseTime: &ms, LastChecked: now},
		},
	}

	var noTime *int64
	mock.ExpectExec("INSERT INTO source_health_checks").
		WithArgs(
			"0190c6d4-0000-7000-8000-000000000001", "asurascan", "healthy", "Source is accessible", &ms, now, now,
			"0190c6d4-0000-7000-8000-000000000001", "mangakatana", "timeout", "Request timed out after 10s", noTime, now, now,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))

	require.NoError(t, store.RecordCycle(context.Background(), snap))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordCycleSkipsEmptySnapshot(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewHealthStoreWithPool(mock, "health", fixedIDs{id: "x"})
	require.NoError(t, err)
	require.NoError(t, store.RecordCycle(context.Background(), health.Snapshot{}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordCycleErrors(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	snap := health.Snapshot{Results: map[string]health.Result{"a": {Status: health.StatusError}}}

	store, err := NewHealthStoreWithPool(mock, "health", fixedIDs{err: errors.New("clock went backwards")})
	require.NoError(t, err)
	require.ErrorContains(t, store.RecordCycle(context.Background(), snap), "cycle id")

	store, err = NewHealthStoreWithPool(mock, "health", fixedIDs{id: "c1"})
	require.NoError(t, err)
	mock.ExpectExec("INSERT INTO health").WillReturnError(errors.New("relation does not exist"))
	require.ErrorContains(t, store.RecordCycle(context.Background(), snap), "insert health cycle")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryScansRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewHealthStoreWithPool(mock, "", fixedIDs{id: "unused"})
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	ms := int64(410)
	var noTime *int64
	rows := pgxmock.NewRows([]string{"cycle_id", "source_id", "status", "message", "response_time_ms", "checked_at"}).
		AddRow("c2", "asurascan", "cloudflare", "Cloudflare protection detected", &ms, now).
		AddRow("c1", "asurascan", "timeout", "Request timed out after 10s", noTime, now.Add(-5*time.Minute))
	mock.ExpectQuery("SELECT cycle_id::text, source_id").
		WithArgs("asurascan", 10).
		WillReturnRows(rows)

	entries, err := store.History(context.Background(), "asurascan", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "c2", entries[0].CycleID)
	require.Equal(t, health.StatusCloudflare, entries[0].Status)
	require.Equal(t, int64(410), *entries[0].ResponseTime)
	require.Nil(t, entries[1].ResponseTime)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewHealthStoreWithPool(mock, "", fixedIDs{id: "x"})
	require.NoError(t, err)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS source_health_checks").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewHealthStoreValidation(t *testing.T) {
	t.Parallel()

	_, err := NewHealthStore(context.Background(), HealthStoreConfig{}, fixedIDs{})
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewHealthStoreWithPool(nil, "", fixedIDs{})
	require.Error(t, err)
	_, err = NewHealthStoreWithPool(mock, "", nil)
	require.Error(t, err)
	_, err = NewHealthStoreWithPool(mock, "bad-name;", fixedIDs{})
	require.Error(t, err)
}
