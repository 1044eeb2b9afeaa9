package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/receipt-sync/constants"
	"github.com/joseph-ayodele/receipt-sync/internal/common"
)

func openTestLedger(t *testing.T) Ledger {
	t.Helper()
	l, err := Open(context.Background(), Config{DSN: filepath.Join(t.TempDir(), "nested", "ledger.db")}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestSQLiteLedger_RecordAndList(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()
	run := uuid.New()
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, l.Record(ctx, Entry{
		RunID: run, Contract: "123", Status: constants.SyncStatusSaved,
		Filename: "2024-03-01.pdf", Size: 42, SHA256: "abc", Similarity: 0.5,
		RecordedAt: base,
	}))
	require.NoError(t, l.Record(ctx, Entry{
		RunID: run, Contract: "456", Status: constants.SyncStatusFailed,
		Error: "portal request failed", RecordedAt: base.Add(time.Second),
	}))

	all, err := l.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, Entry{
		RunID: run, Contract: "123", Status: constants.SyncStatusSaved,
		Filename: "2024-03-01.pdf", Size: 42, SHA256: "abc", Similarity: 0.5,
		RecordedAt: base,
	}, all[0])
	assert.Equal(t, "456", all[1].Contract)
	assert.Equal(t, "portal request failed", all[1].Error)
}

func TestSQLiteLedger_ListFilters(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()
	run := uuid.New()
	day := func(d int) time.Time { return time.Date(2024, 3, d, 12, 0, 0, 0, time.UTC) }

	for d := 1; d <= 3; d++ {
		for _, c := range []string{"123", "456"} {
			require.NoError(t, l.Record(ctx, Entry{
				RunID: run, Contract: c, Status: constants.SyncStatusUnchanged, RecordedAt: day(d),
			}))
		}
	}

	got, err := l.List(ctx, Filter{Contract: "123"})
	require.NoError(t, err)
	assert.Len(t, got, 3)

	from, to := day(2), day(3)
	got, err = l.List(ctx, Filter{Contract: "456", From: &from, To: &to})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, day(2), got[0].RecordedAt)
}

func TestSQLiteLedger_RejectsInvalidEntries(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	assert.ErrorIs(t, l.Record(ctx, Entry{Contract: "123", Status: constants.SyncStatusSaved}), common.ErrInvalidInput)
	assert.ErrorIs(t, l.Record(ctx, Entry{RunID: uuid.New(), Status: constants.SyncStatusSaved}), common.ErrInvalidInput)
	assert.ErrorIs(t, l.Record(ctx, Entry{RunID: uuid.New(), Contract: "123", Status: "DONE"}), common.ErrInvalidInput)
}

func TestSQLiteLedger_ClosedReportsDatabaseError(t *testing.T) {
	l, err := Open(context.Background(), Config{DSN: filepath.Join(t.TempDir(), "ledger.db")}, nil)
	require.NoError(t, err)
	require.NoError(t, l.Close())

	err = l.Record(context.Background(), Entry{RunID: uuid.New(), Contract: "1", Status: constants.SyncStatusSaved})
	assert.ErrorIs(t, err, common.ErrDatabase)
	_, err = l.List(context.Background(), Filter{})
	assert.ErrorIs(t, err, common.ErrDatabase)
}

func TestOpen_InMemory(t *testing.T) {
	l, err := Open(context.Background(), Config{DSN: "sqlite::memory:"}, nil)
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.Record(context.Background(), Entry{
		RunID: uuid.New(), Contract: "1", Status: constants.SyncStatusSaved,
	}))
	got, err := l.List(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.False(t, got[0].RecordedAt.IsZero())
}

func TestListQuery_Placeholders(t *testing.T) {
	from := time.Unix(100, 0)
	query, args, err := listQuery(squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar), Filter{Contract: "9", From: &from})
	require.NoError(t, err)
	assert.Contains(t, query, "contract = $1")
	assert.Contains(t, query, "recorded_at >= $2")
	assert.Contains(t, query, "ORDER BY recorded_at, contract")
	assert.Equal(t, []any{"9", from.UTC().UnixMicro()}, args)
}

func TestIsPostgresDSN(t *testing.T) {
	assert.True(t, isPostgresDSN("postgres://u:p@localhost/db"))
	assert.True(t, isPostgresDSN("PostgreSQL://localhost/db"))
	assert.False(t, isPostgresDSN("data/ledger.db"))
	assert.False(t, isPostgresDSN("sqlite:ledger.db"))
}
