package repository

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/receipt-sync/constants"
	"github.com/joseph-ayodele/receipt-sync/internal/common"
)

const ledgerTable = "sync_ledger"

var ledgerColumns = []string{
	"run_id",
	"contract",
	"status",
	"filename",
	"size_bytes",
	"sha256",
	"similarity",
	"error_message",
	"recorded_at",
}

// Entry is one contract outcome of one run.
type Entry struct {
	RunID      uuid.UUID
	Contract   string
	Status     constants.SyncStatus
	Filename   string
	Size       int64
	SHA256     string // hex, empty when nothing was fetched
	Similarity float64
	Error      string
	RecordedAt time.Time
}

// Filter narrows List. Zero values mean no constraint; From is inclusive, To exclusive.
type Filter struct {
	Contract string
	From     *time.Time
	To       *time.Time
}

// Ledger records per-contract sync outcomes.
type Ledger interface {
	Record(ctx context.Context, e Entry) error
	List(ctx context.Context, f Filter) ([]Entry, error)
	Close() error
}

// entryRow is the storage shape shared by both backends.
type entryRow struct {
	RunID      string  `db:"run_id"`
	Contract   string  `db:"contract"`
	Status     string  `db:"status"`
	Filename   string  `db:"filename"`
	Size       int64   `db:"size_bytes"`
	SHA256     string  `db:"sha256"`
	Similarity float64 `db:"similarity"`
	Error      string  `db:"error_message"`
	RecordedAt int64   `db:"recorded_at"` // unix microseconds, UTC
}

func (r entryRow) entry() (Entry, error) {
	runID, err := uuid.Parse(r.RunID)
	if err != nil {
		return Entry{}, fmt.Errorf("parse run_id %q: %w", r.RunID, err)
	}
	return Entry{
		RunID:      runID,
		Contract:   r.Contract,
		Status:     constants.SyncStatus(r.Status),
		Filename:   r.Filename,
		Size:       r.Size,
		SHA256:     r.SHA256,
		Similarity: r.Similarity,
		Error:      r.Error,
		RecordedAt: time.UnixMicro(r.RecordedAt).UTC(),
	}, nil
}

func entriesFromRows(rows []entryRow) ([]Entry, error) {
	out := make([]Entry, 0, len(rows))
	for _, r := range rows {
		e, err := r.entry()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func validateEntry(e Entry) error {
	if e.RunID == uuid.Nil {
		return fmt.Errorf("%w: entry run_id is required", common.ErrInvalidInput)
	}
	if strings.TrimSpace(e.Contract) == "" {
		return fmt.Errorf("%w: entry contract is required", common.ErrInvalidInput)
	}
	if !e.Status.Valid() {
		return fmt.Errorf("%w: entry status %q is not valid", common.ErrInvalidInput, e.Status)
	}
	return nil
}

func insertQuery(b squirrel.StatementBuilderType, e Entry) (string, []any, error) {
	recordedAt := e.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}
	return b.Insert(ledgerTable).
		Columns(ledgerColumns...).
		Values(
			e.RunID.String(),
			e.Contract,
			string(e.Status),
			e.Filename,
			e.Size,
			e.SHA256,
			e.Similarity,
			e.Error,
			recordedAt.UTC().UnixMicro(),
		).
		ToSql()
}

func listQuery(b squirrel.StatementBuilderType, f Filter) (string, []any, error) {
	q := b.Select(ledgerColumns...).From(ledgerTable)
	if f.Contract != "" {
		q = q.Where(squirrel.Eq{"contract": f.Contract})
	}
	if f.From != nil {
		q = q.Where(squirrel.GtOrEq{"recorded_at": f.From.UTC().UnixMicro()})
	}
	if f.To != nil {
		q = q.Where(squirrel.Lt{"recorded_at": f.To.UTC().UnixMicro()})
	}
	return q.OrderBy("recorded_at", "contract").ToSql()
}

// Config selects and tunes the ledger backend.
type Config struct {
	DSN         string // postgres:// or postgresql:// selects Postgres; anything else is a SQLite path
	DialTimeout time.Duration
}

// Open returns the ledger backend matching cfg.DSN.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (Ledger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if isPostgresDSN(cfg.DSN) {
		return OpenPostgres(ctx, cfg, logger)
	}
	return OpenSQLite(ctx, strings.TrimPrefix(cfg.DSN, "sqlite:"), logger)
}

func isPostgresDSN(dsn string) bool {
	lower := strings.ToLower(dsn)
	return strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://")
}
