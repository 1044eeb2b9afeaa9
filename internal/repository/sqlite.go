package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/sqlscan"
	_ "modernc.org/sqlite"

	"github.com/joseph-ayodele/receipt-sync/internal/common"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sync_ledger (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT    NOT NULL,
	contract      TEXT    NOT NULL,
	status        TEXT    NOT NULL,
	filename      TEXT    NOT NULL DEFAULT '',
	size_bytes    INTEGER NOT NULL DEFAULT 0,
	sha256        TEXT    NOT NULL DEFAULT '',
	similarity    REAL    NOT NULL DEFAULT 0,
	error_message TEXT    NOT NULL DEFAULT '',
	recorded_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS sync_ledger_contract_recorded_at ON sync_ledger (contract, recorded_at);
`

type sqliteLedger struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLite opens (or creates) the ledger at path; ":memory:" keeps it in memory.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (Ledger, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path must not be empty")
	}
	dsn := ":memory:"
	if path != ":memory:" {
		if err := ensureDir(path); err != nil {
			return nil, err
		}
		dsn = fmt.Sprintf("file:%s", path)
	}
	logger.Info("opening ledger database", "backend", "sqlite", "path", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite: %w", common.ErrDatabase, err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{`PRAGMA journal_mode = WAL;`, `PRAGMA busy_timeout = 5000;`} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: apply %q: %w", common.ErrDatabase, pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: init schema: %w", common.ErrDatabase, err)
	}
	return &sqliteLedger{db: db, logger: logger}, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func (l *sqliteLedger) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question)
}

func (l *sqliteLedger) Record(ctx context.Context, e Entry) error {
	if err := validateEntry(e); err != nil {
		return err
	}
	query, args, err := insertQuery(l.builder(), e)
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := l.db.ExecContext(ctx, query, args...); err != nil {
		l.logger.Error("failed to record ledger entry", "contract", e.Contract, "status", e.Status, "error", err)
		return fmt.Errorf("%w: insert: %w", common.ErrDatabase, err)
	}
	return nil
}

func (l *sqliteLedger) List(ctx context.Context, f Filter) ([]Entry, error) {
	query, args, err := listQuery(l.builder(), f)
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var rows []entryRow
	if err := sqlscan.Select(ctx, l.db, &rows, query, args...); err != nil {
		l.logger.Error("failed to list ledger entries", "contract", f.Contract, "error", err)
		return nil, fmt.Errorf("%w: list: %w", common.ErrDatabase, err)
	}
	return entriesFromRows(rows)
}

func (l *sqliteLedger) Close() error {
	return l.db.Close()
}
