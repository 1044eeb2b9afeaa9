package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joseph-ayodele/receipt-sync/internal/common"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS sync_ledger (
	id            BIGSERIAL PRIMARY KEY,
	run_id        TEXT             NOT NULL,
	contract      TEXT             NOT NULL,
	status        TEXT             NOT NULL,
	filename      TEXT             NOT NULL DEFAULT '',
	size_bytes    BIGINT           NOT NULL DEFAULT 0,
	sha256        TEXT             NOT NULL DEFAULT '',
	similarity    DOUBLE PRECISION NOT NULL DEFAULT 0,
	error_message TEXT             NOT NULL DEFAULT '',
	recorded_at   BIGINT           NOT NULL
);
CREATE INDEX IF NOT EXISTS sync_ledger_contract_recorded_at ON sync_ledger (contract, recorded_at);
`

type postgresLedger struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// OpenPostgres creates a small pgx pool, pings it and ensures the schema exists.
func OpenPostgres(ctx context.Context, cfg Config, logger *slog.Logger) (Ledger, error) {
	logger.Info("connecting to ledger database", "backend", "postgres")
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		logger.Error("failed to parse ledger dsn", "error", err)
		return nil, fmt.Errorf("%w: parse dsn: %w", common.ErrDatabase, err)
	}
	pc.MaxConns = 2
	pc.MinConns = 0
	pc.MaxConnIdleTime = time.Minute
	pc.ConnConfig.RuntimeParams["application_name"] = "receipt-sync"

	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 3 * time.Second
	}
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(dialCtx, pc)
	if err != nil {
		logger.Error("failed to connect to ledger database", "error", err)
		return nil, fmt.Errorf("%w: connect: %w", common.ErrDatabase, err)
	}
	if err := pool.Ping(dialCtx); err != nil {
		pool.Close()
		logger.Error("ledger database ping failed", "error", err)
		return nil, fmt.Errorf("%w: ping: %w", common.ErrDatabase, err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: init schema: %w", common.ErrDatabase, err)
	}

	logger.Info("successfully connected to ledger database")
	return &postgresLedger{pool: pool, logger: logger}, nil
}

func (l *postgresLedger) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func (l *postgresLedger) Record(ctx context.Context, e Entry) error {
	if err := validateEntry(e); err != nil {
		return err
	}
	query, args, err := insertQuery(l.builder(), e)
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := l.pool.Exec(ctx, query, args...); err != nil {
		l.logger.Error("failed to record ledger entry", "contract", e.Contract, "status", e.Status, "error", err)
		return fmt.Errorf("%w: insert: %w", common.ErrDatabase, err)
	}
	return nil
}

func (l *postgresLedger) List(ctx context.Context, f Filter) ([]Entry, error) {
	query, args, err := listQuery(l.builder(), f)
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var rows []entryRow
	if err := pgxscan.Select(ctx, l.pool, &rows, query, args...); err != nil {
		l.logger.Error("failed to list ledger entries", "contract", f.Contract, "error", err)
		return nil, fmt.Errorf("%w: list: %w", common.ErrDatabase, err)
	}
	return entriesFromRows(rows)
}

func (l *postgresLedger) Close() error {
	l.logger.Info("closing ledger database")
	l.pool.Close()
	return nil
}
