package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const createTable = `
CREATE TABLE IF NOT EXISTS digest_runs (
	run_id       TEXT PRIMARY KEY,
	container    TEXT NOT NULL,
	source_key   TEXT NOT NULL,
	summary_key  TEXT NOT NULL DEFAULT '',
	metadata_key TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL,
	detail       TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS digest_runs_source_idx ON digest_runs (container, source_key);
`

const upsertRun = `
INSERT INTO digest_runs (run_id, container, source_key, summary_key, metadata_key, status, detail, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (run_id) DO UPDATE SET
	summary_key  = EXCLUDED.summary_key,
	metadata_key = EXCLUDED.metadata_key,
	status       = EXCLUDED.status,
	detail       = EXCLUDED.detail,
	updated_at   = EXCLUDED.updated_at
`

const selectRun = `
SELECT run_id, container, source_key, summary_key, metadata_key, status, detail, updated_at
FROM digest_runs WHERE run_id = $1
`

// Postgres stores entries in the digest_runs table.
type Postgres struct {
	db *sql.DB
}

// OpenPostgres connects through the pgx database/sql driver and creates the table if needed.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("database url is required")
	}
	// Simple protocol keeps the ledger usable behind transaction-mode poolers.
	dsn = addConnectionParam(dsn, "default_query_exec_mode", "simple_protocol")

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open ledger database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping ledger database: %w", err)
	}
	p := &Postgres{db: db}
	if err := p.Ensure(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return p, nil
}

// Ensure creates the ledger table and index.
func (p *Postgres) Ensure(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("create digest_runs: %w", err)
	}
	return nil
}

func (p *Postgres) Record(ctx context.Context, e Entry) error {
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = time.Now().UTC()
	}
	_, err := p.db.ExecContext(ctx, upsertRun,
		e.RunID, e.Container, e.SourceKey, e.SummaryKey, e.MetadataKey, string(e.Status), e.Detail, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("record run %s: %w", e.RunID, err)
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, runID string) (Entry, error) {
	var e Entry
	var status string
	err := p.db.QueryRowContext(ctx, selectRun, runID).Scan(
		&e.RunID, &e.Container, &e.SourceKey, &e.SummaryKey, &e.MetadataKey, &status, &e.Detail, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("get run %s: %w", runID, err)
	}
	e.Status = Status(status)
	return e, nil
}

func (p *Postgres) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

func addConnectionParam(dsn, key, value string) string {
	if strings.Contains(dsn, key+"=") {
		return dsn
	}
	if !strings.Contains(dsn, "://") {
		return dsn + " " + key + "=" + value
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + key + "=" + value
}
