// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/notaspider/comick-source-api/internal/health"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "source_health_checks"

// HealthStoreConfig controls the Postgres connection pool used for health history rows.
type HealthStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Close()
}

// IDGenerator yields cycle ids.
type IDGenerator interface {
	NewID() (string, error)
}

// HealthStore writes probe cycles into Postgres, one row per source.
type HealthStore struct {
	pool  pool
	table string
	ids   IDGenerator
}

// NewHealthStore creates a Postgres-backed HealthStore using the provided config.
func NewHealthStore(ctx context.Context, cfg HealthStoreConfig, ids IDGenerator) (*HealthStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &HealthStore{pool: p, table: table, ids: ids}, nil
}

// NewHealthStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewHealthStoreWithPool(p pool, table string, ids IDGenerator) (*HealthStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if ids == nil {
		return nil, fmt.Errorf("id generator is required")
	}
	table, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &HealthStore{pool: p, table: table, ids: ids}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *HealthStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the history table and its lookup index if missing.
func (s *HealthStore) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	cycle_id         UUID        NOT NULL,
	source_id        TEXT        NOT NULL,
	status           TEXT        NOT NULL,
	message          TEXT        NOT NULL,
	response_time_ms BIGINT,
	checked_at       TIMESTAMPTZ NOT NULL,
	cycle_at         TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (cycle_id, source_id)
);
CREATE INDEX IF NOT EXISTS %[1]s_source_checked_idx ON %[1]s (source_id, checked_at DESC)`, s.table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure health schema: %w", err)
	}
	return nil
}

// RecordCycle inserts every result of snapshot under a fresh cycle id.
func (s *HealthStore) RecordCycle(ctx context.Context, snapshot health.Snapshot) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("health store is not configured")
	}
	if len(snapshot.Results) == 0 {
		return nil
	}
	cycleID, err := s.ids.NewID()
	if err != nil {
		return fmt.Errorf("cycle id: %w", err)
	}

	sources := make([]string, 0, len(snapshot.Results))
	for id := range snapshot.Results {
		sources = append(sources, id)
	}
	sort.Strings(sources)

	const cols = 7
	values := make([]string, 0, len(sources))
	args := make([]any, 0, len(sources)*cols)
	for i, src := range sources {
		res := snapshot.Results[src]
		base := i * cols
		values = append(values, fmt.Sprintf("($%d,$%d,$%d,$%d,$%d,$%d,$%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7))
		args = append(args, cycleID, src, string(res.Status), res.Message, res.ResponseTime, res.LastChecked, snapshot.Timestamp)
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	cycle_id,
	source_id,
	status,
	message,
	response_time_ms,
	checked_at,
	cycle_at
) VALUES %s`, s.table, strings.Join(values, ","))

	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert health cycle: %w", err)
	}
	return nil
}

// History returns up to limit results for sourceID, newest first.
func (s *HealthStore) History(ctx context.Context, sourceID string, limit int) ([]health.HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`
SELECT cycle_id::text, source_id, status, message, response_time_ms, checked_at
FROM %s
WHERE source_id = $1
ORDER BY checked_at DESC
LIMIT $2`, s.table)

	rows, err := s.pool.Query(ctx, query, sourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("query health history: %w", err)
	}
	defer rows.Close()

	entries := make([]health.HistoryEntry, 0, limit)
	for rows.Next() {
		var (
			e      health.HistoryEntry
			status string
		)
		if err := rows.Scan(&e.CycleID, &e.SourceID, &status, &e.Message, &e.ResponseTime, &e.LastChecked); err != nil {
			return nil, fmt.Errorf("scan health history: %w", err)
		}
		e.Status = health.Status(status)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate health history: %w", err)
	}
	return entries, nil
}
