package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

func init() {
	// modernc registers as "sqlite", which sqlx does not know by name
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS anonymization_runs (
		id               TEXT PRIMARY KEY,
		operation        TEXT NOT NULL,
		strategy         TEXT NOT NULL DEFAULT '',
		original_length  INTEGER NOT NULL,
		result_length    INTEGER NOT NULL,
		replacements     INTEGER NOT NULL,
		skipped_overlaps INTEGER NOT NULL DEFAULT 0,
		pattern_counts   TEXT NOT NULL,
		risk_level       TEXT NOT NULL DEFAULT '',
		risk_score       INTEGER NOT NULL DEFAULT 0,
		duration_ms      DOUBLE PRECISION NOT NULL,
		fingerprint      TEXT NOT NULL,
		created_at       TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_anonymization_runs_created_at ON anonymization_runs (created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_anonymization_runs_fingerprint ON anonymization_runs (fingerprint)`,
}

// Store persists audit runs through sqlx over PostgreSQL or SQLite
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// Open connects to the audit database and creates the schema if needed
func Open(config Config, logger *zap.Logger) (*Store, error) {
	if config.Driver != "postgres" && config.Driver != "sqlite" {
		return nil, fmt.Errorf("unsupported audit driver: %s", config.Driver)
	}

	db, err := sqlx.Connect(config.Driver, config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.MaxLifetime > 0 {
		db.SetConnMaxLifetime(config.MaxLifetime)
	}

	store := &Store{db: db, logger: logger}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize audit schema: %w", err)
	}

	logger.Info("Audit store initialized",
		zap.String("driver", config.Driver),
		zap.String("dsn", maskDatabaseURL(config.DSN)),
	)

	return store, nil
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Insert records a run
func (s *Store) Insert(ctx context.Context, run *Run) error {
	query := `
		INSERT INTO anonymization_runs (
			id, operation, strategy, original_length, result_length, replacements,
			skipped_overlaps, pattern_counts, risk_level, risk_score, duration_ms,
			fingerprint, created_at
		) VALUES (
			:id, :operation, :strategy, :original_length, :result_length, :replacements,
			:skipped_overlaps, :pattern_counts, :risk_level, :risk_score, :duration_ms,
			:fingerprint, :created_at
		)`

	if _, err := s.db.NamedExecContext(ctx, query, run); err != nil {
		return fmt.Errorf("failed to insert audit run: %w", err)
	}
	return nil
}

// InsertBatch records several runs in one transaction
func (s *Store) InsertBatch(ctx context.Context, runs []*Run) error {
	if len(runs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin audit tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareNamedContext(ctx, `
		INSERT INTO anonymization_runs (
			id, operation, strategy, original_length, result_length, replacements,
			skipped_overlaps, pattern_counts, risk_level, risk_score, duration_ms,
			fingerprint, created_at
		) VALUES (
			:id, :operation, :strategy, :original_length, :result_length, :replacements,
			:skipped_overlaps, :pattern_counts, :risk_level, :risk_score, :duration_ms,
			:fingerprint, :created_at
		)`)
	if err != nil {
		return fmt.Errorf("prepare audit insert: %w", err)
	}
	defer stmt.Close()

	for _, run := range runs {
		if _, err := stmt.ExecContext(ctx, run); err != nil {
			return fmt.Errorf("failed to insert audit run %s: %w", run.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit audit tx: %w", err)
	}
	return nil
}

// Recent returns the latest runs, newest first
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}

	var runs []Run
	query := s.db.Rebind(`SELECT * FROM anonymization_runs ORDER BY created_at DESC, id LIMIT ?`)
	if err := s.db.SelectContext(ctx, &runs, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list audit runs: %w", err)
	}
	return runs, nil
}

// GetStats returns aggregate statistics over all runs
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByRiskLevel: make(map[string]int64)}

	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(replacements), 0),
			COUNT(DISTINCT fingerprint)
		FROM anonymization_runs`
	if err := s.db.QueryRowxContext(ctx, query).Scan(&stats.TotalRuns, &stats.TotalReplacements, &stats.DistinctInputs); err != nil {
		return nil, fmt.Errorf("failed to get audit stats: %w", err)
	}

	rows, err := s.db.QueryxContext(ctx, `
		SELECT risk_level, COUNT(*) FROM anonymization_runs
		WHERE risk_level <> ''
		GROUP BY risk_level`)
	if err != nil {
		return nil, fmt.Errorf("failed to group audit runs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var level string
		var n int64
		if err := rows.Scan(&level, &n); err != nil {
			return nil, fmt.Errorf("failed to scan risk level count: %w", err)
		}
		stats.ByRiskLevel[level] = n
	}

	return stats, rows.Err()
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// maskDatabaseURL masks the password of a database URL for logging
func maskDatabaseURL(url string) string {
	at := strings.LastIndex(url, "@")
	if at < 0 {
		return url
	}
	userInfo := url[:at]
	colon := strings.LastIndex(userInfo, ":")
	if colon < strings.Index(userInfo, "://")+3 {
		return url
	}
	return userInfo[:colon+1] + "***" + url[at:]
}
