package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/cognitoforge/redteam-backend/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS simulation_runs (
		run_id           TEXT PRIMARY KEY,
		repo_id          TEXT NOT NULL,
		overall_severity TEXT NOT NULL,
		ts               TIMESTAMPTZ NOT NULL,
		critical_steps   INT NOT NULL DEFAULT 0,
		high_steps       INT NOT NULL DEFAULT 0,
		medium_steps     INT NOT NULL DEFAULT 0,
		low_steps        INT NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS simulation_runs_repo_ts ON simulation_runs (repo_id, ts DESC)`,
	`CREATE TABLE IF NOT EXISTS affected_files (
		id        BIGSERIAL PRIMARY KEY,
		repo_id   TEXT NOT NULL,
		run_id    TEXT NOT NULL,
		file_path TEXT NOT NULL,
		severity  TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS affected_files_repo_run ON affected_files (repo_id, run_id)`,
	`CREATE TABLE IF NOT EXISTS ai_insights (
		id         BIGSERIAL PRIMARY KEY,
		repo_id    TEXT NOT NULL,
		run_id     TEXT NOT NULL,
		insight    TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS ai_insights_repo_run ON ai_insights (repo_id, run_id, created_at DESC)`,
}

// PostgresStore keeps simulation results in PostgreSQL.
type PostgresStore struct {
	cfg    Config
	logger *zap.Logger
	pool   lazy[*pgxpool.Pool]
}

// NewPostgresStore returns a store that opens its pool on first use.
func NewPostgresStore(cfg Config, logger *zap.Logger) *PostgresStore {
	s := &PostgresStore{cfg: cfg, logger: logger.With(zap.String("store", DriverPostgres))}
	s.pool.dial = s.open
	return s
}

func (s *PostgresStore) Name() string { return DriverPostgres }

func (s *PostgresStore) open(ctx context.Context) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, s.cfg.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = s.cfg.Timeout

	err = backoff.RetryNotify(func() error {
		return pool.Ping(ctx)
	}, backoff.WithContext(backoff.WithMaxRetries(bo, s.cfg.ConnectRetries), ctx), func(err error, wait time.Duration) {
		s.logger.Warn("Retrying connection to PostgreSQL", zap.Duration("wait", wait), zap.Error(err))
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	for _, stmt := range postgresSchema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	s.logger.Info("Database initialization complete")
	return pool, nil
}

func (s *PostgresStore) connect(ctx context.Context, op string) (*pgxpool.Pool, bool) {
	pool, err := s.pool.get(ctx)
	if err != nil {
		s.logger.Warn("Store unavailable", zap.String("op", op), zap.Error(err))
		return nil, false
	}
	return pool, true
}

// StoreSimulationRun inserts the run summary once per run id.
func (s *PostgresStore) StoreSimulationRun(ctx context.Context, run model.SimulationRun) bool {
	pool, ok := s.connect(ctx, "store_run")
	if !ok {
		return false
	}
	summary := model.BuildReport(run).Summary
	_, err := pool.Exec(ctx, `
		INSERT INTO simulation_runs (run_id, repo_id, overall_severity, ts, critical_steps, high_steps, medium_steps, low_steps)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (run_id) DO NOTHING`,
		run.RunID, run.RepoID, string(run.Plan.OverallSeverity), run.Timestamp.UTC(),
		summary.CriticalSteps, summary.HighSteps, summary.MediumSteps, summary.LowSteps)
	if err != nil {
		s.logger.Warn("Failed to store simulation run", zap.String("run_id", run.RunID), zap.Error(err))
		return false
	}
	return true
}

// StoreAffectedFiles pipelines one insert per row.
func (s *PostgresStore) StoreAffectedFiles(ctx context.Context, repoID, runID string, rows []model.AffectedFileRow) bool {
	if len(rows) == 0 {
		return true
	}
	pool, ok := s.connect(ctx, "store_files")
	if !ok {
		return false
	}

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`INSERT INTO affected_files (repo_id, run_id, file_path, severity) VALUES ($1, $2, $3, $4)`,
			repoID, runID, r.FilePath, string(r.Severity))
	}
	br := pool.SendBatch(ctx, batch)
	for range rows {
		if _, err := br.Exec(); err != nil {
			br.Close()
			s.logger.Warn("Failed to store affected files", zap.String("run_id", runID), zap.Error(err))
			return false
		}
	}
	if err := br.Close(); err != nil {
		s.logger.Warn("Failed to store affected files", zap.String("run_id", runID), zap.Error(err))
		return false
	}
	return true
}

// StoreAIInsight records an insight for a run.
func (s *PostgresStore) StoreAIInsight(ctx context.Context, repoID, runID, insight string) bool {
	pool, ok := s.connect(ctx, "store_insight")
	if !ok {
		return false
	}
	if _, err := pool.Exec(ctx, `INSERT INTO ai_insights (repo_id, run_id, insight) VALUES ($1, $2, $3)`,
		repoID, runID, insight); err != nil {
		s.logger.Warn("Failed to store AI insight", zap.String("run_id", runID), zap.Error(err))
		return false
	}
	return true
}

const postgresReportQuery = `
	SELECT r.repo_id, r.run_id, r.overall_severity,
	       r.critical_steps, r.high_steps, r.medium_steps, r.low_steps,
	       COALESCE((SELECT array_agg(DISTINCT f.file_path) FROM affected_files f
	                 WHERE f.repo_id = r.repo_id AND f.run_id = r.run_id), '{}'::text[]),
	       (SELECT i.insight FROM ai_insights i
	         WHERE i.repo_id = r.repo_id AND i.run_id = r.run_id
	         ORDER BY i.created_at DESC LIMIT 1)
	  FROM simulation_runs r
	 WHERE r.repo_id = $1 AND ($2 = '' OR r.run_id = $2)
	 ORDER BY r.ts DESC
	 LIMIT 1`

func (s *PostgresStore) fetchReport(ctx context.Context, repoID, runID string) *model.SimulationReport {
	pool, ok := s.connect(ctx, "fetch_report")
	if !ok {
		return nil
	}

	var row storedReport
	err := pool.QueryRow(ctx, postgresReportQuery, repoID, runID).Scan(
		&row.RepoID, &row.RunID, &row.OverallSeverity,
		&row.CriticalSteps, &row.HighSteps, &row.MediumSteps, &row.LowSteps,
		&row.AffectedFiles, &row.AIInsight)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			s.logger.Warn("Failed to fetch report", zap.String("repo_id", repoID), zap.Error(err))
		}
		return nil
	}
	return row.report()
}

// FetchLatestReport returns the newest run summary for repoID.
func (s *PostgresStore) FetchLatestReport(ctx context.Context, repoID string) *model.SimulationReport {
	return s.fetchReport(ctx, repoID, "")
}

// FetchReport returns the summary of one run.
func (s *PostgresStore) FetchReport(ctx context.Context, repoID, runID string) *model.SimulationReport {
	if runID == "" {
		return nil
	}
	return s.fetchReport(ctx, repoID, runID)
}

// FetchSeverityDistribution counts runs by overall severity.
func (s *PostgresStore) FetchSeverityDistribution(ctx context.Context) *model.SeverityDistribution {
	pool, ok := s.connect(ctx, "fetch_distribution")
	if !ok {
		return nil
	}

	rows, err := pool.Query(ctx, `SELECT LOWER(overall_severity), COUNT(*) FROM simulation_runs GROUP BY 1`)
	if err != nil {
		s.logger.Warn("Failed to fetch severity distribution", zap.Error(err))
		return nil
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var severity string
		var total int64
		if err := rows.Scan(&severity, &total); err != nil {
			s.logger.Warn("Failed to read severity row", zap.Error(err))
			return nil
		}
		counts[severity] += int(total)
	}
	if err := rows.Err(); err != nil {
		s.logger.Warn("Failed to read severity rows", zap.Error(err))
		return nil
	}
	return distribution(counts)
}

// Close releases the pool if it was opened.
func (s *PostgresStore) Close() {
	if pool, ok := s.pool.peek(); ok && pool != nil {
		pool.Close()
	}
}
