package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/romangod6/sitemap-clusters/internal/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Initialize() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS analysis_jobs (
            id UUID PRIMARY KEY,
            sitemap_url VARCHAR(2048) NOT NULL,
            run_interval VARCHAR(64) NOT NULL DEFAULT '',
            status VARCHAR(32) NOT NULL,
            stats JSONB,
            clusters JSONB,
            skipped JSONB,
            used_fallback BOOLEAN NOT NULL DEFAULT FALSE,
            last_run TIMESTAMPTZ,
            next_run TIMESTAMPTZ,
            errors TEXT[],
            created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE INDEX IF NOT EXISTS idx_analysis_jobs_created_at ON analysis_jobs(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_analysis_jobs_scheduled ON analysis_jobs(next_run) WHERE run_interval <> ''`,
		`CREATE INDEX IF NOT EXISTS idx_analysis_jobs_clusters ON analysis_jobs USING GIN (clusters)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}

	return nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.AnalysisJob) error {
	query := `
        INSERT INTO analysis_jobs (` + jobColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
        ON CONFLICT (id) DO UPDATE SET
            sitemap_url = EXCLUDED.sitemap_url,
            run_interval = EXCLUDED.run_interval,
            status = EXCLUDED.status,
            stats = EXCLUDED.stats,
            clusters = EXCLUDED.clusters,
            skipped = EXCLUDED.skipped,
            used_fallback = EXCLUDED.used_fallback,
            last_run = EXCLUDED.last_run,
            next_run = EXCLUDED.next_run,
            errors = EXCLUDED.errors,
            updated_at = EXCLUDED.updated_at
    `

	args, err := s.jobArgs(job)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

func (s *PostgresStore) UpdateJob(ctx context.Context, job *models.AnalysisJob) error {
	query := `
        UPDATE analysis_jobs
        SET sitemap_url = $2, run_interval = $3, status = $4, stats = $5, clusters = $6, skipped = $7,
            used_fallback = $8, last_run = $9, next_run = $10, errors = $11, updated_at = $12
        WHERE id = $1
    `

	args, err := s.jobArgs(job)
	if err != nil {
		return err
	}
	// created_at is never updated.
	result, err := s.db.ExecContext(ctx, query, append(args[:11:11], args[12])...)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("analysis job %s not found", job.ID)
	}
	return nil
}

func (s *PostgresStore) ClaimJob(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	query := `
        UPDATE analysis_jobs
        SET status = $2, updated_at = $3
        WHERE id = $1 AND status <> $2
    `

	result, err := s.db.ExecContext(ctx, query, id, models.StatusRunning, at)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.AnalysisJob, error) {
	query := `SELECT ` + jobColumns + ` FROM analysis_jobs WHERE id = $1`

	job, err := s.scanJob(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, limit, offset int) ([]*models.AnalysisJob, error) {
	query := `
        SELECT ` + jobColumns + `
        FROM analysis_jobs
        ORDER BY created_at DESC
        LIMIT $1 OFFSET $2
    `

	return s.queryJobs(ctx, query, limit, offset)
}

func (s *PostgresStore) CountJobs(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM analysis_jobs`).Scan(&count)
	return count, err
}

func (s *PostgresStore) ListScheduledJobs(ctx context.Context) ([]*models.AnalysisJob, error) {
	query := `
        SELECT ` + jobColumns + `
        FROM analysis_jobs
        WHERE run_interval <> ''
        ORDER BY created_at
    `

	return s.queryJobs(ctx, query)
}

func (s *PostgresStore) ListJobsByStatus(ctx context.Context, status string) ([]*models.AnalysisJob, error) {
	query := `
        SELECT ` + jobColumns + `
        FROM analysis_jobs
        WHERE status = $1
        ORDER BY created_at
    `

	return s.queryJobs(ctx, query, status)
}

func (s *PostgresStore) DeleteJob(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM analysis_jobs WHERE id = $1`, id)
	return err
}

func (s *PostgresStore) jobArgs(job *models.AnalysisJob) ([]any, error) {
	stats, err := encodeJSON(job.Stats)
	if err != nil {
		return nil, err
	}
	clusters, err := encodeJSON(job.Clusters)
	if err != nil {
		return nil, err
	}
	skipped, err := encodeJSON(job.Skipped)
	if err != nil {
		return nil, err
	}

	return []any{
		job.ID,
		job.SitemapURL,
		job.Interval,
		job.Status,
		stats,
		clusters,
		skipped,
		job.UsedFallback,
		nullTime(job.LastRun),
		nullTime(job.NextRun),
		pq.Array(job.Errors),
		job.CreatedAt,
		job.UpdatedAt,
	}, nil
}

func (s *PostgresStore) queryJobs(ctx context.Context, query string, args ...interface{}) ([]*models.AnalysisJob, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*models.AnalysisJob
	for rows.Next() {
		job, err := s.scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

func (s *PostgresStore) scanJob(row rowScanner) (*models.AnalysisJob, error) {
	var (
		job                      models.AnalysisJob
		stats, clusters, skipped sql.NullString
		lastRun, nextRun         sql.NullTime
	)

	err := row.Scan(
		&job.ID,
		&job.SitemapURL,
		&job.Interval,
		&job.Status,
		&stats,
		&clusters,
		&skipped,
		&job.UsedFallback,
		&lastRun,
		&nextRun,
		pq.Array(&job.Errors),
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.LastRun = timePtr(lastRun)
	job.NextRun = timePtr(nextRun)
	if err := fillJSONFields(&job, stats, clusters, skipped); err != nil {
		return nil, err
	}

	return &job, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
