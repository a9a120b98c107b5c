package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/romangod6/sitemap-clusters/internal/models"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	// A single connection serialises writers and keeps ":memory:" databases
	// shared across calls.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Initialize() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS analysis_jobs (
            id TEXT PRIMARY KEY,
            sitemap_url TEXT NOT NULL,
            run_interval TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL,
            stats TEXT,
            clusters TEXT,
            skipped TEXT,
            used_fallback BOOLEAN NOT NULL DEFAULT 0,
            last_run DATETIME,
            next_run DATETIME,
            errors TEXT,
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE INDEX IF NOT EXISTS idx_analysis_jobs_created_at ON analysis_jobs(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_analysis_jobs_run_interval ON analysis_jobs(run_interval)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}

	return nil
}

func (s *SQLiteStore) CreateJob(ctx context.Context, job *models.AnalysisJob) error {
	query := `
        INSERT INTO analysis_jobs (` + jobColumns + `)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            sitemap_url = excluded.sitemap_url,
            run_interval = excluded.run_interval,
            status = excluded.status,
            stats = excluded.stats,
            clusters = excluded.clusters,
            skipped = excluded.skipped,
            used_fallback = excluded.used_fallback,
            last_run = excluded.last_run,
            next_run = excluded.next_run,
            errors = excluded.errors,
            updated_at = excluded.updated_at
    `

	args, err := s.jobArgs(job)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

func (s *SQLiteStore) UpdateJob(ctx context.Context, job *models.AnalysisJob) error {
	query := `
        UPDATE analysis_jobs
        SET sitemap_url = ?, run_interval = ?, status = ?, stats = ?, clusters = ?, skipped = ?,
            used_fallback = ?, last_run = ?, next_run = ?, errors = ?, updated_at = ?
        WHERE id = ?
    `

	args, err := s.jobArgs(job)
	if err != nil {
		return err
	}
	// Drop id and created_at from the insert order, then append id for WHERE.
	updateArgs := append(append([]any{}, args[1:11]...), args[12], args[0])

	result, err := s.db.ExecContext(ctx, query, updateArgs...)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("analysis job %s not found", job.ID)
	}
	return nil
}

func (s *SQLiteStore) ClaimJob(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	query := `
        UPDATE analysis_jobs
        SET status = ?, updated_at = ?
        WHERE id = ? AND status <> ?
    `

	result, err := s.db.ExecContext(ctx, query, models.StatusRunning, at, id.String(), models.StatusRunning)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, id uuid.UUID) (*models.AnalysisJob, error) {
	query := `SELECT ` + jobColumns + ` FROM analysis_jobs WHERE id = ?`

	job, err := s.scanJob(s.db.QueryRowContext(ctx, query, id.String()))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (s *SQLiteStore) ListJobs(ctx context.Context, limit, offset int) ([]*models.AnalysisJob, error) {
	query := `
        SELECT ` + jobColumns + `
        FROM analysis_jobs
        ORDER BY created_at DESC
        LIMIT ? OFFSET ?
    `

	return s.queryJobs(ctx, query, limit, offset)
}

func (s *SQLiteStore) CountJobs(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM analysis_jobs`).Scan(&count)
	return count, err
}

func (s *SQLiteStore) ListScheduledJobs(ctx context.Context) ([]*models.AnalysisJob, error) {
	query := `
        SELECT ` + jobColumns + `
        FROM analysis_jobs
        WHERE run_interval != ''
        ORDER BY created_at
    `

	return s.queryJobs(ctx, query)
}

func (s *SQLiteStore) ListJobsByStatus(ctx context.Context, status string) ([]*models.AnalysisJob, error) {
	query := `
        SELECT ` + jobColumns + `
        FROM analysis_jobs
        WHERE status = ?
        ORDER BY created_at
    `

	return s.queryJobs(ctx, query, status)
}

func (s *SQLiteStore) DeleteJob(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM analysis_jobs WHERE id = ?`, id.String())
	return err
}

func (s *SQLiteStore) jobArgs(job *models.AnalysisJob) ([]any, error) {
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
	errorsJSON, err := json.Marshal(job.Errors)
	if err != nil {
		return nil, err
	}

	return []any{
		job.ID.String(),
		job.SitemapURL,
		job.Interval,
		job.Status,
		stats,
		clusters,
		skipped,
		job.UsedFallback,
		nullTime(job.LastRun),
		nullTime(job.NextRun),
		string(errorsJSON),
		job.CreatedAt,
		job.UpdatedAt,
	}, nil
}

func (s *SQLiteStore) queryJobs(ctx context.Context, query string, args ...interface{}) ([]*models.AnalysisJob, error) {
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

func (s *SQLiteStore) scanJob(row rowScanner) (*models.AnalysisJob, error) {
	var (
		job                      models.AnalysisJob
		idStr                    string
		stats, clusters, skipped sql.NullString
		errorsJSON               sql.NullString
		lastRun, nextRun         sql.NullTime
	)

	err := row.Scan(
		&idStr,
		&job.SitemapURL,
		&job.Interval,
		&job.Status,
		&stats,
		&clusters,
		&skipped,
		&job.UsedFallback,
		&lastRun,
		&nextRun,
		&errorsJSON,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("invalid job id %q: %w", idStr, err)
	}
	job.LastRun = timePtr(lastRun)
	job.NextRun = timePtr(nextRun)
	if errorsJSON.Valid && errorsJSON.String != "" {
		json.Unmarshal([]byte(errorsJSON.String), &job.Errors)
	}
	if err := fillJSONFields(&job, stats, clusters, skipped); err != nil {
		return nil, err
	}

	return &job, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
