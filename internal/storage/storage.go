package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/romangod6/sitemap-clusters/internal/models"
)

type Store interface {
	Initialize() error
	Close() error

	// Analysis job operations
	CreateJob(ctx context.Context, job *models.AnalysisJob) error
	UpdateJob(ctx context.Context, job *models.AnalysisJob) error
	// ClaimJob marks a job Running unless it already is. It reports whether
	// this call made the change.
	ClaimJob(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	GetJob(ctx context.Context, id uuid.UUID) (*models.AnalysisJob, error)
	ListJobs(ctx context.Context, limit, offset int) ([]*models.AnalysisJob, error)
	CountJobs(ctx context.Context) (int, error)
	ListScheduledJobs(ctx context.Context) ([]*models.AnalysisJob, error)
	ListJobsByStatus(ctx context.Context, status string) ([]*models.AnalysisJob, error)
	DeleteJob(ctx context.Context, id uuid.UUID) error
}

// New opens the store selected by driver ("sqlite" or "postgres") and
// creates its tables.
func New(driver, url string) (Store, error) {
	var (
		store Store
		err   error
	)
	switch driver {
	case "postgres":
		store, err = NewPostgresStore(url)
	case "sqlite", "sqlite3":
		store, err = NewSQLiteStore(url)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", driver, err)
	}
	if err := store.Initialize(); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to initialize %s store: %w", driver, err)
	}
	return store, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// jobColumns is shared by every SELECT so scanJob can rely on its order.
const jobColumns = `id, sitemap_url, run_interval, status, stats, clusters, skipped, used_fallback, last_run, next_run, errors, created_at, updated_at`

// encodeJSON returns v as a JSON string, or nil for nil pointers and empty slices.
func encodeJSON(v any) (any, error) {
	switch t := v.(type) {
	case *models.SitemapStats:
		if t == nil {
			return nil, nil
		}
	case *models.ClusterSet:
		if t == nil {
			return nil, nil
		}
	case []models.SkippedSitemap:
		if len(t) == 0 {
			return nil, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func decodeJSON[T any](raw sql.NullString) (*T, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var v T
	if err := json.Unmarshal([]byte(raw.String), &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// fillJSONFields decodes the JSON columns of a scanned row into job.
func fillJSONFields(job *models.AnalysisJob, stats, clusters, skipped sql.NullString) error {
	var err error
	if job.Stats, err = decodeJSON[models.SitemapStats](stats); err != nil {
		return fmt.Errorf("decode stats: %w", err)
	}
	if job.Clusters, err = decodeJSON[models.ClusterSet](clusters); err != nil {
		return fmt.Errorf("decode clusters: %w", err)
	}
	s, err := decodeJSON[[]models.SkippedSitemap](skipped)
	if err != nil {
		return fmt.Errorf("decode skipped: %w", err)
	}
	if s != nil {
		job.Skipped = *s
	}
	return nil
}
