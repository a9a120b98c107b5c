package api

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romangod6/sitemap-clusters/internal/models"
	"github.com/romangod6/sitemap-clusters/internal/storage"
)

func TestRunDue(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)

	due := models.NewAnalysisJob("https://example.com/due.xml")
	due.Interval = "1h"
	due.Status = models.StatusCompleted
	due.NextRun = &past
	require.NoError(t, env.store.CreateJob(ctx, due))

	later := models.NewAnalysisJob("https://example.com/later.xml")
	later.Interval = "1h"
	later.Status = models.StatusCompleted
	later.NextRun = &future
	require.NoError(t, env.store.CreateJob(ctx, later))

	once := models.NewAnalysisJob("https://example.com/once.xml")
	once.Status = models.StatusCompleted
	require.NoError(t, env.store.CreateJob(ctx, once))

	ran := env.runner.RunDue(ctx, 2)

	assert.Equal(t, 1, ran)
	assert.Equal(t, []string{"https://example.com/due.xml"}, env.analyzer.inputs)

	got, err := env.store.GetJob(ctx, due.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	require.NotNil(t, got.NextRun)
	assert.True(t, got.NextRun.After(time.Now()))
}

func TestRunCapsErrorHistory(t *testing.T) {
	env := newTestEnv(t)
	env.analyzer.err = assert.AnError
	ctx := context.Background()

	job := models.NewAnalysisJob("https://example.com/sitemap.xml")
	for i := 0; i < maxJobErrors; i++ {
		job.Errors = append(job.Errors, "old")
	}
	require.NoError(t, env.store.CreateJob(ctx, job))

	err := env.runner.Run(ctx, job)

	require.ErrorIs(t, err, assert.AnError)
	got, err := env.store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, got.Status)
	assert.Len(t, got.Errors, maxJobErrors)
	assert.Equal(t, assert.AnError.Error(), got.Errors[maxJobErrors-1])
}

func TestHostOf(t *testing.T) {
	assert.Equal(t, "example.com", hostOf("https://example.com/sitemap.xml"))
	assert.Equal(t, "not a url", hostOf("not a url"))
}

func TestRunRecordsJobLoggerFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	logDir := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(logDir, []byte("x"), 0o644))
	runner := NewRunner(env.store, env.analyzer, logDir, zerolog.Nop())

	job := models.NewAnalysisJob("https://example.com/sitemap.xml")
	job.Interval = "1h"
	job.Status = models.StatusRunning
	require.NoError(t, env.store.CreateJob(ctx, job))

	err := runner.Run(ctx, job)
	require.Error(t, err)

	got, err := env.store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, got.Status)
	require.Len(t, got.Errors, 1)
	assert.Contains(t, got.Errors[0], "failed to create logger")
	require.NotNil(t, got.NextRun)
	assert.Zero(t, env.analyzer.calls())

	claimed, err := env.store.ClaimJob(ctx, job.ID, time.Now())
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestRecoverInterrupted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	stuck := models.NewAnalysisJob("https://example.com/stuck.xml")
	stuck.Status = models.StatusRunning
	stuck.Interval = "1h"
	require.NoError(t, env.store.CreateJob(ctx, stuck))

	done := models.NewAnalysisJob("https://example.com/done.xml")
	done.Status = models.StatusCompleted
	require.NoError(t, env.store.CreateJob(ctx, done))

	n, err := env.runner.RecoverInterrupted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := env.store.GetJob(ctx, stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, got.Status)
	assert.Equal(t, []string{"analysis interrupted by shutdown"}, got.Errors)
	require.NotNil(t, got.NextRun)
	assert.True(t, got.Due(got.NextRun.Add(time.Second)))

	got, err = env.store.GetJob(ctx, done.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
}

// staleStore serves the scheduled job list as it was before another worker
// claimed the jobs.
type staleStore struct {
	storage.Store
	snapshot []*models.AnalysisJob
}

func (s *staleStore) ListScheduledJobs(context.Context) ([]*models.AnalysisJob, error) {
	return s.snapshot, nil
}

func TestRunDueSkipsClaimedJobs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	past := time.Now().Add(-time.Minute)

	job := models.NewAnalysisJob("https://example.com/due.xml")
	job.Interval = "1h"
	job.Status = models.StatusCompleted
	job.NextRun = &past
	require.NoError(t, env.store.CreateJob(ctx, job))

	snapshot := *job
	claimed, err := env.store.ClaimJob(ctx, job.ID, time.Now())
	require.NoError(t, err)
	require.True(t, claimed)

	store := &staleStore{Store: env.store, snapshot: []*models.AnalysisJob{&snapshot}}
	runner := NewRunner(store, env.analyzer, t.TempDir(), zerolog.Nop())

	assert.Zero(t, runner.RunDue(ctx, 2))
	assert.Zero(t, env.analyzer.calls())
}
