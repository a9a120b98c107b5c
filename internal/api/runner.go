package api

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/romangod6/sitemap-clusters/internal/analyzer"
	"github.com/romangod6/sitemap-clusters/internal/models"
	"github.com/romangod6/sitemap-clusters/internal/storage"
	"github.com/romangod6/sitemap-clusters/internal/utils"
)

// maxJobErrors bounds the error history kept on recurring jobs.
const maxJobErrors = 20

// SitemapAnalyzer runs one analysis. *analyzer.Analyzer implements it.
type SitemapAnalyzer interface {
	Run(ctx context.Context, input string) (*analyzer.Report, error)
}

// Runner executes analysis jobs and records their outcome in the store.
type Runner struct {
	store    storage.Store
	analyzer SitemapAnalyzer
	logDir   string
	logger   zerolog.Logger
}

func NewRunner(store storage.Store, analyzer SitemapAnalyzer, logDir string, logger zerolog.Logger) *Runner {
	return &Runner{
		store:    store,
		analyzer: analyzer,
		logDir:   logDir,
		logger:   logger,
	}
}

// Run analyzes job.SitemapURL and stores the result on job. Callers claim
// the job first (see Store.ClaimJob); Run always leaves it Completed or Error.
func (r *Runner) Run(ctx context.Context, job *models.AnalysisJob) error {
	job.Status = models.StatusRunning

	// Create logger for this analysis
	jobLogger, err := utils.NewJobLogger(r.logDir, hostOf(job.SitemapURL))
	if err != nil {
		err = fmt.Errorf("failed to create logger: %w", err)
		r.logger.Error().Err(err).Str("job", job.ID.String()).Msg("Failed to create job logger")
		if storeErr := r.finish(ctx, job, nil, err); storeErr != nil {
			r.logger.Error().Err(storeErr).Str("job", job.ID.String()).Msg("Error updating job status")
		}
		return err
	}
	defer jobLogger.Close()

	jobLogger.LogInfo("Starting analysis for %s (ID: %s)", job.SitemapURL, job.ID)
	if job.Interval != "" {
		jobLogger.LogInfo("  Interval: %s", job.Interval)
	}

	report, runErr := r.analyzer.Run(jobLogger.Logger().WithContext(ctx), job.SitemapURL)
	if runErr != nil {
		jobLogger.LogError("Analysis failed with error: %v", runErr)
	} else {
		jobLogger.LogInfo("Analysis completed: %d URLs, %d clusters", report.Stats.TotalURLs, report.Clusters.Len())
	}

	if err := r.finish(ctx, job, report, runErr); err != nil {
		jobLogger.LogError("Error updating job status: %v", err)
		return err
	}
	if job.NextRun != nil {
		jobLogger.LogInfo("Next scheduled run: %v", *job.NextRun)
	}

	jobLogger.LogInfo("Analysis finished. Status: %s", job.Status)
	if runErr != nil {
		return fmt.Errorf("analysis failed: %w", runErr)
	}
	return nil
}

// finish records the outcome of a run on job and stores it.
func (r *Runner) finish(ctx context.Context, job *models.AnalysisJob, report *analyzer.Report, runErr error) error {
	now := time.Now()
	job.LastRun = &now

	if runErr != nil {
		job.Status = models.StatusError
		appendJobError(job, runErr.Error())
	} else {
		job.Status = models.StatusCompleted
		job.Stats = &report.Stats
		job.Clusters = &report.Clusters
		job.Skipped = report.Skipped
		job.UsedFallback = report.UsedFallback
	}

	job.ScheduleNext(now)
	job.UpdatedAt = now

	// The run's outcome is stored even if ctx was cancelled meanwhile.
	if err := r.store.UpdateJob(context.WithoutCancel(ctx), job); err != nil {
		return fmt.Errorf("failed to store job result: %w", err)
	}
	return nil
}

// RecoverInterrupted marks jobs left Running by a previous process as Error
// so they can be run again. It returns how many jobs were reset.
func (r *Runner) RecoverInterrupted(ctx context.Context) (int, error) {
	jobs, err := r.store.ListJobsByStatus(ctx, models.StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to list running jobs: %w", err)
	}

	now := time.Now()
	for _, job := range jobs {
		job.Status = models.StatusError
		appendJobError(job, "analysis interrupted by shutdown")
		job.ScheduleNext(now)
		job.UpdatedAt = now
		if err := r.store.UpdateJob(ctx, job); err != nil {
			return 0, fmt.Errorf("failed to reset job %s: %w", job.ID, err)
		}
		r.logger.Warn().Str("job", job.ID.String()).Str("sitemap", job.SitemapURL).Msg("Reset interrupted analysis")
	}
	return len(jobs), nil
}

func appendJobError(job *models.AnalysisJob, msg string) {
	job.Errors = append(job.Errors, msg)
	if len(job.Errors) > maxJobErrors {
		job.Errors = job.Errors[len(job.Errors)-maxJobErrors:]
	}
}

// RunDue runs every scheduled job whose next run has come, at most
// maxConcurrent at a time, and waits for them. It returns how many ran.
func (r *Runner) RunDue(ctx context.Context, maxConcurrent int) int {
	jobs, err := r.store.ListScheduledJobs(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to fetch scheduled jobs")
		return 0
	}
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}

	now := time.Now()

	// Create a semaphore channel to limit concurrency
	semaphore := make(chan struct{}, maxConcurrent)
	wg := sync.WaitGroup{}
	started := 0

	for _, job := range jobs {
		if !job.Due(now) {
			r.logger.Debug().Str("job", job.ID.String()).Str("status", job.Status).Msg("Skipping job that is not due")
			continue
		}

		select {
		case semaphore <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return started
		}

		claimed, err := r.store.ClaimJob(ctx, job.ID, time.Now())
		if err != nil || !claimed {
			<-semaphore
			if err != nil {
				r.logger.Error().Err(err).Str("job", job.ID.String()).Msg("Failed to claim scheduled job")
			}
			continue
		}

		started++
		wg.Add(1)
		go func(job *models.AnalysisJob) {
			defer wg.Done()
			defer func() { <-semaphore }()

			if err := r.Run(ctx, job); err != nil {
				r.logger.Warn().Err(err).Str("job", job.ID.String()).Str("sitemap", job.SitemapURL).Msg("Scheduled analysis failed")
			}
		}(job)
	}

	wg.Wait()
	if started > 0 {
		r.logger.Info().Int("jobs", started).Msg("Scheduled analyses finished")
	}
	return started
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Host
}
