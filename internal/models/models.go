package models

import (
	"time"

	"github.com/google/uuid"
)

// Job statuses
const (
	StatusPending   = "Pending"
	StatusRunning   = "Running"
	StatusCompleted = "Completed"
	StatusError     = "Error"
)

type AnalysisJob struct {
	ID           uuid.UUID        `json:"id"`
	SitemapURL   string           `json:"sitemapUrl"`
	Interval     string           `json:"interval,omitempty"`
	Status       string           `json:"status"`
	Stats        *SitemapStats    `json:"stats,omitempty"`
	Clusters     *ClusterSet      `json:"clusters,omitempty"`
	Skipped      []SkippedSitemap `json:"skipped,omitempty"`
	UsedFallback bool             `json:"usedFallback"`
	LastRun      *time.Time       `json:"lastRun,omitempty"`
	NextRun      *time.Time       `json:"nextRun,omitempty"`
	Errors       []string         `json:"errors,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

// NewAnalysisJob creates a pending job with generated UUID and timestamps
func NewAnalysisJob(sitemapURL string) *AnalysisJob {
	now := time.Now()
	return &AnalysisJob{
		ID:         uuid.New(),
		SitemapURL: sitemapURL,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// IntervalDuration parses the job's re-run interval. Zero means the job runs once.
func (j *AnalysisJob) IntervalDuration() time.Duration {
	if j.Interval == "" {
		return 0
	}
	d, err := time.ParseDuration(j.Interval)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// ScheduleNext sets NextRun from the given time when the job has an interval.
func (j *AnalysisJob) ScheduleNext(from time.Time) {
	if d := j.IntervalDuration(); d > 0 {
		next := from.Add(d)
		j.NextRun = &next
		return
	}
	j.NextRun = nil
}

// Due reports whether a scheduled job should run at now.
func (j *AnalysisJob) Due(now time.Time) bool {
	if j.Status == StatusRunning || j.IntervalDuration() == 0 {
		return false
	}
	return j.NextRun == nil || !now.Before(*j.NextRun)
}
