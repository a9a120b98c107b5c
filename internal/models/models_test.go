package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntervalDuration(t *testing.T) {
	tests := []struct {
		interval string
		want     time.Duration
	}{
		{"", 0},
		{"24h", 24 * time.Hour},
		{"90m", 90 * time.Minute},
		{"weekly", 0},
		{"-1h", 0},
	}

	for _, tt := range tests {
		job := &AnalysisJob{Interval: tt.interval}
		assert.Equal(t, tt.want, job.IntervalDuration(), tt.interval)
	}
}

func TestScheduleNext(t *testing.T) {
	from := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	job := NewAnalysisJob("https://example.com/sitemap.xml")
	job.Interval = "1h"
	job.ScheduleNext(from)
	require.NotNil(t, job.NextRun)
	assert.Equal(t, from.Add(time.Hour), *job.NextRun)

	job.Interval = ""
	job.ScheduleNext(from)
	assert.Nil(t, job.NextRun)
}

func TestDue(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	tests := []struct {
		name string
		job  AnalysisJob
		want bool
	}{
		{"one-shot", AnalysisJob{Status: StatusCompleted}, false},
		{"never run", AnalysisJob{Interval: "1h", Status: StatusPending}, true},
		{"next run passed", AnalysisJob{Interval: "1h", Status: StatusCompleted, NextRun: &past}, true},
		{"next run ahead", AnalysisJob{Interval: "1h", Status: StatusError, NextRun: &future}, false},
		{"running", AnalysisJob{Interval: "1h", Status: StatusRunning, NextRun: &past}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.job.Due(now))
		})
	}
}

func TestNewAnalysisJob(t *testing.T) {
	job := NewAnalysisJob("https://example.com/sitemap.xml")

	assert.NotEqual(t, uuid.Nil, job.ID)
	assert.Equal(t, StatusPending, job.Status)
	assert.Equal(t, job.CreatedAt, job.UpdatedAt)
}
