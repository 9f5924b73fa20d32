// Package memory provides storage implementations for development/testing.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nichewire/syndicator/internal/pipeline"
)

// JobStore provides an in-memory implementation for development/testing.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]pipeline.Job
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs: make(map[string]pipeline.Job),
	}
}

// CreateJob stores a new job in queued status.
func (s *JobStore) CreateJob(_ context.Context, job pipeline.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return errors.New("job already exists")
	}
	s.jobs[job.ID] = job
	return nil
}

// UpdateJobStatus updates the status and counters for a job.
func (s *JobStore) UpdateJobStatus(
	_ context.Context,
	jobID string,
	status pipeline.JobStatus,
	errText string,
	counters pipeline.JobCounters,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return errors.New("job not found")
	}
	job.Status = status
	job.ErrorText = errText
	job.Counters = counters
	now := time.Now().UTC()
	if status == pipeline.JobStatusRunning && job.Started == nil {
		job.Started = pointerTime(now)
	}
	if isTerminal(status) {
		job.Finished = pointerTime(now)
	}
	s.jobs[jobID] = job
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (pipeline.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return pipeline.Job{}, errors.New("job not found")
	}
	return job, nil
}

// Snapshot summarizes job outcomes from the stored records.
func (s *JobStore) Snapshot(_ context.Context) (pipeline.StatusSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var snap pipeline.StatusSnapshot
	for _, job := range s.jobs {
		switch job.Status {
		case pipeline.JobStatusRunning:
			snap.JobsRunning++
		case pipeline.JobStatusSucceeded:
			snap.JobsSucceeded++
		case pipeline.JobStatusFailed:
			snap.JobsFailed++
		}
		snap.ArticlesStored += job.Counters.ArticlesExtracted
		snap.ArticlesPublished += job.Counters.ArticlesPublished
		if job.Finished != nil && job.Finished.After(snap.LastScrapeAt) {
			snap.LastScrapeAt = *job.Finished
		}
	}
	return snap, nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}

func isTerminal(status pipeline.JobStatus) bool {
	switch status {
	case pipeline.JobStatusSucceeded, pipeline.JobStatusFailed, pipeline.JobStatusCanceled:
		return true
	default:
		return false
	}
}
