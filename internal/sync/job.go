package sync

import (
	"context"
	"time"
)

// Job adapts the sync service to the scheduler's job interface.
type Job struct {
	service *Service
	timeout time.Duration
}

// NewJob wraps the service as a schedulable job. A non-positive timeout
// defaults to one hour, which comfortably covers a full-history first run.
func NewJob(service *Service, timeout time.Duration) *Job {
	if timeout <= 0 {
		timeout = time.Hour
	}
	return &Job{service: service, timeout: timeout}
}

// Name implements scheduler.Job.
func (j *Job) Name() string {
	return "ledger-sync"
}

// Run implements scheduler.Job.
func (j *Job) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	_, err := j.service.Run(ctx)
	return err
}
