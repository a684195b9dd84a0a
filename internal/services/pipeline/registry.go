package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
)

// ErrJobNotFound is returned for an unknown job id
var ErrJobNotFound = fmt.Errorf("job not found")

// Registry owns the map from job id to job state, enabling multiple
// concurrent batches without process-global job state.
type Registry struct {
	mu     sync.RWMutex
	jobs   map[string]*Job
	logger arbor.ILogger
}

// NewRegistry creates an empty job registry
func NewRegistry(logger arbor.ILogger) *Registry {
	return &Registry{
		jobs:   make(map[string]*Job),
		logger: logger,
	}
}

// Add registers a job under its id
func (r *Registry) Add(job *Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = job
}

// Get returns the job for an id
func (r *Registry) Get(jobID string) (*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", jobID, ErrJobNotFound)
	}
	return job, nil
}

// Remove drops a job from the registry
func (r *Registry) Remove(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, jobID)
}

// List returns all registered jobs
func (r *Registry) List() []*Job {
	r.mu.RLock()
	defer r.mu.RUnlock()

	jobs := make([]*Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		jobs = append(jobs, job)
	}
	return jobs
}

// Sweep removes terminal jobs whose finish time is older than maxAge.
// Running jobs are never removed. Returns the number of jobs cleared.
func (r *Registry) Sweep(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, job := range r.jobs {
		if !job.Finished() {
			continue
		}
		finishedAt := job.FinishedAt()
		if finishedAt != nil && finishedAt.Before(cutoff) {
			delete(r.jobs, id)
			removed++
		}
	}

	if removed > 0 {
		r.logger.Debug().
			Int("removed", removed).
			Int("remaining", len(r.jobs)).
			Msg("Terminal jobs swept from registry")
	}
	return removed
}
