package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"mediaqueue/internal/domain"
)

// CancelledMessage is the fixed error text recorded on user-cancelled jobs.
const CancelledMessage = "cancelled by user"

// JobStore is the authoritative in-memory collection of jobs. Every mutation
// is an atomic, validated status transition; callers receive copies so the
// stored jobs are only ever mutated through the transition methods.
type JobStore struct {
	mu         sync.RWMutex
	jobs       map[string]*domain.Job
	order      []string
	maxRetries int
}

// NewJobStore creates an empty store with the configured automatic-retry cap.
func NewJobStore(maxRetries int) *JobStore {
	return &JobStore{
		jobs:       make(map[string]*domain.Job),
		maxRetries: maxRetries,
	}
}

// Enqueue creates a Pending job from the spec and returns a copy of it.
func (s *JobStore) Enqueue(spec domain.JobSpec) domain.Job {
	now := time.Now()
	job := &domain.Job{
		ID:          uuid.NewString(),
		Prompt:      spec.Prompt,
		Model:       spec.Model,
		AspectRatio: spec.AspectRatio,
		OutputCount: spec.OutputCount,
		Kind:        spec.Kind,
		Locale:      spec.Locale,
		Image:       spec.Image,
		Status:      domain.JobStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.order = append(s.order, job.ID)
	s.mu.Unlock()

	return copyJob(job)
}

// Get returns a copy of the job with the given id.
func (s *JobStore) Get(id string) (domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return domain.Job{}, domain.ErrNotFound
	}
	return copyJob(job), nil
}

// Snapshot returns copies of all jobs in submission order.
func (s *JobStore) Snapshot() []domain.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Job, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, copyJob(s.jobs[id]))
	}
	return out
}

// PendingFIFO returns copies of Pending jobs in submission order.
func (s *JobStore) PendingFIFO() []domain.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Job
	for _, id := range s.order {
		if job := s.jobs[id]; job.Status == domain.JobStatusPending {
			out = append(out, copyJob(job))
		}
	}
	return out
}

// CountProcessing returns the number of in-flight jobs.
func (s *JobStore) CountProcessing() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, job := range s.jobs {
		if job.Status == domain.JobStatusProcessing {
			count++
		}
	}
	return count
}

// BeginProcessing transitions Pending -> Processing.
func (s *JobStore) BeginProcessing(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, err := s.locked(id)
	if err != nil {
		return err
	}
	if job.Status != domain.JobStatusPending {
		return fmt.Errorf("begin processing from %s: %w", job.Status, domain.ErrInvalidTransition)
	}
	job.Status = domain.JobStatusProcessing
	job.UpdatedAt = time.Now()
	return nil
}

// Complete transitions Processing -> Completed, storing the result references
// and clearing any retry message. Inline artifact bytes are not retained.
func (s *JobStore) Complete(id string, results []domain.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, err := s.locked(id)
	if err != nil {
		return err
	}
	if job.Status != domain.JobStatusProcessing {
		return fmt.Errorf("complete from %s: %w", job.Status, domain.ErrInvalidTransition)
	}
	stored := make([]domain.Asset, len(results))
	for i, asset := range results {
		stored[i] = domain.Asset{URL: asset.URL, Format: asset.Format}
	}
	job.Status = domain.JobStatusCompleted
	job.Results = stored
	job.ErrorMessage = ""
	job.UpdatedAt = time.Now()
	return nil
}

// FailTransient retries a Processing job while the retry budget allows,
// otherwise fails it terminally. It reports whether the job went back to
// Pending.
func (s *JobStore) FailTransient(id, message string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, err := s.locked(id)
	if err != nil {
		return false, err
	}
	if job.Status != domain.JobStatusProcessing {
		return false, fmt.Errorf("fail transient from %s: %w", job.Status, domain.ErrInvalidTransition)
	}
	job.UpdatedAt = time.Now()
	if job.RetryCount < s.maxRetries {
		job.RetryCount++
		job.Status = domain.JobStatusPending
		job.ErrorMessage = fmt.Sprintf("retrying (%d/%d): %s", job.RetryCount, s.maxRetries, message)
		return true, nil
	}
	job.Status = domain.JobStatusFailed
	job.ErrorMessage = message
	return false, nil
}

// FailTerminal transitions Processing or Pending -> Failed.
func (s *JobStore) FailTerminal(id, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, err := s.locked(id)
	if err != nil {
		return err
	}
	if job.Status != domain.JobStatusProcessing && job.Status != domain.JobStatusPending {
		return fmt.Errorf("fail terminal from %s: %w", job.Status, domain.ErrInvalidTransition)
	}
	job.Status = domain.JobStatusFailed
	job.ErrorMessage = message
	job.UpdatedAt = time.Now()
	return nil
}

// ManualRetry transitions Failed -> Pending, resetting the retry budget.
func (s *JobStore) ManualRetry(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, err := s.locked(id)
	if err != nil {
		return err
	}
	if job.Status != domain.JobStatusFailed {
		return fmt.Errorf("manual retry from %s: %w", job.Status, domain.ErrInvalidTransition)
	}
	job.Status = domain.JobStatusPending
	job.RetryCount = 0
	job.ErrorMessage = ""
	job.UpdatedAt = time.Now()
	return nil
}

// Cancel transitions Pending or Processing -> Failed with the fixed cancelled
// message. It reports whether the job was in flight when cancelled.
func (s *JobStore) Cancel(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, err := s.locked(id)
	if err != nil {
		return false, err
	}
	if job.Status != domain.JobStatusPending && job.Status != domain.JobStatusProcessing {
		return false, fmt.Errorf("cancel from %s: %w", job.Status, domain.ErrInvalidTransition)
	}
	wasProcessing := job.Status == domain.JobStatusProcessing
	job.Status = domain.JobStatusFailed
	job.ErrorMessage = CancelledMessage
	job.UpdatedAt = time.Now()
	return wasProcessing, nil
}

func (s *JobStore) locked(id string) (*domain.Job, error) {
	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return job, nil
}

func copyJob(job *domain.Job) domain.Job {
	out := *job
	if job.Results != nil {
		out.Results = append([]domain.Asset(nil), job.Results...)
	}
	return out
}
