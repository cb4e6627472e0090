package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"mediaqueue/internal/domain"
	"mediaqueue/internal/infra"
	"mediaqueue/internal/providers"
)

// CredentialSource resolves the API key for a provider. Absence means the
// provider is not yet eligible for dispatch, never an error.
type CredentialSource interface {
	Lookup(provider string) (string, bool)
}

// AssetSink persists inline artifact bytes and returns the stored key.
type AssetSink interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
}

// Config carries the scheduling knobs.
type Config struct {
	TickInterval     time.Duration
	ConcurrencyLimit int
	RateLimit        int
	RateWindow       time.Duration
	MaxRetries       int
}

// withDefaults substitutes the standard limits for unset fields. MaxRetries is
// only clamped: zero is a valid budget meaning no automatic retries, so the
// configured default (3) is applied at config load, not here.
func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.ConcurrencyLimit <= 0 {
		c.ConcurrencyLimit = 4
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 4
	}
	if c.RateWindow <= 0 {
		c.RateWindow = time.Minute
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	return c
}

// Scheduler drives jobs through their lifecycle: on each tick it computes the
// admissible dispatch slots from the concurrency limit and the sliding-window
// rate budget, selects Pending jobs in submission order, and starts one
// dispatch goroutine per selected job. Resolutions funnel back through a
// single mutation point that consults the cancellation registry first.
//
// All shared state (rate limiter, quota halt set, cancellation registry) is
// owned by the Scheduler and guarded by its mutex; the JobStore serializes its
// own transitions.
type Scheduler struct {
	cfg         Config
	store       *JobStore
	creds       CredentialSource
	dispatchers map[string]providers.Dispatcher
	sink        AssetSink
	logger      infra.Logger

	mu          sync.Mutex
	limiter     *RateLimiter
	cancelled   *cancellationRegistry
	quotaHalted map[string]struct{}

	wg sync.WaitGroup
}

// New constructs a Scheduler and its job store; cfg.MaxRetries sets the
// store's automatic retry budget. The sink may be nil when artifact
// persistence is not configured; inline bytes are then dropped and only
// provider URLs kept.
func New(cfg Config, creds CredentialSource, dispatchers map[string]providers.Dispatcher, sink AssetSink, logger infra.Logger) *Scheduler {
	cfg = cfg.withDefaults()
	return &Scheduler{
		cfg:         cfg,
		store:       NewJobStore(cfg.MaxRetries),
		creds:       creds,
		dispatchers: dispatchers,
		sink:        sink,
		logger:      logger,
		limiter:     NewRateLimiter(cfg.RateLimit, cfg.RateWindow),
		cancelled:   newCancellationRegistry(),
		quotaHalted: make(map[string]struct{}),
	}
}

// Run executes the tick loop until the context is cancelled, then waits for
// in-flight dispatches to resolve. Ticks never overlap: a single goroutine
// owns the loop.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	s.logger.Info().
		Dur("tick", s.cfg.TickInterval).
		Int("concurrency", s.cfg.ConcurrencyLimit).
		Int("rate_limit", s.cfg.RateLimit).
		Msg("scheduler: started")

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			s.logger.Info().Msg("scheduler: stopped")
			return
		case now := <-ticker.C:
			s.tick(ctx, now)
		}
	}
}

// Enqueue validates and stores a batch of job specs, returning the created
// jobs in submission order.
func (s *Scheduler) Enqueue(specs []domain.JobSpec) ([]domain.Job, error) {
	for i := range specs {
		if err := validateSpec(&specs[i]); err != nil {
			return nil, err
		}
	}
	jobs := make([]domain.Job, 0, len(specs))
	for _, spec := range specs {
		job := s.store.Enqueue(spec)
		s.logger.Info().
			Str("job_id", job.ID).
			Str("model", job.Model).
			Str("kind", string(job.Kind)).
			Msg("scheduler: job enqueued")
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Cancel fails a Pending or Processing job immediately. If a dispatch is in
// flight its eventual resolution is discarded.
func (s *Scheduler) Cancel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wasProcessing, err := s.store.Cancel(id)
	if err != nil {
		return err
	}
	if wasProcessing {
		s.cancelled.Mark(id)
	}
	s.logger.Info().Str("job_id", id).Bool("in_flight", wasProcessing).Msg("scheduler: job cancelled")
	return nil
}

// Retry resets a Failed job to Pending with a fresh retry budget. Any
// cancellation mark left by a still-in-flight dispatch is consumed here so it
// cannot swallow the resolution of the job's next dispatch; the old dispatch's
// late resolution is instead rejected by the state machine.
func (s *Scheduler) Retry(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.ManualRetry(id); err != nil {
		return err
	}
	s.cancelled.Consume(id)
	s.logger.Info().Str("job_id", id).Msg("scheduler: job queued for retry")
	return nil
}

// Snapshot returns copies of all jobs in submission order.
func (s *Scheduler) Snapshot() []domain.Job {
	return s.store.Snapshot()
}

// Get returns a copy of one job.
func (s *Scheduler) Get(id string) (domain.Job, error) {
	return s.store.Get(id)
}

// ClearQuota removes a provider from the quota halt set, letting scheduling
// resume. Called when fresh credentials are supplied for that provider.
func (s *Scheduler) ClearQuota(provider string) {
	s.mu.Lock()
	_, halted := s.quotaHalted[provider]
	delete(s.quotaHalted, provider)
	s.mu.Unlock()
	if halted {
		s.logger.Info().Str("provider", provider).Msg("scheduler: quota halt cleared")
	}
}

// QuotaHalted lists providers currently known to have exhausted quota.
func (s *Scheduler) QuotaHalted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.quotaHalted))
	for provider := range s.quotaHalted {
		out = append(out, provider)
	}
	return out
}

type dispatchPlan struct {
	job        domain.Job
	provider   string
	dispatcher providers.Dispatcher
	apiKey     string
}

// tick performs one scheduling pass. While any provider has exhausted quota no
// dispatch happens at all; the halt is global until credentials are refreshed.
func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	s.mu.Lock()
	if len(s.quotaHalted) > 0 {
		s.mu.Unlock()
		return
	}

	slots := s.cfg.ConcurrencyLimit - s.store.CountProcessing()
	if rateSlots := s.limiter.AvailableSlots(now); rateSlots < slots {
		slots = rateSlots
	}
	if slots <= 0 {
		s.mu.Unlock()
		return
	}

	var planned []dispatchPlan
	for _, job := range s.store.PendingFIFO() {
		if slots == 0 {
			break
		}
		provider, ok := providers.Resolve(job.Model)
		if !ok {
			// Unknown models are rejected at enqueue; a job here is a bug.
			continue
		}
		dispatcher, ok := s.dispatchers[provider]
		if !ok {
			continue
		}
		// No credential: stay Pending without consuming a slot.
		apiKey, ok := s.creds.Lookup(provider)
		if !ok {
			continue
		}
		if err := s.store.BeginProcessing(job.ID); err != nil {
			continue
		}
		s.limiter.RecordDispatch(now)
		slots--
		planned = append(planned, dispatchPlan{job: job, provider: provider, dispatcher: dispatcher, apiKey: apiKey})
	}
	s.mu.Unlock()

	for _, plan := range planned {
		s.logger.Info().
			Str("job_id", plan.job.ID).
			Str("provider", plan.provider).
			Str("model", plan.job.Model).
			Msg("scheduler: dispatching job")
		s.wg.Add(1)
		go s.dispatch(ctx, plan)
	}
}

func (s *Scheduler) dispatch(ctx context.Context, plan dispatchPlan) {
	defer s.wg.Done()
	results, err := s.invoke(ctx, plan)
	if err == nil && s.sink != nil {
		results = s.persistAssets(ctx, plan.job.ID, results)
	}
	s.resolve(plan.job.ID, plan.provider, results, err)
}

func (s *Scheduler) invoke(ctx context.Context, plan dispatchPlan) ([]domain.Asset, error) {
	job := plan.job
	switch job.Kind {
	case domain.InputTextToVideo, domain.InputImageToVideo:
		asset, err := plan.dispatcher.GenerateVideo(ctx, providers.VideoRequest{
			Prompt:      job.Prompt,
			Model:       job.Model,
			AspectRatio: job.AspectRatio,
			Locale:      job.Locale,
			RequestID:   job.ID,
			Image:       job.Image,
		}, plan.apiKey)
		if err != nil {
			return nil, err
		}
		return []domain.Asset{*asset}, nil
	case domain.InputTextToImage:
		return plan.dispatcher.GenerateImages(ctx, providers.ImageRequest{
			Prompt:      job.Prompt,
			Model:       job.Model,
			AspectRatio: job.AspectRatio,
			Locale:      job.Locale,
			RequestID:   job.ID,
			Quantity:    job.OutputCount,
		}, plan.apiKey)
	default:
		return nil, fmt.Errorf("input kind %q: %w", job.Kind, domain.ErrUnsupported)
	}
}

// resolve is the single point where asynchronous dispatch outcomes mutate the
// store. The cancellation registry is consulted exactly once, before any
// mutation.
func (s *Scheduler) resolve(id, provider string, results []domain.Asset, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancelled.Consume(id) {
		s.logger.Info().Str("job_id", id).Msg("scheduler: discarding resolution of cancelled job")
		return
	}

	switch {
	case err == nil:
		if applyErr := s.store.Complete(id, results); applyErr != nil {
			s.logger.Debug().Err(applyErr).Str("job_id", id).Msg("scheduler: stale completion ignored")
			return
		}
		s.logger.Info().Str("job_id", id).Int("results", len(results)).Msg("scheduler: job completed")

	case errors.Is(err, domain.ErrQuotaExceeded):
		s.quotaHalted[provider] = struct{}{}
		if applyErr := s.store.FailTerminal(id, err.Error()); applyErr != nil {
			s.logger.Debug().Err(applyErr).Str("job_id", id).Msg("scheduler: stale quota failure ignored")
		}
		s.logger.Warn().
			Str("job_id", id).
			Str("provider", provider).
			Msg("scheduler: provider quota exhausted, halting dispatch")

	default:
		retried, applyErr := s.store.FailTransient(id, err.Error())
		if applyErr != nil {
			s.logger.Debug().Err(applyErr).Str("job_id", id).Msg("scheduler: stale failure ignored")
			return
		}
		if retried {
			s.logger.Warn().Err(err).Str("job_id", id).Msg("scheduler: job failed, will retry")
		} else {
			s.logger.Error().Err(err).Str("job_id", id).Msg("scheduler: job failed permanently")
		}
	}
}

func validateSpec(spec *domain.JobSpec) error {
	if strings.TrimSpace(spec.Prompt) == "" {
		return fmt.Errorf("prompt is required: %w", domain.ErrInvalidSpec)
	}
	if _, ok := providers.Resolve(spec.Model); !ok {
		return fmt.Errorf("unknown model %q: %w", spec.Model, domain.ErrInvalidSpec)
	}
	switch spec.Kind {
	case domain.InputTextToVideo, domain.InputTextToImage:
	case domain.InputImageToVideo:
		if spec.Image == nil || len(spec.Image.Data) == 0 {
			return fmt.Errorf("image payload is required for image-to-video: %w", domain.ErrInvalidSpec)
		}
	default:
		return fmt.Errorf("unknown input kind %q: %w", spec.Kind, domain.ErrInvalidSpec)
	}
	if spec.OutputCount <= 0 {
		spec.OutputCount = 1
	}
	return nil
}
