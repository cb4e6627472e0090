package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"mediaqueue/internal/domain"
	"mediaqueue/internal/middleware"
)

type imagePayloadRequest struct {
	Data string `json:"data"` // base64
	MIME string `json:"mime"`
	Name string `json:"name"`
}

type jobSpecRequest struct {
	Prompt      string               `json:"prompt"`
	Model       string               `json:"model"`
	Kind        string               `json:"kind"`
	AspectRatio string               `json:"aspect_ratio"`
	Quantity    int                  `json:"quantity"`
	Locale      string               `json:"locale"`
	Image       *imagePayloadRequest `json:"image"`
}

type jobsCreateRequest struct {
	Jobs []jobSpecRequest `json:"jobs"`
}

type assetView struct {
	URL    string `json:"url"`
	Format string `json:"format,omitempty"`
}

type jobView struct {
	ID          string      `json:"id"`
	Prompt      string      `json:"prompt"`
	Model       string      `json:"model"`
	Kind        string      `json:"kind"`
	AspectRatio string      `json:"aspect_ratio,omitempty"`
	Quantity    int         `json:"quantity"`
	Locale      string      `json:"locale,omitempty"`
	Status      string      `json:"status"`
	RetryCount  int         `json:"retry_count"`
	Error       string      `json:"error,omitempty"`
	Results     []assetView `json:"results,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

func viewOf(job domain.Job) jobView {
	v := jobView{
		ID:          job.ID,
		Prompt:      job.Prompt,
		Model:       job.Model,
		Kind:        string(job.Kind),
		AspectRatio: job.AspectRatio,
		Quantity:    job.OutputCount,
		Locale:      job.Locale,
		Status:      string(job.Status),
		RetryCount:  job.RetryCount,
		Error:       job.ErrorMessage,
		CreatedAt:   job.CreatedAt,
		UpdatedAt:   job.UpdatedAt,
	}
	for _, asset := range job.Results {
		v.Results = append(v.Results, assetView{URL: asset.URL, Format: asset.Format})
	}
	return v
}

// JobsCreate enqueues a batch of generation jobs. The batch is validated as a
// whole: one bad spec rejects the entire request and nothing is enqueued.
func (a *App) JobsCreate(w http.ResponseWriter, r *http.Request) {
	var req jobsCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if len(req.Jobs) == 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "jobs required")
		return
	}

	specs := make([]domain.JobSpec, 0, len(req.Jobs))
	for _, item := range req.Jobs {
		spec, err := item.toSpec(r)
		if err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		specs = append(specs, spec)
	}

	jobs, err := a.Scheduler.Enqueue(specs)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidSpec) {
			a.error(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		a.Log.Error().Err(err).Msg("enqueue failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to enqueue jobs")
		return
	}

	views := make([]jobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, viewOf(job))
	}
	a.json(w, http.StatusAccepted, map[string]any{"jobs": views})
}

func (req jobSpecRequest) toSpec(r *http.Request) (domain.JobSpec, error) {
	locale := req.Locale
	if locale != "" {
		if normalized := middleware.NormalizeLocale(locale); normalized != "" {
			locale = normalized
		}
	} else {
		locale = middleware.LocaleFromContext(r.Context())
	}

	spec := domain.JobSpec{
		Prompt:      req.Prompt,
		Model:       req.Model,
		AspectRatio: req.AspectRatio,
		OutputCount: req.Quantity,
		Kind:        domain.InputKind(req.Kind),
		Locale:      locale,
	}
	if req.Image != nil {
		data, err := base64.StdEncoding.DecodeString(req.Image.Data)
		if err != nil {
			return domain.JobSpec{}, errors.New("image data must be base64")
		}
		spec.Image = &domain.ImagePayload{Data: data, MIME: req.Image.MIME, Name: req.Image.Name}
	}
	return spec, nil
}

// JobsList returns every known job plus the providers currently halted for
// quota exhaustion.
func (a *App) JobsList(w http.ResponseWriter, r *http.Request) {
	jobs := a.Scheduler.Snapshot()
	views := make([]jobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, viewOf(job))
	}
	a.json(w, http.StatusOK, map[string]any{
		"jobs":         views,
		"quota_halted": a.Scheduler.QuotaHalted(),
	})
}

func (a *App) JobGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := a.Scheduler.Get(id)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	a.json(w, http.StatusOK, viewOf(job))
}

func (a *App) JobCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.Scheduler.Cancel(id); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			a.error(w, http.StatusNotFound, "not_found", "job not found")
		case errors.Is(err, domain.ErrInvalidTransition):
			a.error(w, http.StatusConflict, "conflict", "job is already terminal")
		default:
			a.Log.Error().Err(err).Str("job_id", id).Msg("cancel failed")
			a.error(w, http.StatusInternalServerError, "internal", "failed to cancel job")
		}
		return
	}
	job, err := a.Scheduler.Get(id)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	a.json(w, http.StatusOK, viewOf(job))
}

func (a *App) JobRetry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.Scheduler.Retry(id); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			a.error(w, http.StatusNotFound, "not_found", "job not found")
		case errors.Is(err, domain.ErrInvalidTransition):
			a.error(w, http.StatusConflict, "conflict", "only failed jobs can be retried")
		default:
			a.Log.Error().Err(err).Str("job_id", id).Msg("retry failed")
			a.error(w, http.StatusInternalServerError, "internal", "failed to retry job")
		}
		return
	}
	job, err := a.Scheduler.Get(id)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	a.json(w, http.StatusOK, viewOf(job))
}
