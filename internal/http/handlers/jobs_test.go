package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"mediaqueue/internal/domain"
	"mediaqueue/internal/infra/credentials"
	"mediaqueue/internal/providers"
	"mediaqueue/internal/scheduler"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	creds := credentials.NewStore()
	sched := scheduler.New(scheduler.Config{MaxRetries: 3}, creds, map[string]providers.Dispatcher{}, nil, zerolog.Nop())
	return NewApp(sched, creds, nil, zerolog.Nop())
}

func newRouterFor(app *App) http.Handler {
	r := chi.NewRouter()
	r.Post("/v1/jobs", app.JobsCreate)
	r.Get("/v1/jobs", app.JobsList)
	r.Get("/v1/jobs/{id}", app.JobGet)
	r.Post("/v1/jobs/{id}/cancel", app.JobCancel)
	r.Post("/v1/jobs/{id}/retry", app.JobRetry)
	r.Put("/v1/credentials/{provider}", app.CredentialsPut)
	r.Get("/v1/credentials", app.CredentialsList)
	return r
}

func TestJobsCreateAndFetch(t *testing.T) {
	app := newTestApp(t)
	router := newRouterFor(app)

	body := `{"jobs":[
		{"prompt":"a sunrise timelapse","model":"veo-3.0-generate","kind":"text_to_video","aspect_ratio":"16:9"},
		{"prompt":"a product shot","model":"qwen-image-plus","kind":"text_to_image","quantity":2}
	]}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/jobs", strings.NewReader(body)))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Jobs []jobView `json:"jobs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(created.Jobs) != 2 {
		t.Fatalf("created %d jobs, want 2", len(created.Jobs))
	}
	if created.Jobs[0].Status != string(domain.JobStatusPending) {
		t.Fatalf("status = %s, want pending", created.Jobs[0].Status)
	}
	if created.Jobs[1].Quantity != 2 {
		t.Fatalf("quantity = %d, want 2", created.Jobs[1].Quantity)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/jobs/"+created.Jobs[0].ID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/jobs", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var listed struct {
		Jobs []jobView `json:"jobs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed.Jobs) != 2 {
		t.Fatalf("listed %d jobs, want 2", len(listed.Jobs))
	}
}

func TestJobsCreateRejectsBadBatchAtomically(t *testing.T) {
	app := newTestApp(t)
	router := newRouterFor(app)

	// Second spec has an unknown model; the first must not be enqueued either.
	body := `{"jobs":[
		{"prompt":"ok","model":"veo-3.0-generate","kind":"text_to_video"},
		{"prompt":"bad","model":"sora-1.0","kind":"text_to_video"}
	]}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/jobs", strings.NewReader(body)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	if jobs := app.Scheduler.Snapshot(); len(jobs) != 0 {
		t.Fatalf("%d jobs enqueued after rejected batch", len(jobs))
	}
}

func TestJobsCreateRejectsBadImageEncoding(t *testing.T) {
	app := newTestApp(t)
	router := newRouterFor(app)

	body := `{"jobs":[{"prompt":"p","model":"veo-2.0-generate","kind":"image_to_video","image":{"data":"%%%","mime":"image/png"}}]}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/jobs", strings.NewReader(body)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestJobCancelAndRetryTransitions(t *testing.T) {
	app := newTestApp(t)
	router := newRouterFor(app)

	jobs, err := app.Scheduler.Enqueue([]domain.JobSpec{{
		Prompt: "p", Model: "veo-3.0-generate", Kind: domain.InputTextToVideo,
	}})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	id := jobs[0].ID

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/jobs/"+id+"/cancel", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel status = %d", rec.Code)
	}
	var cancelled jobView
	if err := json.Unmarshal(rec.Body.Bytes(), &cancelled); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cancelled.Status != string(domain.JobStatusFailed) {
		t.Fatalf("status after cancel = %s", cancelled.Status)
	}

	// Cancelling again conflicts.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/jobs/"+id+"/cancel", nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("second cancel status = %d, want 409", rec.Code)
	}

	// A cancelled job is failed, so manual retry re-queues it.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/jobs/"+id+"/retry", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("retry status = %d", rec.Code)
	}
	var retried jobView
	if err := json.Unmarshal(rec.Body.Bytes(), &retried); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if retried.Status != string(domain.JobStatusPending) {
		t.Fatalf("status after retry = %s", retried.Status)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/jobs/missing/retry", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("retry missing status = %d, want 404", rec.Code)
	}
}

func TestCredentialsPut(t *testing.T) {
	app := newTestApp(t)
	router := newRouterFor(app)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/v1/credentials/google", strings.NewReader(`{"api_key":"sk-test"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("put status = %d", rec.Code)
	}
	if key, ok := app.Credentials.Lookup("google"); !ok || key != "sk-test" {
		t.Fatalf("credential not stored: %q %v", key, ok)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/v1/credentials/openai", strings.NewReader(`{"api_key":"x"}`)))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown provider status = %d, want 404", rec.Code)
	}

	// An empty key removes the credential.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/v1/credentials/google", strings.NewReader(`{"api_key":""}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if _, ok := app.Credentials.Lookup("google"); ok {
		t.Fatal("credential still present after empty key")
	}
}
