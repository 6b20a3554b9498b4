package daemon

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"kiln/internal/jobs"
	"kiln/internal/logging"
	"kiln/internal/overrides"
	"kiln/internal/services"
)

func (d *Daemon) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", d.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", d.handleStatus)
		r.Post("/jobs", d.handleSubmit)
		r.Get("/jobs", d.handleList)
		r.Get("/jobs/{id}", d.handleGet)
		r.Post("/jobs/{id}/cancel", d.handleCancel)
		r.Post("/jobs/{id}/rebuild", d.handleRebuild)
		r.Get("/files/*", d.handleFile)
	})
	return r
}

type submitRequest struct {
	TemplateRef string            `json:"template_ref"`
	Target      string            `json:"target"`
	Overrides   overrides.Partial `json:"overrides"`
	Description string            `json:"description"`
}

type rebuildRequest struct {
	Target string `json:"target"`
}

type jobView struct {
	ID           string           `json:"id"`
	TemplateRef  string           `json:"template_ref"`
	Target       string           `json:"target"`
	Status       string           `json:"status"`
	ErrorMessage string           `json:"error_message,omitempty"`
	LastLogLine  string           `json:"last_log_line,omitempty"`
	Result       string           `json:"result_ref,omitempty"`
	WebArchive   string           `json:"web_archive_ref,omitempty"`
	WebEntry     string           `json:"web_entry_ref,omitempty"`
	AndroidPkg   string           `json:"android_package_ref,omitempty"`
	Cover        string           `json:"cover_ref,omitempty"`
	Screenshots  []string         `json:"screenshot_refs,omitempty"`
	Video        string           `json:"video_ref,omitempty"`
	TimingsMS    map[string]int64 `json:"timings_ms,omitempty"`
	StartedAt    *time.Time       `json:"started_at,omitempty"`
	FinishedAt   *time.Time       `json:"finished_at,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

func viewOf(job *jobs.Job) jobView {
	view := jobView{
		ID:           job.ID,
		TemplateRef:  job.TemplateRef,
		Target:       string(job.Target),
		Status:       string(job.Status),
		ErrorMessage: job.ErrorMessage,
		LastLogLine:  job.LastLogLine,
		Result:       job.ResultRef,
		WebArchive:   job.WebArchiveRef,
		WebEntry:     job.WebEntryRef,
		AndroidPkg:   job.AndroidPackageRef,
		Cover:        job.CoverRef,
		Screenshots:  job.ScreenshotRefs(),
		Video:        job.VideoRef,
		StartedAt:    job.StartedAt,
		FinishedAt:   job.FinishedAt,
		CreatedAt:    job.CreatedAt,
		UpdatedAt:    job.UpdatedAt,
	}
	timings := job.Timings()
	if len(timings) > 0 {
		view.TimingsMS = make(map[string]int64, len(timings))
		for step, elapsed := range timings {
			view.TimingsMS[step] = elapsed.Milliseconds()
		}
	}
	return view
}

func (d *Daemon) handleStatus(w http.ResponseWriter, r *http.Request) {
	counts, err := d.store.Stats(r.Context())
	if err != nil {
		d.writeError(w, http.StatusInternalServerError, "could not read job stats")
		return
	}
	byStatus := make(map[string]int, len(counts))
	for status, count := range counts {
		byStatus[string(status)] = count
	}
	cacheStats, err := d.cache.Stats()
	if err != nil {
		d.writeError(w, http.StatusInternalServerError, "could not read cache stats")
		return
	}
	d.writeJSON(w, http.StatusOK, map[string]any{
		"jobs":  byStatus,
		"cache": cacheStats,
	})
}

func (d *Daemon) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		d.writeError(w, http.StatusBadRequest, "request body is not valid JSON")
		return
	}
	target, ok := jobs.ParseTarget(req.Target)
	if !ok {
		d.writeError(w, http.StatusBadRequest, "target must be web or android")
		return
	}

	job, err := d.manager.Submit(r.Context(), req.TemplateRef, target, req.Overrides, req.Description)
	if err != nil {
		d.writeServiceError(w, err)
		return
	}
	d.writeJSON(w, http.StatusCreated, viewOf(job))
}

func (d *Daemon) handleList(w http.ResponseWriter, r *http.Request) {
	var statuses []jobs.Status
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		for _, value := range strings.Split(raw, ",") {
			status, ok := jobs.ParseStatus(value)
			if !ok {
				d.writeError(w, http.StatusBadRequest, "unknown status "+value)
				return
			}
			statuses = append(statuses, status)
		}
	}
	list, err := d.store.List(r.Context(), statuses...)
	if err != nil {
		d.writeError(w, http.StatusInternalServerError, "could not list jobs")
		return
	}
	views := make([]jobView, len(list))
	for i, job := range list {
		views[i] = viewOf(job)
	}
	d.writeJSON(w, http.StatusOK, map[string]any{"jobs": views})
}

func (d *Daemon) handleGet(w http.ResponseWriter, r *http.Request) {
	job, err := d.store.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		d.writeError(w, http.StatusInternalServerError, "could not load job")
		return
	}
	if job == nil {
		d.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	d.writeJSON(w, http.StatusOK, viewOf(job))
}

func (d *Daemon) handleCancel(w http.ResponseWriter, r *http.Request) {
	job, err := d.manager.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		d.writeServiceError(w, err)
		return
	}
	d.writeJSON(w, http.StatusOK, viewOf(job))
}

func (d *Daemon) handleRebuild(w http.ResponseWriter, r *http.Request) {
	var req rebuildRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			d.writeError(w, http.StatusBadRequest, "request body is not valid JSON")
			return
		}
	}
	var target jobs.Target
	if strings.TrimSpace(req.Target) != "" {
		parsed, ok := jobs.ParseTarget(req.Target)
		if !ok {
			d.writeError(w, http.StatusBadRequest, "target must be web or android")
			return
		}
		target = parsed
	}

	job, err := d.manager.Rebuild(r.Context(), chi.URLParam(r, "id"), target)
	if err != nil {
		d.writeServiceError(w, err)
		return
	}
	d.writeJSON(w, http.StatusAccepted, viewOf(job))
}

func (d *Daemon) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		d.logger.Debug("response encode failed", logging.Error(err))
	}
}

func (d *Daemon) writeError(w http.ResponseWriter, status int, message string) {
	d.writeJSON(w, status, map[string]string{"error": message})
}

func (d *Daemon) writeServiceError(w http.ResponseWriter, err error) {
	message := services.Message(err)
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		if strings.Contains(message, "not found") {
			d.writeError(w, http.StatusNotFound, message)
			return
		}
		d.writeError(w, http.StatusBadRequest, message)
	case errors.Is(err, services.ErrRateLimited):
		d.writeError(w, http.StatusTooManyRequests, message)
	default:
		d.writeError(w, http.StatusInternalServerError, message)
	}
}
