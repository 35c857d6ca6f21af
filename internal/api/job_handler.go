package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Printflow/internal/domain"
	"github.com/shaiso/Printflow/internal/repo"
)

const defaultListLimit = 50

// CreateJob принимает документ на печать.
// POST /api/v1/jobs
//
// Повтор запроса с тем же idempotency_key возвращает существующий job (200).
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if len(req.Document.Pages) == 0 {
		BadRequest(w, "document must have at least one page")
		return
	}

	// Неизвестные функции отклоняем сразу, а не на воркере
	if h.planner != nil {
		if _, err := h.planner.Plan(req.Functions); err != nil {
			BadRequest(w, err.Error())
			return
		}
	}

	if req.IdempotencyKey != "" {
		existing, err := h.jobs.GetByIdempotencyKey(r.Context(), req.IdempotencyKey)
		if err == nil {
			Success(w, JobFromDomain(*existing))
			return
		}
		if !errors.Is(err, repo.ErrNotFound) {
			InternalError(w, h.log(r), err)
			return
		}
	}

	if req.Document.ID == uuid.Nil {
		req.Document.ID = uuid.New()
	}

	source := req.Source
	if source == "" {
		source = "api"
	}

	job := &domain.Job{
		ID:             uuid.New(),
		Document:       req.Document,
		Functions:      req.Functions,
		Status:         domain.JobStatusPending,
		Source:         source,
		IdempotencyKey: req.IdempotencyKey,
		CreatedAt:      time.Now(),
	}

	if err := h.jobs.Create(r.Context(), job); HandleRepoError(w, h.log(r), err, "") {
		return
	}

	h.log(r).Info("job created",
		"job_id", job.ID,
		"document_id", job.Document.ID,
		"pages", job.Document.PageCount(),
		"functions", job.Functions,
	)

	if h.publisher != nil {
		if err := h.publisher.PublishJobPending(r.Context(), job.ID); err != nil {
			// Job уже в БД, воркер заберёт его через polling
			h.log(r).Warn("failed to publish job.pending", "job_id", job.ID, "error", err)
		}
	}

	Created(w, JobFromDomain(*job))
}

// ListJobs возвращает список jobs с фильтрацией.
// GET /api/v1/jobs?status=...&source=...&limit=...&offset=...
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repo.JobFilter{
		Source: q.Get("source"),
		Limit:  parseInt(q.Get("limit"), defaultListLimit),
		Offset: parseInt(q.Get("offset"), 0),
	}

	if status := q.Get("status"); status != "" {
		filter.Status = domain.ParseJobStatus(status)
		if filter.Status == "" {
			BadRequest(w, "invalid status")
			return
		}
	}

	jobs, err := h.jobs.List(r.Context(), filter)
	if HandleRepoError(w, h.log(r), err, "") {
		return
	}

	result := make([]JobResponse, len(jobs))
	for i, job := range jobs {
		result[i] = JobFromDomain(job)
	}

	List(w, result, len(result))
}

// GetJob возвращает job по ID.
// GET /api/v1/jobs/{id}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	job, err := h.jobs.GetByID(r.Context(), id)
	if HandleRepoError(w, h.log(r), err, "job not found") {
		return
	}

	Success(w, JobFromDomain(*job))
}

// ListJobStages возвращает журнал этапов job.
// GET /api/v1/jobs/{id}/stages
func (h *Handler) ListJobStages(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if _, err := h.jobs.GetByID(r.Context(), id); HandleRepoError(w, h.log(r), err, "job not found") {
		return
	}

	stages, err := h.stages.ListByJob(r.Context(), id)
	if HandleRepoError(w, h.log(r), err, "") {
		return
	}

	result := make([]StageResponse, len(stages))
	for i, s := range stages {
		result[i] = StageFromDomain(s)
	}

	List(w, result, len(result))
}

// CancelJob отменяет job.
// POST /api/v1/jobs/{id}/cancel
//
// PENDING job отменяется сразу (200). Для RUNNING команда рассылается
// воркерам (202): этап, который сейчас выполняется, доработает, следующие
// не запустятся. Завершённый job отменить нельзя (422).
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req CancelJobRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			BadRequest(w, "invalid request body")
			return
		}
	}

	job, err := h.jobs.GetByID(r.Context(), id)
	if HandleRepoError(w, h.log(r), err, "job not found") {
		return
	}

	if job.Status == domain.JobStatusPending {
		err := h.jobs.CancelPending(r.Context(), id)
		if err == nil {
			h.log(r).Info("pending job cancelled", "job_id", id)
			job.MarkCancelled()
			Success(w, JobFromDomain(*job))
			return
		}
		if !errors.Is(err, repo.ErrInvalidState) {
			InternalError(w, h.log(r), err)
			return
		}

		// Воркер успел взять job: перечитываем и отменяем как RUNNING
		job, err = h.jobs.GetByID(r.Context(), id)
		if HandleRepoError(w, h.log(r), err, "job not found") {
			return
		}
	}

	if job.Status != domain.JobStatusRunning {
		InvalidState(w, "job is already "+string(job.Status))
		return
	}

	if h.publisher == nil {
		InvalidState(w, "cancelling running jobs requires a message broker")
		return
	}

	if err := h.publisher.PublishCancel(r.Context(), id, req.Reason); err != nil {
		InternalError(w, h.log(r), err)
		return
	}

	h.log(r).Info("job cancel requested", "job_id", id, "reason", req.Reason)
	Accepted(w, JobFromDomain(*job))
}

// pathID парсит {id} из пути; при ошибке отвечает 400.
func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid job id")
		return uuid.Nil, false
	}
	return id, true
}

// parseInt парсит строку в int с дефолтным значением.
func parseInt(s string, defaultVal int) int {
	if s == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return n
}
