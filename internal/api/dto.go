package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Printflow/internal/domain"
	"github.com/shaiso/Printflow/internal/pipeline"
)

// Job DTOs

// CreateJobRequest — запрос на печать документа.
type CreateJobRequest struct {
	Document       domain.Document `json:"document"`
	Functions      []string        `json:"functions,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	Source         string          `json:"source,omitempty"`
}

// CancelJobRequest — необязательное тело запроса отмены.
type CancelJobRequest struct {
	Reason string `json:"reason,omitempty"`
}

// JobResponse — ответ с job.
type JobResponse struct {
	ID             uuid.UUID        `json:"id"`
	Status         domain.JobStatus `json:"status"`
	Document       DocumentSummary  `json:"document"`
	Functions      []string         `json:"functions,omitempty"`
	Executed       []string         `json:"executed,omitempty"`
	Progress       ProgressResponse `json:"progress"`
	Source         string           `json:"source,omitempty"`
	IdempotencyKey string           `json:"idempotency_key,omitempty"`
	Error          string           `json:"error,omitempty"`
	StartedAt      *time.Time       `json:"started_at,omitempty"`
	FinishedAt     *time.Time       `json:"finished_at,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

// DocumentSummary — документ без содержимого страниц.
type DocumentSummary struct {
	ID     uuid.UUID `json:"id"`
	Title  string    `json:"title"`
	Pages  int       `json:"pages"`
	Duplex bool      `json:"duplex"`
}

// ProgressResponse — прогресс job.
type ProgressResponse struct {
	Max     int    `json:"max"`
	Value   int    `json:"value"`
	Percent int    `json:"percent"`
	Message string `json:"message,omitempty"`
}

// JobFromDomain конвертирует domain.Job в JobResponse.
func JobFromDomain(j domain.Job) JobResponse {
	progress := pipeline.Progress{Max: j.ProgressMax, Value: j.ProgressValue}

	return JobResponse{
		ID:     j.ID,
		Status: j.Status,
		Document: DocumentSummary{
			ID:     j.Document.ID,
			Title:  j.Document.Title,
			Pages:  j.Document.PageCount(),
			Duplex: j.Document.Duplex,
		},
		Functions: j.Functions,
		Executed:  j.Executed,
		Progress: ProgressResponse{
			Max:     j.ProgressMax,
			Value:   j.ProgressValue,
			Percent: progress.Percent(),
			Message: j.Message,
		},
		Source:         j.Source,
		IdempotencyKey: j.IdempotencyKey,
		Error:          j.Error,
		StartedAt:      j.StartedAt,
		FinishedAt:     j.FinishedAt,
		CreatedAt:      j.CreatedAt,
	}
}

// Stage DTOs

// StageResponse — ответ с записью журнала этапа.
type StageResponse struct {
	Index      int                `json:"index"`
	Function   string             `json:"function"`
	Order      int                `json:"order"`
	Status     domain.StageStatus `json:"status"`
	Error      string             `json:"error,omitempty"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt *time.Time         `json:"finished_at,omitempty"`
	DurationMs int64              `json:"duration_ms"`
}

// StageFromDomain конвертирует domain.StageRecord в StageResponse.
func StageFromDomain(s domain.StageRecord) StageResponse {
	return StageResponse{
		Index:      s.Index,
		Function:   s.Function,
		Order:      s.Order,
		Status:     s.Status,
		Error:      s.Error,
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
		DurationMs: s.Duration().Milliseconds(),
	}
}

// Function DTOs

// FunctionResponse — функция реестра.
type FunctionResponse struct {
	Name  string `json:"name"`
	Order int    `json:"order"`
}
