package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/shaiso/Printflow/internal/domain"
	"github.com/shaiso/Printflow/internal/pipeline"
	"github.com/shaiso/Printflow/internal/repo"
	"github.com/shaiso/Printflow/internal/telemetry"
)

// JobStore — хранилище jobs (repo.JobRepo).
type JobStore interface {
	Create(ctx context.Context, job *domain.Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.Job, error)
	List(ctx context.Context, filter repo.JobFilter) ([]domain.Job, error)
	CancelPending(ctx context.Context, id uuid.UUID) error
}

// StageStore — журнал этапов (repo.StageRepo).
type StageStore interface {
	ListByJob(ctx context.Context, jobID uuid.UUID) ([]domain.StageRecord, error)
}

// Publisher — уведомления воркеров (mq.Publisher).
type Publisher interface {
	PublishJobPending(ctx context.Context, jobID uuid.UUID) error
	PublishCancel(ctx context.Context, jobID uuid.UUID, reason string) error
}

// Planner возвращает функции реестра в порядке выполнения (engine.Session).
type Planner interface {
	Plan(selection []string) ([]*pipeline.Function, error)
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	jobs      JobStore
	stages    StageStore
	publisher Publisher
	planner   Planner
	logger    *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Jobs      JobStore
	Stages    StageStore
	Publisher Publisher // опционально: без него воркеры найдут job через polling
	Planner   Planner
	Logger    *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		jobs:      cfg.Jobs,
		stages:    cfg.Stages,
		publisher: cfg.Publisher,
		planner:   cfg.Planner,
		logger:    logger,
	}
}

// log возвращает логгер запроса с request_id, который кладёт middleware Logging.
func (h *Handler) log(r *http.Request) *slog.Logger {
	return telemetry.FromContext(r.Context())
}
