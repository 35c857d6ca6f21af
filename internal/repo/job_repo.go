package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Printflow/internal/domain"
)

// JobRepo — репозиторий для работы с jobs.
type JobRepo struct {
	pool *pgxpool.Pool
}

// NewJobRepo создаёт новый JobRepo.
func NewJobRepo(pool *pgxpool.Pool) *JobRepo {
	return &JobRepo{pool: pool}
}

const jobColumns = `
	id, document, functions, status, progress_max, progress_value, message,
	executed, source, idempotency_key, error, started_at, finished_at, created_at`

// Create создаёт новый job.
// Конфликт по idempotency_key возвращает ErrAlreadyExists.
func (r *JobRepo) Create(ctx context.Context, job *domain.Job) error {
	docJSON, err := json.Marshal(job.Document)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	query := `
		INSERT INTO jobs (id, document, functions, status, source, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = r.pool.Exec(ctx, query,
		job.ID,
		docJSON,
		nonNil(job.Functions),
		job.Status,
		nullString(job.Source),
		nullString(job.IdempotencyKey),
		job.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetByID возвращает job по ID.
func (r *JobRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`
	return scanJob(r.pool.QueryRow(ctx, query, id))
}

// GetByIdempotencyKey возвращает job по ключу идемпотентности.
func (r *JobRepo) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE idempotency_key = $1`
	return scanJob(r.pool.QueryRow(ctx, query, key))
}

// JobFilter — параметры фильтрации jobs.
type JobFilter struct {
	Status domain.JobStatus
	Source string
	Limit  int
	Offset int
}

// normalize подставляет лимиты по умолчанию.
func (f JobFilter) normalize() JobFilter {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// List возвращает список jobs с фильтрацией, новые первыми.
func (r *JobRepo) List(ctx context.Context, filter JobFilter) ([]domain.Job, error) {
	filter = filter.normalize()

	query := `SELECT ` + jobColumns + `
		FROM jobs
		WHERE ($1::text IS NULL OR status = $1)
		  AND ($2::text IS NULL OR source = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query,
		nullString(string(filter.Status)),
		nullString(filter.Source),
		filter.Limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return collectJobs(rows)
}

// ListPending возвращает jobs в статусе PENDING, старые первыми.
func (r *JobRepo) ListPending(ctx context.Context, limit int) ([]domain.Job, error) {
	query := `SELECT ` + jobColumns + `
		FROM jobs
		WHERE status = 'PENDING'
		ORDER BY created_at ASC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending jobs: %w", err)
	}
	return collectJobs(rows)
}

// Claim переводит job из PENDING в RUNNING.
// Если job уже взят другим воркером или отменён, возвращает ErrInvalidState.
func (r *JobRepo) Claim(ctx context.Context, job *domain.Job) error {
	job.MarkRunning()

	query := `
		UPDATE jobs
		SET status = $2, started_at = $3
		WHERE id = $1 AND status = 'PENDING'
	`
	result, err := r.pool.Exec(ctx, query, job.ID, job.Status, job.StartedAt)
	if err != nil {
		return fmt.Errorf("claim job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

// Update сохраняет итог job: статус, время, ошибку, выполненные функции и прогресс.
func (r *JobRepo) Update(ctx context.Context, job *domain.Job) error {
	query := `
		UPDATE jobs
		SET status = $2, started_at = $3, finished_at = $4, error = $5,
		    executed = $6, progress_max = $7, progress_value = $8, message = $9
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		job.ID,
		job.Status,
		job.StartedAt,
		job.FinishedAt,
		nullString(job.Error),
		nonNil(job.Executed),
		job.ProgressMax,
		job.ProgressValue,
		nullString(job.Message),
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateProgress сохраняет прогресс выполняющегося job.
func (r *JobRepo) UpdateProgress(ctx context.Context, id uuid.UUID, max, value int, message string) error {
	query := `
		UPDATE jobs
		SET progress_max = $2, progress_value = $3, message = $4
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query, id, max, value, nullString(message))
	if err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CancelPending отменяет job, который ещё не взят воркером.
// Для job в другом статусе возвращает ErrInvalidState.
func (r *JobRepo) CancelPending(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE jobs
		SET status = 'CANCELLED', finished_at = now()
		WHERE id = $1 AND status = 'PENDING'
	`
	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

// --- Helpers ---

func collectJobs(rows pgx.Rows) ([]domain.Job, error) {
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// scanJob сканирует одну строку в Job (pgx.Rows тоже реализует pgx.Row).
func scanJob(row pgx.Row) (*domain.Job, error) {
	var job domain.Job
	var docJSON []byte
	var message, source, idempotencyKey, jobError *string

	err := row.Scan(
		&job.ID,
		&docJSON,
		&job.Functions,
		&job.Status,
		&job.ProgressMax,
		&job.ProgressValue,
		&message,
		&job.Executed,
		&source,
		&idempotencyKey,
		&jobError,
		&job.StartedAt,
		&job.FinishedAt,
		&job.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}

	if err := json.Unmarshal(docJSON, &job.Document); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}

	job.Message = derefString(message)
	job.Source = derefString(source)
	job.IdempotencyKey = derefString(idempotencyKey)
	job.Error = derefString(jobError)

	return &job, nil
}

// nonNil заменяет nil-слайс пустым (колонки text[] NOT NULL).
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
