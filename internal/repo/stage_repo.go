package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Printflow/internal/domain"
)

// StageRepo — журнал этапов jobs.
type StageRepo struct {
	pool *pgxpool.Pool
}

// NewStageRepo создаёт новый StageRepo.
func NewStageRepo(pool *pgxpool.Pool) *StageRepo {
	return &StageRepo{pool: pool}
}

// Create записывает начало этапа.
func (r *StageRepo) Create(ctx context.Context, rec *domain.StageRecord) error {
	query := `
		INSERT INTO job_stages (id, job_id, stage_index, function, fn_order, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.pool.Exec(ctx, query,
		rec.ID,
		rec.JobID,
		rec.Index,
		rec.Function,
		rec.Order,
		rec.Status,
		rec.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("insert stage: %w", err)
	}
	return nil
}

// Finish записывает итог этапа.
func (r *StageRepo) Finish(ctx context.Context, id uuid.UUID, status domain.StageStatus, stageErr string, finishedAt time.Time) error {
	query := `
		UPDATE job_stages
		SET status = $2, error = $3, finished_at = $4
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query, id, status, nullString(stageErr), finishedAt)
	if err != nil {
		return fmt.Errorf("finish stage: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByJob возвращает этапы job в порядке запуска.
func (r *StageRepo) ListByJob(ctx context.Context, jobID uuid.UUID) ([]domain.StageRecord, error) {
	query := `
		SELECT id, job_id, stage_index, function, fn_order, status, error, started_at, finished_at
		FROM job_stages
		WHERE job_id = $1
		ORDER BY started_at ASC, stage_index ASC
	`
	rows, err := r.pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("list stages: %w", err)
	}
	defer rows.Close()

	var records []domain.StageRecord
	for rows.Next() {
		var rec domain.StageRecord
		var stageErr *string
		if err := rows.Scan(
			&rec.ID,
			&rec.JobID,
			&rec.Index,
			&rec.Function,
			&rec.Order,
			&rec.Status,
			&stageErr,
			&rec.StartedAt,
			&rec.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan stage: %w", err)
		}
		rec.Error = derefString(stageErr)
		records = append(records, rec)
	}
	return records, rows.Err()
}
