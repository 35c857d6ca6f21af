package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/shaiso/Printflow/internal/domain"
	"github.com/shaiso/Printflow/internal/engine"
	"github.com/shaiso/Printflow/internal/mq"
	"github.com/shaiso/Printflow/internal/pipeline"
	"github.com/shaiso/Printflow/internal/repo"
	"github.com/shaiso/Printflow/internal/telemetry"
)

// Свойства, которые воркер кладёт в property bag каждого job.
const (
	PropertyJobID     = "job.id"
	PropertyJobSource = "job.source"
)

// handleJobPending обрабатывает событие о новом job из очереди jobs.pending.
func (w *Worker) handleJobPending(ctx context.Context, delivery *mq.Delivery) error {
	if delivery.Message.Type != mq.MessageTypeJobPending {
		return mq.ErrUnknownMessage
	}

	payload, err := mq.ParsePayload[mq.JobPendingPayload](&delivery.Message)
	if err != nil {
		w.logger.Error("failed to parse job.pending payload", "error", err)
		return err
	}

	w.logger.Debug("received job.pending event", "job_id", payload.JobID)

	if err := w.processJob(ctx, payload.JobID); err != nil {
		// Ожидаемые ситуации — не возвращаем ошибку (ack)
		if errors.Is(err, ErrJobNotFound) || errors.Is(err, ErrJobNotPending) {
			w.logger.Debug("job not processed", "job_id", payload.JobID, "reason", err)
			return nil
		}
		w.logger.Error("failed to process job", "job_id", payload.JobID, "error", err)
		return err
	}

	return nil
}

// handleControl обрабатывает команды из control-очереди воркера.
// Команда отмены рассылается всем воркерам, job отменяет тот, у кого он выполняется.
func (w *Worker) handleControl(_ context.Context, delivery *mq.Delivery) error {
	if delivery.Message.Type != mq.MessageTypeJobCancel {
		return mq.ErrUnknownMessage
	}

	payload, err := mq.ParsePayload[mq.JobCancelPayload](&delivery.Message)
	if err != nil {
		w.logger.Error("failed to parse job.cancel payload", "error", err)
		return err
	}

	if w.Cancel(payload.JobID) {
		w.logger.Info("job cancel requested", "job_id", payload.JobID, "reason", payload.Reason)
	}

	return nil
}

// processJob загружает job из БД, выполняет цепочку и сохраняет итог.
func (w *Worker) processJob(ctx context.Context, jobID uuid.UUID) error {
	job, err := w.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}
		return fmt.Errorf("get job: %w", err)
	}

	if job.Status != domain.JobStatusPending {
		return ErrJobNotPending
	}

	w.reserve(job.ID)
	defer w.untrack(job.ID)

	if err := w.jobs.Claim(ctx, job); err != nil {
		if errors.Is(err, repo.ErrInvalidState) {
			return ErrJobNotPending
		}
		return fmt.Errorf("claim job: %w", err)
	}

	logger := telemetry.WithJobID(w.logger, job.ID.String())
	logger.Info("job started",
		"functions", job.Functions,
		"source", job.Source,
	)
	w.publishEvent(ctx, mq.EventPayload{
		Kind:   mq.EventKindJob,
		JobID:  job.ID,
		Status: string(domain.JobStatusRunning),
	})

	journal := newJournal(w, job.ID)
	master, err := w.session.NewRun(job.ID, &job.Document, job.Functions,
		engine.WithObserver(journal),
		engine.WithLogger(logger),
		engine.WithProperties(map[string]any{
			PropertyJobID:     job.ID.String(),
			PropertyJobSource: job.Source,
		}),
	)
	if err != nil {
		return w.finishJob(ctx, job, nil, fmt.Errorf("build run: %w", err))
	}

	w.track(job.ID, master)

	runErr := master.Start(ctx)

	return w.finishJob(ctx, job, master, runErr)
}

// finishJob переводит job в итоговый статус и публикует событие.
// master == nil, если run не удалось создать.
func (w *Worker) finishJob(ctx context.Context, job *domain.Job, master *pipeline.Master, runErr error) error {
	ctx = context.WithoutCancel(ctx)
	logger := telemetry.WithJobID(w.logger, job.ID.String())

	if master != nil {
		progress := master.Progress()
		job.Executed = master.Executed()
		job.ProgressMax = progress.Max
		job.ProgressValue = progress.Value
		job.Message = progress.Message
	}

	switch {
	case runErr != nil:
		job.MarkFailed(runErr.Error())
	case master.IsCanceled():
		job.MarkCancelled()
	default:
		job.MarkSucceeded()
	}

	if err := w.jobs.Update(ctx, job); err != nil {
		return fmt.Errorf("update job to %s: %w", job.Status, err)
	}

	logger.Info("job finished",
		"status", job.Status,
		"executed", job.Executed,
		"duration", job.Duration(),
		"error", job.Error,
	)

	w.publishEvent(ctx, mq.EventPayload{
		Kind:     mq.EventKindJob,
		JobID:    job.ID,
		Status:   string(job.Status),
		Error:    job.Error,
		Duration: job.Duration().Seconds(),
	})

	return nil
}

// publishEvent публикует событие; ошибка публикации только логируется.
func (w *Worker) publishEvent(ctx context.Context, event mq.EventPayload) {
	if w.publisher == nil {
		return
	}

	if err := w.publisher.PublishEvent(ctx, event); err != nil {
		w.logger.Warn("failed to publish event",
			"job_id", event.JobID,
			"kind", event.Kind,
			"status", event.Status,
			"error", err,
		)
	}
}
