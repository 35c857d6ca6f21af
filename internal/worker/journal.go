package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Printflow/internal/domain"
	"github.com/shaiso/Printflow/internal/mq"
	"github.com/shaiso/Printflow/internal/pipeline"
	"github.com/shaiso/Printflow/internal/telemetry"
)

// journal — Observer одного job: пишет этапы в job_stages, прогресс в jobs
// и публикует события этапов.
type journal struct {
	pipeline.NopObserver

	w      *Worker
	jobID  uuid.UUID
	logger *slog.Logger

	mu           sync.Mutex
	records      map[int]uuid.UUID
	lastProgress time.Time
}

func newJournal(w *Worker, jobID uuid.UUID) *journal {
	return &journal{
		w:       w,
		jobID:   jobID,
		logger:  telemetry.WithJobID(w.logger, jobID.String()),
		records: make(map[int]uuid.UUID),
	}
}

func (j *journal) BeforeStage(ctx context.Context, info pipeline.StageInfo) {
	rec := &domain.StageRecord{
		ID:        uuid.New(),
		JobID:     j.jobID,
		Index:     info.Index,
		Function:  info.Function,
		Order:     info.Order,
		Status:    domain.StageStatusRunning,
		StartedAt: time.Now(),
	}

	if err := j.w.stages.Create(context.WithoutCancel(ctx), rec); err != nil {
		telemetry.WithFunction(j.logger, info.Function).Warn("failed to journal stage start", "error", err)
		return
	}

	j.mu.Lock()
	j.records[info.Index] = rec.ID
	j.mu.Unlock()
}

func (j *journal) AfterStage(ctx context.Context, info pipeline.StageInfo, stageErr error, abandoned bool, duration time.Duration) {
	ctx = context.WithoutCancel(ctx)
	status := telemetry.StageStatus(stageErr, abandoned)

	var errMsg string
	if stageErr != nil {
		errMsg = stageErr.Error()
	}

	j.mu.Lock()
	id, ok := j.records[info.Index]
	delete(j.records, info.Index)
	j.mu.Unlock()

	if ok {
		if err := j.w.stages.Finish(ctx, id, status, errMsg, time.Now()); err != nil {
			telemetry.WithFunction(j.logger, info.Function).Warn("failed to journal stage finish", "error", err)
		}
	}

	j.w.publishEvent(ctx, mq.EventPayload{
		Kind:     mq.EventKindStage,
		JobID:    j.jobID,
		Status:   string(status),
		Function: info.Function,
		Order:    info.Order,
		Index:    info.Index,
		Error:    errMsg,
		Duration: duration.Seconds(),
	})
}

// ProgressChanged пишет прогресс не чаще progressInterval.
// Последнее значение в любом случае сохраняется при завершении job.
func (j *journal) ProgressChanged(ctx context.Context, _ uuid.UUID, progress pipeline.Progress) {
	j.mu.Lock()
	now := time.Now()
	if now.Sub(j.lastProgress) < j.w.progressInterval {
		j.mu.Unlock()
		return
	}
	j.lastProgress = now
	j.mu.Unlock()

	err := j.w.jobs.UpdateProgress(context.WithoutCancel(ctx), j.jobID, progress.Max, progress.Value, progress.Message)
	if err != nil {
		j.logger.Warn("failed to journal progress", "error", err)
	}
}
