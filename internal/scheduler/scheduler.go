package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Printflow/internal/domain"
	"github.com/shaiso/Printflow/internal/functions"
	"github.com/shaiso/Printflow/internal/repo"
)

// JobCreator создаёт jobs (repo.JobRepo).
type JobCreator interface {
	Create(ctx context.Context, job *domain.Job) error
}

// JobPublisher уведомляет воркеров о новом job (mq.Publisher).
type JobPublisher interface {
	PublishJobPending(ctx context.Context, jobID uuid.UUID) error
}

// LeaderLock — блокировка лидера, чтобы тики выполнял один экземпляр (repo.AdvisoryLock).
type LeaderLock interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// DocumentLoader читает документ расписания.
type DocumentLoader func(path string) (*domain.Document, error)

// Scheduler — планировщик, создающий jobs по расписаниям из конфигурации.
type Scheduler struct {
	schedules []*domain.Schedule
	jobs      JobCreator
	publisher JobPublisher
	loadDoc   DocumentLoader
	logger    *slog.Logger
}

// Config — конфигурация Scheduler.
type Config struct {
	Schedules []domain.Schedule
	Jobs      JobCreator
	Publisher JobPublisher   // опционально
	LoadDoc   DocumentLoader // default: functions.LoadDocument
	Logger    *slog.Logger
}

// New создаёт новый Scheduler и вычисляет первое время запуска расписаний.
// Некорректные и выключенные расписания пропускаются с предупреждением.
func New(cfg Config, now time.Time) (*Scheduler, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	loadDoc := cfg.LoadDoc
	if loadDoc == nil {
		loadDoc = functions.LoadDocument
	}

	s := &Scheduler{
		jobs:      cfg.Jobs,
		publisher: cfg.Publisher,
		loadDoc:   loadDoc,
		logger:    logger,
	}

	seen := make(map[string]bool, len(cfg.Schedules))
	for i := range cfg.Schedules {
		sched := cfg.Schedules[i]

		if seen[sched.Name] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSchedule, sched.Name)
		}
		seen[sched.Name] = true

		if !sched.Enabled {
			logger.Info("schedule disabled", "schedule", sched.Name)
			continue
		}

		if err := Validate(&sched); err != nil {
			logger.Warn("schedule skipped", "schedule", sched.Name, "error", err)
			continue
		}

		next, err := CalculateNextDue(&sched, now)
		if err != nil {
			logger.Warn("schedule skipped", "schedule", sched.Name, "error", err)
			continue
		}
		sched.NextDueAt = &next

		s.schedules = append(s.schedules, &sched)
		logger.Info("schedule registered", "schedule", sched.Name, "next_due_at", next)
	}

	return s, nil
}

// Schedules возвращает активные расписания.
func (s *Scheduler) Schedules() []domain.Schedule {
	out := make([]domain.Schedule, len(s.schedules))
	for i, sched := range s.schedules {
		out[i] = *sched
	}
	return out
}

// Tick выполняет один тик планировщика.
//
//  1. Находит due schedules (NextDueAt <= now)
//  2. Для каждого создаёт job с ключом идемпотентности "{name}_{due_unix}"
//  3. Сдвигает NextDueAt
//  4. Публикует job.pending
//
// Ошибки одного schedule не блокируют обработку остальных.
// Возвращает количество созданных jobs.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) int {
	var due, created int

	for _, sched := range s.schedules {
		if !sched.IsDue(now) {
			continue
		}
		due++

		jobCreated, err := s.processSchedule(ctx, sched, now)
		if err != nil {
			s.logger.Error("failed to process schedule",
				"schedule", sched.Name,
				"error", err,
			)
			continue
		}
		if jobCreated {
			created++
		}
	}

	if due > 0 {
		s.logger.Info("scheduler tick completed",
			"due", due,
			"jobs_created", created,
		)
	}

	return created
}

// processSchedule обрабатывает одно расписание.
// Возвращает true, если job был создан (не был дубликатом).
func (s *Scheduler) processSchedule(ctx context.Context, sched *domain.Schedule, now time.Time) (bool, error) {
	idempKey := fmt.Sprintf("%s_%d", sched.Name, sched.NextDueAt.Unix())

	nextDue, err := CalculateNextDue(sched, now)
	if err != nil {
		return false, fmt.Errorf("calculate next due: %w", err)
	}

	doc, err := s.loadDoc(sched.DocumentPath)
	if err != nil {
		// Документ появится к следующему запуску или не появится вовсе:
		// пропущенный запуск не повторяется.
		sched.NextDueAt = &nextDue
		return false, fmt.Errorf("load document: %w", err)
	}

	job := &domain.Job{
		ID:             uuid.New(),
		Document:       *doc,
		Functions:      sched.Functions,
		Status:         domain.JobStatusPending,
		Source:         "schedule:" + sched.Name,
		IdempotencyKey: idempKey,
		CreatedAt:      now,
	}

	err = s.jobs.Create(ctx, job)
	if errors.Is(err, repo.ErrAlreadyExists) {
		// Job на это время уже создан (например, до рестарта)
		s.logger.Debug("job already exists (idempotency)",
			"schedule", sched.Name,
			"idempotency_key", idempKey,
		)
		sched.NextDueAt = &nextDue
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("create job: %w", err)
	}

	sched.RecordRun(job.ID, nextDue)

	s.logger.Info("created job from schedule",
		"job_id", job.ID,
		"schedule", sched.Name,
		"next_due_at", nextDue,
	)

	if s.publisher != nil {
		if err := s.publisher.PublishJobPending(ctx, job.ID); err != nil {
			// Job уже в БД, воркер заберёт его через polling
			s.logger.Warn("failed to publish job.pending",
				"job_id", job.ID,
				"error", err,
			)
		}
	}

	return true, nil
}

// Run выполняет Tick каждые interval, пока не отменён ctx.
// Если задан lock, тики выполняет только экземпляр, владеющий блокировкой.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration, lock LeaderLock) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	leader := lock == nil
	defer func() {
		if lock != nil && leader {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("failed to release leader lock", "error", err)
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case t := <-ticker.C:
			if !leader {
				ok, err := lock.TryAcquire(ctx)
				if err != nil {
					s.logger.Warn("leader lock error", "error", err)
					continue
				}
				if !ok {
					continue
				}
				leader = true
				s.logger.Info("became scheduler leader")
			}
			s.Tick(ctx, t)
		}
	}
}
