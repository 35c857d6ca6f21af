package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Printflow/internal/domain"
	"github.com/shaiso/Printflow/internal/engine"
	"github.com/shaiso/Printflow/internal/mq"
	"github.com/shaiso/Printflow/internal/pipeline"
)

// Default configuration values.
const (
	defaultPollInterval     = 10 * time.Second
	defaultBatchSize        = 50
	defaultConcurrency      = 2
	defaultProgressInterval = 500 * time.Millisecond
)

// JobStore — хранилище jobs (repo.JobRepo).
type JobStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	ListPending(ctx context.Context, limit int) ([]domain.Job, error)
	Claim(ctx context.Context, job *domain.Job) error
	Update(ctx context.Context, job *domain.Job) error
	UpdateProgress(ctx context.Context, id uuid.UUID, max, value int, message string) error
}

// StageStore — журнал этапов (repo.StageRepo).
type StageStore interface {
	Create(ctx context.Context, rec *domain.StageRecord) error
	Finish(ctx context.Context, id uuid.UUID, status domain.StageStatus, stageErr string, finishedAt time.Time) error
}

// EventPublisher публикует события jobs (mq.Publisher).
type EventPublisher interface {
	PublishEvent(ctx context.Context, event mq.EventPayload) error
}

// Worker выполняет jobs.
//
// Worker — stateless компонент: всё состояние job хранится в БД,
// в памяти только Master выполняющихся сейчас jobs (для отмены).
type Worker struct {
	jobs   JobStore
	stages StageStore

	session   *engine.Session
	publisher EventPublisher
	conn      *mq.Connection

	consumers []*mq.Consumer

	// Configuration
	id               string
	pollInterval     time.Duration
	batchSize        int
	concurrency      int
	progressInterval time.Duration

	// Выполняющиеся jobs. nil — job захватывается, Master ещё не создан.
	activeMu      sync.Mutex
	active        map[uuid.UUID]*pipeline.Master
	pendingCancel map[uuid.UUID]struct{}

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Worker.
type Config struct {
	// ID — идентификатор воркера, имя его control-очереди.
	// Пустой — сгенерированный UUID.
	ID string

	// Хранилища
	Jobs   JobStore
	Stages StageStore

	// Session создаёт Master для каждого job.
	Session *engine.Session

	// MQ (опционально: без соединения работает только polling)
	Publisher EventPublisher
	Conn      *mq.Connection

	// PollInterval — интервал polling (default: 10s).
	PollInterval time.Duration

	// BatchSize — количество jobs за один poll (default: 50).
	BatchSize int

	// Concurrency — число параллельно выполняемых jobs из очереди (default: 2).
	Concurrency int

	// ProgressInterval — минимальный интервал записи прогресса в БД (default: 500ms).
	ProgressInterval time.Duration

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	id := cfg.ID
	if id == "" {
		id = uuid.NewString()
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	progressInterval := cfg.ProgressInterval
	if progressInterval <= 0 {
		progressInterval = defaultProgressInterval
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		jobs:             cfg.Jobs,
		stages:           cfg.Stages,
		session:          cfg.Session,
		publisher:        cfg.Publisher,
		conn:             cfg.Conn,
		id:               id,
		pollInterval:     pollInterval,
		batchSize:        batchSize,
		concurrency:      concurrency,
		progressInterval: progressInterval,
		active:           make(map[uuid.UUID]*pipeline.Master),
		pendingCancel:    make(map[uuid.UUID]struct{}),
		logger:           logger.With("worker_id", id),
	}
}

// ID возвращает идентификатор воркера.
func (w *Worker) ID() string {
	return w.id
}

// Start запускает Worker.
//
// Запускает:
//   - Consumers для jobs.pending (Concurrency штук)
//   - Consumer для control-очереди воркера
//   - Polling горутину для fallback
func (w *Worker) Start(ctx context.Context) error {
	if w.session == nil {
		return ErrNoSession
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	w.logger.Info("starting worker",
		"poll_interval", w.pollInterval,
		"batch_size", w.batchSize,
		"concurrency", w.concurrency,
	)

	if w.conn != nil {
		for range w.concurrency {
			w.startConsumer(ctx, mq.ConsumerConfig{
				Queue:    string(mq.QueueJobsPending),
				Handler:  w.handleJobPending,
				Prefetch: 1,
			})
		}

		control := mq.ControlQueue(w.id)
		w.startConsumer(ctx, mq.ConsumerConfig{
			Queue:   string(control),
			Handler: w.handleControl,
			Setup: func(ch *amqp.Channel) error {
				return mq.DeclareControlQueue(ch, control)
			},
		})
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.pollLoop(ctx)
	}()

	w.logger.Info("worker started")
	return nil
}

func (w *Worker) startConsumer(ctx context.Context, cfg mq.ConsumerConfig) {
	consumer := mq.NewConsumer(w.conn, w.logger, cfg)
	w.consumers = append(w.consumers, consumer)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error("consumer error", "queue", cfg.Queue, "error", err)
		}
	}()
}

// Stop останавливает Worker.
// Выполняющиеся jobs отменяются и завершаются со статусом CANCELLED.
func (w *Worker) Stop() {
	w.stoppedMu.Lock()
	w.stopped = true
	w.stoppedMu.Unlock()

	w.logger.Info("stopping worker...")

	if w.cancelFunc != nil {
		w.cancelFunc()
	}

	for _, c := range w.consumers {
		c.Stop()
	}

	w.wg.Wait()

	w.logger.Info("worker stopped")
}

// IsStopped проверяет, остановлен ли Worker.
func (w *Worker) IsStopped() bool {
	w.stoppedMu.RLock()
	defer w.stoppedMu.RUnlock()
	return w.stopped
}

// Cancel отменяет выполняющийся на этом воркере job.
// Возвращает false, если такого job здесь нет. Если job ещё
// захватывается, отмена применится сразу после создания Master.
func (w *Worker) Cancel(jobID uuid.UUID) bool {
	w.activeMu.Lock()
	master, ok := w.active[jobID]
	if ok && master == nil {
		w.pendingCancel[jobID] = struct{}{}
	}
	w.activeMu.Unlock()

	if !ok {
		return false
	}
	if master != nil {
		master.Cancel()
	}
	return true
}

// ActiveJobs возвращает число выполняющихся на воркере jobs.
func (w *Worker) ActiveJobs() int {
	w.activeMu.Lock()
	defer w.activeMu.Unlock()
	return len(w.active)
}

// reserve занимает слот job до Claim, чтобы не потерять отмену,
// пришедшую раньше, чем создан Master.
func (w *Worker) reserve(jobID uuid.UUID) {
	w.activeMu.Lock()
	if _, ok := w.active[jobID]; !ok {
		w.active[jobID] = nil
	}
	w.activeMu.Unlock()
}

func (w *Worker) track(jobID uuid.UUID, master *pipeline.Master) {
	w.activeMu.Lock()
	w.active[jobID] = master
	_, canceled := w.pendingCancel[jobID]
	delete(w.pendingCancel, jobID)
	w.activeMu.Unlock()

	if canceled {
		master.Cancel()
	}
}

func (w *Worker) untrack(jobID uuid.UUID) {
	w.activeMu.Lock()
	delete(w.active, jobID)
	delete(w.pendingCancel, jobID)
	w.activeMu.Unlock()
}

// pollLoop — цикл polling для fallback.
func (w *Worker) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	// Первый poll сразу при старте (подхватываем jobs, созданные пока были выключены)
	w.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

// poll выполняет один цикл polling.
func (w *Worker) poll(ctx context.Context) {
	jobs, err := w.jobs.ListPending(ctx, w.batchSize)
	if err != nil {
		w.logger.Error("failed to list pending jobs", "error", err)
		return
	}

	if len(jobs) == 0 {
		return
	}

	w.logger.Debug("poll found pending jobs", "count", len(jobs))

	for i := range jobs {
		if ctx.Err() != nil {
			return
		}

		err := w.processJob(ctx, jobs[i].ID)
		if err != nil && !errors.Is(err, ErrJobNotPending) {
			w.logger.Error("failed to process job from poll",
				"job_id", jobs[i].ID,
				"error", err,
			)
		}
	}
}
