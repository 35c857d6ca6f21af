package domain

import (
	"time"

	"github.com/google/uuid"
)

// Job — задание на обработку одного документа цепочкой функций печати.
//
// Job создаётся когда:
// - Пользователь отправляет документ через API/CLI
// - Scheduler создаёт job по расписанию
//
// Каждый job выполняется одним Master на воркере.
type Job struct {
	// ID — уникальный идентификатор job.
	ID uuid.UUID `json:"id"`

	// Document — обрабатываемый документ.
	Document Document `json:"document"`

	// Functions — отбор функций из реестра по имени.
	// Пустой список — все зарегистрированные функции.
	Functions []string `json:"functions,omitempty"`

	// Status — текущий статус job.
	Status JobStatus `json:"status"`

	// ProgressMax, ProgressValue, Message — последний известный прогресс.
	ProgressMax   int    `json:"progress_max"`
	ProgressValue int    `json:"progress_value"`
	Message       string `json:"message,omitempty"`

	// Executed — имена выполненных функций в порядке запуска.
	Executed []string `json:"executed,omitempty"`

	// Source — откуда пришёл job: "api", "cli", "schedule:<name>".
	Source string `json:"source,omitempty"`

	// IdempotencyKey — ключ идемпотентности для предотвращения дубликатов.
	// Для jobs по расписанию: "{schedule}_{due_at}"
	IdempotencyKey string `json:"idempotency_key,omitempty"`

	// Error — текст ошибки, если job завершился с FAILED.
	Error string `json:"error,omitempty"`

	// StartedAt — время начала выполнения (когда статус стал RUNNING).
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время завершения.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// CreatedAt — время создания job.
	CreatedAt time.Time `json:"created_at"`
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если job ещё не завершён.
func (j *Job) Duration() time.Duration {
	if j.StartedAt == nil || j.FinishedAt == nil {
		return 0
	}
	return j.FinishedAt.Sub(*j.StartedAt)
}

// IsFinished возвращает true, если job завершён (в любом статусе).
func (j *Job) IsFinished() bool {
	return j.Status.IsTerminal()
}

// MarkRunning переводит job в статус RUNNING.
func (j *Job) MarkRunning() {
	now := time.Now()
	j.Status = JobStatusRunning
	j.StartedAt = &now
}

// MarkSucceeded переводит job в статус SUCCEEDED.
func (j *Job) MarkSucceeded() {
	now := time.Now()
	j.Status = JobStatusSucceeded
	j.FinishedAt = &now
}

// MarkFailed переводит job в статус FAILED с ошибкой.
func (j *Job) MarkFailed(err string) {
	now := time.Now()
	j.Status = JobStatusFailed
	j.FinishedAt = &now
	j.Error = err
}

// MarkCancelled переводит job в статус CANCELLED.
func (j *Job) MarkCancelled() {
	now := time.Now()
	j.Status = JobStatusCancelled
	j.FinishedAt = &now
}

// StageRecord — запись журнала об одном этапе job.
type StageRecord struct {
	// ID — уникальный идентификатор записи.
	ID uuid.UUID `json:"id"`

	// JobID — ссылка на job.
	JobID uuid.UUID `json:"job_id"`

	// Index — позиция этапа в цепочке.
	Index int `json:"index"`

	// Function — имя функции.
	Function string `json:"function"`

	// Order — приоритет функции.
	Order int `json:"order"`

	// Status — итог этапа (RUNNING, пока этап выполняется).
	Status StageStatus `json:"status"`

	// Error — текст ошибки этапа.
	Error string `json:"error,omitempty"`

	// StartedAt — время начала.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt — время завершения.
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Duration возвращает продолжительность этапа.
func (r *StageRecord) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
