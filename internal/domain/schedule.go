package domain

import (
	"time"

	"github.com/google/uuid"
)

// Schedule — расписание автоматической обработки документа.
//
// Расписания задаются в конфигурации. Scheduler проверяет NextDueAt и
// создаёт job, когда время подошло.
type Schedule struct {
	// Name — имя расписания (уникально в конфигурации).
	Name string `json:"name" koanf:"name"`

	// CronExpr — cron-выражение.
	// Формат: "минуты часы дни месяцы дни_недели"
	// Примеры:
	//   "0 9 * * *"     — каждый день в 9:00
	//   "*/5 * * * *"   — каждые 5 минут
	CronExpr string `json:"cron_expr" koanf:"cron"`

	// Timezone — часовой пояс для вычисления времени.
	// По умолчанию: "UTC".
	Timezone string `json:"timezone" koanf:"timezone"`

	// DocumentPath — путь к JSON-файлу документа.
	DocumentPath string `json:"document_path" koanf:"document"`

	// Functions — отбор функций (пустой — все).
	Functions []string `json:"functions,omitempty" koanf:"functions"`

	// Enabled — флаг активности расписания.
	Enabled bool `json:"enabled" koanf:"enabled"`

	// NextDueAt — время следующего запуска.
	NextDueAt *time.Time `json:"next_due_at,omitempty" koanf:"-"`

	// LastRunAt — время последнего запуска.
	LastRunAt *time.Time `json:"last_run_at,omitempty" koanf:"-"`

	// LastJobID — ID последнего созданного job.
	LastJobID *uuid.UUID `json:"last_job_id,omitempty" koanf:"-"`
}

// IsDue проверяет, пора ли запускать.
func (s *Schedule) IsDue(now time.Time) bool {
	if !s.Enabled || s.NextDueAt == nil {
		return false
	}
	return !now.Before(*s.NextDueAt)
}

// RecordRun записывает информацию о запуске.
func (s *Schedule) RecordRun(jobID uuid.UUID, nextDue time.Time) {
	now := time.Now()
	s.LastRunAt = &now
	s.LastJobID = &jobID
	s.NextDueAt = &nextDue
}
