package domain

// JobStatus — статус job.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → SUCCEEDED
//	                  ↘ FAILED
//	          (или) → CANCELLED (из PENDING или RUNNING)
type JobStatus string

const (
	// JobStatusPending — job создан, но ещё не взят воркером.
	JobStatusPending JobStatus = "PENDING"

	// JobStatusRunning — цепочка функций выполняется.
	JobStatusRunning JobStatus = "RUNNING"

	// JobStatusSucceeded — цепочка и терминальное действие завершены.
	JobStatusSucceeded JobStatus = "SUCCEEDED"

	// JobStatusFailed — цепочка не запустилась или терминальное действие упало.
	JobStatusFailed JobStatus = "FAILED"

	// JobStatusCancelled — job отменён пользователем или функцией.
	JobStatusCancelled JobStatus = "CANCELLED"
)

// IsTerminal возвращает true, если статус финальный.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление JobStatus.
func (s JobStatus) String() string {
	return string(s)
}

// ParseJobStatus парсит строку в JobStatus.
// Возвращает пустую строку для неизвестного статуса.
func ParseJobStatus(s string) JobStatus {
	switch JobStatus(s) {
	case JobStatusPending, JobStatusRunning, JobStatusSucceeded, JobStatusFailed, JobStatusCancelled:
		return JobStatus(s)
	default:
		return ""
	}
}

// StageStatus — итог этапа цепочки.
//
//	RUNNING → SUCCEEDED
//	        ↘ FAILED (ошибка или паника work)
//	        ↘ ABANDONED (таймаут этапа или прерванный run)
type StageStatus string

const (
	StageStatusRunning   StageStatus = "RUNNING"
	StageStatusSucceeded StageStatus = "SUCCEEDED"
	StageStatusFailed    StageStatus = "FAILED"
	StageStatusAbandoned StageStatus = "ABANDONED"
)

// IsTerminal возвращает true, если этап завершён.
func (s StageStatus) IsTerminal() bool {
	return s != StageStatusRunning
}
