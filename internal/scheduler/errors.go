package scheduler

import "errors"

var (
	// ErrInvalidSchedule — расписание в конфигурации некорректно.
	ErrInvalidSchedule = errors.New("invalid schedule")

	// ErrDuplicateSchedule — два расписания с одним именем.
	ErrDuplicateSchedule = errors.New("duplicate schedule name")
)
