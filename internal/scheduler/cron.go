package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/Printflow/internal/domain"
)

// cronParser — парсер cron-выражений (5 полей, без секунд).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// CalculateNextDue вычисляет следующее время выполнения для schedule.
// Учитывает timezone schedule.
func CalculateNextDue(sched *domain.Schedule, from time.Time) (time.Time, error) {
	loc := time.UTC
	if sched.Timezone != "" {
		l, err := time.LoadLocation(sched.Timezone)
		if err != nil {
			return time.Time{}, fmt.Errorf("load timezone %q: %w", sched.Timezone, err)
		}
		loc = l
	}

	schedule, err := cronParser.Parse(sched.CronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", sched.CronExpr, err)
	}

	return schedule.Next(from.In(loc)).UTC(), nil
}

// ValidateCronExpr проверяет валидность cron-выражения.
func ValidateCronExpr(cronExpr string) error {
	if _, err := cronParser.Parse(cronExpr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}
	return nil
}

// Validate проверяет расписание из конфигурации.
func Validate(sched *domain.Schedule) error {
	if sched.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidSchedule)
	}
	if sched.DocumentPath == "" {
		return fmt.Errorf("%w: %s: document is required", ErrInvalidSchedule, sched.Name)
	}
	if err := ValidateCronExpr(sched.CronExpr); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidSchedule, sched.Name, err)
	}
	if sched.Timezone != "" {
		if _, err := time.LoadLocation(sched.Timezone); err != nil {
			return fmt.Errorf("%w: %s: timezone %q: %w", ErrInvalidSchedule, sched.Name, sched.Timezone, err)
		}
	}
	return nil
}
