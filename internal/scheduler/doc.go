// Package scheduler создаёт jobs по расписаниям из конфигурации.
//
// Каждое расписание — cron-выражение, часовой пояс, путь к JSON-документу
// и отбор функций. Когда NextDueAt наступает, Scheduler читает документ,
// создаёт PENDING job и публикует job.pending.
//
// Структура:
//   - scheduler.go — Scheduler (New, Tick, Run)
//   - cron.go      — парсинг cron-выражений и вычисление следующего времени
//
// Использование:
//
//	sched, err := scheduler.New(scheduler.Config{
//	    Schedules: cfg.Schedules,
//	    Jobs:      jobRepo,
//	    Publisher: publisher, // опционально
//	    Logger:    logger,
//	}, time.Now())
//
//	go sched.Run(ctx, time.Second, repo.NewAdvisoryLock(pool, key))
//
// Leader Election:
//
// При нескольких экземплярах тики выполняет только владелец
// pg_try_advisory_lock. Дубликаты после смены лидера отсекает
// ключ идемпотентности "{schedule}_{due_unix}".
package scheduler
