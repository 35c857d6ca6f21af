// Package worker выполняет jobs печати.
//
// # Обзор
//
// Worker — stateless компонент системы Printflow. Каждый job (документ и
// отбор функций) он прогоняет через цепочку функций печати одним Master.
// Worker отвечает за:
//
//   - Получение jobs из очереди jobs.pending (event-driven)
//   - Периодическую проверку PENDING jobs в БД (polling fallback)
//   - Запуск цепочки через engine.Session
//   - Журнал этапов в job_stages и прогресса в jobs
//   - Отмену выполняющихся jobs по командам из printflow.control
//   - Публикацию событий в printflow.events
//
// Workers масштабируются горизонтально: несколько экземпляров потребляют
// из одной очереди, job забирает тот, кто первым переведёт его в RUNNING.
//
// # Использование
//
//	w := worker.New(worker.Config{
//	    Jobs:      jobRepo,
//	    Stages:    stageRepo,
//	    Session:   session,
//	    Publisher: publisher,
//	    Conn:      mqConn,
//	    Logger:    logger,
//	})
//
//	if err := w.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Stop()
//
// # Обработка job
//
//  1. Получение job (из очереди или polling)
//  2. Загрузка job из БД, перевод PENDING → RUNNING (Claim)
//  3. Создание Master через Session.NewRun с журналом в роли Observer
//  4. Master.Start: этапы по порядку, затем терминальное действие
//  5. Итоговый статус:
//     - отмена (команда, RequestCancel этапа, остановка воркера) → CANCELLED
//     - ошибка терминального действия или пустой run-list → FAILED
//     - иначе → SUCCEEDED
//
// Ошибка отдельного этапа job не проваливает: цепочка продолжается,
// ошибка остаётся в журнале этапов.
package worker
