// Package pipeline — координатор цепочки функций печати.
//
// # Обзор
//
// Документ проходит через упорядоченную цепочку функций печати
// (подстановка полей формы, duplex, сборка документов, вебхуки ...).
// Каждая функция — это Function: имя, приоритет order и work.
// Меньший order выполняется раньше, при равном order — по имени.
//
// # Master
//
// Master владеет состоянием одного run:
//   - run-list — отсортированная цепочка функций (функции могут только добавляться)
//   - курсор — индекс текущего этапа, никогда не уменьшается
//   - property bag — map[string]any, общий для всех этапов run
//   - Progress — максимум, значение, сообщение и флаг отмены
//
// Запуск:
//
//	m := pipeline.New(pipeline.Config{
//	    Document:  doc,
//	    Functions: fns,
//	    Terminal:  terminal,
//	})
//	err := m.Start(ctx) // блокируется до DONE
//
// Состояния:
//
//	NOT_STARTED → RUNNING → TERMINAL → DONE
//
// Отмена (Cancel, Stage.RequestCancel или отмена ctx) возможна в RUNNING:
// новые этапы больше не запускаются, терминальное действие выполняется
// ровно один раз в любом случае.
//
// # Stage
//
// Work каждой функции получает *Stage — доступ к состоянию run на время
// своего вызова:
//
//	func(ctx context.Context, s *pipeline.Stage) error {
//	    s.SetProperty("duplex", true)
//	    s.InsertFunction(pipeline.NewFunction("pad", 900, pad))
//	    return s.Advance() // выполнить остаток цепочки
//	}
//
// Advance можно вызвать не больше одного раза. Если work вернулся без
// Advance, Master продолжает цепочку сам. Этап, вызвавший Advance, может
// выполнить работу после остатка цепочки (например, собрать результат).
//
// # Вставка функций
//
// Вставлять функции может только текущий этап, пока он не вызвал Advance,
// и только с order строго больше своего. Это гарантирует, что вставленная
// функция окажется после курсора и будет выполнена. Функция с тем же
// (name, order), что уже есть в цепочке, отклоняется.
//
// # Registry
//
// Registry — каталог функций по имени, который заполняется из конфигурации
// до запуска run и передаётся в Master явно (через engine.Session).
//
// # Наблюдатели
//
// Observer получает события run, этапов, вставок и прогресса.
// telemetry.MetricsObserver пишет метрики, worker журналирует этапы в БД.
package pipeline
