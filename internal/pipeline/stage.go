package pipeline

import (
	"log/slog"
	"maps"
	"time"

	"github.com/shaiso/Printflow/internal/domain"
)

// Stage — то, что Master выдаёт функции на время одного вызова.
//
// Через Stage функция передаёт управление дальше, вставляет новые функции,
// читает и пишет property bag и сообщает о прогрессе. Stage действителен
// только пока выполняется этот вызов: после его завершения (или после того,
// как Master перестал его ждать) изменения через Stage отклоняются.
type Stage struct {
	m      *Master
	index  int
	fn     *Function
	logger *slog.Logger
	timer  *time.Timer

	// Защищены m.mu
	advanced bool
	expired  bool
}

func newStage(m *Master, index int, fn *Function) *Stage {
	return &Stage{
		m:     m,
		index: index,
		fn:    fn,
		logger: m.logger.With(
			"function", fn.name,
			"order", fn.order,
			"stage", index,
		),
	}
}

// Advance передаёт управление следующей функции и блокируется,
// пока не завершится весь остаток цепочки, включая терминальное действие.
//
// Повторный вызов возвращает ErrAlreadyAdvanced, вызов после
// завершения этапа — ErrStageExpired.
func (s *Stage) Advance() error {
	m := s.m

	m.mu.Lock()
	if s.expired {
		m.mu.Unlock()
		return ErrStageExpired
	}
	if s.advanced {
		m.mu.Unlock()
		return ErrAlreadyAdvanced
	}
	s.advanced = true
	if s.timer != nil {
		s.timer.Stop()
	}
	m.mu.Unlock()

	m.advanceFrom(s.index)
	return nil
}

// InsertFunction вставляет функцию в цепочку после текущего этапа.
//
// Вставка принимается, только если order новой функции строго больше order
// текущего этапа, в цепочке нет функции с тем же (name, order), и этап ещё
// не вызвал Advance. Отклонённая вставка логируется как предупреждение.
func (s *Stage) InsertFunction(fn *Function) bool {
	return s.m.insert(s, fn) == nil
}

// Insert — то же, что InsertFunction, но с причиной отказа.
func (s *Stage) Insert(fn *Function) error {
	return s.m.insert(s, fn)
}

// SetProperty записывает значение в property bag.
// Запись через просроченный Stage игнорируется.
func (s *Stage) SetProperty(key string, value any) {
	m := s.m
	m.mu.Lock()
	if s.expired {
		m.mu.Unlock()
		s.logger.Warn("property write on expired stage ignored", "key", key)
		return
	}
	m.props[key] = value
	m.mu.Unlock()
}

// Property возвращает значение из property bag.
func (s *Stage) Property(key string) (any, bool) {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.props[key]
	return v, ok
}

// Properties возвращает копию property bag.
func (s *Stage) Properties() map[string]any {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.props)
}

// Property возвращает значение из property bag, приведённое к типу T.
// ok == false, если ключа нет или значение другого типа.
func Property[T any](s *Stage, key string) (T, bool) {
	var zero T
	v, ok := s.Property(key)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	if !ok {
		return zero, false
	}
	return t, true
}

// SetProgressMax задаёт максимум прогресса.
func (s *Stage) SetProgressMax(n int) {
	if !s.valid("progress max") {
		return
	}
	s.m.updateProgress(func(p *Progress) { p.Max = n })
}

// SetProgressValue задаёт текущее значение прогресса.
func (s *Stage) SetProgressValue(n int) {
	if !s.valid("progress value") {
		return
	}
	s.m.updateProgress(func(p *Progress) { p.Value = n })
}

// SetMessage задаёт сообщение о прогрессе.
func (s *Stage) SetMessage(msg string) {
	if !s.valid("progress message") {
		return
	}
	s.m.updateProgress(func(p *Progress) { p.Message = msg })
}

// IsCanceled сообщает, отменён ли run. Функции опрашивают его в длинных циклах.
func (s *Stage) IsCanceled() bool {
	return s.m.IsCanceled()
}

// RequestCancel отменяет run от имени этапа.
// Оставшиеся функции не запускаются, терминальное действие выполняется.
func (s *Stage) RequestCancel() {
	if !s.valid("cancel request") {
		return
	}
	s.logger.Info("stage requested cancellation")
	s.m.Cancel()
}

// Document возвращает обрабатываемый документ.
func (s *Stage) Document() *domain.Document {
	return s.m.doc
}

// Name возвращает имя функции этапа.
func (s *Stage) Name() string {
	return s.fn.name
}

// Order возвращает order функции этапа.
func (s *Stage) Order() int {
	return s.fn.order
}

// Index возвращает позицию этапа в цепочке.
func (s *Stage) Index() int {
	return s.index
}

// Logger возвращает логгер этапа с атрибутами run и функции.
func (s *Stage) Logger() *slog.Logger {
	return s.logger
}

func (s *Stage) valid(what string) bool {
	s.m.mu.Lock()
	expired := s.expired
	s.m.mu.Unlock()

	if expired {
		s.logger.Warn("expired stage ignored", "op", what)
		return false
	}
	return true
}
