package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Printflow/internal/domain"
)

// TerminalFunc — терминальное действие цепочки: вызывается ровно один раз,
// когда функций больше не осталось (в том числе после отмены).
//
// props — снимок property bag на момент завершения.
type TerminalFunc func(ctx context.Context, doc *domain.Document, props map[string]any) error

// Config — конфигурация Master.
type Config struct {
	// RunID — идентификатор run (если пустой, генерируется).
	RunID uuid.UUID

	// Document — обрабатываемый документ.
	Document *domain.Document

	// Functions — начальная цепочка. Сортируется по (order, name),
	// дубликаты (name, order) отбрасываются с предупреждением.
	Functions []*Function

	// Filtered — сколько функций реестра не попало в цепочку при отборе.
	// Пустая цепочка с Filtered > 0 сразу переходит к терминальному действию,
	// пустая цепочка без отбора — ошибка конфигурации.
	Filtered int

	// Properties — начальное содержимое property bag.
	Properties map[string]any

	// Terminal — терминальное действие (nil — ничего не делать).
	Terminal TerminalFunc

	// Observer — наблюдатель событий цепочки (опционально).
	Observer Observer

	// StageTimeout — сколько ждать этап, пока он не вызвал Advance (0 — без ограничения).
	StageTimeout time.Duration

	// Logger
	Logger *slog.Logger
}

type entry struct {
	fn  *Function
	ran bool
}

// Master — координатор цепочки функций печати для одного документа.
//
// Master — единственный владелец состояния run: цепочки, курсора,
// property bag и прогресса. Функции видят это состояние только через Stage,
// который Master выдаёт на каждый этап.
//
// Каждый этап выполняется в своей горутине, Master дожидается его
// завершения. Этап, вызвавший Stage.Advance, блокируется до завершения всего
// остатка цепочки, поэтому в каждый момент логически выполняется один этап.
//
// Master одноразовый: после Start он переходит в DONE и повторно не запускается.
type Master struct {
	runID        uuid.UUID
	doc          *domain.Document
	filtered     int
	terminal     TerminalFunc
	observer     Observer
	stageTimeout time.Duration
	logger       *slog.Logger

	mu       sync.Mutex
	ctx      context.Context
	runList  []*entry
	cursor   int
	props    map[string]any
	progress Progress
	state    State
	executed []string

	terminalOnce sync.Once
	terminalErr  error
}

// New создаёт новый Master.
func New(cfg Config) *Master {
	runID := cfg.RunID
	if runID == uuid.Nil {
		runID = uuid.New()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("run_id", runID)

	observer := cfg.Observer
	if observer == nil {
		observer = NopObserver{}
	}

	props := make(map[string]any, len(cfg.Properties))
	maps.Copy(props, cfg.Properties)

	return &Master{
		runID:        runID,
		doc:          cfg.Document,
		filtered:     cfg.Filtered,
		terminal:     cfg.Terminal,
		observer:     observer,
		stageTimeout: cfg.StageTimeout,
		logger:       logger,
		runList:      seedRunList(cfg.Functions, logger),
		cursor:       -1,
		props:        props,
		state:        StateNotStarted,
	}
}

// seedRunList сортирует начальную цепочку и отбрасывает невалидные функции и дубликаты.
func seedRunList(fns []*Function, logger *slog.Logger) []*entry {
	valid := make([]*Function, 0, len(fns))
	for _, fn := range fns {
		if err := fn.Validate(); err != nil {
			logger.Warn("function dropped from run list", "error", err)
			continue
		}
		valid = append(valid, fn)
	}
	SortFunctions(valid)

	list := make([]*entry, 0, len(valid))
	for _, fn := range valid {
		// После сортировки дубликаты стоят рядом
		if n := len(list); n > 0 && SameKey(list[n-1].fn, fn) {
			logger.Warn("duplicate function dropped from run list", "function", fn.name, "order", fn.order)
			continue
		}
		list = append(list, &entry{fn: fn})
	}
	return list
}

// Start запускает цепочку и блокируется до её завершения (состояние DONE).
//
// Возвращает ErrEmptyRunList, если функций нет и ничего не было отфильтровано
// (терминальное действие при этом не вызывается), и ошибку терминального
// действия, обёрнутую в ErrTerminalFailed. Ошибки этапов не возвращаются:
// они логируются и передаются наблюдателю.
//
// Отмена ctx отменяет run: новые этапы не запускаются, ожидание текущего
// прерывается, терминальное действие выполняется с контекстом без отмены.
func (m *Master) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateNotStarted {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	if len(m.runList) == 0 && m.filtered == 0 {
		m.state = StateDone
		m.mu.Unlock()
		m.logger.Error("run aborted", "error", ErrEmptyRunList)
		return ErrEmptyRunList
	}
	m.state = StateRunning
	m.ctx = ctx
	names := m.namesLocked()
	m.mu.Unlock()

	ctxCanceled := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(ctxCanceled)
		m.Cancel()
	})

	m.logger.Info("run started",
		"functions", len(names),
		"filtered", m.filtered,
	)
	m.observer.BeforeRun(ctx, m.runID, m.doc, names)

	m.advanceFrom(-1)

	// Если ожидание было прервано отменой ctx, терминальное действие могло
	// ещё не начаться или выполняться во вложенной горутине: finish дождётся.
	m.finish()

	// Отмена через ctx должна быть видна наблюдателю до AfterRun
	if !stop() {
		<-ctxCanceled
	}

	m.mu.Lock()
	result := RunResult{
		RunID:    m.runID,
		Executed: slices.Clone(m.executed),
		Canceled: m.progress.Canceled,
		Progress: m.progress,
	}
	err := m.terminalErr
	m.mu.Unlock()

	m.logger.Info("run finished",
		"executed", len(result.Executed),
		"canceled", result.Canceled,
	)
	m.observer.AfterRun(context.WithoutCancel(ctx), result, err)

	return err
}

// advanceFrom запускает первую ещё не выполненную функцию после from.
// Если такой нет или run отменён — выполняет терминальное действие.
func (m *Master) advanceFrom(from int) {
	m.mu.Lock()
	if m.ctx.Err() != nil && !m.progress.Canceled {
		// AfterFunc ещё мог не сработать: отмечаем отмену сами
		m.mu.Unlock()
		m.Cancel()
		m.mu.Lock()
	}
	if m.progress.Canceled || m.state != StateRunning {
		m.mu.Unlock()
		m.finish()
		return
	}

	next := -1
	for j := max(from, m.cursor) + 1; j < len(m.runList); j++ {
		if !m.runList[j].ran {
			next = j
			break
		}
	}
	if next < 0 {
		m.mu.Unlock()
		m.finish()
		return
	}

	e := m.runList[next]
	e.ran = true
	m.cursor = next
	m.executed = append(m.executed, e.fn.name)
	m.mu.Unlock()

	m.runStage(next, e.fn)
}

// runStage выполняет один этап в отдельной горутине и ждёт его.
// Если этап не вызвал Advance сам, цепочка продолжается после его завершения.
func (m *Master) runStage(index int, fn *Function) {
	ctx := m.ctx
	info := StageInfo{RunID: m.runID, Index: index, Function: fn.name, Order: fn.order}
	s := newStage(m, index, fn)

	stageCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var timeout <-chan time.Time
	if m.stageTimeout > 0 {
		s.timer = time.NewTimer(m.stageTimeout)
		timeout = s.timer.C
	}

	s.logger.Debug("stage started")
	m.observer.BeforeStage(ctx, info)
	start := time.Now()

	done := make(chan error, 1)
	go func() {
		done <- m.invoke(stageCtx, fn, s)
	}()

	var stageErr error
	abandoned := false
wait:
	for {
		select {
		case stageErr = <-done:
			break wait
		case <-ctx.Done():
			stageErr = ctx.Err()
			abandoned = true
			m.Cancel()
			break wait
		case <-timeout:
			if !m.tryAbandon(s) {
				// Этап уже передал управление дальше: время остатка цепочки ему не засчитывается
				timeout = nil
				continue
			}
			stageErr = fmt.Errorf("%w: %s after %s", ErrStageTimeout, fn.name, m.stageTimeout)
			abandoned = true
			break wait
		}
	}
	if s.timer != nil {
		s.timer.Stop()
	}

	advanced := m.expire(s)
	duration := time.Since(start)

	switch {
	case abandoned:
		s.logger.Warn("stage abandoned", "error", stageErr, "duration", duration)
	case stageErr != nil:
		s.logger.Error("stage failed", "error", stageErr, "duration", duration)
	default:
		s.logger.Debug("stage completed", "duration", duration)
	}
	m.observer.AfterStage(context.WithoutCancel(ctx), info, stageErr, abandoned, duration)

	if !advanced {
		m.advanceFrom(index)
	}
}

// invoke вызывает work и превращает панику в ошибку этапа.
func (m *Master) invoke(ctx context.Context, fn *Function, s *Stage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("stage panic recovered",
				"panic", r,
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("%w: %v", ErrStagePanic, r)
		}
	}()
	return fn.work(ctx, s)
}

// tryAbandon помечает этап просроченным, если он ещё не вызвал Advance.
func (m *Master) tryAbandon(s *Stage) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.advanced {
		return false
	}
	s.expired = true
	return true
}

// expire инвалидирует Stage и сообщает, передал ли этап управление дальше.
// Поздний Advance после expire получит ErrStageExpired.
func (m *Master) expire(s *Stage) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	advanced := s.advanced
	s.advanced = true
	s.expired = true
	return advanced
}

// finish выполняет терминальное действие ровно один раз.
// Конкурентные вызовы ждут завершения первого.
func (m *Master) finish() {
	m.terminalOnce.Do(func() {
		m.mu.Lock()
		m.state = StateTerminal
		props := maps.Clone(m.props)
		canceled := m.progress.Canceled
		ctx := context.WithoutCancel(m.ctx)
		m.mu.Unlock()

		m.logger.Debug("running terminal action", "canceled", canceled)

		err := m.runTerminal(ctx, props)
		if err != nil {
			m.logger.Error("terminal action failed", "error", err)
			err = fmt.Errorf("%w: %w", ErrTerminalFailed, err)
		}

		m.mu.Lock()
		m.terminalErr = err
		m.state = StateDone
		m.mu.Unlock()
	})
}

func (m *Master) runTerminal(ctx context.Context, props map[string]any) (err error) {
	if m.terminal == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("terminal panic recovered", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return m.terminal(ctx, m.doc, props)
}

// insert вставляет функцию в цепочку от имени этапа s.
func (m *Master) insert(s *Stage, fn *Function) error {
	if err := fn.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	err := m.insertLocked(s, fn)
	ctx := m.ctx
	m.mu.Unlock()

	if err != nil {
		s.logger.Warn("function insertion rejected",
			"inserted", fn.name,
			"inserted_order", fn.order,
			"error", err,
		)
	} else {
		s.logger.Info("function inserted",
			"inserted", fn.name,
			"inserted_order", fn.order,
		)
	}

	info := StageInfo{RunID: m.runID, Index: s.index, Function: s.fn.name, Order: s.fn.order}
	m.observer.FunctionInserted(ctx, info, fn.name, fn.order, err)
	return err
}

func (m *Master) insertLocked(s *Stage, fn *Function) error {
	switch {
	case s.expired:
		return ErrStageExpired
	case m.state != StateRunning:
		return ErrNotRunning
	case s.advanced || m.cursor != s.index:
		return ErrNotCurrentStage
	}

	if fn.order <= s.fn.order {
		return fmt.Errorf("%w: %s has order %d, stage %s has order %d",
			ErrOrderViolation, fn.name, fn.order, s.fn.name, s.fn.order)
	}

	for _, e := range m.runList {
		if SameKey(e.fn, fn) {
			return fmt.Errorf("%w: %s", ErrDuplicateFunction, fn)
		}
		if e.ran && e.fn.name == fn.name {
			s.logger.Warn("inserted function name already executed in this run",
				"inserted", fn.name,
				"executed_order", e.fn.order,
				"inserted_order", fn.order,
			)
		}
	}

	// order вставки больше order текущего этапа, поэтому стабильная сортировка
	// не трогает уже выполненные позиции и курсор остаётся на месте.
	m.runList = append(m.runList, &entry{fn: fn})
	slices.SortStableFunc(m.runList, func(a, b *entry) int {
		return Compare(a.fn, b.fn)
	})
	return nil
}

// Cancel отменяет run: новые этапы больше не запускаются.
// Идемпотентен; выполняющийся этап не прерывается. После завершения run
// (StateDone) ничего не меняет.
func (m *Master) Cancel() {
	m.mu.Lock()
	if m.progress.Canceled || m.state == StateDone {
		m.mu.Unlock()
		return
	}
	m.progress.Canceled = true
	p := m.progress
	ctx := m.observerCtxLocked()
	m.mu.Unlock()

	m.logger.Info("run canceled")
	m.observer.ProgressChanged(ctx, m.runID, p)
}

// updateProgress применяет изменение прогресса и уведомляет наблюдателя.
func (m *Master) updateProgress(apply func(p *Progress)) {
	m.mu.Lock()
	apply(&m.progress)
	p := m.progress
	ctx := m.observerCtxLocked()
	m.mu.Unlock()

	m.observer.ProgressChanged(ctx, m.runID, p)
}

func (m *Master) observerCtxLocked() context.Context {
	if m.ctx == nil {
		return context.Background()
	}
	return context.WithoutCancel(m.ctx)
}

func (m *Master) namesLocked() []string {
	names := make([]string, len(m.runList))
	for i, e := range m.runList {
		names[i] = e.fn.name
	}
	return names
}

// RunID возвращает идентификатор run.
func (m *Master) RunID() uuid.UUID {
	return m.runID
}

// Document возвращает обрабатываемый документ.
func (m *Master) Document() *domain.Document {
	return m.doc
}

// State возвращает текущее состояние цепочки.
func (m *Master) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Progress возвращает согласованный снимок прогресса.
func (m *Master) Progress() Progress {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.progress
}

// IsCanceled сообщает, отменён ли run.
func (m *Master) IsCanceled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.progress.Canceled
}

// Cursor возвращает индекс текущего (последнего запущенного) этапа, -1 до старта.
func (m *Master) Cursor() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor
}

// Functions возвращает имена функций цепочки в порядке выполнения.
func (m *Master) Functions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.namesLocked()
}

// Executed возвращает имена выполненных (запущенных) функций в порядке запуска.
func (m *Master) Executed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.executed)
}

// Properties возвращает копию property bag.
func (m *Master) Properties() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.props)
}
