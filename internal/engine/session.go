package engine

import (
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Printflow/internal/domain"
	"github.com/shaiso/Printflow/internal/pipeline"
)

// Session — фабрика run для одного реестра.
//
// Session создаётся при старте сервиса (или CLI) и живёт всё время работы.
// Для каждого документа она создаёт новый Master, засеянный из реестра.
type Session struct {
	// Registry — реестр функций.
	Registry *pipeline.Registry

	// Terminal — терминальное действие по умолчанию.
	Terminal pipeline.TerminalFunc

	// Observer — наблюдатель для всех run (метрики).
	Observer pipeline.Observer

	// StageTimeout — таймаут этапа (0 — без ограничения).
	StageTimeout time.Duration

	// Logger
	Logger *slog.Logger
}

// RunOption настраивает отдельный run.
type RunOption func(*runOptions)

type runOptions struct {
	properties map[string]any
	observers  []pipeline.Observer
	terminal   pipeline.TerminalFunc
	logger     *slog.Logger
}

// WithProperties задаёт начальное содержимое property bag.
func WithProperties(props map[string]any) RunOption {
	return func(o *runOptions) {
		if o.properties == nil {
			o.properties = make(map[string]any, len(props))
		}
		maps.Copy(o.properties, props)
	}
}

// WithObserver добавляет наблюдателя только для этого run.
func WithObserver(observer pipeline.Observer) RunOption {
	return func(o *runOptions) {
		o.observers = append(o.observers, observer)
	}
}

// WithTerminal заменяет терминальное действие для этого run.
func WithTerminal(terminal pipeline.TerminalFunc) RunOption {
	return func(o *runOptions) {
		o.terminal = terminal
	}
}

// WithLogger заменяет логгер для этого run.
func WithLogger(logger *slog.Logger) RunOption {
	return func(o *runOptions) {
		o.logger = logger
	}
}

// NewRun создаёт Master для документа.
//
// selection — имена функций для этого run; пустой — все функции реестра.
// Неизвестное имя — ошибка pipeline.ErrFunctionNotFound.
func (s *Session) NewRun(runID uuid.UUID, doc *domain.Document, selection []string, opts ...RunOption) (*pipeline.Master, error) {
	if s.Registry == nil {
		return nil, ErrNoRegistry
	}

	o := runOptions{terminal: s.Terminal, logger: s.Logger}
	for _, opt := range opts {
		opt(&o)
	}

	fns, filtered, err := s.Registry.Select(selection)
	if err != nil {
		return nil, err
	}

	observers := append([]pipeline.Observer{s.Observer}, o.observers...)

	return pipeline.New(pipeline.Config{
		RunID:        runID,
		Document:     doc,
		Functions:    fns,
		Filtered:     filtered,
		Properties:   o.properties,
		Terminal:     o.terminal,
		Observer:     pipeline.MultiObserver(observers...),
		StageTimeout: s.StageTimeout,
		Logger:       o.logger,
	}), nil
}

// Plan возвращает функции, которые выполнит run с таким отбором, в порядке выполнения.
// Вставки во время выполнения в план не входят.
func (s *Session) Plan(selection []string) ([]*pipeline.Function, error) {
	if s.Registry == nil {
		return nil, ErrNoRegistry
	}
	fns, _, err := s.Registry.Select(selection)
	return fns, err
}
