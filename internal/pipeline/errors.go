package pipeline

import "errors"

// Ошибки конфигурации.
var (
	// ErrEmptyRunList — цепочка не содержит ни одной функции.
	ErrEmptyRunList = errors.New("run list is empty")

	// ErrInvalidFunction — функция без имени или без work.
	ErrInvalidFunction = errors.New("invalid function")

	// ErrFunctionNotFound — функция не зарегистрирована в реестре.
	ErrFunctionNotFound = errors.New("function not found")

	// ErrDuplicateFunction — функция с таким же (name, order) уже есть в цепочке.
	ErrDuplicateFunction = errors.New("duplicate function")
)

// Ошибки выполнения цепочки.
var (
	// ErrOrderViolation — вставляемая функция имеет order <= order текущего этапа.
	ErrOrderViolation = errors.New("inserted function must have a greater order than the current stage")

	// ErrNotCurrentStage — вставка не из текущего исполняемого этапа.
	ErrNotCurrentStage = errors.New("stage is not the current stage")

	// ErrStageExpired — Stage использован после завершения своего этапа.
	ErrStageExpired = errors.New("stage view expired")

	// ErrAlreadyAdvanced — Advance уже вызывался на этом этапе.
	ErrAlreadyAdvanced = errors.New("stage already advanced")

	// ErrAlreadyStarted — Master уже запускался (Master одноразовый).
	ErrAlreadyStarted = errors.New("run already started")

	// ErrNotRunning — цепочка не в состоянии Running.
	ErrNotRunning = errors.New("run is not running")

	// ErrStageTimeout — этап не завершился за отведённое время.
	ErrStageTimeout = errors.New("stage timeout")

	// ErrStagePanic — work этапа паниковал.
	ErrStagePanic = errors.New("stage panicked")

	// ErrTerminalFailed — терминальное действие завершилось ошибкой.
	ErrTerminalFailed = errors.New("terminal action failed")
)
