package engine

import "errors"

// Ошибки валидации определений функций.
var (
	// ErrEmptyName — функция без имени.
	ErrEmptyName = errors.New("function has empty name")

	// ErrUnknownType — тип функции не найден в каталоге.
	ErrUnknownType = errors.New("unknown function type")

	// ErrDuplicateDefinition — несколько определений с одинаковыми (name, order).
	ErrDuplicateDefinition = errors.New("duplicate function definition")

	// ErrFunctionUnavailable — функцию не удалось собрать (неверная конфигурация и т.п.).
	ErrFunctionUnavailable = errors.New("function unavailable")

	// ErrNoRegistry — Session без реестра.
	ErrNoRegistry = errors.New("session has no registry")
)

// Ошибки рендеринга шаблонов.
var (
	// ErrTemplateRender — ошибка рендеринга шаблона.
	ErrTemplateRender = errors.New("template render failed")

	// ErrTemplateParse — ошибка парсинга шаблона.
	ErrTemplateParse = errors.New("template parse failed")
)

// ValidationError — ошибка валидации с контекстом.
type ValidationError struct {
	Function string // имя функции, где произошла ошибка
	Field    string // поле, вызвавшее ошибку
	Message  string // описание ошибки
	Err      error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.Function != "" {
		return "function " + e.Function + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(function, field, message string, err error) *ValidationError {
	return &ValidationError{
		Function: function,
		Field:    field,
		Message:  message,
		Err:      err,
	}
}
