package functions

import "errors"

// Ошибки функций печати.
var (
	// ErrTypeNotFound — тип функции не найден в каталоге.
	ErrTypeNotFound = errors.New("function type not found")

	// ErrInvalidConfig — невалидная конфигурация функции.
	ErrInvalidConfig = errors.New("invalid function config")

	// ErrCanceled — функция прервана отменой run.
	ErrCanceled = errors.New("function canceled")

	// ErrNoCollection — collect_output без collect_setup.
	ErrNoCollection = errors.New("no collection in progress")
)
