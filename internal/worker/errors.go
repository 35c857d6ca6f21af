package worker

import "errors"

// Ошибки воркера.
var (
	// ErrJobNotFound — job не найден в БД.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobNotPending — job уже взят другим воркером, отменён или завершён.
	ErrJobNotPending = errors.New("job is not in PENDING status")

	// ErrNoSession — воркер создан без engine.Session.
	ErrNoSession = errors.New("engine session is not configured")
)
