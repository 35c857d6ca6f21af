// Package telemetry — логирование и метрики Printflow.
//
// logging.go настраивает slog (JSON или text) и переносит логгер через
// context вместе с атрибутами job_id, run_id, function.
//
// metrics.go объявляет Prometheus метрики этапов, вставок, run и HTTP API.
// MetricsObserver подключается к pipeline.Master как наблюдатель, поэтому
// цепочки функций не знают о Prometheus. Метрики отдаются на /metrics
// каждым сервисом.
package telemetry
