package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Printflow/internal/domain"
	"github.com/shaiso/Printflow/internal/pipeline"
)

var (
	// StagesTotal — количество завершённых этапов по функции и итогу.
	StagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "printflow_stages_total",
		Help: "Total number of executed pipeline stages",
	}, []string{"function", "status"})

	// StageDuration — длительность этапов (включая остаток цепочки, если этап вызвал Advance).
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "printflow_stage_duration_seconds",
		Help:    "Pipeline stage duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"function"})

	// InsertionsTotal — попытки вставки функций по итогу.
	InsertionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "printflow_insertions_total",
		Help: "Total number of dynamic function insertions",
	}, []string{"result"})

	// RunsTotal — завершённые run по итогу.
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "printflow_runs_total",
		Help: "Total number of finished pipeline runs",
	}, []string{"status"})

	// ActiveRuns — run, выполняющиеся прямо сейчас.
	ActiveRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "printflow_active_runs",
		Help: "Number of pipeline runs in progress",
	})

	// HTTPRequestsTotal — HTTP запросы к API.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "printflow_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "status"})
)

// Значения label result для InsertionsTotal.
const (
	InsertionAccepted = "accepted"
	InsertionRejected = "rejected"
)

// MetricsHandler возвращает handler для /metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// MetricsObserver — pipeline.Observer, который пишет Prometheus метрики.
type MetricsObserver struct {
	pipeline.NopObserver
}

// NewMetricsObserver создаёт новый MetricsObserver.
func NewMetricsObserver() *MetricsObserver {
	return &MetricsObserver{}
}

// BeforeRun увеличивает количество активных run.
func (o *MetricsObserver) BeforeRun(context.Context, uuid.UUID, *domain.Document, []string) {
	ActiveRuns.Inc()
}

// AfterRun фиксирует итог run.
func (o *MetricsObserver) AfterRun(_ context.Context, result pipeline.RunResult, err error) {
	ActiveRuns.Dec()
	RunsTotal.WithLabelValues(RunStatus(result, err)).Inc()
}

// AfterStage фиксирует итог и длительность этапа.
func (o *MetricsObserver) AfterStage(_ context.Context, info pipeline.StageInfo, stageErr error, abandoned bool, duration time.Duration) {
	StagesTotal.WithLabelValues(info.Function, string(StageStatus(stageErr, abandoned))).Inc()
	StageDuration.WithLabelValues(info.Function).Observe(duration.Seconds())
}

// FunctionInserted считает вставки функций.
func (o *MetricsObserver) FunctionInserted(_ context.Context, _ pipeline.StageInfo, _ string, _ int, err error) {
	if err != nil {
		InsertionsTotal.WithLabelValues(InsertionRejected).Inc()
		return
	}
	InsertionsTotal.WithLabelValues(InsertionAccepted).Inc()
}

// StageStatus переводит итог этапа в статус журнала.
func StageStatus(stageErr error, abandoned bool) domain.StageStatus {
	switch {
	case abandoned:
		return domain.StageStatusAbandoned
	case stageErr != nil:
		return domain.StageStatusFailed
	default:
		return domain.StageStatusSucceeded
	}
}

// RunStatus переводит итог run в label статуса: succeeded, failed, canceled.
func RunStatus(result pipeline.RunResult, err error) string {
	switch {
	case err != nil:
		return "failed"
	case result.Canceled:
		return "canceled"
	default:
		return "succeeded"
	}
}
