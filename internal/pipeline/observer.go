package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Printflow/internal/domain"
)

// StageInfo — описание этапа для наблюдателей.
type StageInfo struct {
	RunID    uuid.UUID
	Index    int
	Function string
	Order    int
}

// RunResult — итог цепочки для наблюдателей.
type RunResult struct {
	RunID    uuid.UUID
	Executed []string
	Canceled bool
	Progress Progress
}

// Observer получает события цепочки: начало и конец run, начало и конец
// этапа, вставки функций, изменения прогресса.
//
// Вызовы синхронны и происходят вне мьютекса Master. Ошибки наблюдатель
// обрабатывает сам: на выполнение цепочки они не влияют.
type Observer interface {
	BeforeRun(ctx context.Context, runID uuid.UUID, doc *domain.Document, functions []string)
	AfterRun(ctx context.Context, result RunResult, err error)
	BeforeStage(ctx context.Context, info StageInfo)
	AfterStage(ctx context.Context, info StageInfo, stageErr error, abandoned bool, duration time.Duration)
	FunctionInserted(ctx context.Context, by StageInfo, fn string, order int, err error)
	ProgressChanged(ctx context.Context, runID uuid.UUID, progress Progress)
}

// NopObserver — Observer, который ничего не делает.
// Удобен для встраивания, когда нужны только некоторые события.
type NopObserver struct{}

func (NopObserver) BeforeRun(context.Context, uuid.UUID, *domain.Document, []string) {}
func (NopObserver) AfterRun(context.Context, RunResult, error)                         {}
func (NopObserver) BeforeStage(context.Context, StageInfo)                             {}
func (NopObserver) AfterStage(context.Context, StageInfo, error, bool, time.Duration)  {}
func (NopObserver) FunctionInserted(context.Context, StageInfo, string, int, error)    {}
func (NopObserver) ProgressChanged(context.Context, uuid.UUID, Progress)               {}

// MultiObserver объединяет несколько наблюдателей; события рассылаются по порядку.
func MultiObserver(observers ...Observer) Observer {
	list := make(multiObserver, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			list = append(list, o)
		}
	}
	return list
}

type multiObserver []Observer

func (m multiObserver) BeforeRun(ctx context.Context, runID uuid.UUID, doc *domain.Document, functions []string) {
	for _, o := range m {
		o.BeforeRun(ctx, runID, doc, functions)
	}
}

func (m multiObserver) AfterRun(ctx context.Context, result RunResult, err error) {
	for _, o := range m {
		o.AfterRun(ctx, result, err)
	}
}

func (m multiObserver) BeforeStage(ctx context.Context, info StageInfo) {
	for _, o := range m {
		o.BeforeStage(ctx, info)
	}
}

func (m multiObserver) AfterStage(ctx context.Context, info StageInfo, stageErr error, abandoned bool, duration time.Duration) {
	for _, o := range m {
		o.AfterStage(ctx, info, stageErr, abandoned, duration)
	}
}

func (m multiObserver) FunctionInserted(ctx context.Context, by StageInfo, fn string, order int, err error) {
	for _, o := range m {
		o.FunctionInserted(ctx, by, fn, order, err)
	}
}

func (m multiObserver) ProgressChanged(ctx context.Context, runID uuid.UUID, progress Progress) {
	for _, o := range m {
		o.ProgressChanged(ctx, runID, progress)
	}
}
