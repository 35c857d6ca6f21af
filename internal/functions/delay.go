package functions

import (
	"context"
	"fmt"
	"time"

	"github.com/shaiso/Printflow/internal/engine"
	"github.com/shaiso/Printflow/internal/pipeline"
)

// TypeDelay — тип функции задержки.
const TypeDelay = "delay"

const defaultDelayTick = 50 * time.Millisecond

// newDelay — задержка (например, ожидание освобождения принтера).
//
// Опрашивает отмену run каждый tick и прерывается при отмене.
//
// Конфигурация:
//
//	duration_ms: 5000   // или duration: "5s"
//	tick: "50ms"
func newDelay(def engine.FunctionDef, _ *pipeline.Registry) (pipeline.WorkFunc, error) {
	duration := GetConfigDuration(def.Config, "duration", 0)
	if ms := GetConfigInt(def.Config, "duration_ms", 0); ms > 0 {
		duration = time.Duration(ms) * time.Millisecond
	}
	if duration <= 0 {
		return nil, fmt.Errorf("%w: %s: duration or duration_ms required", ErrInvalidConfig, TypeDelay)
	}
	tick := GetConfigDuration(def.Config, "tick", defaultDelayTick)
	if tick <= 0 {
		return nil, fmt.Errorf("%w: %s: tick must be positive, got %s", ErrInvalidConfig, TypeDelay, tick)
	}

	return func(ctx context.Context, s *pipeline.Stage) error {
		timer := time.NewTimer(duration)
		defer timer.Stop()

		ticker := time.NewTicker(tick)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", ErrCanceled, ctx.Err())
			case <-timer.C:
				return nil
			case <-ticker.C:
				if s.IsCanceled() {
					s.Logger().Debug("delay interrupted by cancellation")
					return nil
				}
			}
		}
	}, nil
}
