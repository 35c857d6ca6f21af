package functions

import (
	"context"
	"fmt"

	"github.com/shaiso/Printflow/internal/engine"
	"github.com/shaiso/Printflow/internal/pipeline"
)

// TypeInsert — тип функции, вставляющей другую функцию в цепочку.
const TypeInsert = "insert"

// newInsert — вставка зарегистрированной функции после текущего этапа.
//
// Позволяет подключать функцию только при определённом условии:
// если задан when, вставка выполняется, когда property when истинно.
//
// Конфигурация:
//
//	function: notify   // имя функции в реестре
//	order: 950         // order вставки (по умолчанию — order из реестра)
//	when: urgent       // необязательное имя property
func newInsert(def engine.FunctionDef, reg *pipeline.Registry) (pipeline.WorkFunc, error) {
	target := GetConfigString(def.Config, "function")
	if target == "" {
		return nil, fmt.Errorf("%w: %s: function is required", ErrInvalidConfig, TypeInsert)
	}
	if target == def.Name {
		return nil, fmt.Errorf("%w: %s: function cannot insert itself", ErrInvalidConfig, TypeInsert)
	}
	order := GetConfigInt(def.Config, "order", 0)
	when := GetConfigString(def.Config, "when")

	return func(ctx context.Context, s *pipeline.Stage) error {
		if when != "" {
			if enabled, _ := pipeline.Property[bool](s, when); !enabled {
				s.Logger().Debug("insertion skipped", "function_inserted", target, "when", when)
				return nil
			}
		}

		fn, err := reg.Get(target)
		if err != nil {
			return err
		}
		if order != 0 {
			fn = fn.WithOrder(order)
		}
		return s.Insert(fn)
	}, nil
}
