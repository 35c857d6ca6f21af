package functions

import (
	"context"
	"fmt"

	"github.com/shaiso/Printflow/internal/engine"
	"github.com/shaiso/Printflow/internal/pipeline"
)

// TypeSetProperties — тип функции, записывающей значения в property bag.
//
// Конфигурация:
//
//	properties:
//	  copies: 2
//	  tray: A4
const TypeSetProperties = "set_properties"

func newSetProperties(def engine.FunctionDef, _ *pipeline.Registry) (pipeline.WorkFunc, error) {
	props := GetConfigMap(def.Config, "properties")
	if len(props) == 0 {
		return nil, fmt.Errorf("%w: %s: properties are required", ErrInvalidConfig, TypeSetProperties)
	}

	return func(ctx context.Context, s *pipeline.Stage) error {
		for key, value := range props {
			s.SetProperty(key, value)
		}
		s.Logger().Debug("properties set", "count", len(props))
		return nil
	}, nil
}
