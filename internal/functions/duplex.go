package functions

import (
	"context"

	"github.com/shaiso/Printflow/internal/engine"
	"github.com/shaiso/Printflow/internal/pipeline"
)

const (
	// TypeDuplex — тип функции двусторонней печати.
	TypeDuplex = "duplex"

	// PropertyDuplex — ключ property bag: документ печатается с двух сторон.
	PropertyDuplex = "duplex"

	defaultPadOrder = 1000
)

// newDuplex — функция двусторонней печати.
//
// Помечает документ как duplex и вставляет в конец цепочки функцию
// "<name>.pad", которая добавит пустую страницу при нечётном количестве
// страниц уже после всех функций, меняющих содержимое.
//
// Конфигурация:
//
//	pad: true         // выравнивать количество страниц (по умолчанию true)
//	pad_order: 1000   // order функции выравнивания
func newDuplex(def engine.FunctionDef, _ *pipeline.Registry) (pipeline.WorkFunc, error) {
	pad := GetConfigBool(def.Config, "pad", true)
	padOrder := GetConfigInt(def.Config, "pad_order", defaultPadOrder)
	padName := def.Name + ".pad"

	padWork := func(ctx context.Context, s *pipeline.Stage) error {
		if s.Document().PadForDuplex() {
			s.Logger().Debug("blank page added for duplex", "pages", s.Document().PageCount())
		}
		return nil
	}

	return func(ctx context.Context, s *pipeline.Stage) error {
		s.Document().Duplex = true
		s.SetProperty(PropertyDuplex, true)

		if pad && padOrder > s.Order() {
			return s.Insert(pipeline.NewFunction(padName, padOrder, padWork))
		}
		return nil
	}, nil
}
