package engine

import (
	"fmt"
	"log/slog"

	"github.com/shaiso/Printflow/internal/pipeline"
)

// Load строит реестр функций по определениям из конфигурации.
//
// Невалидные, дублирующиеся и несобираемые определения логируются как
// недоступные и пропускаются: реестр строится из того, что удалось собрать.
// Все ошибки возвращаются вторым значением.
func Load(defs []FunctionDef, catalog Catalog, logger *slog.Logger) (*pipeline.Registry, []error) {
	if logger == nil {
		logger = slog.Default()
	}

	reg := pipeline.NewRegistry(logger)
	seen := make(map[defKey]bool, len(defs))
	var errs []error

	skip := func(def FunctionDef, err error) {
		logger.Warn("function unavailable",
			"function", def.Name,
			"type", def.FunctionType(),
			"order", def.Order,
			"error", err,
		)
		errs = append(errs, err)
	}

	for _, def := range defs {
		if def.Disabled {
			logger.Info("function disabled", "function", def.Name)
			continue
		}

		if err := ValidateDef(def, catalog); err != nil {
			skip(def, fmt.Errorf("%w: %w", ErrFunctionUnavailable, err))
			continue
		}

		key := defKey{def.Name, def.Order}
		if seen[key] {
			skip(def, fmt.Errorf("%w: %s(%d)", ErrDuplicateDefinition, def.Name, def.Order))
			continue
		}
		seen[key] = true

		work, err := catalog.Build(def, reg)
		if err != nil {
			skip(def, fmt.Errorf("%w: %s: %w", ErrFunctionUnavailable, def.Name, err))
			continue
		}

		if err := reg.Register(pipeline.NewFunction(def.Name, def.Order, work)); err != nil {
			skip(def, fmt.Errorf("%w: %w", ErrFunctionUnavailable, err))
			continue
		}
		logger.Debug("function registered",
			"function", def.Name,
			"type", def.FunctionType(),
			"order", def.Order,
		)
	}

	logger.Info("function registry loaded",
		"registered", reg.Count(),
		"unavailable", len(errs),
	)
	return reg, errs
}
