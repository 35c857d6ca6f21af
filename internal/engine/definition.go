package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shaiso/Printflow/internal/pipeline"
)

// FunctionDef — определение функции печати из конфигурации.
//
//	functions:
//	  - name: fields
//	    order: 10
//	  - name: notify
//	    type: http
//	    order: 900
//	    config:
//	      url: https://hooks.example.com/printed
type FunctionDef struct {
	// Name — имя функции (ключ в реестре).
	Name string `koanf:"name" json:"name"`

	// Order — приоритет: меньший выполняется раньше.
	Order int `koanf:"order" json:"order"`

	// Type — тип функции в каталоге. Пустой — совпадает с Name.
	Type string `koanf:"type" json:"type,omitempty"`

	// Config — конфигурация функции (зависит от типа).
	Config map[string]any `koanf:"config" json:"config,omitempty"`

	// Disabled — функция описана, но не регистрируется.
	Disabled bool `koanf:"disabled" json:"disabled,omitempty"`
}

// FunctionType возвращает тип функции для поиска в каталоге.
func (d FunctionDef) FunctionType() string {
	if d.Type != "" {
		return d.Type
	}
	return d.Name
}

// Catalog — каталог типов функций: по определению строит work.
//
// reg — реестр, который сейчас собирается. Функции, которые вставляют
// другие функции по имени, ищут их в нём во время выполнения.
type Catalog interface {
	Has(typ string) bool
	Build(def FunctionDef, reg *pipeline.Registry) (pipeline.WorkFunc, error)
}

type defKey struct {
	name  string
	order int
}

// ValidateDef проверяет одно определение.
func ValidateDef(def FunctionDef, catalog Catalog) error {
	if strings.TrimSpace(def.Name) == "" {
		return NewValidationError("", "name", "name is required", ErrEmptyName)
	}
	if catalog != nil && !catalog.Has(def.FunctionType()) {
		return NewValidationError(def.Name, "type",
			fmt.Sprintf("unknown type %q", def.FunctionType()), ErrUnknownType)
	}
	return nil
}

// Validate проверяет все определения и возвращает все найденные ошибки.
//
// Проверяет:
// - Наличие имени
// - Тип, известный каталогу
// - Уникальность (name, order)
func Validate(defs []FunctionDef, catalog Catalog) error {
	var errs []error
	seen := make(map[defKey]bool, len(defs))

	for _, def := range defs {
		if err := ValidateDef(def, catalog); err != nil {
			errs = append(errs, err)
			continue
		}

		key := defKey{def.Name, def.Order}
		if seen[key] {
			errs = append(errs, NewValidationError(def.Name, "order",
				fmt.Sprintf("duplicate definition with order %d", def.Order), ErrDuplicateDefinition))
			continue
		}
		seen[key] = true
	}

	return errors.Join(errs...)
}
