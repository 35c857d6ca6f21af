package pipeline

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
)

// WorkFunc — единица работы функции печати.
//
// Получает контекст этапа и Stage — единственный доступ к состоянию цепочки.
// Возвращённая ошибка (или паника) перехватывается на границе этапа,
// логируется, и цепочка продолжается.
type WorkFunc func(ctx context.Context, s *Stage) error

// Function — неизменяемое описание функции печати: имя, приоритет, work.
//
// Меньший order выполняется раньше, при равном order — по имени.
type Function struct {
	name  string
	order int
	work  WorkFunc
}

// NewFunction создаёт новую Function.
func NewFunction(name string, order int, work WorkFunc) *Function {
	return &Function{name: name, order: order, work: work}
}

// Name возвращает имя функции.
func (f *Function) Name() string {
	return f.name
}

// Order возвращает приоритет функции.
func (f *Function) Order() int {
	return f.order
}

// WithOrder возвращает копию функции с другим приоритетом.
func (f *Function) WithOrder(order int) *Function {
	return &Function{name: f.name, order: order, work: f.work}
}

// Validate проверяет, что функцию можно исполнить.
func (f *Function) Validate() error {
	if f == nil {
		return fmt.Errorf("%w: nil", ErrInvalidFunction)
	}
	if strings.TrimSpace(f.name) == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidFunction)
	}
	if f.work == nil {
		return fmt.Errorf("%w: %s: nil work", ErrInvalidFunction, f.name)
	}
	return nil
}

// String возвращает "name(order)".
func (f *Function) String() string {
	return fmt.Sprintf("%s(%d)", f.name, f.order)
}

// Compare задаёт полный порядок: order по возрастанию, затем name.
func Compare(a, b *Function) int {
	if c := cmp.Compare(a.order, b.order); c != 0 {
		return c
	}
	return strings.Compare(a.name, b.name)
}

// SameKey сообщает, совпадают ли name и order (дубликат регистрации).
func SameKey(a, b *Function) bool {
	return a.name == b.name && a.order == b.order
}

// SortFunctions стабильно сортирует функции по (order, name).
func SortFunctions(fns []*Function) {
	slices.SortStableFunc(fns, Compare)
}

// Names возвращает имена функций в исходном порядке.
func Names(fns []*Function) []string {
	names := make([]string, len(fns))
	for i, f := range fns {
		names[i] = f.name
	}
	return names
}
