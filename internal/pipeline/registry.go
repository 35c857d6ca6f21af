package pipeline

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Registry — каталог доступных функций печати.
//
// Заполняется из конфигурации до запуска цепочек и только пополняется:
// удаления нет. Ключ — имя функции; повторная регистрация имени
// перезаписывает прежнюю (last write wins) с предупреждением в лог.
// Потокобезопасен.
type Registry struct {
	mu        sync.RWMutex
	functions map[string]*Function
	logger    *slog.Logger
}

// NewRegistry создаёт пустой реестр.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		functions: make(map[string]*Function),
		logger:    logger,
	}
}

// Register регистрирует функцию.
// Невалидная функция не регистрируется и возвращается ошибка.
func (r *Registry) Register(fn *Function) error {
	if err := fn.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, exists := r.functions[fn.name]; exists {
		r.logger.Warn("function registered twice, last registration wins",
			"function", fn.name,
			"previous_order", prev.order,
			"order", fn.order,
		)
	}
	r.functions[fn.name] = fn
	return nil
}

// Merge добавляет в реестр все функции из other.
// Коллизии имён разрешаются в пользу other.
func (r *Registry) Merge(other *Registry) {
	if other == nil || other == r {
		return
	}
	for _, fn := range other.Functions() {
		_ = r.Register(fn)
	}
}

// Get возвращает функцию по имени.
func (r *Registry) Get(name string) (*Function, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, exists := r.functions[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrFunctionNotFound, name)
	}
	return fn, nil
}

// Has проверяет, зарегистрирована ли функция.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.functions[name]
	return exists
}

// Count возвращает количество зарегистрированных функций.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.functions)
}

// Names возвращает имена функций в алфавитном порядке.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.functions))
	for name := range r.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Functions возвращает все функции в порядке выполнения (order, name).
func (r *Registry) Functions() []*Function {
	r.mu.RLock()
	fns := make([]*Function, 0, len(r.functions))
	for _, fn := range r.functions {
		fns = append(fns, fn)
	}
	r.mu.RUnlock()

	SortFunctions(fns)
	return fns
}

// Select возвращает выбранные по имени функции в порядке выполнения
// и количество функций реестра, не попавших в выборку.
// Пустой список имён означает "все функции".
func (r *Registry) Select(names []string) ([]*Function, int, error) {
	all := r.Functions()
	if len(names) == 0 {
		return all, 0, nil
	}

	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		if !r.Has(name) {
			return nil, 0, fmt.Errorf("%w: %s", ErrFunctionNotFound, name)
		}
		wanted[name] = true
	}

	selected := make([]*Function, 0, len(wanted))
	for _, fn := range all {
		if wanted[fn.name] {
			selected = append(selected, fn)
		}
	}
	return selected, len(all) - len(selected), nil
}
