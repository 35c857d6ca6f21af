package functions

import (
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/shaiso/Printflow/internal/engine"
	"github.com/shaiso/Printflow/internal/pipeline"
)

// Factory строит work функции по её определению.
//
// reg — собираемый реестр; фабрики, которым нужны другие функции
// (insert), ищут их в нём во время выполнения, а не при сборке.
type Factory func(def engine.FunctionDef, reg *pipeline.Registry) (pipeline.WorkFunc, error)

// Catalog — каталог типов функций печати.
//
// Позволяет регистрировать и получать фабрики по типу.
// Потокобезопасен. Реализует engine.Catalog.
type Catalog struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// Options — зависимости встроенных функций.
type Options struct {
	// HTTPClient — клиент для http (по умолчанию с таймаутом 30s).
	HTTPClient *http.Client

	// ScratchDir — где collect_setup создаёт временные каталоги (по умолчанию os.TempDir).
	ScratchDir string
}

// NewCatalog создаёт пустой каталог.
func NewCatalog() *Catalog {
	return &Catalog{
		factories: make(map[string]Factory),
	}
}

// DefaultCatalog создаёт каталог со всеми встроенными функциями.
func DefaultCatalog(opts Options) *Catalog {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: defaultHTTPTimeout}
	}

	c := NewCatalog()
	c.Register(TypeSetProperties, newSetProperties)
	c.Register(TypeDuplex, newDuplex)
	c.Register(TypeFields, newFields)
	c.Register(TypeDelay, newDelay)
	c.Register(TypeHTTP, httpFactory(opts.HTTPClient))
	c.Register(TypeInsert, newInsert)
	c.Register(TypeCollectSetup, collectSetupFactory(opts.ScratchDir))
	c.Register(TypeCollectOutput, newCollectOutput)

	return c
}

// Register регистрирует фабрику.
// Если тип уже существует, он будет перезаписан.
func (c *Catalog) Register(typ string, factory Factory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factories[typ] = factory
}

// Has проверяет, зарегистрирован ли тип.
func (c *Catalog) Has(typ string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, exists := c.factories[typ]
	return exists
}

// Types возвращает список всех зарегистрированных типов.
func (c *Catalog) Types() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	types := make([]string, 0, len(c.factories))
	for t := range c.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Build строит work по определению.
func (c *Catalog) Build(def engine.FunctionDef, reg *pipeline.Registry) (pipeline.WorkFunc, error) {
	c.mu.RLock()
	factory, exists := c.factories[def.FunctionType()]
	c.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrTypeNotFound, def.FunctionType())
	}

	config := def.Config
	if config == nil {
		config = make(map[string]any)
	}
	def.Config = config

	return factory(def, reg)
}
