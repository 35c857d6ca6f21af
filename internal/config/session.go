package config

import (
	"log/slog"
	"net/http"

	"github.com/shaiso/Printflow/internal/engine"
	"github.com/shaiso/Printflow/internal/functions"
	"github.com/shaiso/Printflow/internal/pipeline"
)

// Catalog создаёт каталог встроенных функций с настройками из секции output.
func (c *Config) Catalog() *functions.Catalog {
	var client *http.Client
	if c.Output.HTTPTimeout > 0 {
		client = &http.Client{Timeout: c.Output.HTTPTimeout}
	}
	return functions.DefaultCatalog(functions.Options{
		HTTPClient: client,
		ScratchDir: c.Output.ScratchDir,
	})
}

// Session собирает реестр функций и создаёт engine.Session.
//
// Терминальное действие по умолчанию пишет документ в output.dir.
// Недоступные функции возвращаются вторым значением; сессия создаётся всё равно.
func (c *Config) Session(observer pipeline.Observer, logger *slog.Logger) (*engine.Session, []error) {
	if logger == nil {
		logger = slog.Default()
	}

	reg, errs := engine.Load(c.Functions, c.Catalog(), logger)

	return &engine.Session{
		Registry:     reg,
		Terminal:     functions.FileTerminal(c.Output.Dir, logger),
		Observer:     observer,
		StageTimeout: c.Worker.StageTimeout,
		Logger:       logger,
	}, errs
}
