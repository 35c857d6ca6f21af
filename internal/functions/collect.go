package functions

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/shaiso/Printflow/internal/domain"
	"github.com/shaiso/Printflow/internal/engine"
	"github.com/shaiso/Printflow/internal/pipeline"
)

const (
	// TypeCollectSetup — начало сборки нескольких документов в один.
	TypeCollectSetup = "collect_setup"

	// TypeCollectOutput — слияние собранных документов.
	TypeCollectOutput = "collect_output"

	// PropertyCollectDir — каталог, куда функции складывают документы для сборки.
	PropertyCollectDir = "collect.dir"

	// PropertyCollectDuplex — выравнивать каждый документ до чётного числа страниц.
	PropertyCollectDuplex = "collect.duplex"

	mergedFileName = "merged.out"

	// currentFileName сортируется раньше файлов sources (001-...).
	currentFileName = "000-document.json"
)

// collectSetupFactory — функция с низким order, открывающая сборку.
//
// Создаёт временный каталог, кладёт в него файлы по шаблону sources,
// записывает путь в property collect.dir и передаёт управление дальше.
// Сам документ попадает в каталог только в collect_output, уже со всеми
// изменениями функций между setup и output. Функции между setup и output могут добавлять в каталог
// свои документы. После завершения всей цепочки каталог удаляется.
//
// Конфигурация:
//
//	sources: "/data/attachments/*.json"   // необязательный glob
//	duplex: true
func collectSetupFactory(scratchDir string) Factory {
	return func(def engine.FunctionDef, _ *pipeline.Registry) (pipeline.WorkFunc, error) {
		sources := GetConfigString(def.Config, "sources")
		duplex := GetConfigBool(def.Config, "duplex", false)
		if sources != "" {
			if _, err := filepath.Match(sources, ""); err != nil {
				return nil, fmt.Errorf("%w: %s: bad sources pattern: %v", ErrInvalidConfig, TypeCollectSetup, err)
			}
		}

		return func(ctx context.Context, s *pipeline.Stage) error {
			dir, err := os.MkdirTemp(scratchDir, "printflow-collect-*")
			if err != nil {
				return fmt.Errorf("create collect dir: %w", err)
			}
			defer func() {
				if err := os.RemoveAll(dir); err != nil {
					s.Logger().Warn("collect dir not removed", "dir", dir, "error", err)
				}
			}()

			if sources != "" {
				files, err := filepath.Glob(sources)
				if err != nil {
					return err
				}
				slices.Sort(files)
				for i, src := range files {
					doc, err := LoadDocument(src)
					if err != nil {
						return err
					}
					name := fmt.Sprintf("%03d-%s", i+1, filepath.Base(src))
					if err := SaveDocument(filepath.Join(dir, name), doc); err != nil {
						return err
					}
				}
			}

			s.SetProperty(PropertyCollectDir, dir)
			s.SetProperty(PropertyCollectDuplex, duplex)

			return s.Advance()
		}, nil
	}
}

// newCollectOutput — функция с высоким order, сливающая собранные документы
// в текущий.
func newCollectOutput(def engine.FunctionDef, _ *pipeline.Registry) (pipeline.WorkFunc, error) {
	return func(ctx context.Context, s *pipeline.Stage) error {
		dir, ok := pipeline.Property[string](s, PropertyCollectDir)
		if !ok || dir == "" {
			return ErrNoCollection
		}
		duplex, _ := pipeline.Property[bool](s, PropertyCollectDuplex)

		// Документ в его текущем виде идёт первым
		if err := SaveDocument(filepath.Join(dir, currentFileName), s.Document()); err != nil {
			return err
		}

		files, err := CollectedFiles(dir)
		if err != nil {
			return err
		}

		s.SetMessage("merging documents")
		merged, err := Merge(ctx, files, filepath.Join(dir, mergedFileName), MergeOptions{
			Duplex:   duplex,
			Canceled: s.IsCanceled,
			Progress: func(done, total int) {
				s.SetProgressMax(total)
				s.SetProgressValue(done)
			},
		})
		if errors.Is(err, ErrCanceled) {
			s.Logger().Info("merge canceled")
			return nil
		}
		if err != nil {
			return err
		}

		doc := s.Document()
		doc.Pages = merged.Pages
		if duplex {
			doc.Duplex = true
		}
		s.Logger().Info("documents merged", "files", len(files), "pages", doc.PageCount())
		return nil
	}, nil
}

// CollectedFiles возвращает JSON-файлы каталога сборки в порядке имён.
func CollectedFiles(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}
	slices.Sort(files)
	return files, nil
}

// MergeOptions — параметры слияния.
type MergeOptions struct {
	// Duplex — дополнять каждый документ до чётного числа страниц,
	// чтобы следующий начинался с лицевой стороны.
	Duplex bool

	// Canceled опрашивается перед каждым файлом.
	Canceled func() bool

	// Progress вызывается после каждого файла.
	Progress func(done, total int)
}

// Merge сливает документы files (в переданном порядке) в один и
// записывает результат в out.
//
// При отмене или ошибке частично записанный out удаляется, при отмене
// возвращается ErrCanceled.
func Merge(ctx context.Context, files []string, out string, opts MergeOptions) (result *domain.Document, err error) {
	defer func() {
		if err != nil {
			_ = os.Remove(out)
		}
	}()

	merged := &domain.Document{}
	for i, path := range files {
		if ctx.Err() != nil || (opts.Canceled != nil && opts.Canceled()) {
			return nil, ErrCanceled
		}

		doc, err := LoadDocument(path)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			merged.ID = doc.ID
			merged.Title = doc.Title
			merged.Fields = doc.Fields
		}

		merged.Pages = append(merged.Pages, doc.Pages...)
		if opts.Duplex {
			merged.PadForDuplex()
		}

		// Промежуточный результат пишется после каждого файла
		if err := SaveDocument(out, merged); err != nil {
			return nil, err
		}
		if opts.Progress != nil {
			opts.Progress(i+1, len(files))
		}
	}

	merged.Duplex = opts.Duplex
	return merged, nil
}
