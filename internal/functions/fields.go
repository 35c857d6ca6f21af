package functions

import (
	"context"
	"fmt"
	"maps"

	"github.com/shaiso/Printflow/internal/engine"
	"github.com/shaiso/Printflow/internal/pipeline"
)

// TypeFields — тип функции подстановки полей формы.
const TypeFields = "fields"

// newFields — подстановка полей формы в страницы документа.
//
// Значения полей берутся из документа, поверх них — из конфигурации.
// Значения из конфигурации сами могут быть шаблонами и ссылаться на
// property bag: {{ .Props.copies }}.
//
// Конфигурация:
//
//	fields:
//	  printed_by: "{{ .Props.user }}"
func newFields(def engine.FunctionDef, _ *pipeline.Registry) (pipeline.WorkFunc, error) {
	overrides := GetConfigMapString(def.Config, "fields")

	return func(ctx context.Context, s *pipeline.Stage) error {
		doc := s.Document()
		data := &engine.TemplateData{
			Title: doc.Title,
			Props: s.Properties(),
			Pages: doc.PageCount(),
		}

		rendered, err := engine.RenderStrings(overrides, data)
		if err != nil {
			return fmt.Errorf("render field overrides: %w", err)
		}

		fields := maps.Clone(doc.Fields)
		if fields == nil {
			fields = make(map[string]string, len(rendered))
		}
		maps.Copy(fields, rendered)
		data.Fields = fields

		s.SetProgressMax(len(doc.Pages))
		for i := range doc.Pages {
			if s.IsCanceled() {
				return nil
			}
			data.Page = i + 1

			content, err := engine.Render(doc.Pages[i].Content, data)
			if err != nil {
				return fmt.Errorf("page %d: %w", i+1, err)
			}
			doc.Pages[i].Content = content
			s.SetProgressValue(i + 1)
		}

		doc.Fields = fields
		return nil
	}, nil
}
