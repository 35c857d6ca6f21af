package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
)

// TemplateData — данные для шаблонов страниц документа.
//
// Доступ из шаблона:
//   - {{ .Fields.customer }} — поле формы
//   - {{ .Props.copies }}    — значение из property bag
//   - {{ .Title }}           — заголовок документа
//   - {{ .Page }} / {{ .Pages }} — номер страницы и их количество
type TemplateData struct {
	Title  string
	Fields map[string]string
	Props  map[string]any
	Page   int
	Pages  int
}

// templateFuncs — дополнительные функции для шаблонов.
var templateFuncs = template.FuncMap{
	// json — сериализует значение в JSON строку
	"json": func(v any) string {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("error: %v", err)
		}
		return string(b)
	},

	// default — возвращает значение по умолчанию, если первый аргумент пустой
	"default": func(def, val any) any {
		if val == nil {
			return def
		}
		if s, ok := val.(string); ok && s == "" {
			return def
		}
		return val
	},

	"join":  func(sep string, items []string) string { return strings.Join(items, sep) },
	"lower": strings.ToLower,
	"upper": strings.ToUpper,
	"trim":  strings.TrimSpace,

	// replace — заменяет подстроку
	"replace": strings.ReplaceAll,
}

// Render рендерит строковый шаблон.
//
// Строка без "{{" возвращается как есть. Отсутствующее поле формы
// рендерится пустой строкой, а не "<no value>".
func Render(tmpl string, data any) (string, error) {
	if !strings.Contains(tmpl, "{{") {
		return tmpl, nil
	}

	t, err := template.New("").Option("missingkey=zero").Funcs(templateFuncs).Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateParse, err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateRender, err)
	}

	return buf.String(), nil
}

// RenderStrings рендерит значения map[string]string одними и теми же данными.
func RenderStrings(values map[string]string, data any) (map[string]string, error) {
	result := make(map[string]string, len(values))
	for key, val := range values {
		rendered, err := Render(val, data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		result[key] = rendered
	}
	return result, nil
}
