package engine

import (
	"errors"
	"testing"
)

func testData() *TemplateData {
	return &TemplateData{
		Title:  "Invoice",
		Fields: map[string]string{"customer": "ACME", "total": "42.00"},
		Props:  map[string]any{"copies": 3, "tags": []string{"a", "b"}},
		Page:   1,
		Pages:  2,
	}
}

func TestRender(t *testing.T) {
	tests := []struct {
		name     string
		template string
		expected string
	}{
		{
			name:     "field",
			template: "Customer: {{ .Fields.customer }}",
			expected: "Customer: ACME",
		},
		{
			name:     "property",
			template: "Copies: {{ .Props.copies }}",
			expected: "Copies: 3",
		},
		{
			name:     "page counter",
			template: "{{ .Title }} {{ .Page }}/{{ .Pages }}",
			expected: "Invoice 1/2",
		},
		{
			name:     "missing field renders empty",
			template: "[{{ .Fields.missing }}]",
			expected: "[]",
		},
		{
			name:     "no template",
			template: "Plain text",
			expected: "Plain text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Render(tt.template, testData())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestRender_TemplateFunctions(t *testing.T) {
	tests := []struct {
		name     string
		template string
		expected string
	}{
		{
			name:     "lower",
			template: "{{ lower .Fields.customer }}",
			expected: "acme",
		},
		{
			name:     "upper",
			template: "{{ upper .Title }}",
			expected: "INVOICE",
		},
		{
			name:     "default with value",
			template: `{{ default "n/a" .Fields.customer }}`,
			expected: "ACME",
		},
		{
			name:     "default with missing property",
			template: `{{ default "n/a" .Props.missing }}`,
			expected: "n/a",
		},
		{
			name:     "json",
			template: `{{ json .Props.tags }}`,
			expected: `["a","b"]`,
		},
		{
			name:     "replace",
			template: `{{ replace .Fields.total "." "," }}`,
			expected: "42,00",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Render(tt.template, testData())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestRender_InvalidTemplate(t *testing.T) {
	// Некорректный синтаксис
	_, err := Render("{{ .Invalid syntax", testData())
	if !errors.Is(err, ErrTemplateParse) {
		t.Errorf("expected ErrTemplateParse, got %v", err)
	}

	// Ошибка выполнения: поле не существует у структуры
	_, err = Render("{{ .Unknown }}", testData())
	if !errors.Is(err, ErrTemplateRender) {
		t.Errorf("expected ErrTemplateRender, got %v", err)
	}
}

func TestRenderStrings(t *testing.T) {
	out, err := RenderStrings(map[string]string{
		"greeting": "Dear {{ .Fields.customer }}",
		"static":   "ok",
	}, testData())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["greeting"] != "Dear ACME" || out["static"] != "ok" {
		t.Errorf("unexpected result: %v", out)
	}
}
