package domain

import (
	"maps"
	"slices"

	"github.com/google/uuid"
)

// Document — документ, который проходит через цепочку функций печати.
//
// Модель намеренно простая: страницы с текстом, поля формы и флаг
// двусторонней печати. Функции печати меняют только эти поля.
type Document struct {
	// ID — уникальный идентификатор документа.
	ID uuid.UUID `json:"id"`

	// Title — заголовок документа.
	Title string `json:"title"`

	// Pages — страницы в порядке печати.
	Pages []Page `json:"pages"`

	// Fields — значения полей формы.
	// Подставляются в страницы функцией fields: {{ .fields.name }}
	Fields map[string]string `json:"fields,omitempty"`

	// Duplex — документ печатается с двух сторон.
	Duplex bool `json:"duplex,omitempty"`
}

// Page — одна страница документа.
type Page struct {
	// Content — содержимое страницы (может содержать шаблоны полей).
	Content string `json:"content"`

	// Blank — пустая страница, добавленная для выравнивания при duplex.
	Blank bool `json:"blank,omitempty"`
}

// PageCount возвращает количество страниц.
func (d *Document) PageCount() int {
	return len(d.Pages)
}

// AppendBlankPage добавляет пустую страницу в конец.
func (d *Document) AppendBlankPage() {
	d.Pages = append(d.Pages, Page{Blank: true})
}

// PadForDuplex добавляет пустую страницу, если количество страниц нечётное.
// Возвращает true, если страница была добавлена.
func (d *Document) PadForDuplex() bool {
	if len(d.Pages)%2 == 0 {
		return false
	}
	d.AppendBlankPage()
	return true
}

// Clone возвращает глубокую копию документа.
func (d *Document) Clone() *Document {
	c := *d
	c.Pages = slices.Clone(d.Pages)
	c.Fields = maps.Clone(d.Fields)
	return &c
}
