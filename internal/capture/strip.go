package capture

import (
	"bytes"
	"html/template"
)

// StripItem is one entry in the page thumbnail strip.
type StripItem struct {
	PageNumber int    `json:"page_number"`
	PreviewURI string `json:"preview_uri"`
	Selected   bool   `json:"selected"`
}

// Strip is the ordered set of page previews shown during review. It is pure
// presentation; mutating the underlying document requires building a new one.
type Strip struct {
	Items     []StripItem `json:"items"`
	Removable bool        `json:"removable"`
}

// NewStrip builds a strip from the document's pages. selectedPage is the
// 1-based page to highlight, or 0 for none.
func NewStrip(doc *Document, selectedPage int, removable bool) Strip {
	items := make([]StripItem, 0, doc.Len())
	for _, p := range doc.Pages() {
		items = append(items, StripItem{
			PageNumber: p.PageNumber,
			PreviewURI: previewURI(p.Thumbnail),
			Selected:   p.PageNumber == selectedPage,
		})
	}
	return Strip{Items: items, Removable: removable}
}

var stripTemplate = template.Must(template.New("strip").Parse(`<div class="page-strip">
{{- range .Items }}
  <div class="page-strip-item{{ if .Selected }} selected{{ end }}" data-page="{{ .PageNumber }}">
    <img src="{{ .PreviewURI }}" alt="Page {{ .PageNumber }}">
    <span class="page-number">{{ .PageNumber }}</span>
    {{- if $.Removable }}
    <button class="remove-page" data-page="{{ .PageNumber }}" aria-label="Remove page {{ .PageNumber }}">&times;</button>
    {{- end }}
  </div>
{{- end }}
</div>`))

// RenderHTML renders the strip as an HTML fragment.
func (s Strip) RenderHTML() (template.HTML, error) {
	var buf bytes.Buffer
	if err := stripTemplate.Execute(&buf, s); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}
