package capture

import (
	"encoding/base64"
	"fmt"

	"github.com/zombor/receipt-ingest/internal/imaging"
)

// Page is one acquired, optimized page prior to persistence.
type Page struct {
	ID         string
	Full       imaging.Derivative
	Thumbnail  imaging.Derivative
	PreviewURI string // renderable in-memory representation, never persisted
	PageNumber int    // 1-based position within the document
}

// Document is an ordered, mutable sequence of pages, live only in memory for
// the duration of one capture/upload session. Page numbers are always the
// contiguous range 1..N; removal renumbers all subsequent pages.
type Document struct {
	pages []*Page
}

func NewDocument() *Document {
	return &Document{}
}

// Append adds a page at the end of the document and assigns its page number.
func (d *Document) Append(p *Page) {
	p.PageNumber = len(d.pages) + 1
	d.pages = append(d.pages, p)
}

// Remove deletes the page with the given 1-based number and renumbers the
// remaining pages.
func (d *Document) Remove(pageNumber int) error {
	if pageNumber < 1 || pageNumber > len(d.pages) {
		return fmt.Errorf("no page %d in a %d-page document", pageNumber, len(d.pages))
	}
	d.pages = append(d.pages[:pageNumber-1], d.pages[pageNumber:]...)
	for i, p := range d.pages {
		p.PageNumber = i + 1
	}
	return nil
}

// Pages returns the ordered page set.
func (d *Document) Pages() []*Page {
	return d.pages
}

func (d *Document) Len() int {
	return len(d.pages)
}

// previewURI builds a data URI for on-screen display of a derivative.
func previewURI(d imaging.Derivative) string {
	return "data:" + d.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(d.Data)
}
