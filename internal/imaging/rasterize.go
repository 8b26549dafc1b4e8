package imaging

import (
	"bytes"
	"image/png"

	"github.com/gen2brain/go-fitz"
)

// rasterDPI renders pages at 2.0x the PDF-native 72 DPI. The oversampled
// raster is fed through Optimize afterwards, so paginated sources end up at
// the same resolution ceiling as photographed ones.
const rasterDPI = 144

// PageImage is one rendered page of a paginated source document.
type PageImage struct {
	Data       []byte
	PageNumber int
}

// Rasterize expands a paginated source document (PDF) into one PNG per page,
// ordered ascending from page 1. Any single page failing to render aborts the
// whole call; no partial page set is returned.
func Rasterize(src []byte) ([]PageImage, error) {
	doc, err := fitz.NewFromMemory(src)
	if err != nil {
		return nil, &RasterizationError{Err: err}
	}
	defer doc.Close()

	pages := make([]PageImage, 0, doc.NumPage())
	for i := 0; i < doc.NumPage(); i++ {
		img, err := doc.ImageDPI(i, rasterDPI)
		if err != nil {
			return nil, &RasterizationError{Page: i + 1, Err: err}
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, &RasterizationError{Page: i + 1, Err: err}
		}
		pages = append(pages, PageImage{Data: buf.Bytes(), PageNumber: i + 1})
	}
	return pages, nil
}
