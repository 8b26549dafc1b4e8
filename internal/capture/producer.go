package capture

import (
	"context"

	"github.com/zombor/receipt-ingest/internal/imaging"
)

// Producer yields a normalized document of optimized pages regardless of the
// input source, so the upload orchestrator never branches on source type.
type Producer interface {
	Produce(ctx context.Context) (*Document, error)
}

// PhotoInput is one selected image file.
type PhotoInput struct {
	Data        []byte
	ContentType string
}

// PhotoProducer optimizes directly-selected image files, one page per file,
// in selection order.
type PhotoProducer struct {
	inputs []PhotoInput
	opts   imaging.Options
	idGen  IDGenerator
}

func NewPhotoProducer(inputs []PhotoInput, opts imaging.Options) *PhotoProducer {
	return &PhotoProducer{inputs: inputs, opts: opts, idGen: uuidGenerator{}}
}

func (p *PhotoProducer) Produce(ctx context.Context) (*Document, error) {
	doc := NewDocument()
	for _, in := range p.inputs {
		opt, err := imaging.Optimize(ctx, in.Data, in.ContentType, p.opts)
		if err != nil {
			return nil, err
		}
		doc.Append(&Page{
			ID:         p.idGen.Generate(),
			Full:       opt.Full,
			Thumbnail:  opt.Thumbnail,
			PreviewURI: previewURI(opt.Full),
		})
	}
	return doc, nil
}

// DocumentProducer rasterizes a paginated source (PDF) and optimizes every
// rendered page, so a paginated source ends up at the same resolution and
// format ceiling as a photographed one.
type DocumentProducer struct {
	src   []byte
	opts  imaging.Options
	idGen IDGenerator
}

func NewDocumentProducer(src []byte, opts imaging.Options) *DocumentProducer {
	return &DocumentProducer{src: src, opts: opts, idGen: uuidGenerator{}}
}

func (p *DocumentProducer) Produce(ctx context.Context) (*Document, error) {
	pages, err := imaging.Rasterize(p.src)
	if err != nil {
		return nil, err
	}
	doc := NewDocument()
	for _, pg := range pages {
		opt, err := imaging.Optimize(ctx, pg.Data, "image/png", p.opts)
		if err != nil {
			return nil, err
		}
		doc.Append(&Page{
			ID:         p.idGen.Generate(),
			Full:       opt.Full,
			Thumbnail:  opt.Thumbnail,
			PreviewURI: previewURI(opt.Full),
		})
	}
	return doc, nil
}
