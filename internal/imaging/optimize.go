package imaging

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"
)

// Default optimization settings. They are configuration, not hard limits;
// callers can override any of them through Options.
const (
	DefaultMaxDimension     = 2048
	DefaultThumbnailSize    = 200
	DefaultQuality          = 0.92
	DefaultThumbnailQuality = 0.85
)

// Options controls how a source image is optimized.
type Options struct {
	// MaxDimension bounds the longer edge of the full derivative.
	MaxDimension int
	// ThumbnailSize is the side length of the square thumbnail.
	ThumbnailSize int
	// Quality is the JPEG quality of the full derivative, in (0, 1].
	Quality float64
	// ThumbnailQuality is the JPEG quality of the thumbnail. The thumbnail
	// is a disposable preview, so its default is lower than Quality.
	ThumbnailQuality float64
}

func (o Options) withDefaults() Options {
	if o.MaxDimension <= 0 {
		o.MaxDimension = DefaultMaxDimension
	}
	if o.ThumbnailSize <= 0 {
		o.ThumbnailSize = DefaultThumbnailSize
	}
	if o.Quality <= 0 {
		o.Quality = DefaultQuality
	}
	if o.ThumbnailQuality <= 0 {
		o.ThumbnailQuality = DefaultThumbnailQuality
	}
	return o
}

// Derivative is one encoded output of the optimization engine.
type Derivative struct {
	Data     []byte `json:"-"`
	MIMEType string `json:"mime_type"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// Optimized holds both derivatives of one source image. Both are always
// present; Optimize never returns a partial result.
type Optimized struct {
	Full      Derivative
	Thumbnail Derivative
}

// Optimize decodes a source image and produces a bounded-resolution full
// derivative plus a fixed-size square thumbnail, both JPEG. The two encodes
// run concurrently; the call returns once both complete or either fails.
func Optimize(ctx context.Context, src []byte, contentType string, opts Options) (*Optimized, error) {
	opts = opts.withDefaults()

	img, err := decode(src, contentType)
	if err != nil {
		return nil, err
	}

	var out Optimized
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		d, err := encodeFull(img, opts.MaxDimension, opts.Quality)
		if err != nil {
			return err
		}
		out.Full = *d
		return nil
	})
	g.Go(func() error {
		d, err := encodeThumbnail(img, opts.ThumbnailSize, opts.ThumbnailQuality)
		if err != nil {
			return err
		}
		out.Thumbnail = *d
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &out, nil
}

// fullSize keeps the native size when both dimensions fit within max,
// otherwise scales down preserving aspect ratio so the longer edge equals max.
func fullSize(w, h, max int) (int, int) {
	if w <= max && h <= max {
		return w, h
	}
	if w >= h {
		return max, int(math.Round(float64(h) * float64(max) / float64(w)))
	}
	return int(math.Round(float64(w) * float64(max) / float64(h))), max
}

func encodeFull(img image.Image, maxDimension int, quality float64) (*Derivative, error) {
	w, h := fullSize(img.Bounds().Dx(), img.Bounds().Dy(), maxDimension)
	canvas := renderOpaque(img, img.Bounds(), w, h)
	return encodeJPEG(canvas, "full", quality)
}

func encodeThumbnail(img image.Image, size int, quality float64) (*Derivative, error) {
	// Aspect-fill: crop the largest centered square, then scale it down.
	b := img.Bounds()
	side := b.Dx()
	if b.Dy() < side {
		side = b.Dy()
	}
	x0 := b.Min.X + (b.Dx()-side)/2
	y0 := b.Min.Y + (b.Dy()-side)/2
	crop := image.Rect(x0, y0, x0+side, y0+side)

	canvas := renderOpaque(img, crop, size, size)
	return encodeJPEG(canvas, "thumbnail", quality)
}

// renderOpaque scales src's region onto a white canvas, flattening any
// transparency. Receipts are always presented on a solid backdrop.
func renderOpaque(src image.Image, region image.Rectangle, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, region, xdraw.Over, nil)
	return dst
}

func encodeJPEG(img *image.RGBA, variant string, quality float64) (*Derivative, error) {
	var buf bytes.Buffer
	q := int(math.Round(quality * 100))
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: q}); err != nil {
		return nil, &EncodeError{Variant: variant, Err: err}
	}
	if buf.Len() == 0 {
		return nil, &EncodeError{Variant: variant, Err: errors.New("encoder produced no data")}
	}
	return &Derivative{
		Data:     buf.Bytes(),
		MIMEType: "image/jpeg",
		Width:    img.Bounds().Dx(),
		Height:   img.Bounds().Dy(),
	}, nil
}
