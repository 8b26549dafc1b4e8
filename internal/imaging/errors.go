package imaging

import "fmt"

// DecodeError indicates the source bytes could not be decoded as an image.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding image: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// EncodeError indicates one of the derivatives failed to encode. Variant is
// either "full" or "thumbnail".
type EncodeError struct {
	Variant string
	Err     error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encoding %s image: %v", e.Variant, e.Err)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}

// RasterizationError indicates a page of a source document failed to render.
// Page is 1-based; it is 0 when the document itself could not be opened.
type RasterizationError struct {
	Page int
	Err  error
}

func (e *RasterizationError) Error() string {
	if e.Page == 0 {
		return fmt.Sprintf("opening document: %v", e.Err)
	}
	return fmt.Sprintf("rasterizing page %d: %v", e.Page, e.Err)
}

func (e *RasterizationError) Unwrap() error {
	return e.Err
}
