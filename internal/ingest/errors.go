package ingest

import "fmt"

// UploadError indicates a page's blob pair failed to reach object storage.
// All blobs uploaded so far for the document have been rolled back, so a
// retry is safe.
type UploadError struct {
	Page int
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("uploading page %d: %v", e.Page, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// ExtractionError indicates the extraction service failed. Uploaded blobs
// have been rolled back, so a retry is safe.
type ExtractionError struct {
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extracting receipt fields: %v", e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// PersistenceError indicates the database insert failed after extraction
// succeeded. The uploaded blobs are left in place; a blind retry would upload
// them again, so callers must surface this as a reportable inconsistency
// rather than retrying.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persisting receipt: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
