package capture

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/zombor/receipt-ingest/internal/imaging"
)

// State identifies where a capture session is in its acquisition loop.
type State string

const (
	// StateCapture waits for the next photo to be acquired.
	StateCapture State = "capture"
	// StatePreview shows the pending, unconfirmed page.
	StatePreview State = "preview"
	// StateReview shows the whole confirmed page set before finalizing.
	StateReview State = "review"
)

var (
	ErrNotCapturing    = errors.New("session is not waiting for a photo")
	ErrCaptureInFlight = errors.New("a photo is already being optimized")
	ErrNoPendingPage   = errors.New("no pending page")
	ErrNotReviewing    = errors.New("session is not in review")
	ErrNotFirstPage    = errors.New("fast path only applies to the first page")
	ErrEmptyDocument   = errors.New("document has no pages")
	ErrSessionClosed   = errors.New("session is closed")
)

// IDGenerator generates unique page IDs.
type IDGenerator interface {
	Generate() string
}

type optimizeFunc func(ctx context.Context, src []byte, contentType string, opts imaging.Options) (*imaging.Optimized, error)

type uuidGenerator struct{}

func (uuidGenerator) Generate() string {
	return uuid.NewString()
}

// Session drives the single-photo-at-a-time acquisition loop: take a photo,
// preview it, confirm or retake, and accumulate confirmed pages into an
// in-memory document. It performs no network or storage calls; everything up
// to Finalize is pure and local, so Cancel is always externally a no-op.
type Session struct {
	mu       sync.Mutex
	opts     imaging.Options
	idGen    IDGenerator
	optimize optimizeFunc
	state    State
	pending  *Page
	doc      *Document
	busy     bool
	closed   bool
}

// NewSession creates a session in the capture state with an empty document.
func NewSession(opts imaging.Options) *Session {
	return NewSessionWithIDGenerator(opts, uuidGenerator{})
}

// NewSessionWithIDGenerator creates a session with a custom ID generator for
// testing.
func NewSessionWithIDGenerator(opts imaging.Options, idGen IDGenerator) *Session {
	return &Session{
		opts:     opts,
		idGen:    idGen,
		optimize: imaging.Optimize,
		state:    StateCapture,
		doc:      NewDocument(),
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Pending returns the unconfirmed page, if any.
func (s *Session) Pending() *Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Document returns the confirmed page set. The session retains ownership
// until Finalize hands it off.
func (s *Session) Document() *Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc
}

// AddPhoto optimizes an acquired photo and stores it as the pending page,
// moving the session to preview. Concurrent acquisition is disallowed: a
// second call while optimization is in flight fails with ErrCaptureInFlight.
func (s *Session) AddPhoto(ctx context.Context, data []byte, contentType string) (*Page, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if s.state != StateCapture {
		s.mu.Unlock()
		return nil, ErrNotCapturing
	}
	if s.busy {
		s.mu.Unlock()
		return nil, ErrCaptureInFlight
	}
	s.busy = true
	s.mu.Unlock()

	opt, err := s.optimize(ctx, data, contentType, s.opts)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	if err != nil {
		return nil, err
	}
	// A cancel may have landed while optimization ran unlocked; the result is
	// dropped rather than resurrecting the session.
	if s.closed {
		return nil, ErrSessionClosed
	}

	page := &Page{
		ID:         s.idGen.Generate(),
		Full:       opt.Full,
		Thumbnail:  opt.Thumbnail,
		PreviewURI: previewURI(opt.Full),
		PageNumber: s.doc.Len() + 1,
	}
	s.pending = page
	s.state = StatePreview
	return page, nil
}

// Confirm appends the pending page to the document and moves to review.
func (s *Session) Confirm() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if s.state != StatePreview || s.pending == nil {
		return ErrNoPendingPage
	}
	s.doc.Append(s.pending)
	s.pending = nil
	s.state = StateReview
	return nil
}

// Retake discards the pending page and returns to capture. Nothing outside
// memory is touched.
func (s *Session) Retake() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if s.state != StatePreview || s.pending == nil {
		return ErrNoPendingPage
	}
	s.pending = nil
	s.state = StateCapture
	return nil
}

// FinalizeSingle is the single-photo shortcut: when the pending page is the
// first page of the document, the caller may finalize immediately with just
// that page, bypassing review entirely.
func (s *Session) FinalizeSingle() (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.state != StatePreview || s.pending == nil {
		return nil, ErrNoPendingPage
	}
	if s.doc.Len() != 0 {
		return nil, ErrNotFirstPage
	}
	s.doc.Append(s.pending)
	s.pending = nil
	doc := s.doc
	s.doc = NewDocument()
	s.closed = true
	return doc, nil
}

// AddAnother returns to capture for the next page.
func (s *Session) AddAnother() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if s.state != StateReview {
		return ErrNotReviewing
	}
	s.state = StateCapture
	return nil
}

// RemovePage removes a confirmed page and renumbers the rest. If the document
// becomes empty the session returns to capture, otherwise it stays in review.
func (s *Session) RemovePage(pageNumber int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if s.state != StateReview {
		return ErrNotReviewing
	}
	if err := s.doc.Remove(pageNumber); err != nil {
		return err
	}
	if s.doc.Len() == 0 {
		s.state = StateCapture
	}
	return nil
}

// Finalize hands the full ordered document to the caller. Ownership of the
// document transfers; the session must not mutate it afterwards.
func (s *Session) Finalize() (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.state != StateReview {
		return nil, ErrNotReviewing
	}
	if s.doc.Len() == 0 {
		return nil, ErrEmptyDocument
	}
	doc := s.doc
	s.doc = NewDocument()
	s.closed = true
	return doc, nil
}

// Cancel discards everything in memory. Valid from any state; no network or
// storage calls have occurred, so cancellation has no external effect.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
	s.doc = NewDocument()
	s.closed = true
}
