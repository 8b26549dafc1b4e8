package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/zombor/receipt-ingest/internal/capture"
	"github.com/zombor/receipt-ingest/internal/extraction"
	"github.com/zombor/receipt-ingest/internal/objectstore"
)

// IDGenerator generates unique record IDs.
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time.
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Orchestrator turns a finalized in-memory document into a durable receipt:
// it uploads every page's full+thumbnail pair, invokes extraction, and
// persists the record(s). Uploads proceed one page at a time; only the two
// blobs of a single pair are ever in flight together, which keeps peak memory
// and open connections bounded regardless of document length.
//
// If any upload or the extraction fails, every blob uploaded so far for the
// document is deleted before the error is surfaced. A persistence failure
// after successful extraction does not delete blobs; see PersistenceError.
type Orchestrator struct {
	store     objectstore.Store
	db        DB
	extractor extraction.Coordinator
	idGen     IDGenerator
	clock     TimeSource
}

// NewOrchestrator creates an Orchestrator with default ID generation and
// clock.
func NewOrchestrator(store objectstore.Store, db DB, extractor extraction.Coordinator) *Orchestrator {
	return NewOrchestratorWithDeps(store, db, extractor, uuidGenerator{}, defaultTimeSource{})
}

// NewOrchestratorWithDeps creates an Orchestrator with custom dependencies
// for testing.
func NewOrchestratorWithDeps(store objectstore.Store, db DB, extractor extraction.Coordinator, idGen IDGenerator, clock TimeSource) *Orchestrator {
	return &Orchestrator{
		store:     store,
		db:        db,
		extractor: extractor,
		idGen:     idGen,
		clock:     clock,
	}
}

// Ingest uploads a finalized document to the given collection, extracts its
// fields, and persists the receipt. Once begun the operation runs to
// completion, success or rollback; it is not interruptible mid-flight.
func (o *Orchestrator) Ingest(ctx context.Context, doc *capture.Document, collectionID string) (*Receipt, error) {
	pages := doc.Pages()
	if len(pages) == 0 {
		return nil, errors.New("document has no pages")
	}

	id := o.idGen.Generate()
	refs, err := o.uploadPages(ctx, id, collectionID, pages)
	if err != nil {
		return nil, err
	}

	result, err := o.extract(ctx, refs, collectionID, id, len(pages) > 1)
	if err != nil {
		o.rollback(ctx, refs)
		return nil, &ExtractionError{Err: err}
	}

	receipt, err := o.persist(id, collectionID, result, refs)
	if err != nil {
		return nil, &PersistenceError{Err: err}
	}
	return receipt, nil
}

// PendingReceipt is a single-page ingest paused for user verification. The
// page's blobs are already uploaded; Confirm persists the record and Cancel
// deletes the blobs exactly as an ingest failure would. Confirm and Cancel
// are mutually exclusive; whichever runs first wins.
type PendingReceipt struct {
	Result *extraction.Result

	orch         *Orchestrator
	id           string
	collectionID string
	ref          PageRef

	mu   sync.Mutex
	done bool
}

// IngestSingle uploads a one-page document and returns the extraction result
// without persisting, so the caller can show it for correction first. The
// multi-page path has no such detour; its records are inserted immediately
// upon successful extraction.
func (o *Orchestrator) IngestSingle(ctx context.Context, doc *capture.Document, collectionID string) (*PendingReceipt, error) {
	pages := doc.Pages()
	if len(pages) != 1 {
		return nil, fmt.Errorf("expected a single-page document, got %d pages", len(pages))
	}

	id := o.idGen.Generate()
	refs, err := o.uploadPages(ctx, id, collectionID, pages)
	if err != nil {
		return nil, err
	}

	result, err := o.extract(ctx, refs, collectionID, id, false)
	if err != nil {
		o.rollback(ctx, refs)
		return nil, &ExtractionError{Err: err}
	}

	return &PendingReceipt{
		Result:       result,
		orch:         o,
		id:           id,
		collectionID: collectionID,
		ref:          refs[0],
	}, nil
}

// Confirm persists the flat record, using the corrected result when provided.
func (p *PendingReceipt) Confirm(ctx context.Context, corrected *extraction.Result) (*Receipt, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return nil, errors.New("verification already completed")
	}
	result := p.Result
	if corrected != nil {
		result = corrected
	}
	receipt, err := p.orch.persist(p.id, p.collectionID, result, []PageRef{p.ref})
	if err != nil {
		return nil, &PersistenceError{Err: err}
	}
	p.done = true
	return receipt, nil
}

// Cancel deletes the uploaded blobs.
func (p *PendingReceipt) Cancel(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return
	}
	p.orch.rollback(ctx, []PageRef{p.ref})
	p.done = true
}

// uploadPages uploads each page's full+thumbnail pair under document-scoped,
// timestamp-and-page-number-qualified keys. Pages upload sequentially; the
// two blobs within a pair upload concurrently. On failure it rolls back
// everything uploaded so far, including the failing pair.
func (o *Orchestrator) uploadPages(ctx context.Context, id, collectionID string, pages []*capture.Page) ([]PageRef, error) {
	stamp := o.clock.Now().UnixMilli()
	refs := make([]PageRef, 0, len(pages))
	for _, page := range pages {
		page := page
		ref := PageRef{
			FullObjectKey:      objectKey(collectionID, id, stamp, page.PageNumber, "full"),
			ThumbnailObjectKey: objectKey(collectionID, id, stamp, page.PageNumber, "thumb"),
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return o.store.Upload(gctx, ref.FullObjectKey, page.Full.Data, page.Full.MIMEType)
		})
		g.Go(func() error {
			return o.store.Upload(gctx, ref.ThumbnailObjectKey, page.Thumbnail.Data, page.Thumbnail.MIMEType)
		})
		if err := g.Wait(); err != nil {
			o.rollback(ctx, append(refs, ref))
			return nil, &UploadError{Page: page.PageNumber, Err: err}
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func objectKey(collectionID, id string, stamp int64, pageNumber int, variant string) string {
	return fmt.Sprintf("receipts/%s/%s/%d-p%d-%s.jpg", collectionID, id, stamp, pageNumber, variant)
}

func (o *Orchestrator) extract(ctx context.Context, refs []PageRef, collectionID, id string, isMultiPage bool) (*extraction.Result, error) {
	keys := make([]string, 0, len(refs))
	for _, ref := range refs {
		keys = append(keys, ref.FullObjectKey)
	}
	req := extraction.Request{
		ObjectKeys:   keys,
		IsMultiPage:  isMultiPage,
		CollectionID: collectionID,
	}
	if isMultiPage {
		req.ParentReceiptID = id
	}
	return o.extractor.Extract(ctx, req)
}

// rollback deletes every blob uploaded so far for the document. Deletion is
// best effort but always runs to completion.
func (o *Orchestrator) rollback(ctx context.Context, refs []PageRef) {
	keys := make([]string, 0, len(refs)*2)
	for _, ref := range refs {
		keys = append(keys, ref.FullObjectKey, ref.ThumbnailObjectKey)
	}
	slog.Info("Rolling back uploaded blobs", "count", len(keys))
	o.store.Delete(ctx, keys)
}

// persist inserts the receipt record(s): one flat record for a single page,
// or a parent record followed by child page rows for a multi-page document.
func (o *Orchestrator) persist(id, collectionID string, result *extraction.Result, refs []PageRef) (*Receipt, error) {
	now := o.clock.Now()
	receipt := receiptFromResult(id, collectionID, result, now)
	receipt.TotalPages = len(refs)

	if len(refs) == 1 {
		receipt.FullObjectKey = refs[0].FullObjectKey
		receipt.ThumbnailObjectKey = refs[0].ThumbnailObjectKey
		if err := o.db.SaveReceipt(receipt); err != nil {
			return nil, fmt.Errorf("saving receipt: %w", err)
		}
		return receipt, nil
	}

	receipt.IsParent = true
	if err := o.db.SaveReceipt(receipt); err != nil {
		return nil, fmt.Errorf("saving parent receipt: %w", err)
	}

	pages := make([]*ReceiptPage, 0, len(refs))
	for i, ref := range refs {
		pages = append(pages, &ReceiptPage{
			ID:                 o.idGen.Generate(),
			ParentReceiptID:    id,
			PageNumber:         i + 1,
			FullObjectKey:      ref.FullObjectKey,
			ThumbnailObjectKey: ref.ThumbnailObjectKey,
			CreatedAt:          now,
		})
	}
	if err := o.db.SavePages(pages); err != nil {
		return nil, fmt.Errorf("saving receipt pages: %w", err)
	}
	return receipt, nil
}

// receiptFromResult maps extraction output onto a record, converting dollar
// amounts to cents.
func receiptFromResult(id, collectionID string, result *extraction.Result, now time.Time) *Receipt {
	receipt := &Receipt{
		ID:              id,
		CollectionID:    collectionID,
		TransactionDate: now,
		TotalCents:      cents(result.Total),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if result.Date != nil && *result.Date != "" {
		if date, err := time.Parse("2006-01-02", *result.Date); err == nil {
			receipt.TransactionDate = date
		}
	}
	if result.Time != nil {
		receipt.TransactionTime = *result.Time
	}
	if result.VendorName != nil {
		receipt.VendorName = *result.VendorName
	}
	if result.VendorAddress != nil {
		receipt.VendorAddress = *result.VendorAddress
	}
	if result.Subtotal != nil {
		receipt.SubtotalCents = cents(*result.Subtotal)
	}
	if result.Tax1Amount != nil {
		receipt.Tax1Cents = cents(*result.Tax1Amount)
	}
	if result.Tax1Percent != nil {
		receipt.Tax1Percent = *result.Tax1Percent
	}
	if result.Tax2Amount != nil {
		receipt.Tax2Cents = cents(*result.Tax2Amount)
	}
	if result.Tax2Percent != nil {
		receipt.Tax2Percent = *result.Tax2Percent
	}
	if result.Category != nil {
		receipt.Category = *result.Category
	}
	if result.PaymentMethod != nil {
		receipt.PaymentMethod = *result.PaymentMethod
	}
	if result.CardLast4 != nil {
		receipt.CardLast4 = *result.CardLast4
	}
	if result.CustomerName != nil {
		receipt.CustomerName = *result.CustomerName
	}
	return receipt
}

func cents(dollars float64) int {
	return int(dollars*100 + 0.5)
}
