package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/receipt-ingest/internal/extraction"
)

var _ = Describe("Orchestrator", func() {
	var (
		orch      *Orchestrator
		store     *mockStore
		db        *mockDB
		extractor *mockExtractor
		now       time.Time
		ctx       context.Context
	)

	key := func(id string, page int, variant string) string {
		return fmt.Sprintf("receipts/coll-1/%s/%d-p%d-%s.jpg", id, now.UnixMilli(), page, variant)
	}

	BeforeEach(func() {
		now = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
		store = newMockStore()
		db = newMockDB()
		extractor = &mockExtractor{
			result: &extraction.Result{
				VendorName: ptr("Test Vendor"),
				Date:       ptr("2026-03-10"),
				Subtotal:   ptr(40.00),
				Tax1Amount: ptr(2.00),
				Total:      42.00,
			},
		}
		orch = NewOrchestratorWithDeps(store, db, extractor, &mockIDGenerator{}, &mockTimeSource{fixedTime: now})
		ctx = context.Background()
	})

	Describe("Ingest", func() {
		When("the document has a single page", func() {
			It("persists one flat record carrying the object keys", func() {
				receipt, err := orch.Ingest(ctx, testDocument(1), "coll-1")
				Expect(err).NotTo(HaveOccurred())

				Expect(receipt.ID).To(Equal("id-1"))
				Expect(receipt.IsParent).To(BeFalse())
				Expect(receipt.TotalPages).To(Equal(1))
				Expect(receipt.FullObjectKey).To(Equal(key("id-1", 1, "full")))
				Expect(receipt.ThumbnailObjectKey).To(Equal(key("id-1", 1, "thumb")))
				Expect(db.receipts).To(HaveKey("id-1"))
				Expect(db.pages).To(BeEmpty())
			})

			It("converts extracted dollar amounts to cents", func() {
				receipt, err := orch.Ingest(ctx, testDocument(1), "coll-1")
				Expect(err).NotTo(HaveOccurred())
				Expect(receipt.TotalCents).To(Equal(4200))
				Expect(receipt.SubtotalCents).To(Equal(4000))
				Expect(receipt.Tax1Cents).To(Equal(200))
				Expect(receipt.VendorName).To(Equal("Test Vendor"))
				Expect(receipt.TransactionDate.Format("2006-01-02")).To(Equal("2026-03-10"))
			})

			It("marks the extraction request as single-page", func() {
				_, err := orch.Ingest(ctx, testDocument(1), "coll-1")
				Expect(err).NotTo(HaveOccurred())
				Expect(extractor.requests).To(HaveLen(1))
				Expect(extractor.requests[0].IsMultiPage).To(BeFalse())
				Expect(extractor.requests[0].ParentReceiptID).To(BeEmpty())
				Expect(extractor.requests[0].ObjectKeys).To(Equal([]string{key("id-1", 1, "full")}))
			})
		})

		When("the document has multiple pages", func() {
			It("persists a parent record and one child row per page", func() {
				receipt, err := orch.Ingest(ctx, testDocument(3), "coll-1")
				Expect(err).NotTo(HaveOccurred())

				Expect(receipt.IsParent).To(BeTrue())
				Expect(receipt.TotalPages).To(Equal(3))
				Expect(receipt.FullObjectKey).To(BeEmpty())

				pages := db.pages["id-1"]
				Expect(pages).To(HaveLen(3))
				for i, page := range pages {
					Expect(page.ParentReceiptID).To(Equal("id-1"))
					Expect(page.PageNumber).To(Equal(i + 1))
					Expect(page.FullObjectKey).To(Equal(key("id-1", i+1, "full")))
					Expect(page.ThumbnailObjectKey).To(Equal(key("id-1", i+1, "thumb")))
				}
			})

			It("uploads page pairs in page order", func() {
				_, err := orch.Ingest(ctx, testDocument(3), "coll-1")
				Expect(err).NotTo(HaveOccurred())

				Expect(store.uploads).To(HaveLen(6))
				for i := 0; i < 3; i++ {
					pair := store.uploads[i*2 : i*2+2]
					Expect(pair).To(ConsistOf(key("id-1", i+1, "full"), key("id-1", i+1, "thumb")))
				}
			})

			It("sends the full-image keys for extraction in page order", func() {
				_, err := orch.Ingest(ctx, testDocument(3), "coll-1")
				Expect(err).NotTo(HaveOccurred())
				req := extractor.requests[0]
				Expect(req.IsMultiPage).To(BeTrue())
				Expect(req.ParentReceiptID).To(Equal("id-1"))
				Expect(req.ObjectKeys).To(Equal([]string{
					key("id-1", 1, "full"),
					key("id-1", 2, "full"),
					key("id-1", 3, "full"),
				}))
			})
		})

		When("an upload fails partway through", func() {
			BeforeEach(func() {
				store.failSubstring = "p2-full"
			})

			It("rolls back every uploaded blob including the failing pair", func() {
				_, err := orch.Ingest(ctx, testDocument(3), "coll-1")

				var uploadErr *UploadError
				Expect(errors.As(err, &uploadErr)).To(BeTrue())
				Expect(uploadErr.Page).To(Equal(2))

				Expect(store.deletes).To(ConsistOf(
					key("id-1", 1, "full"), key("id-1", 1, "thumb"),
					key("id-1", 2, "full"), key("id-1", 2, "thumb"),
				))
				Expect(store.objects).To(BeEmpty())
			})

			It("touches neither the extractor nor the database", func() {
				_, err := orch.Ingest(ctx, testDocument(3), "coll-1")
				Expect(err).To(HaveOccurred())
				Expect(extractor.requests).To(BeEmpty())
				Expect(db.receipts).To(BeEmpty())
				Expect(db.pages).To(BeEmpty())
			})
		})

		When("extraction fails", func() {
			BeforeEach(func() {
				extractor.err = errors.New("model unavailable")
			})

			It("rolls back every uploaded blob and reports an extraction error", func() {
				_, err := orch.Ingest(ctx, testDocument(2), "coll-1")

				var extractionErr *ExtractionError
				Expect(errors.As(err, &extractionErr)).To(BeTrue())
				Expect(store.deletes).To(HaveLen(4))
				Expect(store.objects).To(BeEmpty())
				Expect(db.receipts).To(BeEmpty())
			})
		})

		When("persistence fails after extraction", func() {
			BeforeEach(func() {
				db.saveReceiptErr = errors.New("disk full")
			})

			It("reports a persistence error and leaves the blobs in place", func() {
				_, err := orch.Ingest(ctx, testDocument(2), "coll-1")

				var persistenceErr *PersistenceError
				Expect(errors.As(err, &persistenceErr)).To(BeTrue())
				Expect(store.deletes).To(BeEmpty())
				Expect(store.objects).To(HaveLen(4))
			})
		})

		It("rejects an empty document", func() {
			_, err := orch.Ingest(ctx, testDocument(0), "coll-1")
			Expect(err).To(HaveOccurred())
			Expect(store.uploads).To(BeEmpty())
		})
	})

	Describe("IngestSingle", func() {
		It("uploads and extracts without persisting", func() {
			pending, err := orch.IngestSingle(ctx, testDocument(1), "coll-1")
			Expect(err).NotTo(HaveOccurred())

			Expect(pending.Result.Total).To(Equal(42.00))
			Expect(store.uploads).To(HaveLen(2))
			Expect(db.receipts).To(BeEmpty())
		})

		It("rejects multi-page documents", func() {
			_, err := orch.IngestSingle(ctx, testDocument(2), "coll-1")
			Expect(err).To(HaveOccurred())
			Expect(store.uploads).To(BeEmpty())
		})

		Describe("Confirm", func() {
			It("persists the extracted result as a flat record", func() {
				pending, err := orch.IngestSingle(ctx, testDocument(1), "coll-1")
				Expect(err).NotTo(HaveOccurred())

				receipt, err := pending.Confirm(ctx, nil)
				Expect(err).NotTo(HaveOccurred())
				Expect(receipt.TotalCents).To(Equal(4200))
				Expect(receipt.FullObjectKey).To(Equal(key("id-1", 1, "full")))
				Expect(db.receipts).To(HaveKey("id-1"))
			})

			It("prefers the corrected result when provided", func() {
				pending, err := orch.IngestSingle(ctx, testDocument(1), "coll-1")
				Expect(err).NotTo(HaveOccurred())

				receipt, err := pending.Confirm(ctx, &extraction.Result{
					VendorName: ptr("Corrected Vendor"),
					Total:      99.99,
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(receipt.VendorName).To(Equal("Corrected Vendor"))
				Expect(receipt.TotalCents).To(Equal(9999))
			})

			It("cannot run twice", func() {
				pending, err := orch.IngestSingle(ctx, testDocument(1), "coll-1")
				Expect(err).NotTo(HaveOccurred())

				_, err = pending.Confirm(ctx, nil)
				Expect(err).NotTo(HaveOccurred())
				_, err = pending.Confirm(ctx, nil)
				Expect(err).To(HaveOccurred())
			})
		})

		Describe("Cancel", func() {
			It("deletes the uploaded blobs and persists nothing", func() {
				pending, err := orch.IngestSingle(ctx, testDocument(1), "coll-1")
				Expect(err).NotTo(HaveOccurred())

				pending.Cancel(ctx)

				Expect(store.objects).To(BeEmpty())
				Expect(store.deletes).To(ConsistOf(key("id-1", 1, "full"), key("id-1", 1, "thumb")))
				Expect(db.receipts).To(BeEmpty())
			})

			It("applies exactly one of a racing confirm and cancel", func() {
				pending, err := orch.IngestSingle(ctx, testDocument(1), "coll-1")
				Expect(err).NotTo(HaveOccurred())

				done := make(chan struct{})
				var receipt *Receipt
				var confirmErr error
				go func() {
					defer close(done)
					receipt, confirmErr = pending.Confirm(ctx, nil)
				}()
				pending.Cancel(ctx)
				<-done

				if confirmErr == nil {
					// Confirm won; the record exists and its blobs survive.
					Expect(db.receipts).To(HaveKey(receipt.ID))
					Expect(store.objects).To(HaveLen(2))
				} else {
					// Cancel won; nothing persisted and the blobs are gone.
					Expect(db.receipts).To(BeEmpty())
					Expect(store.objects).To(BeEmpty())
				}
			})

			It("blocks a later confirm", func() {
				pending, err := orch.IngestSingle(ctx, testDocument(1), "coll-1")
				Expect(err).NotTo(HaveOccurred())

				pending.Cancel(ctx)
				_, err = pending.Confirm(ctx, nil)
				Expect(err).To(HaveOccurred())
			})
		})
	})
})
