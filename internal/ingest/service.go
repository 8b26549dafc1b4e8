package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/zombor/receipt-ingest/internal/objectstore"
)

// Service handles read and delete operations over persisted receipts.
type Service struct {
	db    DB
	store objectstore.Store
}

// NewService creates a new Service.
func NewService(db DB, store objectstore.Store) *Service {
	return &Service{db: db, store: store}
}

// ListReceipts returns all flat and parent receipts.
func (s *Service) ListReceipts() ([]*Receipt, error) {
	receipts, err := s.db.ListReceipts()
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}
	return receipts, nil
}

// GetReceipt retrieves a receipt and, for parents, its page rows.
func (s *Service) GetReceipt(id string) (*Receipt, []*ReceiptPage, error) {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return nil, nil, fmt.Errorf("getting receipt: %w", err)
	}
	if !receipt.IsParent {
		return receipt, nil, nil
	}
	pages, err := s.db.GetPages(id)
	if err != nil {
		return nil, nil, fmt.Errorf("getting receipt pages: %w", err)
	}
	return receipt, pages, nil
}

// DeleteReceipt removes a receipt's records and its stored blobs. Blob
// deletion is best effort; record deletion proceeds regardless.
func (s *Service) DeleteReceipt(ctx context.Context, id string) error {
	receipt, pages, err := s.GetReceipt(id)
	if err != nil {
		return fmt.Errorf("getting receipt for deletion: %w", err)
	}

	var keys []string
	if receipt.IsParent {
		for _, page := range pages {
			keys = append(keys, page.FullObjectKey, page.ThumbnailObjectKey)
		}
	} else {
		keys = append(keys, receipt.FullObjectKey, receipt.ThumbnailObjectKey)
	}
	s.store.Delete(ctx, keys)

	if receipt.IsParent {
		if err := s.db.DeletePages(id); err != nil {
			return fmt.Errorf("deleting receipt pages: %w", err)
		}
	}
	if err := s.db.DeleteReceipt(id); err != nil {
		return fmt.Errorf("deleting receipt: %w", err)
	}
	return nil
}

// PageImage returns the stored image bytes for a page of a receipt. Page
// numbers are 1-based; thumbnails are returned when thumbnail is true.
func (s *Service) PageImage(ctx context.Context, id string, pageNumber int, thumbnail bool) ([]byte, string, error) {
	key, err := s.pageObjectKey(id, pageNumber, thumbnail)
	if err != nil {
		return nil, "", err
	}
	data, err := s.store.Download(ctx, key)
	if err != nil {
		return nil, "", fmt.Errorf("downloading page image: %w", err)
	}
	return data, "image/jpeg", nil
}

// SignedPageURL returns a time-limited URL for a page's full image.
func (s *Service) SignedPageURL(id string, pageNumber int, ttl time.Duration) (string, error) {
	key, err := s.pageObjectKey(id, pageNumber, false)
	if err != nil {
		return "", err
	}
	url, err := s.store.SignedURL(key, ttl)
	if err != nil {
		return "", fmt.Errorf("signing page url: %w", err)
	}
	return url, nil
}

func (s *Service) pageObjectKey(id string, pageNumber int, thumbnail bool) (string, error) {
	receipt, pages, err := s.GetReceipt(id)
	if err != nil {
		return "", err
	}
	if !receipt.IsParent {
		if pageNumber != 1 {
			return "", fmt.Errorf("no page %d on single-page receipt %s", pageNumber, id)
		}
		if thumbnail {
			return receipt.ThumbnailObjectKey, nil
		}
		return receipt.FullObjectKey, nil
	}
	for _, page := range pages {
		if page.PageNumber == pageNumber {
			if thumbnail {
				return page.ThumbnailObjectKey, nil
			}
			return page.FullObjectKey, nil
		}
	}
	slog.Warn("Page not found", "receipt_id", id, "page", pageNumber)
	return "", fmt.Errorf("no page %d on receipt %s", pageNumber, id)
}
