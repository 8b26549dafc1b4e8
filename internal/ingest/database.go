package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const (
	receiptBucketName = "receipts"
	pageBucketName    = "receipt_pages"
)

// DB defines the interface for receipt record persistence.
type DB interface {
	// SaveReceipt saves a flat or parent receipt record.
	SaveReceipt(receipt *Receipt) error

	// SavePages saves the child page rows of a multi-page receipt.
	SavePages(pages []*ReceiptPage) error

	// GetReceipt retrieves a receipt by ID.
	GetReceipt(id string) (*Receipt, error)

	// GetPages returns the page rows of a parent receipt ordered by page
	// number.
	GetPages(parentReceiptID string) ([]*ReceiptPage, error)

	// ListReceipts returns all flat and parent receipt records.
	ListReceipts() ([]*Receipt, error)

	// DeleteReceipt removes a receipt record.
	DeleteReceipt(id string) error

	// DeletePages removes all page rows of a parent receipt.
	DeletePages(parentReceiptID string) error

	// Close closes the database connection.
	Close() error
}

// BoltDB implements the DB interface using BoltDB.
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance.
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(receiptBucketName)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(pageBucketName)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// pageKey orders page rows by parent and zero-padded page number so a prefix
// scan yields ascending page order.
func pageKey(parentReceiptID string, pageNumber int) []byte {
	return []byte(fmt.Sprintf("%s/%04d", parentReceiptID, pageNumber))
}

// SaveReceipt saves a receipt record.
func (b *BoltDB) SaveReceipt(receipt *Receipt) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(receiptBucketName))
		data, err := json.Marshal(receipt)
		if err != nil {
			return fmt.Errorf("marshaling receipt: %w", err)
		}
		return bucket.Put([]byte(receipt.ID), data)
	})
}

// SavePages saves child page rows in one transaction.
func (b *BoltDB) SavePages(pages []*ReceiptPage) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(pageBucketName))
		for _, page := range pages {
			data, err := json.Marshal(page)
			if err != nil {
				return fmt.Errorf("marshaling page %d: %w", page.PageNumber, err)
			}
			if err := bucket.Put(pageKey(page.ParentReceiptID, page.PageNumber), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetReceipt retrieves a receipt by ID.
func (b *BoltDB) GetReceipt(id string) (*Receipt, error) {
	var receipt *Receipt
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(receiptBucketName))
		data := bucket.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("receipt not found: %s", id)
		}
		return json.Unmarshal(data, &receipt)
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// GetPages returns the page rows of a parent receipt in page order.
func (b *BoltDB) GetPages(parentReceiptID string) ([]*ReceiptPage, error) {
	pages := make([]*ReceiptPage, 0)
	prefix := []byte(parentReceiptID + "/")
	err := b.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(pageBucketName)).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var page ReceiptPage
			if err := json.Unmarshal(v, &page); err != nil {
				return fmt.Errorf("unmarshaling page: %w", err)
			}
			pages = append(pages, &page)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pages, nil
}

// ListReceipts returns all flat and parent receipt records.
func (b *BoltDB) ListReceipts() ([]*Receipt, error) {
	receipts := make([]*Receipt, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(receiptBucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var receipt Receipt
			if err := json.Unmarshal(v, &receipt); err != nil {
				return fmt.Errorf("unmarshaling receipt: %w", err)
			}
			receipts = append(receipts, &receipt)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return receipts, nil
}

// DeleteReceipt removes a receipt record.
func (b *BoltDB) DeleteReceipt(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(receiptBucketName))
		return bucket.Delete([]byte(id))
	})
}

// DeletePages removes all page rows of a parent receipt.
func (b *BoltDB) DeletePages(parentReceiptID string) error {
	prefix := []byte(parentReceiptID + "/")
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(pageBucketName))
		c := bucket.Cursor()
		var keys [][]byte
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		for _, k := range keys {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close closes the database connection.
func (b *BoltDB) Close() error {
	return b.db.Close()
}
