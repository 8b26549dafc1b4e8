package ingest

import "time"

// PageRef holds the object-storage keys for one durably stored page.
type PageRef struct {
	FullObjectKey      string `json:"full_object_key"`
	ThumbnailObjectKey string `json:"thumbnail_object_key"`
}

// Receipt is the durable receipt record. A single-page capture produces one
// flat record carrying both content fields and its page's object keys. A
// multi-page capture produces one parent record (content fields plus
// TotalPages) and one ReceiptPage row per page; the parent carries no object
// keys of its own.
type Receipt struct {
	ID           string `json:"id"`
	CollectionID string `json:"collection_id"`

	VendorName      string    `json:"vendor_name,omitempty"`
	VendorAddress   string    `json:"vendor_address,omitempty"`
	TransactionDate time.Time `json:"transaction_date"`
	TransactionTime string    `json:"transaction_time,omitempty"`
	SubtotalCents   int       `json:"subtotal_cents,omitempty"`
	Tax1Cents       int       `json:"tax1_cents,omitempty"`
	Tax1Percent     float64   `json:"tax1_percent,omitempty"`
	Tax2Cents       int       `json:"tax2_cents,omitempty"`
	Tax2Percent     float64   `json:"tax2_percent,omitempty"`
	TotalCents      int       `json:"total_cents"` // Amount in cents
	Category        string    `json:"category,omitempty"`
	PaymentMethod   string    `json:"payment_method,omitempty"`
	CardLast4       string    `json:"card_last4,omitempty"`
	CustomerName    string    `json:"customer_name,omitempty"`

	IsParent   bool `json:"is_parent"`
	TotalPages int  `json:"total_pages"`

	// Object keys of the single page; empty on parent records.
	FullObjectKey      string `json:"full_object_key,omitempty"`
	ThumbnailObjectKey string `json:"thumbnail_object_key,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ReceiptPage is one page row of a multi-page receipt. It carries no content
// fields of its own.
type ReceiptPage struct {
	ID                 string    `json:"id"`
	ParentReceiptID    string    `json:"parent_receipt_id"`
	PageNumber         int       `json:"page_number"`
	FullObjectKey      string    `json:"full_object_key"`
	ThumbnailObjectKey string    `json:"thumbnail_object_key"`
	CreatedAt          time.Time `json:"created_at"`
}
