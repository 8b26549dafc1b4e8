package extraction

import "context"

// Request identifies the uploaded page images to extract fields from. Keys
// refer to full-image blobs in object storage, ordered by page number.
type Request struct {
	ObjectKeys      []string `json:"object_keys"`
	IsMultiPage     bool     `json:"is_multi_page"`
	CollectionID    string   `json:"collection_id"`
	ParentReceiptID string   `json:"parent_receipt_id,omitempty"`
}

// Result contains the structured fields read off a receipt. Every field
// except Total may be absent.
type Result struct {
	VendorName      *string  `json:"vendor_name"`
	VendorAddress   *string  `json:"vendor_address"`
	Date            *string  `json:"date"` // ISO 8601 (YYYY-MM-DD)
	Time            *string  `json:"time"` // 24-hour HH:MM
	Subtotal        *float64 `json:"subtotal"`
	Tax1Amount      *float64 `json:"tax1_amount"`
	Tax1Percent     *float64 `json:"tax1_percent"`
	Tax2Amount      *float64 `json:"tax2_amount"`
	Tax2Percent     *float64 `json:"tax2_percent"`
	Total           float64  `json:"total"`
	Category        *string  `json:"category"`
	PaymentMethod   *string  `json:"payment_method"`
	CardLast4       *string  `json:"card_last4"`
	CustomerName    *string  `json:"customer_name"`
}

// Coordinator defines the interface for the external extraction service. Any
// failure is opaque to the caller and triggers upload rollback upstream.
type Coordinator interface {
	// Extract analyzes the referenced page images and returns structured
	// receipt fields.
	Extract(ctx context.Context, req Request) (*Result, error)
	// Close releases the coordinator's resources.
	Close() error
}

// extractionPrompt is the shared prompt used by all LLM providers.
const extractionPrompt = `You are analyzing a receipt or invoice. When multiple images are provided they are the ordered pages of one receipt. Carefully read all text and extract the following information:

1. **Vendor Name**: the merchant or business name, usually the largest text at the top.
2. **Vendor Address**: the street address of the business, if printed.
3. **Date**: the transaction or invoice date, converted to ISO 8601 format (YYYY-MM-DD).
4. **Time**: the transaction time in 24-hour HH:MM format, if printed.
5. **Subtotal**: the pre-tax subtotal as a number.
6. **Taxes**: up to two independent tax lines. For each, the amount and, if printed, the percentage.
7. **Total**: the final total or amount due, usually at the bottom, labeled "TOTAL", "Amount Due", or similar. Extract only the numeric value.
8. **Category**: your best guess at an expense category (e.g. "Groceries", "Pharmacy", "Restaurant", "Fuel").
9. **Payment Method**: how the receipt was paid (e.g. "Visa", "Mastercard", "Cash", "Debit").
10. **Card Last 4**: the last four digits of the card, if printed.
11. **Customer Name**: the customer's name, if printed.

Return ONLY valid JSON in this exact format:
{
  "vendor_name": "...",
  "vendor_address": "...",
  "date": "YYYY-MM-DD",
  "time": "HH:MM",
  "subtotal": 0.00,
  "tax1_amount": 0.00,
  "tax1_percent": 0.0,
  "tax2_amount": 0.00,
  "tax2_percent": 0.0,
  "total": 0.00,
  "category": "...",
  "payment_method": "...",
  "card_last4": "...",
  "customer_name": "..."
}

Important:
- Monetary values must be numbers (not strings), representing dollars and cents
- The date must be in YYYY-MM-DD format
- Use null for any field you cannot find; the total is required
- Do not include any text before or after the JSON
- Do not use markdown code blocks`
