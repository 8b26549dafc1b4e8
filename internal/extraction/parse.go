package extraction

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// parseExtractionJSON parses the JSON response from an LLM provider.
func parseExtractionJSON(text string) (*Result, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	// Find the JSON object boundaries - first { and last }
	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON object in response")
	}
	text = text[startIdx : endIdx+1]

	var result Result
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	// The total is the one required field.
	if result.Total <= 0 {
		return nil, fmt.Errorf("response contained no total amount")
	}

	if result.Date != nil {
		normalized := normalizeDate(*result.Date)
		result.Date = &normalized
	}

	trimPtr(result.VendorName)
	trimPtr(result.VendorAddress)
	trimPtr(result.Category)
	trimPtr(result.PaymentMethod)
	trimPtr(result.CardLast4)
	trimPtr(result.CustomerName)

	return &result, nil
}

// normalizeDate coerces common date formats to YYYY-MM-DD, falling back to an
// empty value when the date is unparseable rather than guessing.
func normalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if _, err := time.Parse("2006-01-02", s); err == nil {
		return s
	}
	formats := []string{
		"2006/01/02",
		"01/02/2006",
		"02-01-2006",
		"Jan 2, 2006",
	}
	for _, format := range formats {
		if d, err := time.Parse(format, s); err == nil {
			return d.Format("2006-01-02")
		}
	}
	return ""
}

func trimPtr(s *string) {
	if s != nil {
		*s = strings.TrimSpace(*s)
	}
}
