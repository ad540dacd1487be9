package scanning

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/zombor/receipt-export/internal/export"
)

const (
	isoDate         = "2006-01-02"
	defaultCurrency = "USD"
	otherCategory   = "other"
)

// dateLayouts are tried in order when the model ignores the ISO instruction
var dateLayouts = []string{
	isoDate,
	"2006/01/02",
	"01/02/2006",
	"02-01-2006",
}

// scanResponse is the envelope the prompt asks for
type scanResponse struct {
	Receipts []ReceiptData `json:"receipts"`
}

// parseReceiptsJSON parses the model output into normalized receipts
func parseReceiptsJSON(text string) ([]ReceiptData, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")

	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON object in response")
	}
	text = text[startIdx : endIdx+1]

	var envelope struct {
		Receipts json.RawMessage `json:"receipts"`
	}
	if err := json.Unmarshal([]byte(text), &envelope); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	var receipts []ReceiptData
	if envelope.Receipts != nil {
		var resp scanResponse
		if err := json.Unmarshal([]byte(text), &resp); err != nil {
			return nil, fmt.Errorf("unmarshaling receipts: %w", err)
		}
		receipts = resp.Receipts
	} else {
		// Some models answer with a bare receipt object
		var single ReceiptData
		if err := json.Unmarshal([]byte(text), &single); err != nil {
			return nil, fmt.Errorf("unmarshaling receipt: %w", err)
		}
		receipts = []ReceiptData{single}
	}

	if len(receipts) == 0 {
		return nil, fmt.Errorf("no receipts found in response")
	}

	for i := range receipts {
		normalize(&receipts[i])
	}
	return receipts, nil
}

func normalize(data *ReceiptData) {
	data.Vendor = strings.TrimSpace(data.Vendor)
	data.Date = normalizeDate(data.Date)
	data.DueDate = normalizeDate(data.DueDate)
	data.Category = normalizeCategory(data.Category)
	data.PaymentMethod = strings.ToLower(strings.TrimSpace(data.PaymentMethod))
	data.Currency = strings.ToUpper(strings.TrimSpace(data.Currency))
	if data.Currency == "" {
		data.Currency = defaultCurrency
	}
	data.InvoiceNumber = strings.TrimSpace(data.InvoiceNumber)
	data.ContactEmail = strings.TrimSpace(data.ContactEmail)
	data.TaxType = strings.TrimSpace(data.TaxType)
}

// normalizeDate returns the date in ISO form, or "" when it cannot be read.
// Missing dates are left for the export check to flag.
func normalizeDate(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, value); err == nil {
			return d.Format(isoDate)
		}
	}
	return ""
}

func normalizeCategory(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	for _, known := range export.Categories() {
		if value == known {
			return value
		}
	}
	return otherCategory
}
