// Package export turns receipt records into an accounting import sheet.
//
// Validate reports which records still miss required data, and Generate
// derives defaults for every optional column and renders the fixed-column
// CSV. Both are pure functions over their input.
package export

import (
	"github.com/shopspring/decimal"
)

// Record is a single receipt as seen by the export engine
type Record struct {
	ID        string          `json:"id"`
	Vendor    string          `json:"vendor"`
	Date      string          `json:"date"` // YYYY-MM-DD
	Category  string          `json:"category"`
	Amount    decimal.Decimal `json:"amount"`
	TaxAmount decimal.Decimal `json:"taxAmount"`
	Currency  string          `json:"currency"`

	// Optional accounting fields. Empty values are derived at export time.
	InvoiceNumber     string              `json:"invoiceNumber,omitempty"`
	ContactEmail      string              `json:"contactEmail,omitempty"`
	DueDate           string              `json:"dueDate,omitempty"`
	InventoryItemCode string              `json:"inventoryItemCode,omitempty"`
	Description       string              `json:"description,omitempty"`
	Quantity          decimal.NullDecimal `json:"quantity"`
	UnitAmount        decimal.NullDecimal `json:"unitAmount"`
	AccountCode       string              `json:"accountCode,omitempty"`
	TaxType           string              `json:"taxType,omitempty"`
	TrackingName1     string              `json:"trackingName1,omitempty"`
	TrackingOption1   string              `json:"trackingOption1,omitempty"`
	TrackingName2     string              `json:"trackingName2,omitempty"`
	TrackingOption2   string              `json:"trackingOption2,omitempty"`

	POAddressLine1 string `json:"poAddressLine1,omitempty"`
	POAddressLine2 string `json:"poAddressLine2,omitempty"`
	POCity         string `json:"poCity,omitempty"`
	PORegion       string `json:"poRegion,omitempty"`
	POPostalCode   string `json:"poPostalCode,omitempty"`
	POCountry      string `json:"poCountry,omitempty"`
}

// present reports whether an optional number carries a usable value.
// Null and zero both count as absent.
func present(d decimal.NullDecimal) bool {
	return d.Valid && !d.Decimal.IsZero()
}
