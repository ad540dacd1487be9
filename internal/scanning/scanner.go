package scanning

import "github.com/shopspring/decimal"

// ReceiptData contains the information extracted from one receipt
type ReceiptData struct {
	Vendor        string          `json:"vendor"`
	Date          string          `json:"date"` // YYYY-MM-DD, empty when unreadable
	Category      string          `json:"category"`
	PaymentMethod string          `json:"paymentMethod"`
	TaxAmount     decimal.Decimal `json:"taxAmount"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`

	InvoiceNumber     string              `json:"invoiceNumber"`
	ContactEmail      string              `json:"contactEmail"`
	DueDate           string              `json:"dueDate"`
	InventoryItemCode string              `json:"inventoryItemCode"`
	Description       string              `json:"description"`
	Quantity          decimal.NullDecimal `json:"quantity"`
	UnitAmount        decimal.NullDecimal `json:"unitAmount"`
	AccountCode       string              `json:"accountCode"`
	TaxType           string              `json:"taxType"`

	POAddressLine1 string `json:"poAddressLine1"`
	POAddressLine2 string `json:"poAddressLine2"`
	POCity         string `json:"poCity"`
	PORegion       string `json:"poRegion"`
	POPostalCode   string `json:"poPostalCode"`
	POCountry      string `json:"poCountry"`
}

// Scanner defines the interface for receipt scanning operations
type Scanner interface {
	// ScanReceipt analyzes an image or PDF and extracts every receipt on it
	ScanReceipt(imageData []byte, contentType string) ([]ReceiptData, error)
	// Close closes the scanner and releases resources
	Close() error
}
