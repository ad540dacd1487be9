package receipt

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/receipt-export/internal/export"
)

// DefaultCurrency is used for receipts that arrive without a currency
const DefaultCurrency = "USD"

// Receipt is a stored receipt: the export record plus its file and history
type Receipt struct {
	export.Record

	OriginalName  string    `json:"originalName,omitempty"`
	PaymentMethod string    `json:"paymentMethod,omitempty"`
	Filename      string    `json:"filename,omitempty"` // storage key of the scanned file
	ContentType   string    `json:"contentType,omitempty"`
	ExportID      string    `json:"exportId,omitempty"` // ID of the export this receipt belongs to
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Export is a persisted export batch
type Export struct {
	ID         string                     `json:"id"`
	ReceiptIDs []string                   `json:"receiptIds"`
	Totals     map[string]decimal.Decimal `json:"totals"` // amount per currency
	Defaults   Defaults                   `json:"defaults"`
	CreatedAt  time.Time                  `json:"createdAt"`
}

// NotReadyError is returned when a batch still has receipts missing data
type NotReadyError struct {
	Report export.Report
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("%d of %d receipts need more information", e.Report.Incomplete(), len(e.Report.Issues))
}

// records returns the export records of receipts in order
func records(receipts []*Receipt) []export.Record {
	out := make([]export.Record, len(receipts))
	for i, r := range receipts {
		out[i] = r.Record
	}
	return out
}
