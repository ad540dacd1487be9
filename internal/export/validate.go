package export

import (
	"strings"
)

// Field names a required value that a record is missing
type Field string

const (
	FieldVendor        Field = "vendor"
	FieldInvoiceNumber Field = "invoiceNumber"
	FieldDate          Field = "date"
	FieldAmount        Field = "amount"
	FieldQuantity      Field = "quantity"
)

// requirements are checked in this order for every record.
var requirements = []struct {
	field   Field
	missing func(r Record) bool
}{
	{FieldVendor, func(r Record) bool { return strings.TrimSpace(r.Vendor) == "" }},
	{FieldInvoiceNumber, func(r Record) bool { return r.InvoiceNumber == "" && r.ID == "" }},
	{FieldDate, func(r Record) bool { return r.Date == "" }},
	{FieldAmount, func(r Record) bool { return !r.Amount.IsPositive() }},
	{FieldQuantity, func(r Record) bool { return !r.Quantity.Valid || !r.Quantity.Decimal.IsPositive() }},
}

// IssueSet holds the required fields a single record is missing
type IssueSet map[Field]bool

// Empty reports whether the record has nothing missing
func (s IssueSet) Empty() bool {
	return len(s) == 0
}

// Fields returns the missing fields in check order
func (s IssueSet) Fields() []Field {
	fields := make([]Field, 0, len(s))
	for _, req := range requirements {
		if s[req.field] {
			fields = append(fields, req.field)
		}
	}
	return fields
}

// Report is the readiness verdict for a batch of records
type Report struct {
	ExportReady bool       `json:"exportReady"`
	Issues      []IssueSet `json:"missingData"` // parallel to the validated records
}

// Incomplete returns how many records have at least one issue
func (r Report) Incomplete() int {
	n := 0
	for _, issues := range r.Issues {
		if !issues.Empty() {
			n++
		}
	}
	return n
}

// issuesAt returns the issues recorded for the i-th record, or nil when the
// report does not cover it.
func (r Report) issuesAt(i int) IssueSet {
	if i < 0 || i >= len(r.Issues) {
		return nil
	}
	return r.Issues[i]
}

// Validate checks every record for the fields the accounting import requires.
// An empty batch is ready.
func Validate(records []Record) Report {
	report := Report{
		ExportReady: true,
		Issues:      make([]IssueSet, 0, len(records)),
	}

	for _, r := range records {
		issues := IssueSet{}
		for _, req := range requirements {
			if req.missing(r) {
				issues[req.field] = true
			}
		}
		if !issues.Empty() {
			report.ExportReady = false
		}
		report.Issues = append(report.Issues, issues)
	}

	return report
}
