package export

import (
	"strings"
)

// Column is one field of the accounting import sheet
type Column struct {
	Name     string
	Required bool // marked with a leading * in the header
	value    func(l Line) string
}

// Header returns the column title as written in the header row
func (c Column) Header() string {
	if c.Required {
		return "*" + c.Name
	}
	return c.Name
}

// Columns is the fixed column contract of the import sheet, in order
var Columns = []Column{
	{Name: "ContactName", Required: true, value: func(l Line) string { return l.ContactName }},
	{Name: "EmailAddress", value: func(l Line) string { return l.EmailAddress }},
	{Name: "POAddressLine1", value: func(l Line) string { return l.POAddressLine1 }},
	{Name: "POAddressLine2", value: func(l Line) string { return l.POAddressLine2 }},
	{Name: "POAddressLine3", value: func(Line) string { return "" }},
	{Name: "POAddressLine4", value: func(Line) string { return "" }},
	{Name: "POCity", value: func(l Line) string { return l.POCity }},
	{Name: "PORegion", value: func(l Line) string { return l.PORegion }},
	{Name: "POPostalCode", value: func(l Line) string { return l.POPostalCode }},
	{Name: "POCountry", value: func(l Line) string { return l.POCountry }},
	{Name: "InvoiceNumber", Required: true, value: func(l Line) string { return l.InvoiceNumber }},
	{Name: "InvoiceDate", Required: true, value: func(l Line) string { return l.InvoiceDate }},
	{Name: "DueDate", value: func(l Line) string { return l.DueDate }},
	{Name: "InventoryItemCode", value: func(l Line) string { return l.InventoryItemCode }},
	{Name: "Description", value: func(l Line) string { return l.Description }},
	{Name: "Quantity", Required: true, value: func(l Line) string { return l.Quantity }},
	{Name: "UnitAmount", Required: true, value: func(l Line) string { return l.UnitAmount }},
	{Name: "AccountCode", value: func(l Line) string { return l.AccountCode }},
	{Name: "TaxType", value: func(l Line) string { return l.TaxType }},
	{Name: "TrackingName1", value: func(l Line) string { return l.TrackingName1 }},
	{Name: "TrackingOption1", value: func(l Line) string { return l.TrackingOption1 }},
	{Name: "TrackingName2", value: func(l Line) string { return l.TrackingName2 }},
	{Name: "TrackingOption2", value: func(l Line) string { return l.TrackingOption2 }},
	{Name: "Currency", value: func(l Line) string { return l.Currency }},
}

// Headers returns the header titles in column order
func Headers() []string {
	headers := make([]string, len(Columns))
	for i, c := range Columns {
		headers[i] = c.Header()
	}
	return headers
}

// Values projects l onto Columns
func (l Line) Values() []string {
	values := make([]string, len(Columns))
	for i, c := range Columns {
		values[i] = c.value(l)
	}
	return values
}

// Select picks the records that go into the sheet. A record is kept when it
// has no issues of its own, or when the whole batch was reported ready.
func Select(records []Record, report Report) []Record {
	selected := make([]Record, 0, len(records))
	for i, r := range records {
		if report.issuesAt(i).Empty() || report.ExportReady {
			selected = append(selected, r)
		}
	}
	return selected
}

// Lines runs Select and Derive over a batch
func Lines(records []Record, report Report) []Line {
	selected := Select(records, report)
	lines := make([]Line, len(selected))
	for i, r := range selected {
		lines[i] = Derive(r)
	}
	return lines
}

// Generate renders the import CSV for records. The report is the one returned
// by Validate for the same records; it only decides which rows are emitted.
func Generate(records []Record, report Report) string {
	rows := []string{strings.Join(Headers(), ",")}
	for _, l := range Lines(records, report) {
		rows = append(rows, FormatRow(l.Values()))
	}
	return strings.Join(rows, "\n")
}

// FormatRow quotes every value and joins them with commas
func FormatRow(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = quote(v)
	}
	return strings.Join(quoted, ",")
}

// quote always wraps the value, so embedded commas and newlines need no
// further escaping.
func quote(v string) string {
	return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
}
