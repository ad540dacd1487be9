package receipt

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zombor/receipt-export/internal/export"
)

// Defaults are user-supplied values for export fields a receipt leaves empty
type Defaults struct {
	InvoicePrefix  string `json:"invoicePrefix,omitempty" yaml:"invoice_prefix"`
	ContactEmail   string `json:"contactEmail,omitempty" yaml:"contact_email"`
	DueDate        string `json:"dueDate,omitempty" yaml:"due_date"`
	AccountCode    string `json:"accountCode,omitempty" yaml:"account_code"`
	TaxType        string `json:"taxType,omitempty" yaml:"tax_type"`
	POAddressLine1 string `json:"poAddressLine1,omitempty" yaml:"po_address_line1"`
	POAddressLine2 string `json:"poAddressLine2,omitempty" yaml:"po_address_line2"`
	POCity         string `json:"poCity,omitempty" yaml:"po_city"`
	PORegion       string `json:"poRegion,omitempty" yaml:"po_region"`
	POPostalCode   string `json:"poPostalCode,omitempty" yaml:"po_postal_code"`
	POCountry      string `json:"poCountry,omitempty" yaml:"po_country"`
}

// LoadDefaults reads export defaults from a YAML file
func LoadDefaults(path string) (Defaults, error) {
	var d Defaults

	data, err := os.ReadFile(path)
	if err != nil {
		return d, fmt.Errorf("reading defaults file: %w", err)
	}
	if err := yaml.Unmarshal(data, &d); err != nil {
		return d, fmt.Errorf("parsing defaults file: %w", err)
	}
	if err := d.Validate(); err != nil {
		return d, fmt.Errorf("invalid defaults file: %w", err)
	}
	return d, nil
}

// Validate checks the values that have a fixed format
func (d Defaults) Validate() error {
	if d.DueDate != "" {
		if _, err := time.Parse(time.DateOnly, d.DueDate); err != nil {
			return fmt.Errorf("due_date must be YYYY-MM-DD: %q", d.DueDate)
		}
	}
	if d.ContactEmail != "" && !strings.Contains(d.ContactEmail, "@") {
		return fmt.Errorf("contact_email is not an email address: %q", d.ContactEmail)
	}
	return nil
}

// Merge returns d with every non-empty field of override laid on top
func (d Defaults) Merge(override Defaults) Defaults {
	pick := func(base, over string) string {
		if over != "" {
			return over
		}
		return base
	}
	return Defaults{
		InvoicePrefix:  pick(d.InvoicePrefix, override.InvoicePrefix),
		ContactEmail:   pick(d.ContactEmail, override.ContactEmail),
		DueDate:        pick(d.DueDate, override.DueDate),
		AccountCode:    pick(d.AccountCode, override.AccountCode),
		TaxType:        pick(d.TaxType, override.TaxType),
		POAddressLine1: pick(d.POAddressLine1, override.POAddressLine1),
		POAddressLine2: pick(d.POAddressLine2, override.POAddressLine2),
		POCity:         pick(d.POCity, override.POCity),
		PORegion:       pick(d.PORegion, override.PORegion),
		POPostalCode:   pick(d.POPostalCode, override.POPostalCode),
		POCountry:      pick(d.POCountry, override.POCountry),
	}
}

// Apply fills the empty fields of r from d. Fields r already carries win.
func (d Defaults) Apply(r export.Record) export.Record {
	fill := func(field *string, value string) {
		if strings.TrimSpace(*field) == "" && value != "" {
			*field = value
		}
	}

	// A prefix alone is not an invoice number, so records without an ID
	// are left for the validator to flag.
	if r.InvoiceNumber == "" && d.InvoicePrefix != "" && r.ID != "" {
		r.InvoiceNumber = export.DefaultInvoiceNumber(d.InvoicePrefix, r.ID)
	}
	fill(&r.ContactEmail, d.ContactEmail)
	fill(&r.DueDate, d.DueDate)
	fill(&r.AccountCode, d.AccountCode)
	fill(&r.TaxType, d.TaxType)
	fill(&r.POAddressLine1, d.POAddressLine1)
	fill(&r.POAddressLine2, d.POAddressLine2)
	fill(&r.POCity, d.POCity)
	fill(&r.PORegion, d.PORegion)
	fill(&r.POPostalCode, d.POPostalCode)
	fill(&r.POCountry, d.POCountry)
	return r
}

// ApplyAll applies d to every record and returns the new slice
func (d Defaults) ApplyAll(records []export.Record) []export.Record {
	out := make([]export.Record, len(records))
	for i, r := range records {
		out[i] = d.Apply(r)
	}
	return out
}
