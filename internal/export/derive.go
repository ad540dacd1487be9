package export

import (
	"strings"

	"github.com/shopspring/decimal"
)

const (
	invoicePrefix    = "RCP-"
	invoiceIDSuffix  = 8
	defaultTaxType   = "GST"
	unitAmountPlaces = 2
)

var one = decimal.NewFromInt(1)

// Line is a record with every export column resolved to its final text
type Line struct {
	ContactName       string
	EmailAddress      string
	POAddressLine1    string
	POAddressLine2    string
	POCity            string
	PORegion          string
	POPostalCode      string
	POCountry         string
	InvoiceNumber     string
	InvoiceDate       string
	DueDate           string
	InventoryItemCode string
	Description       string
	Quantity          string
	UnitAmount        string
	AccountCode       string
	TaxType           string
	TrackingName1     string
	TrackingOption1   string
	TrackingName2     string
	TrackingOption2   string
	Currency          string
}

// Derive resolves every column for r, filling empty optional fields from the
// category tables and the record's own values. r is not modified.
func Derive(r Record) Line {
	category := LookupCategory(r.Category)

	quantity := one
	if present(r.Quantity) {
		quantity = r.Quantity.Decimal
	}

	unitAmount := r.UnitAmount.Decimal
	if !present(r.UnitAmount) {
		unitAmount = r.Amount.Div(quantity)
	}

	return Line{
		ContactName:       r.Vendor,
		EmailAddress:      r.ContactEmail,
		POAddressLine1:    r.POAddressLine1,
		POAddressLine2:    r.POAddressLine2,
		POCity:            r.POCity,
		PORegion:          r.PORegion,
		POPostalCode:      r.POPostalCode,
		POCountry:         r.POCountry,
		InvoiceNumber:     firstNonEmpty(r.InvoiceNumber, DefaultInvoiceNumber(invoicePrefix, r.ID)),
		InvoiceDate:       r.Date,
		DueDate:           firstNonEmpty(r.DueDate, r.Date),
		InventoryItemCode: r.InventoryItemCode,
		Description:       firstNonEmpty(r.Description, category.Description+" - "+r.Vendor),
		Quantity:          quantity.String(),
		UnitAmount:        unitAmount.StringFixed(unitAmountPlaces),
		AccountCode:       firstNonEmpty(r.AccountCode, category.AccountCode),
		TaxType:           firstNonEmpty(r.TaxType, taxTypeFor(r.TaxAmount)),
		TrackingName1:     r.TrackingName1,
		TrackingOption1:   r.TrackingOption1,
		TrackingName2:     r.TrackingName2,
		TrackingOption2:   r.TrackingOption2,
		Currency:          r.Currency,
	}
}

// DefaultInvoiceNumber builds an invoice number from a prefix and the last
// eight characters of id, upper-cased.
func DefaultInvoiceNumber(prefix, id string) string {
	runes := []rune(id)
	if len(runes) > invoiceIDSuffix {
		runes = runes[len(runes)-invoiceIDSuffix:]
	}
	return prefix + strings.ToUpper(string(runes))
}

// taxTypeFor only invents a tax type when tax was actually charged.
func taxTypeFor(taxAmount decimal.Decimal) string {
	if taxAmount.IsPositive() {
		return defaultTaxType
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
