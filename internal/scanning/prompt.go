package scanning

import (
	"fmt"
	"strings"

	"github.com/zombor/receipt-export/internal/export"
)

// receiptScanPrompt is shared by all LLM providers
var receiptScanPrompt = buildPrompt()

const systemPrompt = "You read receipts and invoices and extract accounting data from them. " +
	"Read every line of text in the image carefully and never guess values that are not printed."

func buildPrompt() string {
	return fmt.Sprintf(`Extract every receipt shown in this image. There may be more than one.

For each receipt return:
- vendor: the merchant or business name, usually the largest text at the top
- date: the purchase or invoice date in YYYY-MM-DD format
- category: exactly one of %s, or "other" if none fit
- paymentMethod: cash, credit, debit or similar
- amount: the final total as a number, without currency symbols
- taxAmount: the tax charged as a number, 0 when none is shown
- currency: the ISO 4217 code of the amounts ($ is USD, € is EUR, £ is GBP); use USD when no currency is visible

Also return these when they are printed, otherwise leave them out:
invoiceNumber, contactEmail, dueDate (YYYY-MM-DD), inventoryItemCode,
description, quantity, unitAmount, accountCode, taxType (for example GST or VAT 20%%),
poAddressLine1, poAddressLine2, poCity, poRegion, poPostalCode, poCountry.

Return ONLY valid JSON in this shape:
{
  "receipts": [
    {"vendor": "Store Name", "date": "YYYY-MM-DD", "category": "groceries", "paymentMethod": "credit", "amount": 0.00, "taxAmount": 0.00, "currency": "USD"}
  ]
}

Do not include any text before or after the JSON and do not use markdown code blocks.`,
		quoteAll(export.Categories()))
}

func quoteAll(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = `"` + v + `"`
	}
	return strings.Join(quoted, ", ")
}
