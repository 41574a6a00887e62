package extraction

import (
	"fmt"
	"strings"
)

// PromptVersion identifies the instruction text below. Bump it whenever the
// wording, schema or examples change so journaled results can be traced.
const PromptVersion = "receipt-v3"

const receiptPromptHeader = `You are analyzing a German purchase receipt (Beleg/Kassenbon/Rechnung). Carefully read all text in the document and extract the following information:

1. **Vendor**: The merchant or business name, usually the largest text at the top of the receipt. Examples: "REWE", "Aral", "Deutsche Bahn".

2. **Date**: The purchase or invoice date, converted to YYYY-MM-DD. German receipts usually print DD.MM.YYYY or DD.MM.YY.

3. **Amounts**: All amounts in euros as plain decimal numbers with a dot as decimal separator and no currency symbol (e.g. 42.75, not "42,75 €").
   - "grossAmount": the final total including VAT (Summe, Gesamt, Zu zahlen, Brutto).
   - "netAmount": the total excluding VAT (Netto).
   - "taxAmount": the total VAT (MwSt., USt.).
   - "taxRatePercent": the VAT rate in percent (7 or 19).

4. **VAT breakdown**: Look for the VAT table near the bottom of the receipt (columns like "MwSt-Satz", "Netto", "MwSt", "Brutto", often rows labelled A/B or 7%/19%).
   - If BOTH 7% and 19% appear, fill "vat7Net"/"vat7Tax" and "vat19Net"/"vat19Tax" independently from their own rows. Set "netAmount" to the sum of both nets, "taxAmount" to the sum of both taxes, "grossAmount" to the receipt total, and "taxRatePercent" to 19 (the highest rate present).
   - If only ONE rate appears, fill only the matching pair ("vat7Net"/"vat7Tax" or "vat19Net"/"vat19Tax") and set the other pair to null.
   - Never invent a breakdown that is not printed or derivable from the receipt.

5. **Category**: Choose exactly one of the following categories, spelled exactly as written here. If none fits, use "` + CategoryOther + `":
`

const receiptPromptSchema = `
Return ONLY valid JSON in this exact format:
{
  "netAmount": number | null,
  "taxAmount": number | null,
  "grossAmount": number | null,
  "taxRatePercent": number | null,
  "vat7Net": number | null,
  "vat7Tax": number | null,
  "vat19Net": number | null,
  "vat19Tax": number | null,
  "date": "YYYY-MM-DD" | null,
  "vendor": string | null,
  "category": string | null
}

Example with a single VAT rate (19%):
{
  "netAmount": 84.03,
  "taxAmount": 15.97,
  "grossAmount": 100.00,
  "taxRatePercent": 19,
  "vat7Net": null,
  "vat7Tax": null,
  "vat19Net": 84.03,
  "vat19Tax": 15.97,
  "date": "2024-03-15",
  "vendor": "REWE",
  "category": "Verpflegung & Bewirtung"
}

Example with mixed VAT rates (7% table row: net 59.03, VAT 4.13; 19% table row: net 0.21, VAT 0.04; total 63.41):
{
  "netAmount": 59.24,
  "taxAmount": 4.17,
  "grossAmount": 63.41,
  "taxRatePercent": 19,
  "vat7Net": 59.03,
  "vat7Tax": 4.13,
  "vat19Net": 0.21,
  "vat19Tax": 0.04,
  "date": "2024-05-02",
  "vendor": "EDEKA",
  "category": "Verpflegung & Bewirtung"
}

Important:
- All numbers must be JSON numbers, not strings
- If you cannot find a field, use null for that field
- Do not include any text before or after the JSON
- Do not use markdown code blocks`

const multiPartNotice = `
The %d images/documents above are consecutive parts of ONE single physical receipt, in top-to-bottom order (for example a long receipt photographed in sections). Read them together as one receipt: do not treat them as separate receipts, do not add up totals from different parts, and take the final total and VAT table from wherever they appear.
`

// BuildPrompt returns the instruction text for a request with partCount
// media parts. The output is deterministic for a given partCount.
func BuildPrompt(partCount int) string {
	var b strings.Builder
	b.WriteString(receiptPromptHeader)
	for _, c := range Categories {
		b.WriteString("   - ")
		b.WriteString(c)
		b.WriteString("\n")
	}
	if partCount > 1 {
		fmt.Fprintf(&b, multiPartNotice, partCount)
	}
	b.WriteString(receiptPromptSchema)
	return b.String()
}
