package extraction

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// reconcileTolerance is the largest rounding gap (in euros) tolerated
// between a receipt total and the sum of its parts.
const reconcileTolerance = 0.05

var dateLayouts = []string{
	"2006-01-02",
	"02.01.2006",
	"2.1.2006",
	"2006/01/02",
}

// Validate turns decoded reply fields into a ReceiptData. It never fails:
// absent or malformed fields become nil. Amounts are not recomputed; an
// inconsistent total only adds a warning.
func Validate(fields RawFields, rawText string) *ReceiptData {
	data := &ReceiptData{
		NetAmount:      numberField(fields, "netAmount"),
		TaxAmount:      numberField(fields, "taxAmount"),
		GrossAmount:    numberField(fields, "grossAmount"),
		TaxRatePercent: numberField(fields, "taxRatePercent"),
		Vat7Net:        numberField(fields, "vat7Net"),
		Vat7Tax:        numberField(fields, "vat7Tax"),
		Vat19Net:       numberField(fields, "vat19Net"),
		Vat19Tax:       numberField(fields, "vat19Tax"),
		Date:           dateField(fields, "date"),
		Vendor:         stringField(fields, "vendor"),
		Category:       categoryField(fields, "category"),
		RawText:        rawText,
	}
	data.Warnings = reconcile(data)
	return data
}

func numberField(fields RawFields, key string) *float64 {
	var f float64
	switch v := fields[key].(type) {
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	case float64:
		f = v
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func stringField(fields RawFields, key string) *string {
	v, ok := fields[key].(string)
	if !ok {
		return nil
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func dateField(fields RawFields, key string) *string {
	v := stringField(fields, key)
	if v == nil {
		return nil
	}
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, *v); err == nil {
			iso := d.Format("2006-01-02")
			return &iso
		}
	}
	return nil
}

// categoryField keeps known categories, clamps any other present value to
// CategoryOther and leaves an absent category nil.
func categoryField(fields RawFields, key string) *string {
	raw, ok := fields[key]
	if !ok || raw == nil {
		return nil
	}
	if s, ok := raw.(string); ok {
		s = strings.TrimSpace(s)
		if IsCategory(s) {
			return &s
		}
	}
	other := CategoryOther
	return &other
}

func reconcile(d *ReceiptData) []string {
	if d.GrossAmount == nil {
		return nil
	}
	gross := *d.GrossAmount

	var warnings []string
	if d.NetAmount != nil && d.TaxAmount != nil {
		if sum := *d.NetAmount + *d.TaxAmount; !near(sum, gross) {
			warnings = append(warnings, fmt.Sprintf("net %.2f + tax %.2f = %.2f differs from gross %.2f", *d.NetAmount, *d.TaxAmount, sum, gross))
		}
	}

	has7 := d.Vat7Net != nil && d.Vat7Tax != nil
	has19 := d.Vat19Net != nil && d.Vat19Tax != nil
	if has7 && has19 {
		sum := *d.Vat7Net + *d.Vat7Tax + *d.Vat19Net + *d.Vat19Tax
		if !near(sum, gross) {
			warnings = append(warnings, fmt.Sprintf("VAT buckets sum to %.2f but gross is %.2f", sum, gross))
		}
	}
	return warnings
}

func near(a, b float64) bool {
	return math.Abs(a-b) <= reconcileTolerance
}
