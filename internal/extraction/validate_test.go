package extraction

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Validate", func() {
	var (
		fields RawFields
		raw    string
		data   *ReceiptData
	)

	BeforeEach(func() {
		raw = "raw reply"
	})

	JustBeforeEach(func() {
		data = Validate(fields, raw)
	})

	When("the object is empty", func() {
		BeforeEach(func() {
			fields = RawFields{}
		})

		It("should leave every field nil except the raw text", func() {
			Expect(*data).To(Equal(ReceiptData{RawText: "raw reply"}))
		})
	})

	When("all fields are well formed", func() {
		BeforeEach(func() {
			fields = RawFields{
				"netAmount":      json.Number("84.03"),
				"taxAmount":      json.Number("15.97"),
				"grossAmount":    json.Number("100.00"),
				"taxRatePercent": json.Number("19"),
				"vat7Net":        nil,
				"vat7Tax":        nil,
				"vat19Net":       json.Number("84.03"),
				"vat19Tax":       json.Number("15.97"),
				"date":           "2024-03-15",
				"vendor":         " REWE ",
				"category":       "Verpflegung & Bewirtung",
			}
		})

		It("should copy the amounts", func() {
			Expect(data.NetAmount).To(Equal(ptr(84.03)))
			Expect(data.TaxAmount).To(Equal(ptr(15.97)))
			Expect(data.GrossAmount).To(Equal(ptr(100.0)))
			Expect(data.TaxRatePercent).To(Equal(ptr(19.0)))
			Expect(data.Vat19Net).To(Equal(ptr(84.03)))
			Expect(data.Vat19Tax).To(Equal(ptr(15.97)))
		})

		It("should leave the absent bucket nil", func() {
			Expect(data.Vat7Net).To(BeNil())
			Expect(data.Vat7Tax).To(BeNil())
		})

		It("should trim the vendor", func() {
			Expect(data.Vendor).To(Equal(ptr("REWE")))
		})

		It("should keep the date", func() {
			Expect(data.Date).To(Equal(ptr("2024-03-15")))
		})

		It("should not add warnings", func() {
			Expect(data.Warnings).To(BeEmpty())
		})
	})

	When("fields have the wrong shape", func() {
		BeforeEach(func() {
			fields = RawFields{
				"netAmount":   "84,03",
				"grossAmount": true,
				"vendor":      42,
				"date":        "yesterday",
			}
		})

		It("should default them to nil", func() {
			Expect(data.NetAmount).To(BeNil())
			Expect(data.GrossAmount).To(BeNil())
			Expect(data.Vendor).To(BeNil())
			Expect(data.Date).To(BeNil())
		})
	})

	When("the date uses the German format", func() {
		BeforeEach(func() {
			fields = RawFields{"date": "15.03.2024"}
		})

		It("should normalize it to ISO", func() {
			Expect(data.Date).To(Equal(ptr("2024-03-15")))
		})
	})

	When("the vendor is blank", func() {
		BeforeEach(func() {
			fields = RawFields{"vendor": "   "}
		})

		It("should be nil", func() {
			Expect(data.Vendor).To(BeNil())
		})
	})

	When("the mixed VAT buckets do not add up to the gross amount", func() {
		BeforeEach(func() {
			fields = RawFields{
				"grossAmount": json.Number("70.00"),
				"vat7Net":     json.Number("59.03"),
				"vat7Tax":     json.Number("4.13"),
				"vat19Net":    json.Number("0.21"),
				"vat19Tax":    json.Number("0.04"),
			}
		})

		It("should annotate without changing any value", func() {
			Expect(data.Warnings).To(ConsistOf(ContainSubstring("VAT buckets sum to 63.41")))
			Expect(data.GrossAmount).To(Equal(ptr(70.0)))
		})
	})

	When("net plus tax does not match gross", func() {
		BeforeEach(func() {
			fields = RawFields{
				"netAmount":   json.Number("80.00"),
				"taxAmount":   json.Number("15.97"),
				"grossAmount": json.Number("100.00"),
			}
		})

		It("should add a warning", func() {
			Expect(data.Warnings).To(HaveLen(1))
		})
	})

	Describe("category", func() {
		DescribeTable("known categories pass through unchanged",
			func(category string) {
				Expect(Validate(RawFields{"category": category}, "").Category).To(Equal(ptr(category)))
			},
			func() []TableEntry {
				entries := make([]TableEntry, 0, len(Categories))
				for _, c := range Categories {
					entries = append(entries, Entry(c, c))
				}
				return entries
			}(),
		)

		DescribeTable("unknown values are clamped to the catch-all",
			func(value any) {
				Expect(Validate(RawFields{"category": value}, "").Category).To(Equal(ptr(CategoryOther)))
			},
			Entry("a near miss", "Verpflegung"),
			Entry("an English name", "Food"),
			Entry("an empty string", ""),
			Entry("a number", json.Number("3")),
		)

		It("stays nil when absent", func() {
			Expect(Validate(RawFields{}, "").Category).To(BeNil())
		})

		It("stays nil when null", func() {
			Expect(Validate(RawFields{"category": nil}, "").Category).To(BeNil())
		})
	})
})
