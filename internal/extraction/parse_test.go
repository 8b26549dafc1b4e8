package extraction

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("parseExtractionJSON", func() {
	It("parses a complete response", func() {
		result, err := parseExtractionJSON(`{
			"vendor_name": "Shoppers Drug Mart",
			"vendor_address": "123 Main St",
			"date": "2026-03-14",
			"time": "14:32",
			"subtotal": 41.98,
			"tax1_amount": 2.10,
			"tax1_percent": 5.0,
			"tax2_amount": 4.20,
			"tax2_percent": 9.975,
			"total": 48.28,
			"category": "Pharmacy",
			"payment_method": "Visa",
			"card_last4": "4242",
			"customer_name": "Jo Smith"
		}`)
		Expect(err).NotTo(HaveOccurred())
		Expect(*result.VendorName).To(Equal("Shoppers Drug Mart"))
		Expect(*result.Date).To(Equal("2026-03-14"))
		Expect(*result.Time).To(Equal("14:32"))
		Expect(*result.Subtotal).To(Equal(41.98))
		Expect(*result.Tax2Percent).To(Equal(9.975))
		Expect(result.Total).To(Equal(48.28))
		Expect(*result.CardLast4).To(Equal("4242"))
	})

	It("accepts null for every optional field", func() {
		result, err := parseExtractionJSON(`{"vendor_name": null, "date": null, "subtotal": null, "total": 12.50}`)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.VendorName).To(BeNil())
		Expect(result.Date).To(BeNil())
		Expect(result.Subtotal).To(BeNil())
		Expect(result.Total).To(Equal(12.50))
	})

	It("strips markdown code fences", func() {
		result, err := parseExtractionJSON("```json\n{\"total\": 9.99}\n```")
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Total).To(Equal(9.99))
	})

	It("extracts the object from surrounding prose", func() {
		result, err := parseExtractionJSON(`Here is the extracted data: {"total": 3.50} Hope that helps!`)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Total).To(Equal(3.50))
	})

	It("requires a positive total", func() {
		_, err := parseExtractionJSON(`{"vendor_name": "Store", "total": 0}`)
		Expect(err).To(MatchError(ContainSubstring("no total amount")))
	})

	It("fails when no JSON object is present", func() {
		_, err := parseExtractionJSON("I could not read this receipt.")
		Expect(err).To(MatchError(ContainSubstring("no JSON object")))
	})

	It("fails on malformed JSON", func() {
		_, err := parseExtractionJSON(`{"total": 9.99,}`)
		Expect(err).To(HaveOccurred())
	})

	It("trims whitespace from string fields", func() {
		result, err := parseExtractionJSON(`{"vendor_name": "  Costco  ", "total": 100.00}`)
		Expect(err).NotTo(HaveOccurred())
		Expect(*result.VendorName).To(Equal("Costco"))
	})

	Describe("date normalization", func() {
		It("passes ISO dates through", func() {
			result, err := parseExtractionJSON(`{"date": "2026-01-31", "total": 1.00}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(*result.Date).To(Equal("2026-01-31"))
		})

		It("converts slash-separated dates", func() {
			result, err := parseExtractionJSON(`{"date": "2026/01/31", "total": 1.00}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(*result.Date).To(Equal("2026-01-31"))
		})

		It("converts US-style dates", func() {
			result, err := parseExtractionJSON(`{"date": "01/31/2026", "total": 1.00}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(*result.Date).To(Equal("2026-01-31"))
		})

		It("blanks dates it cannot parse instead of guessing", func() {
			result, err := parseExtractionJSON(`{"date": "sometime in March", "total": 1.00}`)
			Expect(err).NotTo(HaveOccurred())
			Expect(*result.Date).To(Equal(""))
		})
	})
})
