package capture

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Document", func() {
	var doc *Document

	BeforeEach(func() {
		doc = NewDocument()
	})

	Describe("Append", func() {
		It("assigns contiguous page numbers starting at 1", func() {
			doc.Append(testPage("a"))
			doc.Append(testPage("b"))
			doc.Append(testPage("c"))

			numbers := make([]int, 0, doc.Len())
			for _, p := range doc.Pages() {
				numbers = append(numbers, p.PageNumber)
			}
			Expect(numbers).To(Equal([]int{1, 2, 3}))
		})
	})

	Describe("Remove", func() {
		BeforeEach(func() {
			doc.Append(testPage("a"))
			doc.Append(testPage("b"))
			doc.Append(testPage("c"))
			doc.Append(testPage("d"))
		})

		It("renumbers subsequent pages after a middle removal", func() {
			Expect(doc.Remove(2)).To(Succeed())

			Expect(doc.Len()).To(Equal(3))
			for i, p := range doc.Pages() {
				Expect(p.PageNumber).To(Equal(i + 1))
			}
			Expect(doc.Pages()[1].ID).To(Equal("c"))
		})

		It("handles removing the first page", func() {
			Expect(doc.Remove(1)).To(Succeed())
			Expect(doc.Pages()[0].ID).To(Equal("b"))
			Expect(doc.Pages()[0].PageNumber).To(Equal(1))
		})

		It("handles removing the last page", func() {
			Expect(doc.Remove(4)).To(Succeed())
			Expect(doc.Len()).To(Equal(3))
			Expect(doc.Pages()[2].ID).To(Equal("c"))
		})

		It("rejects page numbers out of range", func() {
			Expect(doc.Remove(0)).To(HaveOccurred())
			Expect(doc.Remove(5)).To(HaveOccurred())
		})

		It("keeps numbering contiguous across repeated removals", func() {
			Expect(doc.Remove(2)).To(Succeed())
			Expect(doc.Remove(2)).To(Succeed())
			for i, p := range doc.Pages() {
				Expect(p.PageNumber).To(Equal(i + 1))
			}
		})
	})
})
