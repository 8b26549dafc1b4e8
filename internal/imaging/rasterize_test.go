package imaging

import (
	"context"
	"errors"
	"fmt"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// minimalPDF builds a valid PDF with the given number of empty pages.
func minimalPDF(pageCount int) []byte {
	var b strings.Builder
	var offsets []int

	write := func(s string) {
		b.WriteString(s)
	}
	object := func(s string) {
		offsets = append(offsets, b.Len())
		write(s)
	}

	write("%PDF-1.4\n")
	kids := make([]string, 0, pageCount)
	for i := 0; i < pageCount; i++ {
		kids = append(kids, fmt.Sprintf("%d 0 R", 3+i))
	}
	object("1 0 obj<</Type/Catalog/Pages 2 0 R>>endobj\n")
	object(fmt.Sprintf("2 0 obj<</Type/Pages/Kids[%s]/Count %d>>endobj\n", strings.Join(kids, " "), pageCount))
	for i := 0; i < pageCount; i++ {
		object(fmt.Sprintf("%d 0 obj<</Type/Page/Parent 2 0 R/MediaBox[0 0 612 792]>>endobj\n", 3+i))
	}

	xrefStart := b.Len()
	write(fmt.Sprintf("xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1))
	for _, off := range offsets {
		write(fmt.Sprintf("%010d 00000 n \n", off))
	}
	write(fmt.Sprintf("trailer<</Size %d/Root 1 0 R>>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xrefStart))
	return []byte(b.String())
}

var _ = Describe("Rasterize", func() {
	var (
		src   []byte
		pages []PageImage
		err   error
	)

	JustBeforeEach(func() {
		pages, err = Rasterize(src)
	})

	When("the source is a single-page document", func() {
		BeforeEach(func() {
			src = minimalPDF(1)
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should produce one page", func() {
			Expect(pages).To(HaveLen(1))
			Expect(pages[0].PageNumber).To(Equal(1))
		})

		It("should produce renderable page data", func() {
			Expect(pages[0].Data).NotTo(BeEmpty())
		})
	})

	When("the source has multiple pages", func() {
		BeforeEach(func() {
			src = minimalPDF(4)
		})

		It("should produce one image per page in ascending order", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(pages).To(HaveLen(4))
			for i, page := range pages {
				Expect(page.PageNumber).To(Equal(i + 1))
				Expect(page.Data).NotTo(BeEmpty())
			}
		})
	})

	When("each rasterized page is optimized", func() {
		BeforeEach(func() {
			src = minimalPDF(2)
		})

		It("should satisfy the optimization bounds", func() {
			Expect(err).NotTo(HaveOccurred())
			for _, page := range pages {
				opt, oerr := Optimize(context.Background(), page.Data, "image/png", Options{MaxDimension: 512, ThumbnailSize: 64})
				Expect(oerr).NotTo(HaveOccurred())
				Expect(opt.Full.Width).To(BeNumerically("<=", 512))
				Expect(opt.Full.Height).To(BeNumerically("<=", 512))
				Expect(opt.Thumbnail.Width).To(Equal(64))
				Expect(opt.Thumbnail.Height).To(Equal(64))
			}
		})
	})

	When("the source is not a document", func() {
		BeforeEach(func() {
			src = []byte("not a pdf at all")
		})

		It("should return a RasterizationError", func() {
			Expect(err).To(HaveOccurred())
			var rasterErr *RasterizationError
			Expect(errors.As(err, &rasterErr)).To(BeTrue())
		})

		It("should not return a partial page set", func() {
			Expect(pages).To(BeNil())
		})
	})
})
