package capture

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/receipt-ingest/internal/imaging"
)

var _ = Describe("PhotoProducer", func() {
	It("produces one optimized page per input in selection order", func() {
		inputs := []PhotoInput{
			{Data: photoFixture(), ContentType: "image/png"},
			{Data: photoFixture(), ContentType: "image/png"},
		}
		doc, err := NewPhotoProducer(inputs, testOptions()).Produce(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(doc.Len()).To(Equal(2))
		Expect(doc.Pages()[0].PageNumber).To(Equal(1))
		Expect(doc.Pages()[1].PageNumber).To(Equal(2))
		Expect(doc.Pages()[0].Thumbnail.Width).To(Equal(32))
	})

	It("aborts on the first undecodable input", func() {
		inputs := []PhotoInput{
			{Data: photoFixture(), ContentType: "image/png"},
			{Data: []byte("junk"), ContentType: "image/png"},
		}
		_, err := NewPhotoProducer(inputs, testOptions()).Produce(context.Background())
		Expect(err).To(HaveOccurred())
		var decodeErr *imaging.DecodeError
		Expect(errors.As(err, &decodeErr)).To(BeTrue())
	})
})

var _ = Describe("DocumentProducer", func() {
	It("surfaces rasterization failures", func() {
		_, err := NewDocumentProducer([]byte("not a pdf"), testOptions()).Produce(context.Background())
		Expect(err).To(HaveOccurred())
		var rasterErr *imaging.RasterizationError
		Expect(errors.As(err, &rasterErr)).To(BeTrue())
	})
})
