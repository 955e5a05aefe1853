package desktop

import (
	"bytes"
	"image"
	"image/color"
	"image/png"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/belegscanner/internal/capture"
)

// marked returns a w x h white image with a red top-left pixel
func marked(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.White)
		}
	}
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	return img
}

func isRed(c color.Color) bool {
	r, g, b, _ := c.RGBA()
	return r == 0xffff && g == 0 && b == 0
}

var _ = Describe("preview rendering", func() {
	Describe("rotate", func() {
		var src *image.RGBA

		BeforeEach(func() {
			src = marked(4, 2)
		})

		It("keeps the image for 0 degrees", func() {
			Expect(rotate(src, 0)).To(BeIdenticalTo(src))
			Expect(rotate(src, 360)).To(BeIdenticalTo(src))
		})

		It("turns clockwise by 90 degrees", func() {
			out := rotate(src, 90)
			Expect(out.Bounds().Dx()).To(Equal(2))
			Expect(out.Bounds().Dy()).To(Equal(4))
			Expect(isRed(out.At(1, 0))).To(BeTrue())
		})

		It("turns upside down by 180 degrees", func() {
			out := rotate(src, 180)
			Expect(out.Bounds().Dx()).To(Equal(4))
			Expect(isRed(out.At(3, 1))).To(BeTrue())
		})

		It("treats 270 like -90", func() {
			out := rotate(src, 270)
			Expect(out.Bounds().Dx()).To(Equal(2))
			Expect(isRed(out.At(0, 3))).To(BeTrue())
			Expect(isRed(rotate(src, -90).At(0, 3))).To(BeTrue())
		})
	})

	Describe("renderPreview", func() {
		It("fits the longer side at 100% zoom", func() {
			out := renderPreview(marked(1200, 600), capture.Transform{Zoom: 1})
			Expect(out.Bounds().Dx()).To(Equal(600))
			Expect(out.Bounds().Dy()).To(Equal(300))
		})

		It("applies rotation before scaling", func() {
			out := renderPreview(marked(1200, 600), capture.Transform{Rotation: 90, Zoom: 1})
			Expect(out.Bounds().Dx()).To(Equal(300))
			Expect(out.Bounds().Dy()).To(Equal(600))
		})

		It("scales with the zoom factor", func() {
			out := renderPreview(marked(1200, 600), capture.Transform{Zoom: 0.5})
			Expect(out.Bounds().Dx()).To(Equal(300))
			Expect(out.Bounds().Dy()).To(Equal(150))
		})
	})

	Describe("decodePreview", func() {
		It("decodes PNG data", func() {
			var buf bytes.Buffer
			Expect(png.Encode(&buf, marked(3, 3))).To(Succeed())

			img, err := decodePreview(capture.Preview{Name: "a.png", Data: buf.Bytes()})
			Expect(err).NotTo(HaveOccurred())
			Expect(img.Bounds().Dx()).To(Equal(3))
		})

		It("fails for PDFs", func() {
			_, err := decodePreview(capture.Preview{Name: "a.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.4")})
			Expect(err).To(MatchError(ContainSubstring("a.pdf")))
		})
	})
})
