package desktop

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/zombor/belegscanner/internal/capture"
)

// previewBase is the length of the longer preview side at 100% zoom
const previewBase = 600

// decodePreview decodes an image preview. PDFs and unknown formats return an error.
func decodePreview(p capture.Preview) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(p.Data))
	if err != nil {
		return nil, fmt.Errorf("decoding preview %s: %w", p.Name, err)
	}
	return img, nil
}

// rotate turns an image clockwise by a multiple of 90 degrees
func rotate(src image.Image, degrees int) image.Image {
	degrees = ((degrees % 360) + 360) % 360
	if degrees == 0 {
		return src
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	var dst *image.RGBA
	if degrees == 180 {
		dst = image.NewRGBA(image.Rect(0, 0, w, h))
	} else {
		dst = image.NewRGBA(image.Rect(0, 0, h, w))
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := src.At(b.Min.X+x, b.Min.Y+y)
			switch degrees {
			case 90:
				dst.Set(h-1-y, x, c)
			case 180:
				dst.Set(w-1-x, h-1-y, c)
			case 270:
				dst.Set(y, w-1-x, c)
			}
		}
	}
	return dst
}

// fitSize scales w x h so the longer side is base*zoom pixels
func fitSize(w, h int, zoom float64) (int, int) {
	longest := math.Max(float64(w), float64(h))
	if longest == 0 {
		return 0, 0
	}
	f := previewBase * zoom / longest
	return max(1, int(math.Round(float64(w)*f))), max(1, int(math.Round(float64(h)*f)))
}

// renderPreview applies a preview transform to the decoded image
func renderPreview(src image.Image, t capture.Transform) image.Image {
	rotated := rotate(src, t.Rotation)
	b := rotated.Bounds()
	w, h := fitSize(b.Dx(), b.Dy(), t.Zoom)
	if w == 0 {
		return rotated
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), rotated, b, draw.Src, nil)
	return dst
}
