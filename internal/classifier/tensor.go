package classifier

import (
	"fmt"
	"image"

	"github.com/AhmAshraf1/PlanTech/pkg/models"
	"github.com/nfnt/resize"
)

// EncodeTensor resizes img to the model's input size and lays out its RGB
// channels in the requested order, scaled by spec.Scale.
func EncodeTensor(img image.Image, spec models.InputSpec) ([]float32, error) {
	if spec.Width <= 0 || spec.Height <= 0 {
		return nil, fmt.Errorf("%w: input size %dx%d", ErrShapeMismatch, spec.Width, spec.Height)
	}
	scale := spec.Scale
	if scale == 0 {
		scale = 1
	}

	b := img.Bounds()
	if b.Dx() != spec.Width || b.Dy() != spec.Height {
		img = resize.Resize(uint(spec.Width), uint(spec.Height), img, resize.Bilinear)
		b = img.Bounds()
	}

	w, h := spec.Width, spec.Height
	plane := w * h
	out := make([]float32, spec.Len())

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r16, g16, b16, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			r := float32(r16>>8) * scale
			g := float32(g16>>8) * scale
			bl := float32(b16>>8) * scale

			idx := y*w + x
			switch spec.Layout {
			case models.LayoutNCHW:
				out[idx] = r
				out[plane+idx] = g
				out[2*plane+idx] = bl
			default:
				out[idx*3] = r
				out[idx*3+1] = g
				out[idx*3+2] = bl
			}
		}
	}

	return out, nil
}
