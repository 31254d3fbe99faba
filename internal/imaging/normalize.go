// Package imaging decodes uploaded bytes into a canonical 3-channel RGB buffer.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var (
	ErrInvalidImage  = errors.New("invalid image")
	ErrImageTooLarge = fmt.Errorf("%w: pixel count exceeds limit", ErrInvalidImage)
)

// NormalizedImage is a decoded image converted to packed 8-bit RGB.
// It implements image.Image so it can be handed to resamplers directly.
type NormalizedImage struct {
	Pix    []uint8
	Width  int
	Height int
	// Format is the name of the decoder that accepted the bytes (e.g. "jpeg").
	Format string
}

func (m *NormalizedImage) ColorModel() color.Model { return color.RGBAModel }

func (m *NormalizedImage) Bounds() image.Rectangle { return image.Rect(0, 0, m.Width, m.Height) }

func (m *NormalizedImage) At(x, y int) color.Color {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return color.RGBA{}
	}
	i := (y*m.Width + x) * 3
	return color.RGBA{R: m.Pix[i], G: m.Pix[i+1], B: m.Pix[i+2], A: 0xff}
}

// RGB returns the channel values of the pixel at (x, y).
func (m *NormalizedImage) RGB(x, y int) (r, g, b uint8) {
	i := (y*m.Width + x) * 3
	return m.Pix[i], m.Pix[i+1], m.Pix[i+2]
}

// Normalize decodes data and converts it to 3-channel RGB. Alpha is dropped
// without compositing. maxPixels <= 0 disables the size guard.
func Normalize(data []byte, maxPixels int) (*NormalizedImage, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidImage)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: empty dimensions %dx%d", ErrInvalidImage, cfg.Width, cfg.Height)
	}
	if maxPixels > 0 && cfg.Width*cfg.Height > maxPixels {
		return nil, fmt.Errorf("%w (%dx%d > %d)", ErrImageTooLarge, cfg.Width, cfg.Height, maxPixels)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	return toRGB(img, format), nil
}

func toRGB(img image.Image, format string) *NormalizedImage {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := &NormalizedImage{
		Pix:    make([]uint8, w*h*3),
		Width:  w,
		Height: h,
		Format: format,
	}

	// Fast paths for the layouts the stdlib decoders produce most often.
	switch src := img.(type) {
	case *image.NRGBA:
		for y := 0; y < h; y++ {
			row := src.Pix[y*src.Stride : y*src.Stride+w*4]
			for x := 0; x < w; x++ {
				i := (y*w + x) * 3
				out.Pix[i], out.Pix[i+1], out.Pix[i+2] = row[x*4], row[x*4+1], row[x*4+2]
			}
		}
		return out
	case *image.Gray:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				v := src.Pix[y*src.Stride+x]
				i := (y*w + x) * 3
				out.Pix[i], out.Pix[i+1], out.Pix[i+2] = v, v, v
			}
		}
		return out
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			i := (y*w + x) * 3
			out.Pix[i], out.Pix[i+1], out.Pix[i+2] = c.R, c.G, c.B
		}
	}
	return out
}
