package decode

import (
	"image"
	"image/color"
	"io"

	"golang.org/x/image/tiff"

	"scanchannels/internal/models"
)

// DecodeTIFF reads the first image of a TIFF file.
//
// *image.Gray, *image.Gray16 and *image.Paletted with an all-gray palette
// become a rank 2 (Y, X) array; Gray keeps its 8-bit range, the other two
// are 16-bit. Every other
// image type the TIFF decoder returns (RGBA, NRGBA, their 16-bit forms,
// CMYK, and paletted images with colored entries) becomes a (3, Y, X) array
// of the 16-bit red, green and blue values reported by color.Color.RGBA,
// which are alpha-premultiplied; the alpha channel itself is dropped.
func DecodeTIFF(r io.Reader) (*models.Array, error) {
	img, err := tiff.Decode(r)
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	switch src := img.(type) {
	case *image.Gray16:
		data := make([]float64, w*h)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				data[y*w+x] = float64(src.Gray16At(b.Min.X+x, b.Min.Y+y).Y)
			}
		}
		return models.NewArray(data, h, w)
	case *image.Gray:
		data := make([]float64, w*h)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				data[y*w+x] = float64(src.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
			}
		}
		return models.NewArray(data, h, w)
	case *image.Paletted:
		if grayPalette(src.Palette) {
			data := make([]float64, w*h)
			for y := 0; y < h; y++ {
				for x := 0; x < w; x++ {
					c := src.Palette[src.ColorIndexAt(b.Min.X+x, b.Min.Y+y)]
					data[y*w+x] = float64(color.Gray16Model.Convert(c).(color.Gray16).Y)
				}
			}
			return models.NewArray(data, h, w)
		}
	}

	size := w * h
	data := make([]float64, 3*size)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			cr, cg, cb, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			i := y*w + x
			data[i] = float64(cr)
			data[size+i] = float64(cg)
			data[2*size+i] = float64(cb)
		}
	}
	return models.NewArray(data, 3, h, w)
}

// grayPalette reports whether every palette entry has equal color components.
func grayPalette(p color.Palette) bool {
	for _, c := range p {
		r, g, b, _ := c.RGBA()
		if r != g || g != b {
			return false
		}
	}
	return len(p) > 0
}
