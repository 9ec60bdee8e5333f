// Package composite renders 8-bit intensity planes as tinted, alpha-masked
// images.
package composite

import (
	"image"
	"image/color"

	"scanchannels/pkg/config"
)

// Compositor tints planes with the colors from a channel table.
type Compositor struct {
	Channels config.ChannelTable
}

// NewCompositor creates a compositor backed by the given channel table.
func NewCompositor(channels config.ChannelTable) *Compositor {
	return &Compositor{Channels: channels}
}

// Composite renders intensity as channel ch. It fails with
// config.ErrUnknownChannel when ch has no tint.
func (c *Compositor) Composite(intensity *image.Gray, ch int) (*image.NRGBA, error) {
	channel, err := c.Channels.Lookup(ch)
	if err != nil {
		return nil, err
	}
	return Tint(intensity, channel.Tint), nil
}

// Tint builds a non-premultiplied image whose color is tint everywhere and
// whose alpha is the intensity. Zero intensity is fully transparent but
// keeps the tint color.
func Tint(intensity *image.Gray, tint color.RGBA) *image.NRGBA {
	b := intensity.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewNRGBA(image.Rect(0, 0, w, h))

	for y := 0; y < h; y++ {
		src := intensity.Pix[intensity.PixOffset(b.Min.X, b.Min.Y+y):]
		dst := out.Pix[y*out.Stride:]
		for x := 0; x < w; x++ {
			i := x * 4
			dst[i+0] = tint.R
			dst[i+1] = tint.G
			dst[i+2] = tint.B
			dst[i+3] = src[x]
		}
	}
	return out
}
