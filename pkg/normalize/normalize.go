// Package normalize turns raw intensity planes into thresholded 8-bit planes.
package normalize

import (
	"image"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"scanchannels/pkg/config"
)

// Normalizer applies per-channel thresholds from a channel table.
type Normalizer struct {
	Channels config.ChannelTable
}

// NewNormalizer creates a normalizer backed by the given channel table.
func NewNormalizer(channels config.ChannelTable) *Normalizer {
	return &Normalizer{Channels: channels}
}

// Normalize scales the plane with the threshold of channel ch. Channels
// missing from the table use a threshold of 0.
func (n *Normalizer) Normalize(plane mat.Matrix, ch int) *image.Gray {
	return Normalize(plane, n.Channels.Threshold(ch))
}

// Normalize min/max scales a plane to [0,1], zeroes everything below thr,
// re-expands the rest to [0,1] and quantizes to 8 bits.
//
// A uniform plane has no signal and yields an all-zero image. thr must be
// in [0,1); 0 leaves the normalized values untouched.
func Normalize(plane mat.Matrix, thr float64) *image.Gray {
	var f mat.Dense
	f.CloneFrom(plane)
	rows, cols := f.Dims()
	data := f.RawMatrix().Data

	lo := floats.Min(data)
	floats.AddConst(-lo, data)
	span := floats.Max(data)
	if span == 0 {
		span = 1
	}

	f.Apply(func(_, _ int, v float64) float64 {
		v /= span
		if thr <= 0 {
			return v
		}
		if v < thr {
			return 0
		}
		return (v - thr) / (1 - thr)
	}, &f)

	out := image.NewGray(image.Rect(0, 0, cols, rows))
	for i := 0; i < rows; i++ {
		row := f.RawRowView(i)
		pix := out.Pix[i*out.Stride : i*out.Stride+cols]
		for j, v := range row {
			pix[j] = toByte(v)
		}
	}
	return out
}

// toByte truncates v*255 and clips it to the 8-bit range.
func toByte(v float64) uint8 {
	s := v * 255
	if math.IsNaN(s) || s <= 0 {
		return 0
	}
	if s >= 255 {
		return 255
	}
	return uint8(s)
}
