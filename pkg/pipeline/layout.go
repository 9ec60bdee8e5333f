package pipeline

import (
	"fmt"
	"path/filepath"
)

// Layout is the shape contract and output naming of one pipeline variant.
type Layout interface {
	// Name identifies the layout in logs and errors
	Name() string

	// Dims returns the channel and plane counts for a squeezed shape, or an
	// error wrapping the layout's sentinel when the rank is not accepted.
	Dims(shape []int) (channels, planes int, err error)

	// Path returns the output file for a 1-based channel and 0-based plane.
	Path(root, dataset string, channel, plane int) string
}

// Flat accepts (Y,X) and (C,Y,X) arrays and writes one file per channel.
type Flat struct{}

func (Flat) Name() string { return "flat" }

func (Flat) Dims(shape []int) (int, int, error) {
	switch len(shape) {
	case 2:
		return 1, 1, nil
	case 3:
		return shape[0], 1, nil
	}
	return 0, 0, ErrUnsupportedShape
}

func (Flat) Path(root, dataset string, channel, _ int) string {
	return FlatPath(root, dataset, channel)
}

// Detailed accepts (Y,X), (C,Y,X) and (C,Z,Y,X) arrays and writes one file
// per channel and plane.
type Detailed struct{}

func (Detailed) Name() string { return "detailed" }

func (Detailed) Dims(shape []int) (int, int, error) {
	switch len(shape) {
	case 2:
		return 1, 1, nil
	case 3:
		return shape[0], 1, nil
	case 4:
		return shape[0], shape[1], nil
	}
	return 0, 0, ErrUnexpectedRank
}

func (Detailed) Path(root, dataset string, channel, plane int) string {
	return DetailedPath(root, dataset, channel, plane)
}

// FlatPath is <dir>/<dataset>_channel<N>.png.
func FlatPath(dir, dataset string, channel int) string {
	return filepath.Join(dir, fmt.Sprintf("%s_channel%d.png", dataset, channel))
}

// DetailedPath is <root>/<dataset>/channel<N>/slice<Z>.png.
func DetailedPath(root, dataset string, channel, plane int) string {
	return filepath.Join(root, dataset, fmt.Sprintf("channel%d", channel), fmt.Sprintf("slice%d.png", plane))
}

// planeIndex maps a 0-based channel and plane to the leading indices of an
// array of the given rank.
func planeIndex(rank, channel, plane int) []int {
	switch rank {
	case 2:
		return nil
	case 3:
		return []int{channel}
	}
	return []int{channel, plane}
}
