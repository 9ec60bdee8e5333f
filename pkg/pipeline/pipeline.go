// Package pipeline turns decoded scan arrays into tinted per-channel PNGs.
//
// A Pipeline is configured once with the channel and rotation tables and is
// then driven with one array per dataset. For each (channel, plane) pair the
// spatial plane is rotated by the dataset's correction, normalized with the
// channel threshold, tinted with the channel color and written atomically to
// the path chosen by the Layout. Flat and Detailed are the two layouts.
package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"scanchannels/internal/models"
	"scanchannels/pkg/composite"
	"scanchannels/pkg/config"
	"scanchannels/pkg/normalize"
	"scanchannels/pkg/orient"
	"scanchannels/pkg/visualization"
)

// Output describes one written image.
type Output struct {
	Channel int    // 1-based
	Plane   int    // 0-based, always 0 for flat datasets
	Path    string
	Bytes   int64

	// Coverage is the fraction of pixels with any signal
	Coverage float64

	// MeanAlpha is the mean 8-bit intensity over all pixels
	MeanAlpha float64
}

// Pipeline holds the read-only tables shared by all datasets. It keeps no
// state between calls and is safe for concurrent use on distinct datasets.
type Pipeline struct {
	channels   config.ChannelTable
	rotations  config.RotationTable
	normalizer *normalize.Normalizer
	compositor *composite.Compositor
	log        zerolog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger, the default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(p *Pipeline) {
		p.log = log
	}
}

// New creates a pipeline for the given tables.
func New(channels config.ChannelTable, rotations config.RotationTable, opts ...Option) *Pipeline {
	p := &Pipeline{
		channels:   channels,
		rotations:  rotations,
		normalizer: normalize.NewNormalizer(channels),
		compositor: composite.NewCompositor(channels),
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewFromConfig creates a pipeline from a loaded configuration.
func NewFromConfig(cfg *config.Config, opts ...Option) (*Pipeline, error) {
	channels, err := cfg.ChannelTable()
	if err != nil {
		return nil, err
	}
	rotations, err := cfg.RotationTable()
	if err != nil {
		return nil, err
	}
	return New(channels, rotations, opts...), nil
}

// ProcessFlat writes <outputDir>/<dataset>_channel<N>.png for every channel
// and returns the file names in channel order.
func (p *Pipeline) ProcessFlat(arr *models.Array, dataset, outputDir string) ([]string, error) {
	outputs, err := p.Process(arr, dataset, outputDir, Flat{})
	if err != nil {
		return nil, err
	}
	names := make([]string, len(outputs))
	for i, o := range outputs {
		names[i] = filepath.Base(o.Path)
	}
	return names, nil
}

// ProcessDetailed writes <outputRoot>/<dataset>/channel<N>/slice<Z>.png for
// every channel and plane and returns the channel and plane counts.
func (p *Pipeline) ProcessDetailed(arr *models.Array, dataset, outputRoot string) (int, int, error) {
	outputs, err := p.Process(arr, dataset, outputRoot, Detailed{})
	if err != nil {
		return 0, 0, err
	}
	channels, planes := 0, 0
	for _, o := range outputs {
		channels = max(channels, o.Channel)
		planes = max(planes, o.Plane+1)
	}
	return channels, planes, nil
}

// Process runs every (channel, plane) of arr through the pipeline and writes
// the results under root using layout. Shape and channel-table problems are
// reported before anything is written.
func (p *Pipeline) Process(arr *models.Array, dataset, root string, layout Layout) ([]Output, error) {
	sq := arr.Squeeze()

	numChannels, numPlanes, err := layout.Dims(sq.Shape)
	if err != nil {
		return nil, &ShapeError{
			Dataset: dataset,
			Layout:  layout.Name(),
			Shape:   append([]int(nil), sq.Shape...),
			kind:    err,
		}
	}
	for c := 1; c <= numChannels; c++ {
		if _, err := p.channels.Lookup(c); err != nil {
			return nil, fmt.Errorf("dataset %q: %w", dataset, err)
		}
	}

	k := p.rotations.Turns(dataset)
	p.log.Debug().
		Str("dataset", dataset).
		Str("layout", layout.Name()).
		Ints("shape", sq.Shape).
		Int("rotation", k).
		Msg("processing dataset")

	outputs := make([]Output, 0, numChannels*numPlanes)
	dirs := make(map[string]bool)
	for c := 0; c < numChannels; c++ {
		for z := 0; z < numPlanes; z++ {
			path := layout.Path(root, dataset, c+1, z)
			if dir := filepath.Dir(path); !dirs[dir] {
				if err := os.MkdirAll(dir, 0755); err != nil {
					return outputs, fmt.Errorf("failed to create output directory: %w", err)
				}
				dirs[dir] = true
			}

			out, err := p.processPlane(sq, dataset, c, z, k, path)
			if err != nil {
				return outputs, err
			}
			outputs = append(outputs, out)
		}
	}

	return outputs, nil
}

// processPlane renders one (channel, plane) pair to path.
func (p *Pipeline) processPlane(arr *models.Array, dataset string, c, z, k int, path string) (Output, error) {
	plane, err := arr.Plane(planeIndex(arr.Rank(), c, z)...)
	if err != nil {
		return Output{}, fmt.Errorf("dataset %q channel %d plane %d: %w", dataset, c+1, z, err)
	}
	if k != 0 {
		plane = orient.Rotate(plane, k)
	}

	intensity := p.normalizer.Normalize(plane, c+1)
	img, err := p.compositor.Composite(intensity, c+1)
	if err != nil {
		return Output{}, fmt.Errorf("dataset %q: %w", dataset, err)
	}

	n, err := visualization.SavePNG(img, path)
	if err != nil {
		return Output{}, fmt.Errorf("dataset %q channel %d plane %d: %w", dataset, c+1, z, err)
	}

	alpha := make([]float64, len(intensity.Pix))
	for i, v := range intensity.Pix {
		alpha[i] = float64(v)
	}
	out := Output{
		Channel:   c + 1,
		Plane:     z,
		Path:      path,
		Bytes:     n,
		Coverage:  float64(floats.Count(func(v float64) bool { return v > 0 }, alpha)) / float64(len(alpha)),
		MeanAlpha: stat.Mean(alpha, nil),
	}

	label := ""
	if ch, err := p.channels.Lookup(c + 1); err == nil {
		label = ch.Label
	}
	p.log.Debug().
		Str("dataset", dataset).
		Int("channel", out.Channel).
		Str("label", label).
		Int("plane", out.Plane).
		Str("path", path).
		Float64("coverage", out.Coverage).
		Msg("wrote image")

	return out, nil
}

// IsShapeError reports whether err is a layout shape rejection.
func IsShapeError(err error) bool {
	var se *ShapeError
	return errors.As(err, &se)
}
