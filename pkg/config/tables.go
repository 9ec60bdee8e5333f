package config

import (
	"errors"
	"fmt"
	"image/color"
	"sort"

	"github.com/lucasb-eyer/go-colorful"
)

// ErrUnknownChannel is returned when a channel index has no table entry.
var ErrUnknownChannel = errors.New("unknown channel")

// Channel holds the fixed rendering attributes of one fluorescence channel.
type Channel struct {
	Index     int
	Label     string
	Tint      color.RGBA
	Threshold float64
}

// ChannelTable is a read-only lookup from 1-based channel index to Channel.
// The zero value is an empty table.
type ChannelTable struct {
	channels map[int]Channel
}

// NewChannelTable validates and indexes the given channels.
func NewChannelTable(channels ...Channel) (ChannelTable, error) {
	t := ChannelTable{channels: make(map[int]Channel, len(channels))}
	for _, ch := range channels {
		if ch.Index < 1 {
			return ChannelTable{}, fmt.Errorf("channel index must be 1-based, got %d", ch.Index)
		}
		if _, dup := t.channels[ch.Index]; dup {
			return ChannelTable{}, fmt.Errorf("duplicate channel index %d", ch.Index)
		}
		if ch.Threshold < 0 || ch.Threshold >= 1 {
			return ChannelTable{}, fmt.Errorf("channel %d threshold %v outside [0,1)", ch.Index, ch.Threshold)
		}
		ch.Tint.A = 0xff
		t.channels[ch.Index] = ch
	}
	return t, nil
}

// Lookup returns the channel with the given index.
func (t ChannelTable) Lookup(index int) (Channel, error) {
	ch, ok := t.channels[index]
	if !ok {
		return Channel{}, fmt.Errorf("%w %d", ErrUnknownChannel, index)
	}
	return ch, nil
}

// Threshold returns the channel's threshold, or 0 when the channel is unknown.
func (t ChannelTable) Threshold(index int) float64 {
	return t.channels[index].Threshold
}

// Indices returns the configured channel indices in ascending order.
func (t ChannelTable) Indices() []int {
	out := make([]int, 0, len(t.channels))
	for idx := range t.channels {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// Len returns the number of configured channels.
func (t ChannelTable) Len() int {
	return len(t.channels)
}

// RotationTable maps dataset identifiers to counter-clockwise quarter turns.
// Identifiers are matched exactly; anything absent rotates by 0.
type RotationTable struct {
	turns map[string]int
}

// NewRotationTable validates that every entry is in 0..3.
func NewRotationTable(turns map[string]int) (RotationTable, error) {
	t := RotationTable{turns: make(map[string]int, len(turns))}
	for id, k := range turns {
		if k < 0 || k > 3 {
			return RotationTable{}, fmt.Errorf("dataset %q: rotation %d outside 0..3", id, k)
		}
		t.turns[id] = k
	}
	return t, nil
}

// Turns returns the quarter turns for a dataset, 0 if unlisted.
func (t RotationTable) Turns(dataset string) int {
	return t.turns[dataset]
}

// ParseTint parses a #rrggbb (or #rgb) color into an opaque RGBA.
func ParseTint(hex string) (color.RGBA, error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid tint %q: %w", hex, err)
	}
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 0xff}, nil
}
