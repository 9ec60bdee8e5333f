package models

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Array is a decoded intensity array with its shape.
// Data is stored in row-major order, the last two axes are always the
// spatial height and width.
type Array struct {
	// Shape holds the size of each axis, outermost first
	Shape []int

	// Data is the flattened intensity data
	Data []float64
}

// NewArray creates an array of the given shape, validating that the data
// length matches the product of the dimensions.
func NewArray(data []float64, shape ...int) (*Array, error) {
	n := 1
	for _, d := range shape {
		if d <= 0 {
			return nil, fmt.Errorf("invalid dimension %d in shape %v", d, shape)
		}
		n *= d
	}
	if len(shape) == 0 {
		n = 0
	}
	if len(data) != n {
		return nil, fmt.Errorf("data length %d does not match shape %v", len(data), shape)
	}
	return &Array{Shape: append([]int(nil), shape...), Data: data}, nil
}

// Rank returns the number of axes.
func (a *Array) Rank() int {
	return len(a.Shape)
}

// Height is the size of the second to last axis.
func (a *Array) Height() int {
	if a.Rank() < 2 {
		return 0
	}
	return a.Shape[a.Rank()-2]
}

// Width is the size of the last axis.
func (a *Array) Width() int {
	if a.Rank() < 1 {
		return 0
	}
	return a.Shape[a.Rank()-1]
}

// Squeeze returns a view of the array with size-1 leading axes removed.
// The spatial axes are never removed, so a 1xN plane stays rank 2.
// The returned array shares Data with the receiver.
func (a *Array) Squeeze() *Array {
	rank := a.Rank()
	shape := make([]int, 0, rank)
	for i, d := range a.Shape {
		if d == 1 && i < rank-2 {
			continue
		}
		shape = append(shape, d)
	}
	return &Array{Shape: shape, Data: a.Data}
}

// Plane returns the spatial plane addressed by the given leading indices
// as a dense matrix. The number of indices must equal Rank()-2.
// The matrix is a copy, callers may modify it freely.
func (a *Array) Plane(index ...int) (*mat.Dense, error) {
	rank := a.Rank()
	if rank < 2 {
		return nil, fmt.Errorf("array of shape %v has no spatial plane", a.Shape)
	}
	if len(index) != rank-2 {
		return nil, fmt.Errorf("need %d leading indices for shape %v, got %d", rank-2, a.Shape, len(index))
	}

	h, w := a.Height(), a.Width()
	offset := 0
	for i, idx := range index {
		if idx < 0 || idx >= a.Shape[i] {
			return nil, fmt.Errorf("index %d out of range for axis %d of shape %v", idx, i, a.Shape)
		}
		offset = offset*a.Shape[i] + idx
	}
	offset *= h * w

	data := make([]float64, h*w)
	copy(data, a.Data[offset:offset+h*w])
	return mat.NewDense(h, w, data), nil
}
