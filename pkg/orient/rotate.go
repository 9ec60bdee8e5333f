// Package orient applies the per-dataset orientation correction to
// spatial planes.
package orient

import (
	"gonum.org/v1/gonum/mat"
)

// Rotate turns a plane counter-clockwise by k quarter turns. k is taken
// modulo 4, negative values rotate clockwise. The input is never modified;
// for k == 0 a copy is returned.
//
// Element mapping for an h x w input, with the output indexed by (i, j):
//
//	k=1: out[i][j] = in[j][w-1-i]      (w x h)
//	k=2: out[i][j] = in[h-1-i][w-1-j]  (h x w)
//	k=3: out[i][j] = in[h-1-j][i]      (w x h)
func Rotate(m mat.Matrix, k int) *mat.Dense {
	k = ((k % 4) + 4) % 4

	var out mat.Dense
	switch k {
	case 0:
		out.CloneFrom(m)
	case 1:
		out.CloneFrom(m.T())
		flipRows(&out)
	case 2:
		out.CloneFrom(m)
		flipRows(&out)
		flipCols(&out)
	case 3:
		out.CloneFrom(m.T())
		flipCols(&out)
	}
	return &out
}

// flipRows reverses the row order in place.
func flipRows(m *mat.Dense) {
	r, _ := m.Dims()
	for i, j := 0, r-1; i < j; i, j = i+1, j-1 {
		a, b := m.RawRowView(i), m.RawRowView(j)
		for x := range a {
			a[x], b[x] = b[x], a[x]
		}
	}
}

// flipCols reverses every row in place.
func flipCols(m *mat.Dense) {
	r, _ := m.Dims()
	for i := 0; i < r; i++ {
		row := m.RawRowView(i)
		for a, b := 0, len(row)-1; a < b; a, b = a+1, b-1 {
			row[a], row[b] = row[b], row[a]
		}
	}
}
