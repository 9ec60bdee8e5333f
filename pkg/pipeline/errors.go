package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedShape is reported by the flat layout for arrays that are
	// not rank 2 or 3 after squeezing.
	ErrUnsupportedShape = errors.New("unsupported shape")

	// ErrUnexpectedRank is reported by the detailed layout for arrays that
	// are not rank 2, 3 or 4 after squeezing.
	ErrUnexpectedRank = errors.New("unexpected rank")

	// ErrDuplicateDataset is reported by a batch for a scan whose dataset
	// identifier is already taken by another scan with the same output root.
	ErrDuplicateDataset = errors.New("duplicate dataset")
)

// ShapeError reports an array whose dimensionality does not fit a layout.
// errors.Is matches it against the layout's sentinel error.
type ShapeError struct {
	Dataset string
	Layout  string
	Shape   []int
	kind    error
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("dataset %q: %v %v (rank %d) for %s layout",
		e.Dataset, e.kind, e.Shape, len(e.Shape), e.Layout)
}

func (e *ShapeError) Unwrap() error {
	return e.kind
}
