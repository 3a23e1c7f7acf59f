package tensor

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Dim describes one axis of a tensor: its extent and its stride in
// elements. A stride of zero means "not yet resolved"; Tensor.Allocate
// fills it with the running product of the preceding extents.
type Dim struct {
	Extent int
	Stride int
}

// Shape is an ordered list of dimensions. Dimension 0 is the innermost,
// fastest-varying axis: shapes arrive here already reversed from the source
// model's declared dimension order, so a source-model NHWC tensor is stored
// as [channels, width, height, batch].
type Shape []Dim

// NewShape builds a Shape from extents alone, leaving every stride unset.
func NewShape(extents ...int) Shape {
	s := make(Shape, len(extents))
	for i, e := range extents {
		s[i] = Dim{Extent: e}
	}
	return s
}

// Rank returns the number of dimensions.
func (s Shape) Rank() int {
	return len(s)
}

// Extents returns the extents of every dimension, innermost first.
func (s Shape) Extents() []int {
	e := make([]int, len(s))
	for i, d := range s {
		e[i] = d.Extent
	}
	return e
}

// ElementCount returns the total number of elements the shape spans.
// A rank-0 shape is a scalar with one element.
func (s Shape) ElementCount() int {
	n := 1
	for _, d := range s {
		n *= d.Extent
	}
	return n
}

// EqualExtents reports whether two shapes have identical rank and extents,
// ignoring strides.
func (s Shape) EqualExtents(o Shape) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i].Extent != o[i].Extent {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape that shares no storage with s.
func (s Shape) Clone() Shape {
	c := make(Shape, len(s))
	copy(c, s)
	return c
}

// Validate rejects negative extents and strides.
func (s Shape) Validate() error {
	for i, d := range s {
		if d.Extent < 0 {
			return errors.Errorf("shape dimension %d has negative extent %d", i, d.Extent)
		}
		if d.Stride < 0 {
			return errors.Errorf("shape dimension %d has negative stride %d", i, d.Stride)
		}
	}
	return nil
}

func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = fmt.Sprintf("%d", d.Extent)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// ReverseAxis translates an axis given in the source model's dimension
// order into this engine's reversed convention, where dimension 0 is the
// innermost axis. Negative source axes are first normalized by adding the
// rank, as source models permit. Every axis-consuming operator must go
// through this helper so the two conventions never drift apart.
func ReverseAxis(rank, axis int) (int, error) {
	if axis < 0 {
		axis += rank
	}
	if axis < 0 || axis >= rank {
		return 0, errors.Errorf("axis %d out of range for rank %d", axis, rank)
	}
	return rank - axis - 1, nil
}
