package ops

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/gannet-ml/gannet/pkg/tensor"
)

// ReshapeOp reinterprets the input's elements under a new shape. The
// target shape comes from a static list in source dimension order, or
// from the contents of an int32 shape tensor read when bounds are
// resolved. One extent may be -1 and is inferred from the element count.
type ReshapeOp struct {
	in, shape, out *tensor.Tensor
	static         []int
}

// NewReshape builds the op. Exactly one shape source is required:
// newShape, a static extent list in source dimension order, or shape, a
// rank-1 int32 tensor whose contents list the extents in source order.
func NewReshape(in, shape, out *tensor.Tensor, newShape []int) (*ReshapeOp, error) {
	const name = "Reshape"
	if err := checkRank(name, in, out); err != nil {
		return nil, err
	}
	if err := checkSameType(name, in, out); err != nil {
		return nil, err
	}
	if len(newShape) == 0 && shape == nil {
		return nil, errors.Wrapf(ErrConstruction, "%s: no shape source", name)
	}
	if len(newShape) > maxRank {
		return nil, errors.Wrapf(ErrConstruction, "%s: target rank %d, supported maximum is %d", name, len(newShape), maxRank)
	}
	if len(newShape) > 0 {
		shape = nil
	}
	if shape != nil {
		if shape.Type() != tensor.Int32 || shape.Rank() != 1 {
			return nil, errors.Wrapf(ErrConstruction, "%s: shape tensor %q must be rank-1 int32, got rank-%d %s", name, shape.Name(), shape.Rank(), shape.Type())
		}
		if shape.Extent(0) > maxRank {
			return nil, errors.Wrapf(ErrConstruction, "%s: target rank %d, supported maximum is %d", name, shape.Extent(0), maxRank)
		}
	}
	return &ReshapeOp{in: in, shape: shape, out: out, static: newShape}, nil
}

func (op *ReshapeOp) Inputs() []*tensor.Tensor {
	if op.shape != nil {
		return []*tensor.Tensor{op.in, op.shape}
	}
	return []*tensor.Tensor{op.in}
}

func (op *ReshapeOp) Outputs() []*tensor.Tensor { return []*tensor.Tensor{op.out} }

func (op *ReshapeOp) String() string {
	return fmt.Sprintf("Reshape(%s -> %s)", op.in.Name(), op.out.Name())
}

// targetExtents resolves the requested shape into engine dimension
// order, inferring at most one -1 wildcard.
func (op *ReshapeOp) targetExtents() ([]int, error) {
	var source []int
	if len(op.static) > 0 {
		source = op.static
	} else {
		if !op.shape.IsAllocated() {
			return nil, errors.Wrapf(tensor.ErrShapeMismatch, "Reshape: shape tensor %q has no data", op.shape.Name())
		}
		for _, v := range op.shape.Int32s() {
			source = append(source, int(v))
		}
	}

	target := make([]int, len(source))
	for i, e := range source {
		target[len(source)-1-i] = e
	}

	wildcard := -1
	known := 1
	for d, e := range target {
		switch {
		case e == -1:
			if wildcard >= 0 {
				return nil, errors.Wrapf(tensor.ErrShapeMismatch, "Reshape: more than one wildcard extent in %v", source)
			}
			wildcard = d
		case e > 0:
			known *= e
		default:
			return nil, errors.Wrapf(tensor.ErrShapeMismatch, "Reshape: extent %d in %v", e, source)
		}
	}
	if wildcard >= 0 {
		if op.in.ElementCount()%known != 0 {
			return nil, errors.Wrapf(tensor.ErrShapeMismatch, "Reshape: cannot infer wildcard, %d elements do not divide by %d", op.in.ElementCount(), known)
		}
		target[wildcard] = op.in.ElementCount() / known
	}
	return target, nil
}

func (op *ReshapeOp) Bounds() error {
	target, err := op.targetExtents()
	if err != nil {
		return err
	}
	total := 1
	for _, e := range target {
		total *= e
	}
	if total != op.in.ElementCount() {
		return errors.Wrapf(tensor.ErrShapeMismatch, "Reshape: input %q has %d elements, target shape holds %d", op.in.Name(), op.in.ElementCount(), total)
	}
	if op.out.Rank() != len(target) {
		return errors.Wrapf(tensor.ErrShapeMismatch, "Reshape: output %q has rank %d, want %d", op.out.Name(), op.out.Rank(), len(target))
	}
	for d, e := range target {
		if op.out.Extent(d) != e {
			return errors.Wrapf(tensor.ErrShapeMismatch, "Reshape: output %q shape %v, want extents %v", op.out.Name(), op.out.Shape(), target)
		}
	}
	return nil
}

func (op *ReshapeOp) Execute() error {
	copy(op.out.Bytes(), op.in.Bytes())
	return nil
}
