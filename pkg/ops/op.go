// Package ops provides the operator vocabulary of the engine: the Op
// contract, the concrete kernels, and the OpGroup composite the
// interpreter executes.
package ops

import (
	"github.com/pkg/errors"

	"github.com/gannet-ml/gannet/pkg/tensor"
)

// Op is a single unit of computation over tensors. Bounds derives the
// output shapes from the input shapes and enforces them against the
// declared output tensors; Execute runs the numeric kernel. An op writes
// only its declared outputs and never mutates an input.
//
// All ops also implement fmt.Stringer for tracing.
type Op interface {
	Inputs() []*tensor.Tensor
	Outputs() []*tensor.Tensor
	Bounds() error
	Execute() error
}

// ErrConstruction marks a malformed operator: unsupported parameter
// combinations, rank or type mismatches, an activation an operator
// forbids. The op is never built.
var ErrConstruction = errors.New("invalid operator construction")

// ErrUnsupported marks a requested kernel variant that has no
// implementation, such as an element type outside an operator's
// supported set.
var ErrUnsupported = errors.New("unsupported operator variant")

// maxRank is the highest tensor rank any operator accepts.
const maxRank = 4

func checkRank(op string, tensors ...*tensor.Tensor) error {
	for _, t := range tensors {
		if t == nil {
			return errors.Wrapf(ErrConstruction, "%s: nil tensor", op)
		}
		if t.Rank() > maxRank {
			return errors.Wrapf(ErrConstruction, "%s: tensor %q has rank %d, supported maximum is %d", op, t.Name(), t.Rank(), maxRank)
		}
	}
	return nil
}

func checkSameType(op string, tensors ...*tensor.Tensor) error {
	for _, t := range tensors[1:] {
		if t.Type() != tensors[0].Type() {
			return errors.Wrapf(ErrConstruction, "%s: tensor %q is %s, tensor %q is %s", op, tensors[0].Name(), tensors[0].Type(), t.Name(), t.Type())
		}
	}
	return nil
}

func checkElemType(op string, t *tensor.Tensor, supported ...tensor.ElemType) error {
	for _, s := range supported {
		if t.Type() == s {
			return nil
		}
	}
	return errors.Wrapf(ErrUnsupported, "%s: no kernel for element type %s of tensor %q", op, t.Type(), t.Name())
}

// extentOr returns the extent of dimension d, or 1 when the tensor's
// rank does not reach d. Kernels use it to treat every tensor as rank 4.
func extentOr(t *tensor.Tensor, d int) int {
	if d >= t.Rank() {
		return 1
	}
	return t.Extent(d)
}

// strideOr returns the stride of dimension d, or 0 when the tensor's
// rank does not reach d.
func strideOr(t *tensor.Tensor, d int) int {
	if d >= t.Rank() {
		return 0
	}
	return t.Stride(d)
}
