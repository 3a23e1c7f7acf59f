package ops

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/gannet-ml/gannet/pkg/tensor"
)

// ConcatenationOp joins its inputs along one axis. The axis arrives in
// the source model's dimension order and is translated into this
// engine's reversed convention at construction. The copy is a plain
// block move unless a uint8 input's quantization differs from the
// output's, in which case that input is requantized element by element.
type ConcatenationOp struct {
	inputs []*tensor.Tensor
	out    *tensor.Tensor
	axis   int
}

// NewConcatenation builds the op. This operator defines no activation
// semantics: any activation other than none is rejected.
func NewConcatenation(inputs []*tensor.Tensor, out *tensor.Tensor, sourceAxis int, activation Activation) (*ConcatenationOp, error) {
	const name = "Concatenation"
	if len(inputs) == 0 {
		return nil, errors.Wrapf(ErrConstruction, "%s: no inputs", name)
	}
	if activation != ActivationNone {
		return nil, errors.Wrapf(ErrConstruction, "%s: activation %s not defined for this operator", name, activation)
	}
	if err := checkRank(name, append(inputs[:len(inputs):len(inputs)], out)...); err != nil {
		return nil, err
	}
	axis, err := tensor.ReverseAxis(out.Rank(), sourceAxis)
	if err != nil {
		return nil, errors.Wrapf(ErrConstruction, "%s: %v", name, err)
	}
	if err := checkSameType(name, append([]*tensor.Tensor{out}, inputs...)...); err != nil {
		return nil, err
	}
	return &ConcatenationOp{inputs: inputs, out: out, axis: axis}, nil
}

// Axis returns the concatenation axis in engine dimension order.
func (op *ConcatenationOp) Axis() int { return op.axis }

func (op *ConcatenationOp) Inputs() []*tensor.Tensor  { return op.inputs }
func (op *ConcatenationOp) Outputs() []*tensor.Tensor { return []*tensor.Tensor{op.out} }

func (op *ConcatenationOp) String() string {
	names := make([]string, len(op.inputs))
	for i, t := range op.inputs {
		names[i] = t.Name()
	}
	return fmt.Sprintf("Concatenation(%s -> %s)", strings.Join(names, ", "), op.out.Name())
}

func (op *ConcatenationOp) Bounds() error {
	total := 0
	for _, in := range op.inputs {
		if in.Rank() != op.out.Rank() {
			return errors.Wrapf(tensor.ErrShapeMismatch, "Concatenation: input %q has rank %d, output has rank %d", in.Name(), in.Rank(), op.out.Rank())
		}
		for d := 0; d < op.out.Rank(); d++ {
			if d == op.axis {
				continue
			}
			if in.Extent(d) != op.out.Extent(d) {
				return errors.Wrapf(tensor.ErrShapeMismatch, "Concatenation: input %q shape %v does not match output %v off the concatenation axis", in.Name(), in.Shape(), op.out.Shape())
			}
		}
		total += in.Extent(op.axis)
	}
	if total != op.out.Extent(op.axis) {
		return errors.Wrapf(tensor.ErrShapeMismatch, "Concatenation: inputs cover extent %d on axis %d, output %q has %d", total, op.axis, op.out.Name(), op.out.Extent(op.axis))
	}
	return nil
}

func (op *ConcatenationOp) Execute() error {
	inner, outer := 1, 1
	for d := 0; d < op.axis; d++ {
		inner *= op.out.Extent(d)
	}
	for d := op.axis + 1; d < op.out.Rank(); d++ {
		outer *= op.out.Extent(d)
	}
	elemSize := op.out.Type().Size()
	outSlice := inner * op.out.Extent(op.axis)
	ob := op.out.Bytes()
	qo := op.out.Quantization()

	offset := 0
	for _, in := range op.inputs {
		inSlice := inner * in.Extent(op.axis)
		requant := in.Type() == tensor.UInt8 && !in.Quantization().Equal(qo)
		qi := in.Quantization()
		si, zi := qi.ScaleFor(0), qi.ZeroFor(0)
		for o := 0; o < outer; o++ {
			dst := o*outSlice + offset*inner
			src := o * inSlice
			if requant {
				iv, dv := in.Uint8s(), op.out.Uint8s()
				for e := 0; e < inSlice; e++ {
					x := float32(int32(iv[src+e])-zi) * si
					dv[dst+e] = requantize(x, qo, 0, 0, 255)
				}
			} else {
				copy(ob[dst*elemSize:(dst+inSlice)*elemSize], in.Bytes()[src*elemSize:(src+inSlice)*elemSize])
			}
		}
		offset += in.Extent(op.axis)
	}
	return nil
}
