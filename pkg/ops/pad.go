package ops

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/gannet-ml/gannet/pkg/tensor"
)

// PadOp copies the input into the interior of a larger output. A second
// int32 input of source-order shape [rank, 2] supplies the before/after
// amounts per source dimension; row i applies to engine axis rank-1-i.
// Quantized uint8 tensors are padded with the output zero point, all
// other types with zeros.
type PadOp struct {
	in, amounts, out *tensor.Tensor
}

func NewPad(in, amounts, out *tensor.Tensor) (*PadOp, error) {
	const name = "Pad"
	if err := checkRank(name, in, amounts, out); err != nil {
		return nil, err
	}
	if err := checkSameType(name, in, out); err != nil {
		return nil, err
	}
	if amounts.Type() != tensor.Int32 || amounts.Rank() != 2 || amounts.Extent(0) != 2 {
		return nil, errors.Wrapf(ErrConstruction, "%s: amounts tensor %q must be int32 with engine shape [2,rank], got %s %v", name, amounts.Name(), amounts.Type(), amounts.Shape())
	}
	return &PadOp{in: in, amounts: amounts, out: out}, nil
}

func (op *PadOp) Inputs() []*tensor.Tensor  { return []*tensor.Tensor{op.in, op.amounts} }
func (op *PadOp) Outputs() []*tensor.Tensor { return []*tensor.Tensor{op.out} }

func (op *PadOp) String() string {
	return fmt.Sprintf("Pad(%s, %s -> %s)", op.in.Name(), op.amounts.Name(), op.out.Name())
}

// margins reads the amounts tensor and returns the before/after padding
// per engine axis.
func (op *PadOp) margins() ([]int, []int, error) {
	if !op.amounts.IsAllocated() {
		return nil, nil, errors.Wrapf(tensor.ErrShapeMismatch, "Pad: amounts tensor %q has no data", op.amounts.Name())
	}
	rank := op.in.Rank()
	vals := op.amounts.Int32s()
	before := make([]int, rank)
	after := make([]int, rank)
	for a := 0; a < rank; a++ {
		i := rank - 1 - a
		before[a], after[a] = int(vals[2*i]), int(vals[2*i+1])
		if before[a] < 0 || after[a] < 0 {
			return nil, nil, errors.Wrapf(tensor.ErrShapeMismatch, "Pad: negative amount for dimension %d", a)
		}
	}
	return before, after, nil
}

func (op *PadOp) Bounds() error {
	if op.out.Rank() != op.in.Rank() {
		return errors.Wrapf(tensor.ErrShapeMismatch, "Pad: input rank %d, output rank %d", op.in.Rank(), op.out.Rank())
	}
	if op.amounts.Extent(1) != op.in.Rank() {
		return errors.Wrapf(tensor.ErrShapeMismatch, "Pad: amounts tensor %q covers %d dimensions, input has %d", op.amounts.Name(), op.amounts.Extent(1), op.in.Rank())
	}
	before, after, err := op.margins()
	if err != nil {
		return err
	}
	for a := 0; a < op.in.Rank(); a++ {
		want := op.in.Extent(a) + before[a] + after[a]
		if op.out.Extent(a) != want {
			return errors.Wrapf(tensor.ErrShapeMismatch, "Pad: output %q extent %d on dimension %d, want %d", op.out.Name(), op.out.Extent(a), a, want)
		}
	}
	return nil
}

func (op *PadOp) Execute() error {
	before, _, err := op.margins()
	if err != nil {
		return err
	}
	var pad [maxRank]int
	copy(pad[:], before)

	ob := op.out.Bytes()
	if op.out.Type() == tensor.UInt8 && op.out.Quantization().IsQuantized() {
		fill := uint8(clampI32(op.out.Quantization().ZeroFor(0), 0, 255))
		for i := range ob {
			ob[i] = fill
		}
	} else {
		clear(ob)
	}

	elemSize := op.in.Type().Size()
	ib := op.in.Bytes()
	rowLen := op.in.Extent(0) * elemSize
	for i3 := 0; i3 < extentOr(op.in, 3); i3++ {
		for i2 := 0; i2 < extentOr(op.in, 2); i2++ {
			for i1 := 0; i1 < extentOr(op.in, 1); i1++ {
				src := (i1*strideOr(op.in, 1) + i2*strideOr(op.in, 2) + i3*strideOr(op.in, 3)) * elemSize
				dst := (pad[0] + (i1+pad[1])*strideOr(op.out, 1) + (i2+pad[2])*strideOr(op.out, 2) + (i3+pad[3])*strideOr(op.out, 3)) * elemSize
				copy(ob[dst:dst+rowLen], ib[src:src+rowLen])
			}
		}
	}
	return nil
}
