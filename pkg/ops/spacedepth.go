package ops

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/gannet-ml/gannet/pkg/tensor"
)

// SpaceDepthOp rearranges data between the spatial and channel
// dimensions of a rank-4 [channel, x, y, batch] tensor. A positive block
// size moves each block x block spatial tile into the channels; a
// negative block size is the inverse and moves channels back out into
// space. The element type is irrelevant, only element-sized chunks move.
type SpaceDepthOp struct {
	in, out *tensor.Tensor
	block   int
}

func NewSpaceDepth(in, out *tensor.Tensor, block int) (*SpaceDepthOp, error) {
	const name = "SpaceDepth"
	if block == 0 {
		return nil, errors.Wrapf(ErrConstruction, "%s: block size must be nonzero", name)
	}
	if err := checkRank(name, in, out); err != nil {
		return nil, err
	}
	if in.Rank() != 4 || out.Rank() != 4 {
		return nil, errors.Wrapf(ErrConstruction, "%s: wants rank-4 tensors, got input rank %d and output rank %d", name, in.Rank(), out.Rank())
	}
	if err := checkSameType(name, in, out); err != nil {
		return nil, err
	}
	return &SpaceDepthOp{in: in, out: out, block: block}, nil
}

// Block returns the signed block size.
func (op *SpaceDepthOp) Block() int { return op.block }

func (op *SpaceDepthOp) Inputs() []*tensor.Tensor  { return []*tensor.Tensor{op.in} }
func (op *SpaceDepthOp) Outputs() []*tensor.Tensor { return []*tensor.Tensor{op.out} }

func (op *SpaceDepthOp) String() string {
	kind := "SpaceToDepth"
	if op.block < 0 {
		kind = "DepthToSpace"
	}
	return fmt.Sprintf("%s(%s -> %s)", kind, op.in.Name(), op.out.Name())
}

func (op *SpaceDepthOp) Bounds() error {
	b := op.block
	if b < 0 {
		b = -b
	}
	var want [4]int
	if op.block > 0 {
		if op.in.Extent(1)%b != 0 || op.in.Extent(2)%b != 0 {
			return errors.Wrapf(tensor.ErrShapeMismatch, "SpaceToDepth: input %v spatial extents do not divide by block %d", op.in.Shape(), b)
		}
		want = [4]int{op.in.Extent(0) * b * b, op.in.Extent(1) / b, op.in.Extent(2) / b, op.in.Extent(3)}
	} else {
		if op.in.Extent(0)%(b*b) != 0 {
			return errors.Wrapf(tensor.ErrShapeMismatch, "DepthToSpace: input %v channels do not divide by block %d squared", op.in.Shape(), b)
		}
		want = [4]int{op.in.Extent(0) / (b * b), op.in.Extent(1) * b, op.in.Extent(2) * b, op.in.Extent(3)}
	}
	for d, w := range want {
		if op.out.Extent(d) != w {
			return errors.Wrapf(tensor.ErrShapeMismatch, "%s: output %q shape %v, want [%d,%d,%d,%d]", op, op.out.Name(), op.out.Shape(), want[0], want[1], want[2], want[3])
		}
	}
	return nil
}

func (op *SpaceDepthOp) Execute() error {
	elemSize := op.in.Type().Size()
	ib, ob := op.in.Bytes(), op.out.Bytes()
	isx, isy, isb := op.in.Stride(1), op.in.Stride(2), op.in.Stride(3)
	osx, osy, osb := op.out.Stride(1), op.out.Stride(2), op.out.Stride(3)

	if op.block > 0 {
		b := op.block
		channels := op.in.Extent(0)
		outX, outY, batch := op.out.Extent(1), op.out.Extent(2), op.out.Extent(3)
		run := channels * elemSize
		for n := 0; n < batch; n++ {
			for oy := 0; oy < outY; oy++ {
				for ox := 0; ox < outX; ox++ {
					for dy := 0; dy < b; dy++ {
						for dx := 0; dx < b; dx++ {
							src := ((ox*b+dx)*isx + (oy*b+dy)*isy + n*isb) * elemSize
							dst := ((dy*b+dx)*channels + ox*osx + oy*osy + n*osb) * elemSize
							copy(ob[dst:dst+run], ib[src:src+run])
						}
					}
				}
			}
		}
		return nil
	}

	b := -op.block
	channels := op.out.Extent(0)
	inX, inY, batch := op.in.Extent(1), op.in.Extent(2), op.in.Extent(3)
	run := channels * elemSize
	for n := 0; n < batch; n++ {
		for iy := 0; iy < inY; iy++ {
			for ix := 0; ix < inX; ix++ {
				for dy := 0; dy < b; dy++ {
					for dx := 0; dx < b; dx++ {
						src := ((dy*b+dx)*channels + ix*isx + iy*isy + n*isb) * elemSize
						dst := ((ix*b+dx)*osx + (iy*b+dy)*osy + n*osb) * elemSize
						copy(ob[dst:dst+run], ib[src:src+run])
					}
				}
			}
		}
	}
	return nil
}
