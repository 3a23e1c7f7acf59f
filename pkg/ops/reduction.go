package ops

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/gannet-ml/gannet/pkg/tensor"
)

// ReductionKind selects the reduction of a ReductionOp.
type ReductionKind int

const (
	ReductionMean ReductionKind = iota
)

func (k ReductionKind) String() string {
	switch k {
	case ReductionMean:
		return "Mean"
	default:
		return fmt.Sprintf("ReductionKind(%d)", int(k))
	}
}

// ReductionOp reduces the input over a set of axes. A rank-1 int32 input
// lists the axes in source dimension order; duplicates are tolerated.
// The output may keep the reduced dimensions with extent 1 or drop them.
type ReductionOp struct {
	kind          ReductionKind
	in, axes, out *tensor.Tensor
}

func NewReduction(kind ReductionKind, in, axes, out *tensor.Tensor) (*ReductionOp, error) {
	name := kind.String()
	if kind != ReductionMean {
		return nil, errors.Wrapf(ErrConstruction, "unknown reduction kind %d", int(kind))
	}
	if err := checkRank(name, in, axes, out); err != nil {
		return nil, err
	}
	if axes.Type() != tensor.Int32 || axes.Rank() != 1 {
		return nil, errors.Wrapf(ErrConstruction, "%s: axes tensor %q must be rank-1 int32, got rank-%d %s", name, axes.Name(), axes.Rank(), axes.Type())
	}
	if err := checkSameType(name, in, out); err != nil {
		return nil, err
	}
	if err := checkElemType(name, in, tensor.UInt8, tensor.Float32); err != nil {
		return nil, err
	}
	if in.Type() == tensor.UInt8 && (in.Quantization().PerChannel() || out.Quantization().PerChannel()) {
		return nil, errors.Wrapf(ErrUnsupported, "%s: per-channel quantization", name)
	}
	return &ReductionOp{kind: kind, in: in, axes: axes, out: out}, nil
}

func (op *ReductionOp) Inputs() []*tensor.Tensor  { return []*tensor.Tensor{op.in, op.axes} }
func (op *ReductionOp) Outputs() []*tensor.Tensor { return []*tensor.Tensor{op.out} }

func (op *ReductionOp) String() string {
	return fmt.Sprintf("%s(%s -> %s)", op.kind, op.in.Name(), op.out.Name())
}

// reducedAxes reads the axes tensor and returns a per-engine-axis mask.
func (op *ReductionOp) reducedAxes() ([]bool, error) {
	if !op.axes.IsAllocated() {
		return nil, errors.Wrapf(tensor.ErrShapeMismatch, "%s: axes tensor %q has no data", op.kind, op.axes.Name())
	}
	reduced := make([]bool, op.in.Rank())
	for _, v := range op.axes.Int32s() {
		a, err := tensor.ReverseAxis(op.in.Rank(), int(v))
		if err != nil {
			return nil, errors.Wrapf(tensor.ErrShapeMismatch, "%s: %v", op.kind, err)
		}
		reduced[a] = true
	}
	return reduced, nil
}

func (op *ReductionOp) Bounds() error {
	reduced, err := op.reducedAxes()
	if err != nil {
		return err
	}
	var kept, squeezed []int
	for a, d := range op.in.Shape() {
		if reduced[a] {
			kept = append(kept, 1)
		} else {
			kept = append(kept, d.Extent)
			squeezed = append(squeezed, d.Extent)
		}
	}
	if matchExtents(op.out, kept) || matchExtents(op.out, squeezed) {
		return nil
	}
	return errors.Wrapf(tensor.ErrShapeMismatch, "%s: output %q shape %v matches neither %v nor %v", op.kind, op.out.Name(), op.out.Shape(), kept, squeezed)
}

func matchExtents(t *tensor.Tensor, extents []int) bool {
	if t.Rank() != len(extents) {
		return false
	}
	for d, e := range extents {
		if t.Extent(d) != e {
			return false
		}
	}
	return true
}

func (op *ReductionOp) Execute() error {
	reduced, err := op.reducedAxes()
	if err != nil {
		return err
	}

	// Output element stride per input axis; reduced axes contribute 0.
	// When the output keeps reduced dimensions the strides align with
	// the input axes; when it drops them, output axes advance only past
	// kept input axes.
	var os [maxRank]int
	if op.out.Rank() == op.in.Rank() {
		for a := 0; a < op.in.Rank(); a++ {
			if !reduced[a] {
				os[a] = op.out.Stride(a)
			}
		}
	} else {
		j := 0
		for a := 0; a < op.in.Rank(); a++ {
			if reduced[a] {
				continue
			}
			os[a] = op.out.Stride(j)
			j++
		}
	}

	outCount := op.out.ElementCount()
	sums := make([]float64, outCount)
	weight := float64(op.in.ElementCount()) / float64(outCount)

	switch op.in.Type() {
	case tensor.UInt8:
		qi := op.in.Quantization()
		si, zi := float64(qi.ScaleFor(0)), qi.ZeroFor(0)
		iv := op.in.Uint8s()
		i := 0
		for i3 := 0; i3 < extentOr(op.in, 3); i3++ {
			for i2 := 0; i2 < extentOr(op.in, 2); i2++ {
				for i1 := 0; i1 < extentOr(op.in, 1); i1++ {
					base := i1*os[1] + i2*os[2] + i3*os[3]
					for i0 := 0; i0 < extentOr(op.in, 0); i0++ {
						sums[base+i0*os[0]] += float64(int32(iv[i])-zi) * si
						i++
					}
				}
			}
		}
		qo := op.out.Quantization()
		ov := op.out.Uint8s()
		for o, s := range sums {
			ov[o] = requantize(float32(s/weight), qo, 0, 0, 255)
		}
	case tensor.Float32:
		iv := op.in.Float32s()
		i := 0
		for i3 := 0; i3 < extentOr(op.in, 3); i3++ {
			for i2 := 0; i2 < extentOr(op.in, 2); i2++ {
				for i1 := 0; i1 < extentOr(op.in, 1); i1++ {
					base := i1*os[1] + i2*os[2] + i3*os[3]
					for i0 := 0; i0 < extentOr(op.in, 0); i0++ {
						sums[base+i0*os[0]] += float64(iv[i])
						i++
					}
				}
			}
		}
		ov := op.out.Float32s()
		for o, s := range sums {
			ov[o] = float32(s / weight)
		}
	default:
		return errors.Wrapf(ErrUnsupported, "%s: element type %s", op.kind, op.in.Type())
	}
	return nil
}
