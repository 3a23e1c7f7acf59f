package ops

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"

	"github.com/gannet-ml/gannet/pkg/tensor"
)

// PoolKind selects the reduction of a PoolOp.
type PoolKind int

const (
	PoolAverage PoolKind = iota
	PoolMax
)

func (k PoolKind) String() string {
	switch k {
	case PoolAverage:
		return "AveragePool"
	case PoolMax:
		return "MaxPool"
	default:
		return fmt.Sprintf("PoolKind(%d)", int(k))
	}
}

// PoolOp reduces each spatial window of a rank-4 [channel, x, y, batch]
// tensor to one value. Windows sample in-bounds positions only: the
// average divides by the in-bounds count, the max ignores positions past
// the edge. Same padding extends window placement so outputs tile
// ceil(input/stride).
type PoolOp struct {
	kind             PoolKind
	in, out          *tensor.Tensor
	strideX, strideY int
	filterX, filterY int
	padding          Padding
	activation       Activation
}

func NewPool(kind PoolKind, in, out *tensor.Tensor, strideX, strideY, filterX, filterY int, padding Padding, activation Activation) (*PoolOp, error) {
	name := kind.String()
	switch kind {
	case PoolAverage, PoolMax:
	default:
		return nil, errors.Wrapf(ErrConstruction, "unknown pool kind %d", int(kind))
	}
	if err := checkRank(name, in, out); err != nil {
		return nil, err
	}
	if in.Rank() != 4 || out.Rank() != 4 {
		return nil, errors.Wrapf(ErrConstruction, "%s: wants rank-4 tensors, got input rank %d and output rank %d", name, in.Rank(), out.Rank())
	}
	if strideX < 1 || strideY < 1 || filterX < 1 || filterY < 1 {
		return nil, errors.Wrapf(ErrConstruction, "%s: stride %dx%d and filter %dx%d must be positive", name, strideX, strideY, filterX, filterY)
	}
	if err := checkActivation(name, activation); err != nil {
		return nil, err
	}
	if err := checkSameType(name, in, out); err != nil {
		return nil, err
	}
	if err := checkElemType(name, in, tensor.UInt8, tensor.Float32); err != nil {
		return nil, err
	}
	if in.Type() == tensor.UInt8 {
		qi, qo := in.Quantization(), out.Quantization()
		if qi.PerChannel() || qo.PerChannel() {
			return nil, errors.Wrapf(ErrUnsupported, "%s: per-channel quantization", name)
		}
		if !qi.Equal(qo) {
			return nil, errors.Wrapf(ErrConstruction, "%s: input and output quantization must match", name)
		}
	}
	return &PoolOp{
		kind: kind, in: in, out: out,
		strideX: strideX, strideY: strideY,
		filterX: filterX, filterY: filterY,
		padding: padding, activation: activation,
	}, nil
}

func (op *PoolOp) Inputs() []*tensor.Tensor  { return []*tensor.Tensor{op.in} }
func (op *PoolOp) Outputs() []*tensor.Tensor { return []*tensor.Tensor{op.out} }

func (op *PoolOp) String() string {
	return fmt.Sprintf("%s(%s -> %s)", op.kind, op.in.Name(), op.out.Name())
}

func (op *PoolOp) Bounds() error {
	wantX := op.padding.outputExtent(op.in.Extent(1), op.filterX, op.strideX)
	wantY := op.padding.outputExtent(op.in.Extent(2), op.filterY, op.strideY)
	if wantX < 0 || wantY < 0 {
		return errors.Wrapf(tensor.ErrShapeMismatch, "%s: filter %dx%d does not fit input %v with %s padding", op.kind, op.filterX, op.filterY, op.in.Shape(), op.padding)
	}
	want := []int{op.in.Extent(0), wantX, wantY, op.in.Extent(3)}
	for d, w := range want {
		if op.out.Extent(d) != w {
			return errors.Wrapf(tensor.ErrShapeMismatch, "%s: output %q shape %v, want [%d,%d,%d,%d]", op.kind, op.out.Name(), op.out.Shape(), want[0], want[1], want[2], want[3])
		}
	}
	return nil
}

// window returns the in-bounds sample interval for one output position.
func poolWindow(o, stride, pad, filter, limit int) (int, int) {
	start := o*stride - pad
	end := start + filter
	if start < 0 {
		start = 0
	}
	if end > limit {
		end = limit
	}
	return start, end
}

func (op *PoolOp) Execute() error {
	switch op.out.Type() {
	case tensor.UInt8:
		return op.executeU8()
	case tensor.Float32:
		return op.executeF32()
	default:
		return errors.Wrapf(ErrUnsupported, "%s: element type %s", op.kind, op.out.Type())
	}
}

func (op *PoolOp) executeU8() error {
	lo, hi, err := activationRangeU8(op.activation, op.out.Quantization())
	if err != nil {
		return err
	}
	inX, inY := op.in.Extent(1), op.in.Extent(2)
	outX, outY, outB := op.out.Extent(1), op.out.Extent(2), op.out.Extent(3)
	channels := op.in.Extent(0)
	padX := op.padding.paddingBefore(inX, op.filterX, op.strideX, outX)
	padY := op.padding.paddingBefore(inY, op.filterY, op.strideY, outY)

	iv, ov := op.in.Uint8s(), op.out.Uint8s()
	isx, isy, isb := op.in.Stride(1), op.in.Stride(2), op.in.Stride(3)
	osx, osy, osb := op.out.Stride(1), op.out.Stride(2), op.out.Stride(3)

	parallelFor(outB*outY, func(start, end int) {
		for t := start; t < end; t++ {
			b, oy := t/outY, t%outY
			y0, y1 := poolWindow(oy, op.strideY, padY, op.filterY, inY)
			for ox := 0; ox < outX; ox++ {
				x0, x1 := poolWindow(ox, op.strideX, padX, op.filterX, inX)
				count := int32((x1 - x0) * (y1 - y0))
				base := b*osb + oy*osy + ox*osx
				for c := 0; c < channels; c++ {
					var v int32
					if op.kind == PoolAverage {
						var sum int32
						for y := y0; y < y1; y++ {
							for x := x0; x < x1; x++ {
								sum += int32(iv[c+x*isx+y*isy+b*isb])
							}
						}
						v = (sum + count/2) / count
					} else {
						for y := y0; y < y1; y++ {
							for x := x0; x < x1; x++ {
								if q := int32(iv[c+x*isx+y*isy+b*isb]); q > v {
									v = q
								}
							}
						}
					}
					ov[base+c] = uint8(clampI32(v, lo, hi))
				}
			}
		}
	})
	return nil
}

func (op *PoolOp) executeF32() error {
	lo, hi := activationRangeF32(op.activation)
	inX, inY := op.in.Extent(1), op.in.Extent(2)
	outX, outY, outB := op.out.Extent(1), op.out.Extent(2), op.out.Extent(3)
	channels := op.in.Extent(0)
	padX := op.padding.paddingBefore(inX, op.filterX, op.strideX, outX)
	padY := op.padding.paddingBefore(inY, op.filterY, op.strideY, outY)

	iv, ov := op.in.Float32s(), op.out.Float32s()
	isx, isy, isb := op.in.Stride(1), op.in.Stride(2), op.in.Stride(3)
	osx, osy, osb := op.out.Stride(1), op.out.Stride(2), op.out.Stride(3)

	parallelFor(outB*outY, func(start, end int) {
		for t := start; t < end; t++ {
			b, oy := t/outY, t%outY
			y0, y1 := poolWindow(oy, op.strideY, padY, op.filterY, inY)
			for ox := 0; ox < outX; ox++ {
				x0, x1 := poolWindow(ox, op.strideX, padX, op.filterX, inX)
				count := float32((x1 - x0) * (y1 - y0))
				base := b*osb + oy*osy + ox*osx
				for c := 0; c < channels; c++ {
					var v float32
					if op.kind == PoolAverage {
						var sum float32
						for y := y0; y < y1; y++ {
							for x := x0; x < x1; x++ {
								sum += iv[c+x*isx+y*isy+b*isb]
							}
						}
						v = sum / count
					} else {
						v = -math32.MaxFloat32
						for y := y0; y < y1; y++ {
							for x := x0; x < x1; x++ {
								if q := iv[c+x*isx+y*isy+b*isb]; q > v {
									v = q
								}
							}
						}
					}
					ov[base+c] = clampF32(v, lo, hi)
				}
			}
		}
	})
	return nil
}
