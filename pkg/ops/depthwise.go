package ops

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/gannet-ml/gannet/pkg/tensor"
)

// DepthwiseConv2DOp convolves each input channel with its own stack of
// filters. The depth multiplier is output channels / input channels;
// output channel c reads input channel c / multiplier. The filter is
// rank-4 [out-channel, x, y, 1].
type DepthwiseConv2DOp struct {
	in, filter, bias, out *tensor.Tensor
	multiplier            int
	strideX, strideY      int
	dilationX, dilationY  int
	padding               Padding
	activation            Activation
}

func NewDepthwiseConv2D(in, filter, bias, out *tensor.Tensor, strideX, strideY, dilationX, dilationY int, padding Padding, activation Activation) (*DepthwiseConv2DOp, error) {
	const name = "DepthwiseConv2D"
	if err := checkRank(name, in, filter, bias, out); err != nil {
		return nil, err
	}
	if in.Rank() != 4 || filter.Rank() != 4 || out.Rank() != 4 || bias.Rank() != 1 {
		return nil, errors.Wrapf(ErrConstruction, "%s: wants rank-4 input/filter/output and rank-1 bias, got %d/%d/%d/%d", name, in.Rank(), filter.Rank(), out.Rank(), bias.Rank())
	}
	if strideX < 1 || strideY < 1 || dilationX < 1 || dilationY < 1 {
		return nil, errors.Wrapf(ErrConstruction, "%s: stride %dx%d and dilation %dx%d must be positive", name, strideX, strideY, dilationX, dilationY)
	}
	if err := checkActivation(name, activation); err != nil {
		return nil, err
	}
	if err := checkConvTypes(name, in, filter, bias, out); err != nil {
		return nil, err
	}
	inC, outC := in.Extent(0), out.Extent(0)
	if inC < 1 || outC%inC != 0 {
		return nil, errors.Wrapf(ErrConstruction, "%s: depth multiplier %d/%d is not exact", name, outC, inC)
	}
	if q := filter.Quantization(); q.PerChannel() && q.Dimension != 0 {
		return nil, errors.Wrapf(ErrConstruction, "%s: filter quantized along dimension %d, want the channel dimension 0", name, q.Dimension)
	}
	return &DepthwiseConv2DOp{
		in: in, filter: filter, bias: bias, out: out,
		multiplier: outC / inC,
		strideX:    strideX, strideY: strideY,
		dilationX: dilationX, dilationY: dilationY,
		padding: padding, activation: activation,
	}, nil
}

// Multiplier returns the derived depth multiplier.
func (op *DepthwiseConv2DOp) Multiplier() int { return op.multiplier }

func (op *DepthwiseConv2DOp) Inputs() []*tensor.Tensor {
	return []*tensor.Tensor{op.in, op.filter, op.bias}
}
func (op *DepthwiseConv2DOp) Outputs() []*tensor.Tensor { return []*tensor.Tensor{op.out} }

func (op *DepthwiseConv2DOp) String() string {
	return fmt.Sprintf("DepthwiseConv2D(%s, %s, %s -> %s)", op.in.Name(), op.filter.Name(), op.bias.Name(), op.out.Name())
}

func (op *DepthwiseConv2DOp) Bounds() error {
	oc := op.out.Extent(0)
	if op.filter.Extent(0) != oc || op.filter.Extent(3) != 1 {
		return errors.Wrapf(tensor.ErrShapeMismatch, "DepthwiseConv2D: filter %q shape %v, want [%d,x,y,1]", op.filter.Name(), op.filter.Shape(), oc)
	}
	if op.bias.Extent(0) != oc {
		return errors.Wrapf(tensor.ErrShapeMismatch, "DepthwiseConv2D: bias %q has extent %d, want %d output channels", op.bias.Name(), op.bias.Extent(0), oc)
	}
	wantX := op.padding.outputExtent(op.in.Extent(1), dilatedExtent(op.filter.Extent(1), op.dilationX), op.strideX)
	wantY := op.padding.outputExtent(op.in.Extent(2), dilatedExtent(op.filter.Extent(2), op.dilationY), op.strideY)
	if wantX < 0 || wantY < 0 {
		return errors.Wrapf(tensor.ErrShapeMismatch, "DepthwiseConv2D: filter %q does not fit input %v with %s padding", op.filter.Name(), op.in.Shape(), op.padding)
	}
	if op.out.Extent(1) != wantX || op.out.Extent(2) != wantY || op.out.Extent(3) != op.in.Extent(3) {
		return errors.Wrapf(tensor.ErrShapeMismatch, "DepthwiseConv2D: output %q shape %v, want [%d,%d,%d,%d]", op.out.Name(), op.out.Shape(), oc, wantX, wantY, op.in.Extent(3))
	}
	return nil
}

func (op *DepthwiseConv2DOp) Execute() error {
	if op.out.Type() == tensor.UInt8 {
		return op.executeU8()
	}
	return op.executeF32()
}

func (op *DepthwiseConv2DOp) executeU8() error {
	qo := op.out.Quantization()
	lo, hi, err := activationRangeU8(op.activation, qo)
	if err != nil {
		return err
	}
	qi, qf := op.in.Quantization(), op.filter.Quantization()
	zi, zo := qi.ZeroFor(0), qo.ZeroFor(0)

	outC := op.out.Extent(0)
	scale := make([]float32, outC)
	zw := make([]int32, outC)
	for c := 0; c < outC; c++ {
		scale[c] = qi.ScaleFor(0) * qf.ScaleFor(c) / qo.ScaleFor(0)
		zw[c] = qf.ZeroFor(c)
	}

	inX, inY := op.in.Extent(1), op.in.Extent(2)
	outX, outY, outB := op.out.Extent(1), op.out.Extent(2), op.out.Extent(3)
	fx, fy := op.filter.Extent(1), op.filter.Extent(2)
	padX := op.padding.paddingBefore(inX, dilatedExtent(fx, op.dilationX), op.strideX, outX)
	padY := op.padding.paddingBefore(inY, dilatedExtent(fy, op.dilationY), op.strideY, outY)

	iv, fv, ov := op.in.Uint8s(), op.filter.Uint8s(), op.out.Uint8s()
	bias := op.bias.Int32s()
	isx, isy, isb := op.in.Stride(1), op.in.Stride(2), op.in.Stride(3)
	fsx, fsy := op.filter.Stride(1), op.filter.Stride(2)
	osx, osy, osb := op.out.Stride(1), op.out.Stride(2), op.out.Stride(3)

	parallelFor(outB*outY, func(start, end int) {
		for t := start; t < end; t++ {
			b, oy := t/outY, t%outY
			for ox := 0; ox < outX; ox++ {
				base := b*osb + oy*osy + ox*osx
				for c := 0; c < outC; c++ {
					ic := c / op.multiplier
					acc := bias[c]
					for ky := 0; ky < fy; ky++ {
						y := oy*op.strideY - padY + ky*op.dilationY
						if y < 0 || y >= inY {
							continue
						}
						for kx := 0; kx < fx; kx++ {
							x := ox*op.strideX - padX + kx*op.dilationX
							if x < 0 || x >= inX {
								continue
							}
							acc += (int32(iv[ic+x*isx+y*isy+b*isb]) - zi) * (int32(fv[c+kx*fsx+ky*fsy]) - zw[c])
						}
					}
					q := roundNearest(float32(acc)*scale[c]) + zo
					ov[base+c] = uint8(clampI32(q, lo, hi))
				}
			}
		}
	})
	return nil
}

func (op *DepthwiseConv2DOp) executeF32() error {
	lo, hi := activationRangeF32(op.activation)

	inX, inY := op.in.Extent(1), op.in.Extent(2)
	outC, outX, outY, outB := op.out.Extent(0), op.out.Extent(1), op.out.Extent(2), op.out.Extent(3)
	fx, fy := op.filter.Extent(1), op.filter.Extent(2)
	padX := op.padding.paddingBefore(inX, dilatedExtent(fx, op.dilationX), op.strideX, outX)
	padY := op.padding.paddingBefore(inY, dilatedExtent(fy, op.dilationY), op.strideY, outY)

	iv, fv, ov := op.in.Float32s(), op.filter.Float32s(), op.out.Float32s()
	bias := op.bias.Float32s()
	isx, isy, isb := op.in.Stride(1), op.in.Stride(2), op.in.Stride(3)
	fsx, fsy := op.filter.Stride(1), op.filter.Stride(2)
	osx, osy, osb := op.out.Stride(1), op.out.Stride(2), op.out.Stride(3)

	parallelFor(outB*outY, func(start, end int) {
		for t := start; t < end; t++ {
			b, oy := t/outY, t%outY
			for ox := 0; ox < outX; ox++ {
				base := b*osb + oy*osy + ox*osx
				for c := 0; c < outC; c++ {
					ic := c / op.multiplier
					acc := bias[c]
					for ky := 0; ky < fy; ky++ {
						y := oy*op.strideY - padY + ky*op.dilationY
						if y < 0 || y >= inY {
							continue
						}
						for kx := 0; kx < fx; kx++ {
							x := ox*op.strideX - padX + kx*op.dilationX
							if x < 0 || x >= inX {
								continue
							}
							acc += iv[ic+x*isx+y*isy+b*isb] * fv[c+kx*fsx+ky*fsy]
						}
					}
					ov[base+c] = clampF32(acc, lo, hi)
				}
			}
		}
	})
	return nil
}
