package ops

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/gannet-ml/gannet/pkg/tensor"
)

// Conv2DOp convolves a rank-4 [channel, x, y, batch] input with a rank-4
// [in-channel, x, y, out-channel] filter and adds a per-output-channel
// bias. The uint8 path accumulates (input - input_zero) * (weight -
// weight_zero) in int32 and rescales by input_scale * filter_scale /
// output_scale, honoring per-channel filter quantization.
type Conv2DOp struct {
	in, filter, bias, out *tensor.Tensor
	strideX, strideY      int
	dilationX, dilationY  int
	padding               Padding
	activation            Activation
}

func NewConv2D(in, filter, bias, out *tensor.Tensor, strideX, strideY, dilationX, dilationY int, padding Padding, activation Activation) (*Conv2DOp, error) {
	const name = "Conv2D"
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
	if q := filter.Quantization(); q.PerChannel() && q.Dimension != 3 {
		return nil, errors.Wrapf(ErrConstruction, "%s: filter quantized along dimension %d, want the out-channel dimension 3", name, q.Dimension)
	}
	return &Conv2DOp{
		in: in, filter: filter, bias: bias, out: out,
		strideX: strideX, strideY: strideY,
		dilationX: dilationX, dilationY: dilationY,
		padding: padding, activation: activation,
	}, nil
}

// checkConvTypes admits the two convolution-family type signatures:
// (u8, u8, i32) -> u8 and (f32, f32, f32) -> f32.
func checkConvTypes(name string, in, filter, bias, out *tensor.Tensor) error {
	switch in.Type() {
	case tensor.UInt8:
		if filter.Type() != tensor.UInt8 || bias.Type() != tensor.Int32 || out.Type() != tensor.UInt8 {
			return errors.Wrapf(ErrUnsupported, "%s: type combination %s/%s/%s -> %s", name, in.Type(), filter.Type(), bias.Type(), out.Type())
		}
		if in.Quantization().PerChannel() || out.Quantization().PerChannel() {
			return errors.Wrapf(ErrUnsupported, "%s: per-channel quantization on input or output", name)
		}
	case tensor.Float32:
		if filter.Type() != tensor.Float32 || bias.Type() != tensor.Float32 || out.Type() != tensor.Float32 {
			return errors.Wrapf(ErrUnsupported, "%s: type combination %s/%s/%s -> %s", name, in.Type(), filter.Type(), bias.Type(), out.Type())
		}
	default:
		return errors.Wrapf(ErrUnsupported, "%s: no kernel for element type %s", name, in.Type())
	}
	return nil
}

func (op *Conv2DOp) Inputs() []*tensor.Tensor  { return []*tensor.Tensor{op.in, op.filter, op.bias} }
func (op *Conv2DOp) Outputs() []*tensor.Tensor { return []*tensor.Tensor{op.out} }

func (op *Conv2DOp) String() string {
	return fmt.Sprintf("Conv2D(%s, %s, %s -> %s)", op.in.Name(), op.filter.Name(), op.bias.Name(), op.out.Name())
}

// dilatedExtent returns the input span of a filter axis after dilation.
func dilatedExtent(filter, dilation int) int {
	return (filter-1)*dilation + 1
}

func (op *Conv2DOp) Bounds() error {
	if op.filter.Extent(0) != op.in.Extent(0) {
		return errors.Wrapf(tensor.ErrShapeMismatch, "Conv2D: filter %q has %d input channels, input %q has %d", op.filter.Name(), op.filter.Extent(0), op.in.Name(), op.in.Extent(0))
	}
	oc := op.filter.Extent(3)
	if op.bias.Extent(0) != oc {
		return errors.Wrapf(tensor.ErrShapeMismatch, "Conv2D: bias %q has extent %d, want %d output channels", op.bias.Name(), op.bias.Extent(0), oc)
	}
	wantX := op.padding.outputExtent(op.in.Extent(1), dilatedExtent(op.filter.Extent(1), op.dilationX), op.strideX)
	wantY := op.padding.outputExtent(op.in.Extent(2), dilatedExtent(op.filter.Extent(2), op.dilationY), op.strideY)
	if wantX < 0 || wantY < 0 {
		return errors.Wrapf(tensor.ErrShapeMismatch, "Conv2D: filter %q does not fit input %v with %s padding", op.filter.Name(), op.in.Shape(), op.padding)
	}
	want := []int{oc, wantX, wantY, op.in.Extent(3)}
	for d, w := range want {
		if op.out.Extent(d) != w {
			return errors.Wrapf(tensor.ErrShapeMismatch, "Conv2D: output %q shape %v, want [%d,%d,%d,%d]", op.out.Name(), op.out.Shape(), want[0], want[1], want[2], want[3])
		}
	}
	return nil
}

func (op *Conv2DOp) Execute() error {
	if op.out.Type() == tensor.UInt8 {
		return op.executeU8()
	}
	return op.executeF32()
}

func (op *Conv2DOp) executeU8() error {
	qo := op.out.Quantization()
	lo, hi, err := activationRangeU8(op.activation, qo)
	if err != nil {
		return err
	}
	qi, qf := op.in.Quantization(), op.filter.Quantization()
	zi, zo := qi.ZeroFor(0), qo.ZeroFor(0)

	outC := op.out.Extent(0)
	// Per-output-channel rescale factors and filter zero points.
	scale := make([]float32, outC)
	zw := make([]int32, outC)
	for c := 0; c < outC; c++ {
		scale[c] = qi.ScaleFor(0) * qf.ScaleFor(c) / qo.ScaleFor(0)
		zw[c] = qf.ZeroFor(c)
	}

	inC, inX, inY := op.in.Extent(0), op.in.Extent(1), op.in.Extent(2)
	outX, outY, outB := op.out.Extent(1), op.out.Extent(2), op.out.Extent(3)
	fx, fy := op.filter.Extent(1), op.filter.Extent(2)
	padX := op.padding.paddingBefore(inX, dilatedExtent(fx, op.dilationX), op.strideX, outX)
	padY := op.padding.paddingBefore(inY, dilatedExtent(fy, op.dilationY), op.strideY, outY)

	iv, fv, ov := op.in.Uint8s(), op.filter.Uint8s(), op.out.Uint8s()
	bias := op.bias.Int32s()
	isx, isy, isb := op.in.Stride(1), op.in.Stride(2), op.in.Stride(3)
	fsx, fsy, fso := op.filter.Stride(1), op.filter.Stride(2), op.filter.Stride(3)
	osx, osy, osb := op.out.Stride(1), op.out.Stride(2), op.out.Stride(3)

	parallelFor(outB*outY, func(start, end int) {
		for t := start; t < end; t++ {
			b, oy := t/outY, t%outY
			for ox := 0; ox < outX; ox++ {
				base := b*osb + oy*osy + ox*osx
				for c := 0; c < outC; c++ {
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
							ii := x*isx + y*isy + b*isb
							fi := kx*fsx + ky*fsy + c*fso
							for ic := 0; ic < inC; ic++ {
								acc += (int32(iv[ii+ic]) - zi) * (int32(fv[fi+ic]) - zw[c])
							}
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

func (op *Conv2DOp) executeF32() error {
	lo, hi := activationRangeF32(op.activation)

	inC, inX, inY := op.in.Extent(0), op.in.Extent(1), op.in.Extent(2)
	outC, outX, outY, outB := op.out.Extent(0), op.out.Extent(1), op.out.Extent(2), op.out.Extent(3)
	fx, fy := op.filter.Extent(1), op.filter.Extent(2)
	padX := op.padding.paddingBefore(inX, dilatedExtent(fx, op.dilationX), op.strideX, outX)
	padY := op.padding.paddingBefore(inY, dilatedExtent(fy, op.dilationY), op.strideY, outY)

	iv, fv, ov := op.in.Float32s(), op.filter.Float32s(), op.out.Float32s()
	bias := op.bias.Float32s()
	isx, isy, isb := op.in.Stride(1), op.in.Stride(2), op.in.Stride(3)
	fsx, fsy, fso := op.filter.Stride(1), op.filter.Stride(2), op.filter.Stride(3)
	osx, osy, osb := op.out.Stride(1), op.out.Stride(2), op.out.Stride(3)

	parallelFor(outB*outY, func(start, end int) {
		for t := start; t < end; t++ {
			b, oy := t/outY, t%outY
			for ox := 0; ox < outX; ox++ {
				base := b*osb + oy*osy + ox*osx
				for c := 0; c < outC; c++ {
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
							ii := x*isx + y*isy + b*isb
							fi := kx*fsx + ky*fsy + c*fso
							for ic := 0; ic < inC; ic++ {
								acc += iv[ii+ic] * fv[fi+ic]
							}
						}
					}
					ov[base+c] = clampF32(acc, lo, hi)
				}
			}
		}
	})
	return nil
}
