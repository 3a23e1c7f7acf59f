package ops

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/gannet-ml/gannet/pkg/tensor"
)

// FullyConnectedOp multiplies every batch row of the input by a rank-2
// [in-depth, out-depth] weight matrix and adds an optional bias. All
// input dimensions past the innermost are folded into the batch, and the
// output is rank-2 [out-depth, batch].
type FullyConnectedOp struct {
	in, weights, bias, out *tensor.Tensor
	activation             Activation
}

// NewFullyConnected builds the op. bias may be nil, in which case it is
// treated as zero.
func NewFullyConnected(in, weights, bias, out *tensor.Tensor, activation Activation) (*FullyConnectedOp, error) {
	const name = "FullyConnected"
	if err := checkRank(name, in, weights, out); err != nil {
		return nil, err
	}
	if weights.Rank() != 2 {
		return nil, errors.Wrapf(ErrConstruction, "%s: weights %q has rank %d, want 2", name, weights.Name(), weights.Rank())
	}
	if err := checkActivation(name, activation); err != nil {
		return nil, err
	}
	switch in.Type() {
	case tensor.UInt8:
		if weights.Type() != tensor.UInt8 || out.Type() != tensor.UInt8 {
			return nil, errors.Wrapf(ErrUnsupported, "%s: type combination %s/%s -> %s", name, in.Type(), weights.Type(), out.Type())
		}
		if bias != nil && bias.Type() != tensor.Int32 {
			return nil, errors.Wrapf(ErrUnsupported, "%s: bias type %s, want int32", name, bias.Type())
		}
		if in.Quantization().PerChannel() || out.Quantization().PerChannel() {
			return nil, errors.Wrapf(ErrUnsupported, "%s: per-channel quantization on input or output", name)
		}
		if q := weights.Quantization(); q.PerChannel() && q.Dimension != 1 {
			return nil, errors.Wrapf(ErrConstruction, "%s: weights quantized along dimension %d, want the out-depth dimension 1", name, q.Dimension)
		}
	case tensor.Float32:
		if weights.Type() != tensor.Float32 || out.Type() != tensor.Float32 {
			return nil, errors.Wrapf(ErrUnsupported, "%s: type combination %s/%s -> %s", name, in.Type(), weights.Type(), out.Type())
		}
		if bias != nil && bias.Type() != tensor.Float32 {
			return nil, errors.Wrapf(ErrUnsupported, "%s: bias type %s, want float32", name, bias.Type())
		}
	default:
		return nil, errors.Wrapf(ErrUnsupported, "%s: no kernel for element type %s", name, in.Type())
	}
	if bias != nil {
		if err := checkRank(name, bias); err != nil {
			return nil, err
		}
		if bias.Rank() != 1 {
			return nil, errors.Wrapf(ErrConstruction, "%s: bias %q has rank %d, want 1", name, bias.Name(), bias.Rank())
		}
	}
	return &FullyConnectedOp{in: in, weights: weights, bias: bias, out: out, activation: activation}, nil
}

func (op *FullyConnectedOp) Inputs() []*tensor.Tensor {
	in := []*tensor.Tensor{op.in, op.weights}
	if op.bias != nil {
		in = append(in, op.bias)
	}
	return in
}

func (op *FullyConnectedOp) Outputs() []*tensor.Tensor { return []*tensor.Tensor{op.out} }

func (op *FullyConnectedOp) String() string {
	return fmt.Sprintf("FullyConnected(%s, %s -> %s)", op.in.Name(), op.weights.Name(), op.out.Name())
}

func (op *FullyConnectedOp) Bounds() error {
	depth, outDepth := op.weights.Extent(0), op.weights.Extent(1)
	if op.in.Extent(0) != depth {
		return errors.Wrapf(tensor.ErrShapeMismatch, "FullyConnected: input %q has depth %d, weights %q want %d", op.in.Name(), op.in.Extent(0), op.weights.Name(), depth)
	}
	if op.bias != nil && op.bias.Extent(0) != outDepth {
		return errors.Wrapf(tensor.ErrShapeMismatch, "FullyConnected: bias %q has extent %d, want %d", op.bias.Name(), op.bias.Extent(0), outDepth)
	}
	batch := op.in.ElementCount() / depth
	if op.out.Rank() != 2 || op.out.Extent(0) != outDepth || op.out.Extent(1) != batch {
		return errors.Wrapf(tensor.ErrShapeMismatch, "FullyConnected: output %q shape %v, want [%d,%d]", op.out.Name(), op.out.Shape(), outDepth, batch)
	}
	return nil
}

func (op *FullyConnectedOp) Execute() error {
	if op.out.Type() == tensor.UInt8 {
		return op.executeU8()
	}
	return op.executeF32()
}

func (op *FullyConnectedOp) executeU8() error {
	qo := op.out.Quantization()
	lo, hi, err := activationRangeU8(op.activation, qo)
	if err != nil {
		return err
	}
	qi, qw := op.in.Quantization(), op.weights.Quantization()
	zi, zo := qi.ZeroFor(0), qo.ZeroFor(0)

	depth, outDepth := op.weights.Extent(0), op.weights.Extent(1)
	batch := op.in.ElementCount() / depth

	scale := make([]float32, outDepth)
	zw := make([]int32, outDepth)
	for o := 0; o < outDepth; o++ {
		scale[o] = qi.ScaleFor(0) * qw.ScaleFor(o) / qo.ScaleFor(0)
		zw[o] = qw.ZeroFor(o)
	}

	iv, wv, ov := op.in.Uint8s(), op.weights.Uint8s(), op.out.Uint8s()
	var bias []int32
	if op.bias != nil {
		bias = op.bias.Int32s()
	}
	ws := op.weights.Stride(1)

	parallelFor(batch, func(start, end int) {
		for b := start; b < end; b++ {
			row := iv[b*depth : (b+1)*depth]
			for o := 0; o < outDepth; o++ {
				var acc int32
				if bias != nil {
					acc = bias[o]
				}
				col := wv[o*ws : o*ws+depth]
				for d, q := range row {
					acc += (int32(q) - zi) * (int32(col[d]) - zw[o])
				}
				ov[b*outDepth+o] = uint8(clampI32(roundNearest(float32(acc)*scale[o])+zo, lo, hi))
			}
		}
	})
	return nil
}

func (op *FullyConnectedOp) executeF32() error {
	lo, hi := activationRangeF32(op.activation)
	depth, outDepth := op.weights.Extent(0), op.weights.Extent(1)
	batch := op.in.ElementCount() / depth

	iv, wv, ov := op.in.Float32s(), op.weights.Float32s(), op.out.Float32s()
	var bias []float32
	if op.bias != nil {
		bias = op.bias.Float32s()
	}
	ws := op.weights.Stride(1)

	parallelFor(batch, func(start, end int) {
		for b := start; b < end; b++ {
			row := iv[b*depth : (b+1)*depth]
			for o := 0; o < outDepth; o++ {
				var acc float32
				if bias != nil {
					acc = bias[o]
				}
				col := wv[o*ws : o*ws+depth]
				for d, x := range row {
					acc += x * col[d]
				}
				ov[b*outDepth+o] = clampF32(acc, lo, hi)
			}
		}
	})
	return nil
}
