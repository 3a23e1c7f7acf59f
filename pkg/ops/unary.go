package ops

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"

	"github.com/gannet-ml/gannet/pkg/tensor"
)

// UnaryKind selects the function of a UnaryOp.
type UnaryKind int

const (
	UnaryLogistic UnaryKind = iota
	UnaryTanh
)

func (k UnaryKind) String() string {
	switch k {
	case UnaryLogistic:
		return "Logistic"
	case UnaryTanh:
		return "Tanh"
	default:
		return fmt.Sprintf("UnaryKind(%d)", int(k))
	}
}

func (k UnaryKind) apply(x float32) float32 {
	switch k {
	case UnaryTanh:
		return math32.Tanh(x)
	default:
		return 1 / (1 + math32.Exp(-x))
	}
}

// UnaryOp computes an elementwise Logistic or Tanh. The uint8 path runs
// through a 256-entry table precomputed at construction from the input
// and output quantization.
type UnaryOp struct {
	kind    UnaryKind
	in, out *tensor.Tensor
	lut     []uint8
}

func NewUnary(kind UnaryKind, in, out *tensor.Tensor) (*UnaryOp, error) {
	name := kind.String()
	switch kind {
	case UnaryLogistic, UnaryTanh:
	default:
		return nil, errors.Wrapf(ErrConstruction, "unknown unary kind %d", int(kind))
	}
	if err := checkRank(name, in, out); err != nil {
		return nil, err
	}
	if err := checkSameType(name, in, out); err != nil {
		return nil, err
	}
	if err := checkElemType(name, in, tensor.UInt8, tensor.Float32); err != nil {
		return nil, err
	}

	op := &UnaryOp{kind: kind, in: in, out: out}
	if in.Type() == tensor.UInt8 {
		qi, qo := in.Quantization(), out.Quantization()
		if qi.PerChannel() || qo.PerChannel() {
			return nil, errors.Wrapf(ErrUnsupported, "%s: per-channel quantization", name)
		}
		si, zi := qi.ScaleFor(0), qi.ZeroFor(0)
		op.lut = make([]uint8, 256)
		for q := 0; q < 256; q++ {
			x := float32(int32(q)-zi) * si
			op.lut[q] = requantize(kind.apply(x), qo, 0, 0, 255)
		}
	}
	return op, nil
}

func (op *UnaryOp) Inputs() []*tensor.Tensor  { return []*tensor.Tensor{op.in} }
func (op *UnaryOp) Outputs() []*tensor.Tensor { return []*tensor.Tensor{op.out} }

func (op *UnaryOp) String() string {
	return fmt.Sprintf("%s(%s -> %s)", op.kind, op.in.Name(), op.out.Name())
}

func (op *UnaryOp) Bounds() error {
	if !op.out.Shape().EqualExtents(op.in.Shape()) {
		return errors.Wrapf(tensor.ErrShapeMismatch, "%s: output %q shape %v, want %v", op.kind, op.out.Name(), op.out.Shape(), op.in.Shape())
	}
	return nil
}

func (op *UnaryOp) Execute() error {
	switch op.out.Type() {
	case tensor.UInt8:
		iv, ov := op.in.Uint8s(), op.out.Uint8s()
		for i, q := range iv {
			ov[i] = op.lut[q]
		}
		return nil
	case tensor.Float32:
		iv, ov := op.in.Float32s(), op.out.Float32s()
		for i, x := range iv {
			ov[i] = op.kind.apply(x)
		}
		return nil
	default:
		return errors.Wrapf(ErrUnsupported, "%s: element type %s", op.kind, op.out.Type())
	}
}
