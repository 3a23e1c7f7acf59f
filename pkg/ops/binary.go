package ops

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/gannet-ml/gannet/pkg/tensor"
)

// BinaryKind selects the arithmetic of a BinaryOp.
type BinaryKind int

const (
	BinaryAdd BinaryKind = iota
	BinarySub
	BinaryMul
)

func (k BinaryKind) String() string {
	switch k {
	case BinaryAdd:
		return "Add"
	case BinarySub:
		return "Sub"
	case BinaryMul:
		return "Mul"
	default:
		return fmt.Sprintf("BinaryKind(%d)", int(k))
	}
}

// BinaryOp computes an elementwise Add, Sub, or Mul with implicit
// broadcasting: a dimension of extent 1 stretches to match the other
// operand. The uint8 path dequantizes both sides, applies the arithmetic
// in real space, and requantizes into the output's parameters.
type BinaryOp struct {
	kind       BinaryKind
	a, b, out  *tensor.Tensor
	activation Activation
}

func NewBinary(kind BinaryKind, a, b, out *tensor.Tensor, activation Activation) (*BinaryOp, error) {
	name := kind.String()
	switch kind {
	case BinaryAdd, BinarySub, BinaryMul:
	default:
		return nil, errors.Wrapf(ErrConstruction, "unknown binary kind %d", int(kind))
	}
	if err := checkRank(name, a, b, out); err != nil {
		return nil, err
	}
	if err := checkActivation(name, activation); err != nil {
		return nil, err
	}
	if err := checkSameType(name, a, b, out); err != nil {
		return nil, err
	}
	if err := checkElemType(name, a, tensor.UInt8, tensor.Float32); err != nil {
		return nil, err
	}
	if a.Type() == tensor.UInt8 {
		for _, t := range []*tensor.Tensor{a, b, out} {
			if t.Quantization().PerChannel() {
				return nil, errors.Wrapf(ErrUnsupported, "%s: per-channel quantization on tensor %q", name, t.Name())
			}
		}
	}
	return &BinaryOp{kind: kind, a: a, b: b, out: out, activation: activation}, nil
}

func (op *BinaryOp) Inputs() []*tensor.Tensor  { return []*tensor.Tensor{op.a, op.b} }
func (op *BinaryOp) Outputs() []*tensor.Tensor { return []*tensor.Tensor{op.out} }

func (op *BinaryOp) String() string {
	return fmt.Sprintf("%s(%s, %s -> %s)", op.kind, op.a.Name(), op.b.Name(), op.out.Name())
}

func (op *BinaryOp) Bounds() error {
	rank := op.a.Rank()
	if op.b.Rank() > rank {
		rank = op.b.Rank()
	}
	if op.out.Rank() != rank {
		return errors.Wrapf(tensor.ErrShapeMismatch, "%s: output %q has rank %d, want %d", op.kind, op.out.Name(), op.out.Rank(), rank)
	}
	for d := 0; d < rank; d++ {
		ea, eb := extentOr(op.a, d), extentOr(op.b, d)
		var want int
		switch {
		case ea == eb:
			want = ea
		case ea == 1:
			want = eb
		case eb == 1:
			want = ea
		default:
			return errors.Wrapf(tensor.ErrShapeMismatch, "%s: dimension %d extents %d and %d do not broadcast", op.kind, d, ea, eb)
		}
		if op.out.Extent(d) != want {
			return errors.Wrapf(tensor.ErrShapeMismatch, "%s: output %q dimension %d has extent %d, want %d", op.kind, op.out.Name(), d, op.out.Extent(d), want)
		}
	}
	return nil
}

// broadcastStrides returns per-dimension element strides for reading t as
// a rank-4 operand of the output: broadcast dimensions advance by zero.
func broadcastStrides(t *tensor.Tensor) [maxRank]int {
	var s [maxRank]int
	for d := 0; d < maxRank; d++ {
		if extentOr(t, d) > 1 {
			s[d] = strideOr(t, d)
		}
	}
	return s
}

func (op *BinaryOp) Execute() error {
	switch op.out.Type() {
	case tensor.UInt8:
		return op.executeU8()
	case tensor.Float32:
		return op.executeF32()
	default:
		return errors.Wrapf(ErrUnsupported, "%s: element type %s", op.kind, op.out.Type())
	}
}

func (op *BinaryOp) apply() func(x, y float32) float32 {
	switch op.kind {
	case BinarySub:
		return func(x, y float32) float32 { return x - y }
	case BinaryMul:
		return func(x, y float32) float32 { return x * y }
	default:
		return func(x, y float32) float32 { return x + y }
	}
}

func (op *BinaryOp) executeU8() error {
	qa, qb, qo := op.a.Quantization(), op.b.Quantization(), op.out.Quantization()
	lo, hi, err := activationRangeU8(op.activation, qo)
	if err != nil {
		return err
	}
	sa, za := qa.ScaleFor(0), qa.ZeroFor(0)
	sb, zb := qb.ScaleFor(0), qb.ZeroFor(0)

	av, bv, ov := op.a.Uint8s(), op.b.Uint8s(), op.out.Uint8s()
	as, bs := broadcastStrides(op.a), broadcastStrides(op.b)
	apply := op.apply()

	o := 0
	for i3 := 0; i3 < extentOr(op.out, 3); i3++ {
		for i2 := 0; i2 < extentOr(op.out, 2); i2++ {
			for i1 := 0; i1 < extentOr(op.out, 1); i1++ {
				ai := i3*as[3] + i2*as[2] + i1*as[1]
				bi := i3*bs[3] + i2*bs[2] + i1*bs[1]
				for i0 := 0; i0 < extentOr(op.out, 0); i0++ {
					x := float32(int32(av[ai])-za) * sa
					y := float32(int32(bv[bi])-zb) * sb
					ov[o] = requantize(apply(x, y), qo, 0, lo, hi)
					o++
					ai += as[0]
					bi += bs[0]
				}
			}
		}
	}
	return nil
}

func (op *BinaryOp) executeF32() error {
	lo, hi := activationRangeF32(op.activation)
	av, bv, ov := op.a.Float32s(), op.b.Float32s(), op.out.Float32s()
	as, bs := broadcastStrides(op.a), broadcastStrides(op.b)
	apply := op.apply()

	o := 0
	for i3 := 0; i3 < extentOr(op.out, 3); i3++ {
		for i2 := 0; i2 < extentOr(op.out, 2); i2++ {
			for i1 := 0; i1 < extentOr(op.out, 1); i1++ {
				ai := i3*as[3] + i2*as[2] + i1*as[1]
				bi := i3*bs[3] + i2*bs[2] + i1*bs[1]
				for i0 := 0; i0 < extentOr(op.out, 0); i0++ {
					ov[o] = clampF32(apply(av[ai], bv[bi]), lo, hi)
					o++
					ai += as[0]
					bi += bs[0]
				}
			}
		}
	}
	return nil
}
