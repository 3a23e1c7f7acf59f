package ops

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"

	"github.com/gannet-ml/gannet/pkg/tensor"
)

// SoftmaxOp computes softmax(beta * x) along the innermost axis using
// the shift-by-max formulation, so large logits cannot overflow the
// exponential.
type SoftmaxOp struct {
	in, out *tensor.Tensor
	beta    float32
}

func NewSoftmax(in, out *tensor.Tensor, beta float32) (*SoftmaxOp, error) {
	const name = "Softmax"
	if err := checkRank(name, in, out); err != nil {
		return nil, err
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
	if beta <= 0 {
		return nil, errors.Wrapf(ErrConstruction, "%s: beta %g must be positive", name, beta)
	}
	return &SoftmaxOp{in: in, out: out, beta: beta}, nil
}

func (op *SoftmaxOp) Inputs() []*tensor.Tensor  { return []*tensor.Tensor{op.in} }
func (op *SoftmaxOp) Outputs() []*tensor.Tensor { return []*tensor.Tensor{op.out} }

func (op *SoftmaxOp) String() string {
	return fmt.Sprintf("Softmax(%s -> %s)", op.in.Name(), op.out.Name())
}

func (op *SoftmaxOp) Bounds() error {
	if !op.out.Shape().EqualExtents(op.in.Shape()) {
		return errors.Wrapf(tensor.ErrShapeMismatch, "Softmax: output %q shape %v, want %v", op.out.Name(), op.out.Shape(), op.in.Shape())
	}
	return nil
}

// softmaxRow rewrites row with softmax(beta * row) in place.
func softmaxRow(row []float32, beta float32) {
	m := row[0]
	for _, x := range row[1:] {
		if x > m {
			m = x
		}
	}
	var sum float32
	for i, x := range row {
		e := math32.Exp(beta * (x - m))
		row[i] = e
		sum += e
	}
	for i := range row {
		row[i] /= sum
	}
}

func (op *SoftmaxOp) Execute() error {
	width := extentOr(op.in, 0)
	rows := op.in.ElementCount() / width

	switch op.out.Type() {
	case tensor.Float32:
		iv, ov := op.in.Float32s(), op.out.Float32s()
		parallelFor(rows, func(start, end int) {
			for r := start; r < end; r++ {
				row := ov[r*width : (r+1)*width]
				copy(row, iv[r*width:(r+1)*width])
				softmaxRow(row, op.beta)
			}
		})
		return nil
	case tensor.UInt8:
		qi, qo := op.in.Quantization(), op.out.Quantization()
		si, zi := qi.ScaleFor(0), qi.ZeroFor(0)
		iv, ov := op.in.Uint8s(), op.out.Uint8s()
		parallelFor(rows, func(start, end int) {
			row := make([]float32, width)
			for r := start; r < end; r++ {
				for i := 0; i < width; i++ {
					row[i] = float32(int32(iv[r*width+i])-zi) * si
				}
				softmaxRow(row, op.beta)
				for i, p := range row {
					ov[r*width+i] = requantize(p, qo, 0, 0, 255)
				}
			}
		})
		return nil
	default:
		return errors.Wrapf(ErrUnsupported, "Softmax: element type %s", op.out.Type())
	}
}
