package ops

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"

	"github.com/gannet-ml/gannet/pkg/tensor"
)

// L2NormalizationOp divides each innermost-axis row by its Euclidean
// norm. A row of all zeros stays zero.
type L2NormalizationOp struct {
	in, out *tensor.Tensor
}

func NewL2Normalization(in, out *tensor.Tensor) (*L2NormalizationOp, error) {
	const name = "L2Normalization"
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
	return &L2NormalizationOp{in: in, out: out}, nil
}

func (op *L2NormalizationOp) Inputs() []*tensor.Tensor  { return []*tensor.Tensor{op.in} }
func (op *L2NormalizationOp) Outputs() []*tensor.Tensor { return []*tensor.Tensor{op.out} }

func (op *L2NormalizationOp) String() string {
	return fmt.Sprintf("L2Normalization(%s -> %s)", op.in.Name(), op.out.Name())
}

func (op *L2NormalizationOp) Bounds() error {
	if !op.out.Shape().EqualExtents(op.in.Shape()) {
		return errors.Wrapf(tensor.ErrShapeMismatch, "L2Normalization: output %q shape %v, want %v", op.out.Name(), op.out.Shape(), op.in.Shape())
	}
	return nil
}

func normalizeRow(row []float32) {
	var sum float32
	for _, x := range row {
		sum += x * x
	}
	if sum == 0 {
		return
	}
	norm := math32.Sqrt(sum)
	for i := range row {
		row[i] /= norm
	}
}

func (op *L2NormalizationOp) Execute() error {
	width := extentOr(op.in, 0)
	rows := op.in.ElementCount() / width

	switch op.out.Type() {
	case tensor.Float32:
		iv, ov := op.in.Float32s(), op.out.Float32s()
		parallelFor(rows, func(start, end int) {
			for r := start; r < end; r++ {
				row := ov[r*width : (r+1)*width]
				copy(row, iv[r*width:(r+1)*width])
				normalizeRow(row)
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
				normalizeRow(row)
				for i, x := range row {
					ov[r*width+i] = requantize(x, qo, 0, 0, 255)
				}
			}
		})
		return nil
	default:
		return errors.Wrapf(ErrUnsupported, "L2Normalization: element type %s", op.out.Type())
	}
}
