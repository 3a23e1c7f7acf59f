package tensor

import (
	"fmt"
	"unsafe"

	"github.com/pkg/errors"
)

// ErrShapeMismatch is returned when a tensor's shape, strides, or buffer
// size disagree with each other.
var ErrShapeMismatch = errors.New("shape mismatch")

// Tensor is a named, typed, n-dimensional buffer. Its shape follows the
// reversed convention described on Shape. A tensor starts unallocated
// unless built from constant data; Allocate resolves its strides and
// backing buffer.
type Tensor struct {
	name     string
	elemType ElemType
	shape    Shape
	quant    Quantization

	data []byte

	constant bool
	input    bool
	output   bool
}

// New returns an unallocated tensor with unset strides.
func New(name string, elemType ElemType, shape Shape) *Tensor {
	return &Tensor{
		name:     name,
		elemType: elemType,
		shape:    shape.Clone(),
	}
}

// NewConstant returns a tensor backed by the given buffer, which must
// already hold exactly one element per shape position. The tensor is
// marked constant; the buffer is referenced, not copied.
func NewConstant(name string, elemType ElemType, shape Shape, data []byte) (*Tensor, error) {
	if err := elemType.Validate(); err != nil {
		return nil, errors.Wrapf(err, "constant tensor %q", name)
	}
	want := shape.ElementCount() * elemType.Size()
	if len(data) != want {
		return nil, errors.Wrapf(ErrShapeMismatch, "constant tensor %q: buffer is %d bytes, shape %v needs %d", name, len(data), shape, want)
	}
	t := &Tensor{
		name:     name,
		elemType: elemType,
		shape:    shape.Clone(),
		data:     data,
		constant: true,
	}
	return t, nil
}

func (t *Tensor) Name() string     { return t.name }
func (t *Tensor) Type() ElemType   { return t.elemType }
func (t *Tensor) Rank() int        { return len(t.shape) }
func (t *Tensor) Shape() Shape     { return t.shape }
func (t *Tensor) Dim(i int) Dim    { return t.shape[i] }
func (t *Tensor) Extent(i int) int { return t.shape[i].Extent }
func (t *Tensor) Stride(i int) int { return t.shape[i].Stride }

func (t *Tensor) Quantization() Quantization     { return t.quant }
func (t *Tensor) SetQuantization(q Quantization) { t.quant = q }

func (t *Tensor) IsConstant() bool { return t.constant }
func (t *Tensor) IsInput() bool    { return t.input }
func (t *Tensor) IsOutput() bool   { return t.output }

func (t *Tensor) SetInput(v bool)  { t.input = v }
func (t *Tensor) SetOutput(v bool) { t.output = v }

// IsAllocated reports whether the tensor has a backing buffer.
func (t *Tensor) IsAllocated() bool { return t.data != nil }

// ElementCount returns the number of elements the tensor's shape spans.
func (t *Tensor) ElementCount() int { return t.shape.ElementCount() }

// ByteSize returns the size of the tensor's dense footprint in bytes.
func (t *Tensor) ByteSize() int { return t.shape.ElementCount() * t.elemType.Size() }

// Allocate resolves strides and ensures a backing buffer exists. Strides
// are filled innermost-out with the running product of the extents; a
// stride set beforehand must equal that product. Without a buffer one is
// allocated; an existing buffer must match the dense footprint exactly.
// Allocate is idempotent.
func (t *Tensor) Allocate() error {
	if err := t.elemType.Validate(); err != nil {
		return errors.Wrapf(err, "tensor %q", t.name)
	}
	footprint := 1
	for i := range t.shape {
		d := &t.shape[i]
		if d.Stride == 0 {
			d.Stride = footprint
		} else if d.Stride != footprint {
			return errors.Wrapf(ErrShapeMismatch, "tensor %q: dimension %d has stride %d, want %d", t.name, i, d.Stride, footprint)
		}
		footprint *= d.Extent
	}
	byteSize := footprint * t.elemType.Size()
	if t.data == nil {
		t.data = make([]byte, byteSize)
		return nil
	}
	if len(t.data) != byteSize {
		return errors.Wrapf(ErrShapeMismatch, "tensor %q: buffer is %d bytes, shape %v needs %d", t.name, len(t.data), t.shape, byteSize)
	}
	return nil
}

// Bytes returns the raw backing buffer, or nil before allocation.
func (t *Tensor) Bytes() []byte { return t.data }

// The typed views below reinterpret the backing buffer in native byte
// order. Callers are expected to have checked Type first; the views do
// not re-verify it.

func (t *Tensor) Uint8s() []uint8 {
	return t.data
}

func (t *Tensor) Int32s() []int32 {
	if len(t.data) == 0 {
		return nil
	}
	return unsafe.Slice((*int32)(unsafe.Pointer(&t.data[0])), len(t.data)/4)
}

func (t *Tensor) Float32s() []float32 {
	if len(t.data) == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&t.data[0])), len(t.data)/4)
}

func (t *Tensor) String() string {
	q := ""
	if t.quant.IsQuantized() {
		q = " quantized"
	}
	return fmt.Sprintf("%s(%s %s%s)", t.name, t.elemType, t.shape, q)
}
