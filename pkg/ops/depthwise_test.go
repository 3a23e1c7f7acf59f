package ops

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gannet-ml/gannet/pkg/tensor"
)

func TestDepthwiseMultiplier(t *testing.T) {
	in := u8Tensor(t, "in", []int{3, 2, 2, 1}, 1.0, 0, nil)
	filter := u8Tensor(t, "filter", []int{9, 1, 1, 1}, 1.0, 0, make([]byte, 9))
	bias := i32Tensor(t, "bias", []int{9}, make([]int32, 9))
	out := u8Tensor(t, "out", []int{9, 2, 2, 1}, 1.0, 0, nil)

	op, err := NewDepthwiseConv2D(in, filter, bias, out, 1, 1, 1, 1, PaddingSame, ActivationNone)
	require.NoError(t, err)
	assert.Equal(t, 3, op.Multiplier())
}

func TestDepthwiseMultiplierNotExact(t *testing.T) {
	in := u8Tensor(t, "in", []int{3, 2, 2, 1}, 1.0, 0, nil)
	filter := u8Tensor(t, "filter", []int{10, 1, 1, 1}, 1.0, 0, make([]byte, 10))
	bias := i32Tensor(t, "bias", []int{10}, make([]int32, 10))
	out := u8Tensor(t, "out", []int{10, 2, 2, 1}, 1.0, 0, nil)

	_, err := NewDepthwiseConv2D(in, filter, bias, out, 1, 1, 1, 1, PaddingSame, ActivationNone)
	assert.ErrorIs(t, err, ErrConstruction, "10 output channels over 3 input channels")
}

func TestDepthwiseU8(t *testing.T) {
	// Multiplier 1: each channel convolves with its own 2-tap filter.
	in := u8Tensor(t, "in", []int{2, 2, 1, 1}, 1.0, 0, []byte{1, 2, 3, 4})
	filter := u8Tensor(t, "filter", []int{2, 2, 1, 1}, 1.0, 0, []byte{1, 10, 1, 10})
	bias := i32Tensor(t, "bias", []int{2}, []int32{0, 0})
	out := u8Tensor(t, "out", []int{2, 1, 1, 1}, 1.0, 0, nil)

	op, err := NewDepthwiseConv2D(in, filter, bias, out, 1, 1, 1, 1, PaddingValid, ActivationNone)
	require.NoError(t, err)
	run(t, op)

	// Channel 0: 1+3 = 4. Channel 1: 10*(2+4) = 60.
	assert.Equal(t, []byte{4, 60}, out.Bytes())
}

func TestDepthwiseMultiplier2F32(t *testing.T) {
	// One input channel fans out to two output channels.
	in := f32Tensor(t, "in", []int{1, 2, 1, 1}, []float32{3, 5})
	filter := f32Tensor(t, "filter", []int{2, 2, 1, 1}, []float32{1, 10, 1, 10})
	bias := f32Tensor(t, "bias", []int{2}, []float32{0, 0})
	out := f32Tensor(t, "out", []int{2, 1, 1, 1}, nil)

	op, err := NewDepthwiseConv2D(in, filter, bias, out, 1, 1, 1, 1, PaddingValid, ActivationNone)
	require.NoError(t, err)
	require.Equal(t, 2, op.Multiplier())
	run(t, op)

	assert.Equal(t, []float32{8, 80}, out.Float32s())
}

func TestDepthwisePerChannelQuantization(t *testing.T) {
	in := u8Tensor(t, "in", []int{2, 1, 1, 1}, 1.0, 0, []byte{4, 4})
	filter, err := tensor.NewConstant("filter", tensor.UInt8, tensor.NewShape(2, 1, 1, 1), []byte{2, 2})
	require.NoError(t, err)
	filter.SetQuantization(tensor.Quantization{
		Scale:     []float32{1.0, 0.5},
		Zero:      []int32{0, 0},
		Dimension: 0,
	})
	require.NoError(t, filter.Allocate())
	bias := i32Tensor(t, "bias", []int{2}, []int32{0, 0})
	out := u8Tensor(t, "out", []int{2, 1, 1, 1}, 1.0, 0, nil)

	op, err := NewDepthwiseConv2D(in, filter, bias, out, 1, 1, 1, 1, PaddingValid, ActivationNone)
	require.NoError(t, err)
	run(t, op)

	// Channel 0: 4*2*1.0 = 8. Channel 1: 4*2*0.5 = 4.
	assert.Equal(t, []byte{8, 4}, out.Bytes())
}

func TestDepthwiseBoundsRejectsFilterShape(t *testing.T) {
	in := u8Tensor(t, "in", []int{2, 2, 2, 1}, 1.0, 0, nil)
	filter := u8Tensor(t, "filter", []int{2, 1, 1, 2}, 1.0, 0, make([]byte, 4))
	bias := i32Tensor(t, "bias", []int{2}, []int32{0, 0})
	out := u8Tensor(t, "out", []int{2, 2, 2, 1}, 1.0, 0, nil)

	op, err := NewDepthwiseConv2D(in, filter, bias, out, 1, 1, 1, 1, PaddingSame, ActivationNone)
	require.NoError(t, err)
	assert.ErrorIs(t, op.Bounds(), tensor.ErrShapeMismatch, "last filter dimension must be 1")
}
