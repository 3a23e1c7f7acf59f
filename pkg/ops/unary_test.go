package ops

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gannet-ml/gannet/pkg/tensor"
)

func TestLogisticU8(t *testing.T) {
	// Input centered at 128 with unit scale; output covers [0, 1) with
	// scale 1/256, the usual parameters for a quantized logistic.
	in := u8Tensor(t, "in", []int{3}, 1.0, 128, []byte{128, 0, 255})
	out := u8Tensor(t, "out", []int{3}, 1.0/256, 0, nil)

	op, err := NewUnary(UnaryLogistic, in, out)
	require.NoError(t, err)
	run(t, op)

	v := out.Bytes()
	assert.Equal(t, byte(128), v[0], "logistic(0) = 0.5")
	assert.Equal(t, byte(0), v[1], "logistic(-128) saturates low")
	assert.Equal(t, byte(255), v[2], "logistic(127) saturates high")
}

func TestTanhU8(t *testing.T) {
	// Output covers [-1, 1] with scale 1/128 around zero point 128.
	in := u8Tensor(t, "in", []int{3}, 1.0, 128, []byte{128, 0, 255})
	out := u8Tensor(t, "out", []int{3}, 1.0/128, 128, nil)

	op, err := NewUnary(UnaryTanh, in, out)
	require.NoError(t, err)
	run(t, op)

	v := out.Bytes()
	assert.Equal(t, byte(128), v[0], "tanh(0) = 0")
	assert.Equal(t, byte(0), v[1], "tanh(-128) saturates low")
	assert.Equal(t, byte(255), v[2], "tanh(127) saturates high")
}

func TestLogisticF32(t *testing.T) {
	in := f32Tensor(t, "in", []int{3}, []float32{0, 2, -2})
	out := f32Tensor(t, "out", []int{3}, nil)

	op, err := NewUnary(UnaryLogistic, in, out)
	require.NoError(t, err)
	run(t, op)

	v := out.Float32s()
	assert.InDelta(t, 0.5, v[0], 1e-6)
	assert.InDelta(t, 1/(1+math32.Exp(-2)), v[1], 1e-6)
	assert.InDelta(t, 1/(1+math32.Exp(2)), v[2], 1e-6)
}

func TestTanhF32(t *testing.T) {
	in := f32Tensor(t, "in", []int{2}, []float32{0, 1})
	out := f32Tensor(t, "out", []int{2}, nil)

	op, err := NewUnary(UnaryTanh, in, out)
	require.NoError(t, err)
	run(t, op)

	v := out.Float32s()
	assert.InDelta(t, 0, v[0], 1e-6)
	assert.InDelta(t, 0.7615942, v[1], 1e-6)
}

func TestUnaryBoundsRejectsMismatch(t *testing.T) {
	in := f32Tensor(t, "in", []int{3}, nil)
	out := f32Tensor(t, "out", []int{4}, nil)

	op, err := NewUnary(UnaryTanh, in, out)
	require.NoError(t, err)
	assert.ErrorIs(t, op.Bounds(), tensor.ErrShapeMismatch)
}

func TestUnaryConstructionRejects(t *testing.T) {
	in := i32Tensor(t, "in", []int{2}, nil)
	out := i32Tensor(t, "out", []int{2}, nil)
	_, err := NewUnary(UnaryLogistic, in, out)
	assert.ErrorIs(t, err, ErrUnsupported)

	f := f32Tensor(t, "f", []int{2}, nil)
	_, err = NewUnary(UnaryKind(42), f, f)
	assert.ErrorIs(t, err, ErrConstruction)
}
