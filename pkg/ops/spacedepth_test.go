package ops

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gannet-ml/gannet/pkg/tensor"
)

func TestSpaceToDepth(t *testing.T) {
	in := u8Tensor(t, "in", []int{1, 2, 2, 1}, 1.0, 0, []byte{1, 2, 3, 4})
	out := u8Tensor(t, "out", []int{4, 1, 1, 1}, 1.0, 0, nil)

	op, err := NewSpaceDepth(in, out, 2)
	require.NoError(t, err)
	assert.Contains(t, op.String(), "SpaceToDepth")
	run(t, op)

	assert.Equal(t, []byte{1, 2, 3, 4}, out.Bytes())
}

func TestSpaceToDepthWideRow(t *testing.T) {
	in := u8Tensor(t, "in", []int{1, 4, 2, 1}, 1.0, 0, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	out := u8Tensor(t, "out", []int{4, 2, 1, 1}, 1.0, 0, nil)

	op, err := NewSpaceDepth(in, out, 2)
	require.NoError(t, err)
	run(t, op)

	assert.Equal(t, []byte{1, 2, 5, 6, 3, 4, 7, 8}, out.Bytes())
}

func TestDepthToSpace(t *testing.T) {
	in := u8Tensor(t, "in", []int{4, 1, 1, 1}, 1.0, 0, []byte{1, 2, 3, 4})
	out := u8Tensor(t, "out", []int{1, 2, 2, 1}, 1.0, 0, nil)

	op, err := NewSpaceDepth(in, out, -2)
	require.NoError(t, err)
	assert.Contains(t, op.String(), "DepthToSpace")
	run(t, op)

	assert.Equal(t, []byte{1, 2, 3, 4}, out.Bytes())
}

func TestSpaceDepthRoundTrip(t *testing.T) {
	data := make([]float32, 32)
	for i := range data {
		data[i] = float32(i)
	}
	in := f32Tensor(t, "in", []int{2, 4, 4, 1}, data)
	mid := f32Tensor(t, "mid", []int{8, 2, 2, 1}, nil)
	back := f32Tensor(t, "back", []int{2, 4, 4, 1}, nil)

	s2d, err := NewSpaceDepth(in, mid, 2)
	require.NoError(t, err)
	run(t, s2d)

	d2s, err := NewSpaceDepth(mid, back, -2)
	require.NoError(t, err)
	run(t, d2s)

	assert.Equal(t, in.Float32s(), back.Float32s())
}

func TestSpaceDepthBoundsRejects(t *testing.T) {
	odd := u8Tensor(t, "odd", []int{1, 3, 2, 1}, 1.0, 0, nil)
	out := u8Tensor(t, "out", []int{4, 1, 1, 1}, 1.0, 0, nil)
	op, err := NewSpaceDepth(odd, out, 2)
	require.NoError(t, err)
	assert.ErrorIs(t, op.Bounds(), tensor.ErrShapeMismatch, "spatial extents must divide by the block")

	thin := u8Tensor(t, "thin", []int{6, 1, 1, 1}, 1.0, 0, nil)
	wide := u8Tensor(t, "wide", []int{1, 2, 2, 1}, 1.0, 0, nil)
	op, err = NewSpaceDepth(thin, wide, -2)
	require.NoError(t, err)
	assert.ErrorIs(t, op.Bounds(), tensor.ErrShapeMismatch, "channels must divide by the squared block")

	in := u8Tensor(t, "in", []int{1, 2, 2, 1}, 1.0, 0, nil)
	short := u8Tensor(t, "short", []int{2, 1, 1, 1}, 1.0, 0, nil)
	op, err = NewSpaceDepth(in, short, 2)
	require.NoError(t, err)
	assert.ErrorIs(t, op.Bounds(), tensor.ErrShapeMismatch)
}

func TestSpaceDepthConstructionRejects(t *testing.T) {
	in := u8Tensor(t, "in", []int{1, 2, 2, 1}, 1.0, 0, nil)
	out := u8Tensor(t, "out", []int{4, 1, 1, 1}, 1.0, 0, nil)

	_, err := NewSpaceDepth(in, out, 0)
	assert.ErrorIs(t, err, ErrConstruction, "block size must be nonzero")

	flat := u8Tensor(t, "flat", []int{4}, 1.0, 0, nil)
	_, err = NewSpaceDepth(flat, out, 2)
	assert.ErrorIs(t, err, ErrConstruction, "rank 4 is required")

	f32 := f32Tensor(t, "f", []int{4, 1, 1, 1}, nil)
	_, err = NewSpaceDepth(in, f32, 2)
	assert.ErrorIs(t, err, ErrConstruction, "element types must match")
}
