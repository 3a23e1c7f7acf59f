package ops

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gannet-ml/gannet/pkg/tensor"
)

// u8Tensor builds an allocated uint8 tensor with per-tensor quantization.
func u8Tensor(t *testing.T, name string, extents []int, scale float32, zero int32, data []byte) *tensor.Tensor {
	t.Helper()
	var tn *tensor.Tensor
	if data != nil {
		var err error
		tn, err = tensor.NewConstant(name, tensor.UInt8, tensor.NewShape(extents...), data)
		require.NoError(t, err)
	} else {
		tn = tensor.New(name, tensor.UInt8, tensor.NewShape(extents...))
	}
	tn.SetQuantization(tensor.Quantization{Scale: []float32{scale}, Zero: []int32{zero}})
	require.NoError(t, tn.Allocate())
	return tn
}

// f32Tensor builds an allocated float32 tensor.
func f32Tensor(t *testing.T, name string, extents []int, data []float32) *tensor.Tensor {
	t.Helper()
	tn := tensor.New(name, tensor.Float32, tensor.NewShape(extents...))
	require.NoError(t, tn.Allocate())
	copy(tn.Float32s(), data)
	return tn
}

// i32Tensor builds an allocated int32 tensor.
func i32Tensor(t *testing.T, name string, extents []int, data []int32) *tensor.Tensor {
	t.Helper()
	tn := tensor.New(name, tensor.Int32, tensor.NewShape(extents...))
	require.NoError(t, tn.Allocate())
	copy(tn.Int32s(), data)
	return tn
}

// run enforces bounds and executes the op.
func run(t *testing.T, op Op) {
	t.Helper()
	require.NoError(t, op.Bounds())
	require.NoError(t, op.Execute())
}
