package ops

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"

	"github.com/gannet-ml/gannet/pkg/tensor"
)

// Activation is the fused transform applied to an operator's result as a
// final elementwise step.
type Activation int

const (
	ActivationNone Activation = iota
	ActivationRelu
	ActivationRelu6
	ActivationReluN1To1
	ActivationTanh
	ActivationSignBit
)

func (a Activation) String() string {
	switch a {
	case ActivationNone:
		return "none"
	case ActivationRelu:
		return "relu"
	case ActivationRelu6:
		return "relu6"
	case ActivationReluN1To1:
		return "relu_n1_to_1"
	case ActivationTanh:
		return "tanh"
	case ActivationSignBit:
		return "sign_bit"
	default:
		return fmt.Sprintf("Activation(%d)", int(a))
	}
}

// checkActivation gates operators that implement activations as clamp
// ranges: only the relu family (and none) qualifies.
func checkActivation(op string, a Activation) error {
	switch a {
	case ActivationNone, ActivationRelu, ActivationRelu6, ActivationReluN1To1:
		return nil
	default:
		return errors.Wrapf(ErrUnsupported, "%s: activation %s", op, a)
	}
}

// quantizeBound maps a real bound into the uint8 domain of q.
func quantizeBound(q tensor.Quantization, x float32) int32 {
	v := roundNearest(x/q.ScaleFor(0)) + q.ZeroFor(0)
	if v < 0 {
		v = 0
	}
	if v > 255 {
		v = 255
	}
	return v
}

// activationRangeU8 returns the clamp interval an activation imposes on a
// uint8 output with the given quantization.
func activationRangeU8(a Activation, q tensor.Quantization) (int32, int32, error) {
	switch a {
	case ActivationNone:
		return 0, 255, nil
	case ActivationRelu:
		return quantizeBound(q, 0), 255, nil
	case ActivationRelu6:
		return quantizeBound(q, 0), quantizeBound(q, 6), nil
	case ActivationReluN1To1:
		return quantizeBound(q, -1), quantizeBound(q, 1), nil
	default:
		return 0, 0, errors.Wrapf(ErrUnsupported, "activation %s has no uint8 clamp range", a)
	}
}

// activationRangeF32 returns the clamp interval an activation imposes in
// real space.
func activationRangeF32(a Activation) (float32, float32) {
	switch a {
	case ActivationRelu:
		return 0, math32.MaxFloat32
	case ActivationRelu6:
		return 0, 6
	case ActivationReluN1To1:
		return -1, 1
	default:
		return -math32.MaxFloat32, math32.MaxFloat32
	}
}

// roundNearest rounds half away from zero, matching the quantized
// arithmetic of the source models.
func roundNearest(x float32) int32 {
	if x >= 0 {
		return int32(x + 0.5)
	}
	return int32(x - 0.5)
}

func clampI32(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampF32(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// requantize maps a real value into the uint8 domain of q, clamped to
// [lo, hi].
func requantize(v float32, q tensor.Quantization, channel int, lo, hi int32) uint8 {
	return uint8(clampI32(roundNearest(v/q.ScaleFor(channel))+q.ZeroFor(channel), lo, hi))
}
