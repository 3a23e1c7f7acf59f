package tensor

// Quantization maps stored integer values to real numbers through the
// affine relation real = (stored - zero) * scale. Scale and Zero run in
// parallel; when they hold more than one entry the parameters vary along
// Dimension, which is expressed in this engine's reversed axis order.
type Quantization struct {
	Scale     []float32
	Zero      []int32
	Dimension int
}

// IsQuantized reports whether any quantization parameters are present.
func (q Quantization) IsQuantized() bool {
	return len(q.Scale) > 0 || len(q.Zero) > 0
}

// PerChannel reports whether the parameters vary along an axis rather
// than applying tensor-wide.
func (q Quantization) PerChannel() bool {
	return len(q.Scale) > 1 || len(q.Zero) > 1
}

// ScaleFor returns the scale for the given channel, falling back to
// entry 0 for per-tensor parameters and to 1.0 when no scale is set.
func (q Quantization) ScaleFor(channel int) float32 {
	if len(q.Scale) == 0 {
		return 1.0
	}
	if channel < len(q.Scale) {
		return q.Scale[channel]
	}
	return q.Scale[0]
}

// ZeroFor returns the zero point for the given channel, falling back to
// entry 0 for per-tensor parameters and to 0 when no zero point is set.
func (q Quantization) ZeroFor(channel int) int32 {
	if len(q.Zero) == 0 {
		return 0
	}
	if channel < len(q.Zero) {
		return q.Zero[channel]
	}
	return q.Zero[0]
}

// Dequantize converts a stored value to its real-number meaning using
// the channel's parameters.
func (q Quantization) Dequantize(stored int32, channel int) float32 {
	return float32(stored-q.ZeroFor(channel)) * q.ScaleFor(channel)
}

// Equal reports whether two quantizations describe the same mapping.
func (q Quantization) Equal(o Quantization) bool {
	if len(q.Scale) != len(o.Scale) || len(q.Zero) != len(o.Zero) {
		return false
	}
	for i := range q.Scale {
		if q.Scale[i] != o.Scale[i] {
			return false
		}
	}
	for i := range q.Zero {
		if q.Zero[i] != o.Zero[i] {
			return false
		}
	}
	if q.PerChannel() && q.Dimension != o.Dimension {
		return false
	}
	return true
}
