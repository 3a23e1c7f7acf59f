package ops

import "fmt"

// Padding selects how convolution and pooling windows meet the input
// edges. Same zero-extends window placement so the output spatial extent
// is ceil(input/stride); Valid samples only in-bounds positions.
type Padding int

const (
	PaddingSame Padding = iota
	PaddingValid
)

func (p Padding) String() string {
	switch p {
	case PaddingSame:
		return "same"
	case PaddingValid:
		return "valid"
	default:
		return fmt.Sprintf("Padding(%d)", int(p))
	}
}

// outputExtent returns the spatial output extent for one axis, or -1
// when the configuration cannot produce any output.
func (p Padding) outputExtent(input, filter, stride int) int {
	switch p {
	case PaddingSame:
		return (input + stride - 1) / stride
	case PaddingValid:
		if input < filter {
			return -1
		}
		return (input-filter)/stride + 1
	default:
		return -1
	}
}

// paddingBefore returns how far the first window starts before the input
// origin on one axis.
func (p Padding) paddingBefore(input, filter, stride, output int) int {
	total := (output-1)*stride + filter - input
	if total < 0 {
		total = 0
	}
	return total / 2
}
