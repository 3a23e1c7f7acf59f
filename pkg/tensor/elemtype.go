package tensor

import "fmt"

// ElemType identifies the element type of a tensor buffer.
type ElemType uint8

const (
	// Bool is an 8-bit boolean (0 or 1).
	Bool ElemType = iota + 1
	// UInt8 is an 8-bit unsigned integer, the canonical quantized type.
	UInt8
	// Int8 is an 8-bit signed integer.
	Int8
	// UInt16 is a 16-bit unsigned integer.
	UInt16
	// Int16 is a 16-bit signed integer.
	Int16
	// UInt32 is a 32-bit unsigned integer.
	UInt32
	// Int32 is a 32-bit signed integer, used for bias and shape/axis tensors.
	Int32
	// UInt64 is a 64-bit unsigned integer.
	UInt64
	// Int64 is a 64-bit signed integer.
	Int64
	// Float16 is an IEEE 754 binary16 floating point value.
	Float16
	// Float32 is an IEEE 754 binary32 floating point value.
	Float32
	// Float64 is an IEEE 754 binary64 floating point value.
	Float64
)

var (
	elemTypeToString = [...]string{
		Bool:    "bool",
		UInt8:   "uint8",
		Int8:    "int8",
		UInt16:  "uint16",
		Int16:   "int16",
		UInt32:  "uint32",
		Int32:   "int32",
		UInt64:  "uint64",
		Int64:   "int64",
		Float16: "float16",
		Float32: "float32",
		Float64: "float64",
	}
	elemTypeToSize = [...]int{
		Bool:    1,
		UInt8:   1,
		Int8:    1,
		UInt16:  2,
		Int16:   2,
		UInt32:  4,
		Int32:   4,
		UInt64:  8,
		Int64:   8,
		Float16: 2,
		Float32: 4,
		Float64: 8,
	}
)

// Validate returns an error if the ElemType is not one of the declared
// constants, otherwise nil.
func (t ElemType) Validate() error {
	if t == 0 || t > Float64 {
		return fmt.Errorf("invalid ElemType(%d)", uint8(t))
	}
	return nil
}

// String returns the lowercase name of the element type.
func (t ElemType) String() string {
	if err := t.Validate(); err != nil {
		return err.Error()
	}
	return elemTypeToString[t]
}

// Size returns the size in bytes of one element of this type,
// or -1 if the ElemType value is invalid.
func (t ElemType) Size() int {
	if err := t.Validate(); err != nil {
		return -1
	}
	return elemTypeToSize[t]
}
