// Package dtypes defines the element kinds (operand codes) of model operands.
//
// The numeric values follow the operand codes of the Android Neural Networks API, so that
// generated fixtures and serialized models can be compared against the original test suites.
package dtypes

import (
	"fmt"
	"math"
	"strings"
)

// DType is the kind of element (or scalar) an operand holds.
type DType int32

const (
	Float32                    DType = 0
	Int32                      DType = 1
	UInt32                     DType = 2
	TensorFloat32              DType = 3
	TensorInt32                DType = 4
	TensorQuant8Asymm          DType = 5
	Bool                       DType = 6
	TensorQuant16Symm          DType = 7
	TensorFloat16              DType = 8
	TensorBool8                DType = 9
	Float16                    DType = 10
	TensorQuant8SymmPerChannel DType = 11
	TensorQuant16Asymm         DType = 12
	TensorQuant8Symm           DType = 13
	TensorQuant8AsymmSigned    DType = 14

	// Invalid represents an invalid (or not set) dtype.
	Invalid DType = -1
)

// Last is the number of valid dtypes, used to iterate over all of them.
const Last = int(TensorQuant8AsymmSigned) + 1

var names = [Last]string{
	"Float32",
	"Int32",
	"UInt32",
	"TensorFloat32",
	"TensorInt32",
	"TensorQuant8Asymm",
	"Bool",
	"TensorQuant16Symm",
	"TensorFloat16",
	"TensorBool8",
	"Float16",
	"TensorQuant8SymmPerChannel",
	"TensorQuant16Asymm",
	"TensorQuant8Symm",
	"TensorQuant8AsymmSigned",
}

// apiNames are the spellings used by the NNAPI C headers and test specifications.
var apiNames = [Last]string{
	"FLOAT32",
	"INT32",
	"UINT32",
	"TENSOR_FLOAT32",
	"TENSOR_INT32",
	"TENSOR_QUANT8_ASYMM",
	"BOOL",
	"TENSOR_QUANT16_SYMM",
	"TENSOR_FLOAT16",
	"TENSOR_BOOL8",
	"FLOAT16",
	"TENSOR_QUANT8_SYMM_PER_CHANNEL",
	"TENSOR_QUANT16_ASYMM",
	"TENSOR_QUANT8_SYMM",
	"TENSOR_QUANT8_ASYMM_SIGNED",
}

// MapOfNames maps the Go name, the NNAPI name, and their lower-case versions to the DType.
var MapOfNames = func() map[string]DType {
	m := make(map[string]DType, 4*Last)
	for i := range Last {
		dtype := DType(i)
		for _, name := range []string{names[i], apiNames[i]} {
			m[name] = dtype
			m[strings.ToLower(name)] = dtype
		}
	}
	return m
}()

// IsValid returns whether dtype is one of the enumerated kinds.
func (dtype DType) IsValid() bool {
	return dtype >= 0 && int(dtype) < Last
}

// String implements fmt.Stringer.
func (dtype DType) String() string {
	if !dtype.IsValid() {
		return fmt.Sprintf("DType(%d)", int32(dtype))
	}
	return names[dtype]
}

// APIName returns the NNAPI spelling of the dtype, e.g. "TENSOR_FLOAT32".
func (dtype DType) APIName() string {
	if !dtype.IsValid() {
		return fmt.Sprintf("UNKNOWN_%d", int32(dtype))
	}
	return apiNames[dtype]
}

// IsScalar returns whether the dtype describes a single scalar value (as opposed to a tensor).
func (dtype DType) IsScalar() bool {
	switch dtype {
	case Float32, Int32, UInt32, Bool, Float16:
		return true
	}
	return false
}

// IsTensor returns whether the dtype describes a tensor.
func (dtype DType) IsTensor() bool {
	return dtype.IsValid() && !dtype.IsScalar()
}

// IsFloat returns whether the elements are floating point numbers.
func (dtype DType) IsFloat() bool {
	switch dtype {
	case Float32, Float16, TensorFloat32, TensorFloat16:
		return true
	}
	return false
}

// IsQuantized returns whether the elements are quantized, and hence require a scale (and possibly
// a zero point) to be interpreted.
func (dtype DType) IsQuantized() bool {
	switch dtype {
	case TensorQuant8Asymm, TensorQuant8AsymmSigned, TensorQuant8Symm, TensorQuant8SymmPerChannel,
		TensorQuant16Asymm, TensorQuant16Symm:
		return true
	}
	return false
}

// IsSymmetric returns whether the quantized kind has a fixed zero point of 0.
func (dtype DType) IsSymmetric() bool {
	switch dtype {
	case TensorQuant8Symm, TensorQuant8SymmPerChannel, TensorQuant16Symm:
		return true
	}
	return false
}

// IsPerChannel returns whether the quantized kind carries one scale per channel.
func (dtype DType) IsPerChannel() bool {
	return dtype == TensorQuant8SymmPerChannel
}

// Memory returns the number of bytes used to store one element of the dtype.
// It returns 0 for invalid dtypes.
func (dtype DType) Memory() uintptr {
	switch dtype {
	case Bool, TensorBool8, TensorQuant8Asymm, TensorQuant8AsymmSigned, TensorQuant8Symm, TensorQuant8SymmPerChannel:
		return 1
	case Float16, TensorFloat16, TensorQuant16Asymm, TensorQuant16Symm:
		return 2
	case Float32, Int32, UInt32, TensorFloat32, TensorInt32:
		return 4
	}
	return 0
}

// ZeroPointRange returns the range of zero points representable by the storage type of dtype.
// For non-quantized dtypes it returns the full int32 range, since the zero point is ignored.
func (dtype DType) ZeroPointRange() (lowest, highest int32) {
	switch dtype {
	case TensorQuant8Asymm:
		return 0, math.MaxUint8
	case TensorQuant8AsymmSigned:
		return math.MinInt8, math.MaxInt8
	case TensorQuant16Asymm:
		return 0, math.MaxUint16
	case TensorQuant8Symm, TensorQuant8SymmPerChannel, TensorQuant16Symm:
		return 0, 0
	}
	return math.MinInt32, math.MaxInt32
}

// ValueRange returns the lowest and highest storable values of quantized dtypes.
// The per-channel and 8-bit symmetric kinds use [-127, 127], as the NNAPI specifies.
func (dtype DType) ValueRange() (lowest, highest int32) {
	switch dtype {
	case TensorQuant8Asymm:
		return 0, math.MaxUint8
	case TensorQuant8AsymmSigned:
		return math.MinInt8, math.MaxInt8
	case TensorQuant8Symm, TensorQuant8SymmPerChannel:
		return -math.MaxInt8, math.MaxInt8
	case TensorQuant16Asymm:
		return 0, math.MaxUint16
	case TensorQuant16Symm:
		return math.MinInt16, math.MaxInt16
	}
	return math.MinInt32, math.MaxInt32
}

// ScalarFor returns the scalar dtype matching the element kind of a tensor dtype, if there is one.
func (dtype DType) ScalarFor() DType {
	switch dtype {
	case TensorFloat32:
		return Float32
	case TensorFloat16:
		return Float16
	case TensorInt32:
		return Int32
	case TensorBool8:
		return Bool
	}
	return Invalid
}
