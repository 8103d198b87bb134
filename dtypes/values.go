package dtypes

import (
	"encoding/binary"
	"math"
	"reflect"

	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// Supported lists the Go types used to hold operand values on the host.
type Supported interface {
	float32 | float16.Float16 | int32 | uint32 | int16 | uint16 | int8 | uint8 | bool
}

var (
	float32Type = reflect.TypeOf(float32(0))
	float16Type = reflect.TypeOf(float16.Float16(0))
	int32Type   = reflect.TypeOf(int32(0))
	uint32Type  = reflect.TypeOf(uint32(0))
	int16Type   = reflect.TypeOf(int16(0))
	uint16Type  = reflect.TypeOf(uint16(0))
	int8Type    = reflect.TypeOf(int8(0))
	uint8Type   = reflect.TypeOf(uint8(0))
	boolType    = reflect.TypeOf(false)
)

// GoType returns the Go type used to hold one element of the dtype, or nil for invalid dtypes.
func (dtype DType) GoType() reflect.Type {
	switch dtype {
	case Float32, TensorFloat32:
		return float32Type
	case Float16, TensorFloat16:
		return float16Type
	case Int32, TensorInt32:
		return int32Type
	case UInt32:
		return uint32Type
	case Bool, TensorBool8:
		return boolType
	case TensorQuant8Asymm:
		return uint8Type
	case TensorQuant8AsymmSigned, TensorQuant8Symm, TensorQuant8SymmPerChannel:
		return int8Type
	case TensorQuant16Asymm:
		return uint16Type
	case TensorQuant16Symm:
		return int16Type
	}
	return nil
}

// Encode converts the flat slice of values (e.g. []float32 for TensorFloat32) to its
// little-endian byte representation, the format operand values are stored in.
//
// The Go type of the slice elements must match dtype.GoType().
func Encode(dtype DType, flat any) ([]byte, error) {
	goType := dtype.GoType()
	if goType == nil {
		return nil, errors.Errorf("cannot encode values for invalid dtype %s", dtype)
	}
	flatType := reflect.TypeOf(flat)
	if flatType == nil || flatType.Kind() != reflect.Slice || flatType.Elem() != goType {
		return nil, errors.Errorf("values for dtype %s must be given as []%s, got %T", dtype, goType, flat)
	}
	switch values := flat.(type) {
	case []float32:
		buf := make([]byte, 0, 4*len(values))
		for _, v := range values {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
		}
		return buf, nil
	case []float16.Float16:
		buf := make([]byte, 0, 2*len(values))
		for _, v := range values {
			buf = binary.LittleEndian.AppendUint16(buf, v.Bits())
		}
		return buf, nil
	case []int32:
		buf := make([]byte, 0, 4*len(values))
		for _, v := range values {
			buf = binary.LittleEndian.AppendUint32(buf, uint32(v))
		}
		return buf, nil
	case []uint32:
		buf := make([]byte, 0, 4*len(values))
		for _, v := range values {
			buf = binary.LittleEndian.AppendUint32(buf, v)
		}
		return buf, nil
	case []int16:
		buf := make([]byte, 0, 2*len(values))
		for _, v := range values {
			buf = binary.LittleEndian.AppendUint16(buf, uint16(v))
		}
		return buf, nil
	case []uint16:
		buf := make([]byte, 0, 2*len(values))
		for _, v := range values {
			buf = binary.LittleEndian.AppendUint16(buf, v)
		}
		return buf, nil
	case []int8:
		buf := make([]byte, len(values))
		for i, v := range values {
			buf[i] = byte(v)
		}
		return buf, nil
	case []uint8:
		buf := make([]byte, len(values))
		copy(buf, values)
		return buf, nil
	case []bool:
		buf := make([]byte, len(values))
		for i, v := range values {
			if v {
				buf[i] = 1
			}
		}
		return buf, nil
	}
	return nil, errors.Errorf("unsupported values type %T", flat)
}

// Decode converts the little-endian byte representation of values of the dtype back to a
// flat Go slice, e.g. []float32 for TensorFloat32.
func Decode(dtype DType, data []byte) (any, error) {
	elemSize := int(dtype.Memory())
	if elemSize == 0 {
		return nil, errors.Errorf("cannot decode values for invalid dtype %s", dtype)
	}
	if len(data)%elemSize != 0 {
		return nil, errors.Errorf("buffer of %d bytes is not a multiple of the %d bytes of an element of %s",
			len(data), elemSize, dtype)
	}
	n := len(data) / elemSize
	switch dtype.GoType() {
	case float32Type:
		values := make([]float32, n)
		for i := range values {
			values[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
		}
		return values, nil
	case float16Type:
		values := make([]float16.Float16, n)
		for i := range values {
			values[i] = float16.Frombits(binary.LittleEndian.Uint16(data[2*i:]))
		}
		return values, nil
	case int32Type:
		values := make([]int32, n)
		for i := range values {
			values[i] = int32(binary.LittleEndian.Uint32(data[4*i:]))
		}
		return values, nil
	case uint32Type:
		values := make([]uint32, n)
		for i := range values {
			values[i] = binary.LittleEndian.Uint32(data[4*i:])
		}
		return values, nil
	case int16Type:
		values := make([]int16, n)
		for i := range values {
			values[i] = int16(binary.LittleEndian.Uint16(data[2*i:]))
		}
		return values, nil
	case uint16Type:
		values := make([]uint16, n)
		for i := range values {
			values[i] = binary.LittleEndian.Uint16(data[2*i:])
		}
		return values, nil
	case int8Type:
		values := make([]int8, n)
		for i, b := range data {
			values[i] = int8(b)
		}
		return values, nil
	case uint8Type:
		values := make([]uint8, n)
		copy(values, data)
		return values, nil
	case boolType:
		values := make([]bool, n)
		for i, b := range data {
			values[i] = b != 0
		}
		return values, nil
	}
	return nil, errors.Errorf("unsupported dtype %s", dtype)
}

// DecodeAs is like Decode, but returns the values already converted to []T.
// It fails if T doesn't match dtype.GoType().
func DecodeAs[T Supported](dtype DType, data []byte) ([]T, error) {
	values, err := Decode(dtype, data)
	if err != nil {
		return nil, err
	}
	typed, ok := values.([]T)
	if !ok {
		var zero T
		return nil, errors.Errorf("values of dtype %s are decoded as %T, not []%T", dtype, values, zero)
	}
	return typed, nil
}

// DecodeScalar decodes a single value of the dtype into T.
func DecodeScalar[T Supported](dtype DType, data []byte) (T, error) {
	var zero T
	values, err := DecodeAs[T](dtype, data)
	if err != nil {
		return zero, err
	}
	if len(values) != 1 {
		return zero, errors.Errorf("expected one value of %s, got %d", dtype, len(values))
	}
	return values[0], nil
}
