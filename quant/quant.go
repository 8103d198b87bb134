// Package quant implements the quantization arithmetic used by quantized operands:
// asymmetric (scale and zero point shared by the whole tensor), symmetric per-channel (one scale
// per channel along an axis, zero point fixed at 0), and the int32 bias encoding.
//
// Real values are related to stored values by real = scale * (stored - zeroPoint).
// Rounding is to the nearest integer, with ties away from zero.
package quant

import (
	"math"

	"github.com/gomlx/nnconform/dtypes"
	"github.com/pkg/errors"
)

// Params holds the quantization of an asymmetric (or per-tensor symmetric) operand.
type Params struct {
	Scale     float32
	ZeroPoint int32
}

// Validate checks that the scale is positive and the zero point fits the storage of dtype.
func (p Params) Validate(dtype dtypes.DType) error {
	if !(p.Scale > 0) {
		return errors.Errorf("quantization scale must be > 0 for %s, got %g", dtype, p.Scale)
	}
	lowest, highest := dtype.ZeroPointRange()
	if p.ZeroPoint < lowest || p.ZeroPoint > highest {
		return errors.Errorf("quantization zero point %d out of range [%d, %d] for %s", p.ZeroPoint, lowest, highest, dtype)
	}
	return nil
}

// Quantize returns the stored value closest to real, saturated to the range of dtype.
func (p Params) Quantize(dtype dtypes.DType, real float64) int32 {
	return Saturate(dtype, Round(real/float64(p.Scale))+int64(p.ZeroPoint))
}

// Dequantize returns the real value represented by stored.
func (p Params) Dequantize(stored int32) float64 {
	return float64(p.Scale) * float64(stored-p.ZeroPoint)
}

// Round rounds to the nearest integer, ties away from zero.
func Round(x float64) int64 {
	return int64(math.Round(x))
}

// Saturate clamps v to the range of values storable by the quantized dtype.
func Saturate(dtype dtypes.DType, v int64) int32 {
	lowest, highest := dtype.ValueRange()
	if v < int64(lowest) {
		return lowest
	}
	if v > int64(highest) {
		return highest
	}
	return int32(v)
}

// QuantizeUint8 quantizes the real values to TensorQuant8Asymm storage.
func QuantizeUint8(values []float64, p Params) []uint8 {
	out := make([]uint8, len(values))
	for i, v := range values {
		out[i] = uint8(p.Quantize(dtypes.TensorQuant8Asymm, v))
	}
	return out
}

// DequantizeUint8 converts TensorQuant8Asymm storage back to real values.
func DequantizeUint8(stored []uint8, p Params) []float64 {
	out := make([]float64, len(stored))
	for i, q := range stored {
		out[i] = p.Dequantize(int32(q))
	}
	return out
}

// QuantizeBias quantizes bias values to TensorInt32 storage with the given scale (zero point 0).
// The scale of a convolution bias must be the product of the input and filter scales.
func QuantizeBias(values []float64, scale float32) ([]int32, error) {
	if !(scale > 0) {
		return nil, errors.Errorf("bias scale must be > 0, got %g", scale)
	}
	out := make([]int32, len(values))
	for i, v := range values {
		out[i] = Saturate(dtypes.TensorInt32, Round(v/float64(scale)))
	}
	return out, nil
}
