package reference

import (
	"slices"

	"github.com/gomlx/nnconform/dtypes"
	"github.com/gomlx/nnconform/model/optypes"
	"github.com/gomlx/nnconform/model/shapeinference"
	"github.com/gomlx/nnconform/quant"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// activationOf maps the standalone clamp operations to their fused activation counterpart.
var activationOf = map[optypes.OpType]optypes.Activation{
	optypes.Relu:  optypes.ActivationRelu,
	optypes.Relu1: optypes.ActivationRelu1,
	optypes.Relu6: optypes.ActivationRelu6,
}

// clampOp executes Relu, Relu1 and Relu6 element-wise. Quantized values are clamped in the real domain
// and requantized to the output parameters.
func clampOp(opType optypes.OpType, input, output shapeinference.Operand) (buffer, error) {
	activation := activationOf[opType]
	dtype := input.Shape.DType
	if output.Shape.DType != dtype {
		return buffer{}, errors.Errorf("%s output dtype %s must match the input dtype %s", opType, output.Shape.DType, dtype)
	}
	if !output.Shape.Compatible(input.Shape) {
		return buffer{}, errors.Errorf("%s output shape %s must match the input shape %s", opType, output.Shape, input.Shape)
	}
	var data []byte
	var err error
	switch dtype {
	case dtypes.TensorFloat32:
		var values []float32
		values, err = dtypes.DecodeAs[float32](dtype, input.Value)
		if err == nil {
			for i, v := range values {
				values[i] = clampFloat32(v, activation)
			}
			data, err = dtypes.Encode(dtype, values)
		}
	case dtypes.TensorFloat16:
		var values []float16.Float16
		values, err = dtypes.DecodeAs[float16.Float16](dtype, input.Value)
		if err == nil {
			for i, v := range values {
				values[i] = float16.Fromfloat32(clampFloat32(v.Float32(), activation))
			}
			data, err = dtypes.Encode(dtype, values)
		}
	case dtypes.TensorQuant8Asymm:
		var stored []uint8
		stored, err = dtypes.DecodeAs[uint8](dtype, input.Value)
		if err == nil {
			inParams := quant.Params{Scale: input.Scale, ZeroPoint: input.ZeroPoint}
			outParams := quant.Params{Scale: output.Scale, ZeroPoint: output.ZeroPoint}
			lowest, highest := activation.Range()
			for i, q := range stored {
				v := max(lowest, min(highest, inParams.Dequantize(int32(q))))
				stored[i] = uint8(outParams.Quantize(dtype, v))
			}
			data, err = dtypes.Encode(dtype, stored)
		}
	default:
		err = errors.Errorf("%s: unsupported dtype %s", opType, dtype)
	}
	if err != nil {
		return buffer{}, err
	}
	return buffer{dimensions: slices.Clone(input.Shape.Dimensions), data: data}, nil
}
