package reference

import (
	"github.com/chewxy/math32"
	"github.com/gomlx/nnconform/dtypes"
	"github.com/gomlx/nnconform/model/optypes"
	"github.com/gomlx/nnconform/model/shapeinference"
	"github.com/gomlx/nnconform/quant"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// groupedConv2D executes a GroupedConv2D operation on fully known operands.
func groupedConv2D(inputs []shapeinference.Operand, output shapeinference.Operand) (buffer, error) {
	if _, err := shapeinference.GroupedConv2D(inputs, output); err != nil {
		return buffer{}, err
	}
	params, err := shapeinference.DecodeGroupedConv2D(inputs)
	if err != nil {
		return buffer{}, err
	}
	if err = params.Validate(); err != nil {
		return buffer{}, err
	}
	input := inputs[shapeinference.GroupedConv2DInput]
	filter := inputs[shapeinference.GroupedConv2DFilter]
	bias := inputs[shapeinference.GroupedConv2DBias]
	g, err := params.Geometry(input.Shape.Dimensions, filter.Shape.Dimensions)
	if err != nil {
		return buffer{}, err
	}

	var data []byte
	switch input.Shape.DType {
	case dtypes.TensorFloat32:
		data, err = groupedConv2DFloat32(g, params.Activation, input, filter, bias)
	case dtypes.TensorFloat16:
		data, err = groupedConv2DFloat16(g, params.Activation, input, filter, bias)
	case dtypes.TensorQuant8Asymm:
		data, err = groupedConv2DQuant8(g, params.Activation, input, filter, bias, output)
	default:
		err = errors.Errorf("unsupported input dtype %s", input.Shape.DType)
	}
	if err != nil {
		return buffer{}, err
	}
	return buffer{dimensions: g.OutputDimensions(), data: data}, nil
}

// inputIndex returns the flat index of the input element, for the layout of the geometry.
func inputIndex(g *shapeinference.Conv2DGeometry, b, y, x, c int) int {
	if g.NCHW {
		return ((b*g.InChannels+c)*g.InHeight+y)*g.InWidth + x
	}
	return ((b*g.InHeight+y)*g.InWidth+x)*g.InChannels + c
}

// outputIndex returns the flat index of the output element, for the layout of the geometry.
func outputIndex(g *shapeinference.Conv2DGeometry, b, y, x, c int) int {
	if g.NCHW {
		return ((b*g.OutChannels+c)*g.OutHeight+y)*g.OutWidth + x
	}
	return ((b*g.OutHeight+y)*g.OutWidth+x)*g.OutChannels + c
}

// filterIndex returns the flat index of the filter element, laid out as [outChannels, height, width, groupInChannels].
func filterIndex(g *shapeinference.Conv2DGeometry, oc, y, x, ic int) int {
	return ((oc*g.FilterHeight+y)*g.FilterWidth+x)*g.GroupInChannels + ic
}

// convolve visits every output element: accumulate is called for each (input, filter) pair that
// contributes to it, then emit is called with the output index and channel.
//
// Each output channel oc belongs to group oc/GroupOutChannels and only sees the input channels of its group.
func convolve(g shapeinference.Conv2DGeometry, accumulate func(inIdx, filterIdx int), emit func(outIdx, oc int)) {
	for b := range g.Batches {
		for oy := range g.OutHeight {
			for ox := range g.OutWidth {
				for oc := range g.OutChannels {
					group := oc / g.GroupOutChannels
					for fy := range g.FilterHeight {
						iy := oy*g.StrideH - g.PadTop + fy*g.DilationH
						if iy < 0 || iy >= g.InHeight {
							continue
						}
						for fx := range g.FilterWidth {
							ix := ox*g.StrideW - g.PadLeft + fx*g.DilationW
							if ix < 0 || ix >= g.InWidth {
								continue
							}
							for ic := range g.GroupInChannels {
								c := group*g.GroupInChannels + ic
								accumulate(inputIndex(&g, b, iy, ix, c), filterIndex(&g, oc, fy, fx, ic))
							}
						}
					}
					emit(outputIndex(&g, b, oy, ox, oc), oc)
				}
			}
		}
	}
}

func outputSize(g shapeinference.Conv2DGeometry) int {
	return g.Batches * g.OutHeight * g.OutWidth * g.OutChannels
}

// clampFloat32 applies the fused activation.
func clampFloat32(v float32, activation optypes.Activation) float32 {
	lowest, highest := activation.Range()
	return math32.Max(float32(lowest), math32.Min(float32(highest), v))
}

func convFloat32(g shapeinference.Conv2DGeometry, activation optypes.Activation, input, filter, bias []float32) []float32 {
	out := make([]float32, outputSize(g))
	var acc float32
	convolve(g,
		func(inIdx, filterIdx int) { acc += input[inIdx] * filter[filterIdx] },
		func(outIdx, oc int) {
			out[outIdx] = clampFloat32(acc+bias[oc], activation)
			acc = 0
		})
	return out
}

func groupedConv2DFloat32(g shapeinference.Conv2DGeometry, activation optypes.Activation, input, filter, bias shapeinference.Operand) ([]byte, error) {
	in, err := dtypes.DecodeAs[float32](dtypes.TensorFloat32, input.Value)
	if err != nil {
		return nil, err
	}
	w, err := dtypes.DecodeAs[float32](dtypes.TensorFloat32, filter.Value)
	if err != nil {
		return nil, err
	}
	b, err := dtypes.DecodeAs[float32](dtypes.TensorFloat32, bias.Value)
	if err != nil {
		return nil, err
	}
	return dtypes.Encode(dtypes.TensorFloat32, convFloat32(g, activation, in, w, b))
}

func float16ToFloat32(values []float16.Float16) []float32 {
	out := make([]float32, len(values))
	for i, v := range values {
		out[i] = v.Float32()
	}
	return out
}

// groupedConv2DFloat16 accumulates in float32 and rounds the result to float16.
func groupedConv2DFloat16(g shapeinference.Conv2DGeometry, activation optypes.Activation, input, filter, bias shapeinference.Operand) ([]byte, error) {
	decode := func(o shapeinference.Operand) ([]float32, error) {
		values, err := dtypes.DecodeAs[float16.Float16](dtypes.TensorFloat16, o.Value)
		if err != nil {
			return nil, err
		}
		return float16ToFloat32(values), nil
	}
	in, err := decode(input)
	if err != nil {
		return nil, err
	}
	w, err := decode(filter)
	if err != nil {
		return nil, err
	}
	b, err := decode(bias)
	if err != nil {
		return nil, err
	}
	out32 := convFloat32(g, activation, in, w, b)
	out := make([]float16.Float16, len(out32))
	for i, v := range out32 {
		out[i] = float16.Fromfloat32(v)
	}
	return dtypes.Encode(dtypes.TensorFloat16, out)
}

// groupedConv2DQuant8 accumulates (input - inputZeroPoint) * (filter - filterZeroPoint) in int32, adds the
// int32 bias, rescales to real values, applies the activation, and quantizes to the output parameters.
//
// The filter is either asymmetric uint8 or symmetric int8 with one scale per output channel.
func groupedConv2DQuant8(g shapeinference.Conv2DGeometry, activation optypes.Activation,
	input, filter, bias, output shapeinference.Operand) ([]byte, error) {
	in, err := dtypes.DecodeAs[uint8](dtypes.TensorQuant8Asymm, input.Value)
	if err != nil {
		return nil, err
	}
	biasValues, err := dtypes.DecodeAs[int32](dtypes.TensorInt32, bias.Value)
	if err != nil {
		return nil, err
	}

	// Filter values with the zero point already subtracted, and the accumulator scale per output channel.
	w := make([]int32, g.OutChannels*g.FilterHeight*g.FilterWidth*g.GroupInChannels)
	accScales := make([]float64, g.OutChannels)
	switch filter.Shape.DType {
	case dtypes.TensorQuant8Asymm:
		stored, err := dtypes.DecodeAs[uint8](dtypes.TensorQuant8Asymm, filter.Value)
		if err != nil {
			return nil, err
		}
		for i, q := range stored {
			w[i] = int32(q) - filter.ZeroPoint
		}
		for oc := range accScales {
			accScales[oc] = float64(input.Scale) * float64(filter.Scale)
		}
	case dtypes.TensorQuant8SymmPerChannel:
		stored, err := dtypes.DecodeAs[int8](dtypes.TensorQuant8SymmPerChannel, filter.Value)
		if err != nil {
			return nil, err
		}
		for i, q := range stored {
			w[i] = int32(q)
		}
		for oc := range accScales {
			accScales[oc] = float64(input.Scale) * float64(filter.Channel.Scales[oc])
		}
	default:
		return nil, errors.Errorf("unsupported filter dtype %s", filter.Shape.DType)
	}

	outParams := quant.Params{Scale: output.Scale, ZeroPoint: output.ZeroPoint}
	lowest, highest := activation.Range()
	out := make([]uint8, outputSize(g))
	var acc int32
	convolve(g,
		func(inIdx, filterIdx int) { acc += (int32(in[inIdx]) - input.ZeroPoint) * w[filterIdx] },
		func(outIdx, oc int) {
			v := float64(acc+biasValues[oc]) * accScales[oc]
			v = max(lowest, min(highest, v))
			out[outIdx] = uint8(outParams.Quantize(dtypes.TensorQuant8Asymm, v))
			acc = 0
		})
	return dtypes.Encode(dtypes.TensorQuant8Asymm, out)
}
