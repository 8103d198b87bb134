package testgen

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/nnconform/dtypes"
	"github.com/gomlx/nnconform/model"
	"github.com/gomlx/nnconform/model/optypes"
	"github.com/gomlx/nnconform/quant"
	"github.com/pkg/errors"
	"github.com/x448/float16"
	"k8s.io/klog/v2"
)

// Layout names, as used in case names.
const (
	LayoutNHWC = "nhwc"
	LayoutNCHW = "nchw"
)

// Activations in the order their variations are generated.
var Activations = []optypes.Activation{
	optypes.ActivationNone, optypes.ActivationRelu, optypes.ActivationRelu1, optypes.ActivationRelu6,
}

// variation is one point in the space of variations of a Description.
type variation struct {
	dynamic        bool
	nchw           bool
	activation     optypes.Activation
	hasActivation  bool
	dataType       DataType
	weightsAsInput bool
}

// name returns the case name: [<model>_][dynamic_output_shape_]<layout>[_<act>][_<dtype>][_weight_as_input].
func (v variation) name(modelName string, hasLayout bool) string {
	var parts []string
	if modelName != "" {
		parts = append(parts, modelName)
	}
	if v.dynamic {
		parts = append(parts, "dynamic_output_shape")
	}
	if hasLayout {
		parts = append(parts, v.layout())
	}
	if v.hasActivation {
		parts = append(parts, v.activation.String())
	}
	if v.dataType.Name != "" {
		parts = append(parts, v.dataType.Name)
	}
	if v.weightsAsInput {
		parts = append(parts, "weight_as_input")
	}
	return strings.Join(parts, "_")
}

func (v variation) layout() string {
	if v.nchw {
		return LayoutNCHW
	}
	return LayoutNHWC
}

// Expand enumerates all variations of the description, in the order
// dynamic output shape, layout, activation, data type and weights-as-input (innermost).
func (d *Description) Expand() ([]*Case, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	layouts := []bool{false}
	if d.Layout != nil {
		layouts = []bool{false, true}
	}
	activations := []optypes.Activation{optypes.ActivationNone}
	if d.Activation != nil {
		activations = Activations
	}
	weights := []bool{false}
	if len(d.WeightsAsInput) > 0 {
		weights = []bool{false, true}
	}

	var cases []*Case
	for _, dynamic := range []bool{false, true} {
		for _, nchw := range layouts {
			for _, activation := range activations {
				for _, dataType := range d.DataTypes {
					for _, weightsAsInput := range weights {
						v := variation{
							dynamic:        dynamic,
							nchw:           nchw,
							activation:     activation,
							hasActivation:  d.Activation != nil,
							dataType:       dataType,
							weightsAsInput: weightsAsInput,
						}
						c, err := d.newCase(v)
						if err != nil {
							return nil, errors.WithMessagef(err, "expanding case %q", v.name(d.Name, d.Layout != nil))
						}
						cases = append(cases, c)
					}
				}
			}
		}
	}
	klog.V(1).Infof("testgen: description %q expanded to %d cases", d.Name, len(cases))
	return cases, nil
}

// newCase resolves the operand types and values of one variation.
func (d *Description) newCase(v variation) (*Case, error) {
	c := &Case{
		Name:           v.name(d.Name, d.Layout != nil),
		ModelName:      d.Name,
		Dynamic:        v.dynamic,
		Activation:     v.activation,
		HasActivation:  v.hasActivation,
		DataType:       v.dataType.Name,
		Relaxed:        v.dataType.Relaxed,
		WeightsAsInput: v.weightsAsInput,
		OpType:         d.OpType,
		ignored:        make(map[int]bool),
	}
	if d.Layout != nil {
		c.Layout = v.layout()
	}

	var example Example
	for _, spec := range d.Operands {
		dims := slices.Clone(spec.Dimensions)
		var values []float64
		switch spec.Kind {
		case Input, Output:
			values = slices.Clone(d.Example[spec.Name])
		default:
			values = slices.Clone(spec.Values)
		}

		// Scalars set by the variations.
		if d.Layout != nil && spec.Name == d.Layout.Flag {
			values = []float64{0}
			if v.nchw {
				values[0] = 1
			}
		}
		if d.Activation != nil {
			if spec.Name == d.Activation.Operand {
				values = []float64{float64(v.activation)}
			}
			if spec.Kind == Output && slices.Contains(d.Activation.Outputs, spec.Name) {
				lowest, highest := v.activation.Range()
				for i, x := range values {
					values[i] = max(lowest, min(highest, x))
				}
			}
		}
		if v.nchw && slices.Contains(d.Layout.Transposed, spec.Name) {
			dims, values = transposeToNCHW(dims, values)
		}

		operandType, err := v.dataType.operandType(spec, dims)
		if err != nil {
			return nil, err
		}
		data, err := v.dataType.encode(spec, operandType, values)
		if err != nil {
			return nil, errors.WithMessagef(err, "encoding values of %q", spec.Name)
		}

		o := CaseOperand{Name: spec.Name, Type: operandType}
		switch {
		case spec.Kind == Input || (spec.Kind == Parameter && v.weightsAsInput && slices.Contains(d.WeightsAsInput, spec.Name)):
			o.Lifetime = LifetimeInput
			example.Inputs = append(example.Inputs, data)
		case spec.Kind == Output:
			o.Lifetime = LifetimeOutput
			example.Outputs = append(example.Outputs, ExpectedOutput{Type: operandType.Clone(), Data: data})
			if v.dynamic {
				o.Type.Dimensions = make([]int, len(dims))
			}
		default:
			o.Lifetime = LifetimeConstant
			o.Value = data
		}
		c.Operands = append(c.Operands, o)
	}
	c.Examples = []Example{example}
	return c, nil
}

// transposeToNCHW transposes 4D values from [N, H, W, C] to [N, C, H, W].
func transposeToNCHW(dims []int, values []float64) ([]int, []float64) {
	n, h, w, ch := dims[0], dims[1], dims[2], dims[3]
	out := make([]float64, len(values))
	for b := range n {
		for y := range h {
			for x := range w {
				for c := range ch {
					out[((b*ch+c)*h+y)*w+x] = values[((b*h+y)*w+x)*ch+c]
				}
			}
		}
	}
	return []int{n, ch, h, w}, out
}

// operandType returns the type of the operand in this data type.
func (dt DataType) operandType(spec *OperandSpec, dims []int) (model.OperandType, error) {
	switch spec.Kind {
	case Int32Scalar:
		return model.MakeOperandType(dtypes.Int32), nil
	case BoolScalar:
		return model.MakeOperandType(dtypes.Bool), nil
	}
	if dt.Quantization == nil {
		if dt.Float16 {
			return model.MakeOperandType(dtypes.TensorFloat16, dims...), nil
		}
		return model.MakeOperandType(dtypes.TensorFloat32, dims...), nil
	}
	q, found := dt.Quantization[spec.Name]
	if !found {
		return model.OperandType{}, errors.Errorf("data type %q has no quantization for %q", dt.Name, spec.Name)
	}
	var t model.OperandType
	switch {
	case q.DType == dtypes.TensorQuant8SymmPerChannel:
		t = model.MakePerChannelOperandType(q.DType, q.ChannelScales, 0, dims...)
	case q.DType == dtypes.TensorInt32 && q.ChannelScales != nil:
		t = model.MakeOperandType(q.DType, dims...)
	default:
		t = model.MakeQuantizedOperandType(q.DType, q.Scale, q.ZeroPoint, dims...)
	}
	if err := t.Validate(); err != nil {
		return model.OperandType{}, errors.WithMessagef(err, "data type %q, operand %q", dt.Name, spec.Name)
	}
	return t, nil
}

// encode converts the real values of the operand to its encoded representation in this data type.
func (dt DataType) encode(spec *OperandSpec, t model.OperandType, values []float64) ([]byte, error) {
	switch t.DType {
	case dtypes.Int32:
		return dtypes.Encode(t.DType, []int32{int32(values[0])})
	case dtypes.Bool:
		return dtypes.Encode(t.DType, []bool{values[0] != 0})
	case dtypes.TensorFloat32:
		flat := make([]float32, len(values))
		for i, v := range values {
			flat[i] = float32(v)
		}
		return dtypes.Encode(t.DType, flat)
	case dtypes.TensorFloat16:
		flat := make([]float16.Float16, len(values))
		for i, v := range values {
			flat[i] = float16.Fromfloat32(float32(v))
		}
		return dtypes.Encode(t.DType, flat)
	case dtypes.TensorQuant8Asymm:
		return dtypes.Encode(t.DType, quant.QuantizeUint8(values, quant.Params{Scale: t.Scale, ZeroPoint: t.ZeroPoint}))
	case dtypes.TensorQuant8SymmPerChannel:
		stored, err := t.ChannelQuant.Quantize(values, t.Dimensions)
		if err != nil {
			return nil, err
		}
		return dtypes.Encode(t.DType, stored)
	case dtypes.TensorInt32:
		var stored []int32
		var err error
		if scales := dt.Quantization[spec.Name].ChannelScales; scales != nil {
			stored, err = quant.QuantizeBiasPerChannel(values, scales)
		} else {
			stored, err = quant.QuantizeBias(values, t.Scale)
		}
		if err != nil {
			return nil, err
		}
		return dtypes.Encode(t.DType, stored)
	}
	return nil, errors.Errorf("unsupported operand dtype %s", t.DType)
}

// String implements fmt.Stringer.
func (c *Case) String() string {
	return fmt.Sprintf("Case(%s, %d operands, %d inputs)", c.Name, len(c.Operands), len(c.Inputs()))
}
