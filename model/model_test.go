package model

import (
	"strings"
	"testing"

	"github.com/gomlx/nnconform/dtypes"
	"github.com/gomlx/nnconform/model/optypes"
	"github.com/gomlx/nnconform/quant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protojson"
)

type errTester[T any] struct {
	value T
	err   error
}

// capture is a shortcut to test that there is no error and return the value.
func capture[T any](value T, err error) errTester[T] {
	return errTester[T]{value, err}
}

func (e errTester[T]) Test(t *testing.T) T {
	require.NoError(t, e.err)
	return e.value
}

// addScalar adds a constant Int32 scalar operand.
func addScalar(t *testing.T, m *Model, v int32) OperandIndex {
	i32 := MakeOperandType(dtypes.Int32)
	idx := capture(m.AddOperand(&i32)).Test(t)
	require.NoError(t, SetOperandValueFrom(m, idx, []int32{v}))
	return idx
}

// buildGroupedConv builds a float32 NHWC grouped convolution with explicit padding 0, stride 1 and 2 groups,
// with the given output dimensions. It returns the model before the inputs and outputs are identified.
func buildGroupedConv(t *testing.T, outputDims ...int) (m *Model, input, output OperandIndex) {
	m = New()
	inputType := MakeOperandType(dtypes.TensorFloat32, 1, 3, 3, 2)
	filterType := MakeOperandType(dtypes.TensorFloat32, 2, 2, 2, 1)
	biasType := MakeOperandType(dtypes.TensorFloat32, 2)
	boolType := MakeOperandType(dtypes.Bool)
	outputType := MakeOperandType(dtypes.TensorFloat32, outputDims...)

	input = capture(m.AddOperand(&inputType)).Test(t)
	filter := capture(m.AddOperand(&filterType)).Test(t)
	require.NoError(t, SetOperandValueFrom(m, filter, []float32{1, 2, 2, 1, 4, 3, 2, 1}))
	bias := capture(m.AddOperand(&biasType)).Test(t)
	require.NoError(t, SetOperandValueFrom(m, bias, []float32{10, -33.5}))
	inputs := []OperandIndex{input, filter, bias}
	for _, v := range []int32{0, 0, 0, 0, 1, 1, 2, 0} {
		inputs = append(inputs, addScalar(t, m, v))
	}
	layout := capture(m.AddOperand(&boolType)).Test(t)
	require.NoError(t, SetOperandValueFrom(m, layout, []bool{false}))
	inputs = append(inputs, layout)
	output = capture(m.AddOperand(&outputType)).Test(t)
	require.NoError(t, m.AddOperation(optypes.GroupedConv2D, inputs, []OperandIndex{output}))
	return
}

func TestModel_GroupedConv2D(t *testing.T) {
	m, input, output := buildGroupedConv(t, 1, 2, 2, 2)
	require.False(t, m.IsValid(), "inputs and outputs not yet identified")
	require.NoError(t, m.IdentifyInputsAndOutputs([]OperandIndex{input}, []OperandIndex{output}))
	require.NoError(t, m.RelaxComputationFloat32toFloat16(true))
	require.NoError(t, m.Validate())

	assert.Equal(t, 13, m.NumOperands())
	require.Len(t, m.Operations(), 1)
	op := m.Operations()[0]
	assert.Equal(t, optypes.GroupedConv2D, op.OpType)
	assert.Len(t, op.Inputs, 12)
	assert.Equal(t, []OperandIndex{0}, m.Inputs())
	assert.Equal(t, []OperandIndex{12}, m.Outputs())
	assert.True(t, m.IsRelaxed())
	assert.Equal(t, ModelInput, m.Operand(0).Lifetime)
	assert.Equal(t, ConstantCopy, m.Operand(1).Lifetime)
	assert.Equal(t, ModelOutput, m.Operand(12).Lifetime)
	assert.Equal(t, "ConstantCopy", m.Operand(1).Lifetime.String())
	assert.Equal(t, "Lifetime(9)", Lifetime(9).String())
	assert.Equal(t, ModelInput, capture(LifetimeString("modelinput")).Test(t))
	assert.Nil(t, m.Operand(13))

	text := m.String()
	assert.Contains(t, text, "model(%0: tensor<1x3x3x2xf32>) -> (%12: tensor<1x2x2x2xf32>) relaxed {")
	assert.Contains(t, text, "%1 = constant [1 2 2 1 4 3 2 1] : tensor<2x2x2x1xf32>")
	assert.Contains(t, text, "%9 = constant 2 : si32")
	assert.Contains(t, text, "%11 = constant false : i1")
	assert.Contains(t, text, "%12 = GROUPED_CONV_2D(%0, %1, %2, %3, %4, %5, %6, %7, %8, %9, %10, %11)")

	require.NoError(t, m.Finish())
	assert.True(t, m.IsFinished())
	f32 := MakeOperandType(dtypes.TensorFloat32, 1)
	_, err := m.AddOperand(&f32)
	require.ErrorContains(t, err, "already finished")
	require.Error(t, m.Finish())
}

func TestModel_DynamicOutputShape(t *testing.T) {
	m, input, output := buildGroupedConv(t, 0, 0, 0, 0)
	require.NoError(t, m.IdentifyInputsAndOutputs([]OperandIndex{input}, []OperandIndex{output}))
	require.NoError(t, m.Validate())

	// Unknown rank is also accepted.
	m, input, output = buildGroupedConv(t)
	require.NoError(t, m.IdentifyInputsAndOutputs([]OperandIndex{input}, []OperandIndex{output}))
	require.NoError(t, m.Validate())
}

func TestModel_InvalidOutputShape(t *testing.T) {
	m, input, output := buildGroupedConv(t, 1, 3, 3, 2)
	require.NoError(t, m.IdentifyInputsAndOutputs([]OperandIndex{input}, []OperandIndex{output}))
	err := m.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "doesn't match inferred shape")
	require.False(t, m.IsValid())
	require.Error(t, m.Finish())
}

func TestModel_IdentifyInputsAndOutputs(t *testing.T) {
	m, input, output := buildGroupedConv(t, 1, 2, 2, 2)
	require.Error(t, m.IdentifyInputsAndOutputs([]OperandIndex{1}, []OperandIndex{output}), "constant as input")
	require.Error(t, m.IdentifyInputsAndOutputs([]OperandIndex{input}, []OperandIndex{input}), "input as output")
	require.Error(t, m.IdentifyInputsAndOutputs([]OperandIndex{input, input}, []OperandIndex{output}), "repeated input")
	require.Error(t, m.IdentifyInputsAndOutputs([]OperandIndex{output}, nil), "produced operand as input")
	require.Error(t, m.IdentifyInputsAndOutputs([]OperandIndex{input}, []OperandIndex{99}), "undeclared operand")
	require.NoError(t, m.IdentifyInputsAndOutputs([]OperandIndex{input}, []OperandIndex{output}))
	require.ErrorContains(t, m.IdentifyInputsAndOutputs([]OperandIndex{input}, []OperandIndex{output}), "already identified")
}

func TestModel_SetOperandValue(t *testing.T) {
	m := New()
	f32 := MakeOperandType(dtypes.TensorFloat32, 2)
	idx := capture(m.AddOperand(&f32)).Test(t)
	require.ErrorContains(t, m.SetOperandValue(idx, []byte{1, 2, 3}), "requires 8 bytes")
	require.Error(t, SetOperandValueFrom(m, idx, []int32{1, 2}), "wrong Go type")
	require.NoError(t, SetOperandValueFrom(m, idx, []float32{1, 2}))
	assert.Len(t, m.Operand(idx).Value(), 8)

	dynamic := MakeOperandType(dtypes.TensorFloat32, 0)
	idx = capture(m.AddOperand(&dynamic)).Test(t)
	require.ErrorContains(t, SetOperandValueFrom(m, idx, []float32{1}), "not fully specified")
	require.Error(t, m.SetOperandValue(99, nil))
}

func TestModel_AddOperand(t *testing.T) {
	m := New()
	for _, invalid := range []OperandType{
		// Missing scale.
		{Shape: MakeOperandType(dtypes.TensorQuant8Asymm, 2).Shape},
		// Zero point out of range.
		MakeQuantizedOperandType(dtypes.TensorQuant8Asymm, 0.5, 256, 2),
		// Scale on a float tensor.
		MakeQuantizedOperandType(dtypes.TensorFloat32, 0.5, 0, 2),
		// Missing channel quantization.
		{Shape: MakeOperandType(dtypes.TensorQuant8SymmPerChannel, 2, 1, 1, 1).Shape},
		// Channel quantization on a float tensor.
		{Shape: MakeOperandType(dtypes.TensorFloat32, 2).Shape, ChannelQuant: &quant.ChannelParams{Scales: []float32{1}}},
		// Wrong number of scales.
		{Shape: MakeOperandType(dtypes.TensorQuant8SymmPerChannel, 2, 1, 1, 1).Shape,
			ChannelQuant: &quant.ChannelParams{Scales: []float32{1, 2, 3}}},
	} {
		_, err := m.AddOperand(&invalid)
		require.Errorf(t, err, "operand type %s should be invalid", invalid.ToText())
	}
	require.Equal(t, 0, m.NumOperands())
	_, err := m.AddOperand(nil)
	require.Error(t, err)

	perChannel := OperandType{
		Shape:        MakeOperandType(dtypes.TensorQuant8SymmPerChannel, 2, 1, 1, 1).Shape,
		ChannelQuant: &quant.ChannelParams{Scales: []float32{0.25, 0.5}},
	}
	idx := capture(m.AddOperand(&perChannel)).Test(t)
	// Changes to the original type don't affect the model.
	perChannel.ChannelQuant.Scales[0] = 1
	assert.Equal(t, float32(0.25), m.Operand(idx).Type.ChannelQuant.Scales[0])
	assert.Equal(t, "tensor<2x1x1x1xqsymm8pc>{scales=[0.25 0.5], channel_dim=0}", m.Operand(idx).Type.ToText())
}

func TestModel_AddOperation(t *testing.T) {
	m := New()
	f32 := MakeOperandType(dtypes.TensorFloat32, 2)
	x := capture(m.AddOperand(&f32)).Test(t)
	y := capture(m.AddOperand(&f32)).Test(t)
	z := capture(m.AddOperand(&f32)).Test(t)

	require.ErrorContains(t, m.AddOperation(optypes.Relu, []OperandIndex{x, y}, []OperandIndex{z}), "doesn't accept 2 inputs")
	require.Error(t, m.AddOperation(optypes.Relu, []OperandIndex{x}, []OperandIndex{y, z}))
	require.Error(t, m.AddOperation(optypes.Invalid, []OperandIndex{x}, []OperandIndex{y}))
	require.Error(t, m.AddOperation(optypes.Relu, []OperandIndex{99}, []OperandIndex{y}))
	require.Error(t, m.AddOperation(optypes.Relu, []OperandIndex{x}, []OperandIndex{x}))

	// Operations added out of order: z = relu(y) is added before y = relu(x).
	require.NoError(t, m.AddOperation(optypes.Relu, []OperandIndex{y}, []OperandIndex{z}))
	require.NoError(t, m.AddOperation(optypes.Relu, []OperandIndex{x}, []OperandIndex{y}))
	require.ErrorContains(t, m.AddOperation(optypes.Relu, []OperandIndex{x}, []OperandIndex{y}), "already produced")
	require.NoError(t, m.IdentifyInputsAndOutputs([]OperandIndex{x}, []OperandIndex{z}))
	err := m.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "produced by later operation")
}

func TestModel_Validate(t *testing.T) {
	m := New()
	require.ErrorContains(t, m.Validate(), "no operations")

	// Temporary never produced.
	m = New()
	f32 := MakeOperandType(dtypes.TensorFloat32, 2)
	x := capture(m.AddOperand(&f32)).Test(t)
	capture(m.AddOperand(&f32)).Test(t) // Never produced.
	y := capture(m.AddOperand(&f32)).Test(t)
	require.NoError(t, m.AddOperation(optypes.Relu, []OperandIndex{x}, []OperandIndex{y}))
	require.NoError(t, m.IdentifyInputsAndOutputs([]OperandIndex{x}, []OperandIndex{y}))
	err := m.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "operand #1")

	// No outputs.
	m = New()
	x = capture(m.AddOperand(&f32)).Test(t)
	y = capture(m.AddOperand(&f32)).Test(t)
	require.NoError(t, m.AddOperation(optypes.Relu, []OperandIndex{x}, []OperandIndex{y}))
	require.NoError(t, m.IdentifyInputsAndOutputs([]OperandIndex{x}, nil))
	require.ErrorContains(t, m.Validate(), "no outputs")

	// Constant never consumed.
	m = New()
	x = capture(m.AddOperand(&f32)).Test(t)
	c := capture(m.AddOperand(&f32)).Test(t)
	require.NoError(t, SetOperandValueFrom(m, c, []float32{1, 2}))
	y = capture(m.AddOperand(&f32)).Test(t)
	require.NoError(t, m.AddOperation(optypes.Relu, []OperandIndex{x}, []OperandIndex{y}))
	require.NoError(t, m.IdentifyInputsAndOutputs([]OperandIndex{x}, []OperandIndex{y}))
	require.ErrorContains(t, m.Validate(), "constant operand #1 is never consumed")
	require.False(t, m.IsValid())

	// Model input never consumed.
	m = New()
	x = capture(m.AddOperand(&f32)).Test(t)
	unused := capture(m.AddOperand(&f32)).Test(t)
	y = capture(m.AddOperand(&f32)).Test(t)
	require.NoError(t, m.AddOperation(optypes.Relu, []OperandIndex{x}, []OperandIndex{y}))
	require.NoError(t, m.IdentifyInputsAndOutputs([]OperandIndex{x, unused}, []OperandIndex{y}))
	require.ErrorContains(t, m.Validate(), "model input operand #1 is never consumed")
	require.False(t, m.IsValid())
}

func TestModel_ToProto(t *testing.T) {
	m, input, output := buildGroupedConv(t, 1, 2, 2, 2)
	require.NoError(t, m.IdentifyInputsAndOutputs([]OperandIndex{input}, []OperandIndex{output}))
	s := capture(m.ToProto()).Test(t)
	operands := s.Fields["operands"].GetListValue().GetValues()
	require.Len(t, operands, 13)
	filter := operands[1].GetStructValue().GetFields()
	assert.Equal(t, "TENSOR_FLOAT32", filter["type"].GetStringValue())
	assert.Equal(t, "ConstantCopy", filter["lifetime"].GetStringValue())
	values := filter["value"].GetListValue().GetValues()
	require.Len(t, values, 8)
	assert.Equal(t, 4.0, values[4].GetNumberValue())
	assert.Equal(t, 12.0, s.Fields["outputIndexes"].GetListValue().GetValues()[0].GetNumberValue())

	js := capture(protojson.Marshal(s)).Test(t)
	assert.True(t, strings.Contains(string(js), `"GROUPED_CONV_2D"`))
}
