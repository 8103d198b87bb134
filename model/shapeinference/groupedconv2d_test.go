package shapeinference

import (
	"testing"

	"github.com/gomlx/nnconform/dtypes"
	"github.com/gomlx/nnconform/model/optypes"
	"github.com/gomlx/nnconform/model/shapes"
	"github.com/gomlx/nnconform/quant"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tensor(dtype dtypes.DType, dims ...int) Operand {
	return Operand{Shape: shapes.Make(dtype, dims...)}
}

func i32(v int32) Operand {
	return Operand{Shape: shapes.Make(dtypes.Int32), Value: must.M1(dtypes.Encode(dtypes.Int32, []int32{v}))}
}

func boolean(v bool) Operand {
	return Operand{Shape: shapes.Make(dtypes.Bool), Value: must.M1(dtypes.Encode(dtypes.Bool, []bool{v}))}
}

// explicitInputs returns the 12 inputs of a float32 GroupedConv2D with explicit padding.
func explicitInputs(input, filter Operand, biasSize int, pad, stride, groups, act int32, nchw bool) []Operand {
	return []Operand{
		input, filter, tensor(input.Shape.DType, biasSize),
		i32(pad), i32(pad), i32(pad), i32(pad), i32(stride), i32(stride), i32(groups), i32(act), boolean(nchw),
	}
}

func TestGroupedConv2D_Explicit(t *testing.T) {
	inputs := explicitInputs(tensor(dtypes.TensorFloat32, 1, 3, 3, 2), tensor(dtypes.TensorFloat32, 2, 2, 2, 1), 2, 0, 1, 2, 0, false)
	shape, err := GroupedConv2D(inputs, tensor(dtypes.TensorFloat32, 1, 2, 2, 2))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 2, 2}, shape.Dimensions)

	// Dynamic output shape: the inferred shape is returned.
	shape, err = GroupedConv2D(inputs, tensor(dtypes.TensorFloat32, 0, 0, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 2, 2}, shape.Dimensions)

	// Mismatching declared output.
	_, err = GroupedConv2D(inputs, tensor(dtypes.TensorFloat32, 1, 3, 3, 2))
	require.Error(t, err)

	// NCHW: input is [1, 2, 3, 3].
	inputs = explicitInputs(tensor(dtypes.TensorFloat32, 1, 2, 3, 3), tensor(dtypes.TensorFloat32, 2, 2, 2, 1), 2, 0, 1, 2, 0, true)
	shape, err = GroupedConv2D(inputs, tensor(dtypes.TensorFloat32, 1, 2, 2, 2))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 2, 2}, shape.Dimensions)

	// Through Check.
	outputShapes, err := Check(optypes.GroupedConv2D, inputs, []Operand{tensor(dtypes.TensorFloat32)})
	require.NoError(t, err)
	require.Len(t, outputShapes, 1)
	assert.Equal(t, []int{1, 2, 2, 2}, outputShapes[0].Dimensions)
}

func TestGroupedConv2D_Implicit(t *testing.T) {
	// "large": input [1, 3, 2, 2], filter [2, 2, 3, 1], SAME padding, 2 groups.
	inputs := []Operand{
		tensor(dtypes.TensorFloat32, 1, 3, 2, 2), tensor(dtypes.TensorFloat32, 2, 2, 3, 1), tensor(dtypes.TensorFloat32, 2),
		i32(int32(optypes.PaddingSame)), i32(1), i32(1), i32(2), i32(0), boolean(false),
	}
	shape, err := GroupedConv2D(inputs, tensor(dtypes.TensorFloat32, 1, 3, 2, 2))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 2, 2}, shape.Dimensions)

	params, err := DecodeGroupedConv2D(inputs)
	require.NoError(t, err)
	assert.Equal(t, optypes.PaddingSame, params.PaddingScheme)
	assert.Equal(t, 1, params.DilationW)
	g, err := params.Geometry(inputs[0].Shape.Dimensions, inputs[1].Shape.Dimensions)
	require.NoError(t, err)
	assert.Equal(t, [4]int{0, 1, 1, 1}, [4]int{g.PadTop, g.PadBottom, g.PadLeft, g.PadRight})
	assert.Equal(t, 1, g.GroupInChannels)
	assert.Equal(t, 1, g.GroupOutChannels)

	// Invalid padding scheme.
	inputs[3] = i32(7)
	_, err = GroupedConv2D(inputs, tensor(dtypes.TensorFloat32, 1, 3, 2, 2))
	require.ErrorContains(t, err, "invalid padding scheme")

	// VALID padding with dilation 2 (11 inputs): 3x2 input, 2x3 filter dilated doesn't fit.
	inputs[3] = i32(int32(optypes.PaddingValid))
	inputs = append(inputs, i32(2), i32(2))
	_, err = GroupedConv2D(inputs, tensor(dtypes.TensorFloat32, 0, 0, 0, 0))
	require.ErrorContains(t, err, "doesn't fit")
}

func TestGroupedConv2D_UnknownParameters(t *testing.T) {
	inputs := explicitInputs(tensor(dtypes.TensorFloat32, 1, 3, 3, 2), tensor(dtypes.TensorFloat32, 2, 2, 2, 1), 2, 0, 1, 2, 0, false)
	inputs[9] = Operand{Shape: shapes.Make(dtypes.Int32)} // num_groups given at execution time.
	declared := tensor(dtypes.TensorFloat32, 1, 5, 5, 5)
	shape, err := GroupedConv2D(inputs, declared)
	require.NoError(t, err)
	assert.True(t, shape.Equal(declared.Shape))
	_, err = DecodeGroupedConv2D(inputs)
	require.Error(t, err)
}

func TestGroupedConv2D_Errors(t *testing.T) {
	f32 := dtypes.TensorFloat32
	valid := func() []Operand {
		return explicitInputs(tensor(f32, 1, 3, 3, 2), tensor(f32, 2, 2, 2, 1), 2, 0, 1, 2, 0, false)
	}
	output := tensor(f32, 1, 2, 2, 2)

	testCases := []struct {
		name   string
		modify func(inputs []Operand) []Operand
		errMsg string
	}{
		{"arity", func(in []Operand) []Operand { return in[:10] }, "takes 9 or 11"},
		{"int input", func(in []Operand) []Operand { in[0] = tensor(dtypes.TensorInt32, 1, 3, 3, 2); return in }, "unsupported input dtype"},
		{"filter rank", func(in []Operand) []Operand { in[1] = tensor(f32, 2, 2, 2); return in }, "filter must have rank 4"},
		{"filter dtype", func(in []Operand) []Operand { in[1] = tensor(dtypes.TensorFloat16, 2, 2, 2, 1); return in }, "dtypes must match"},
		{"bias size", func(in []Operand) []Operand { in[2] = tensor(f32, 3); return in }, "bias has 3 elements"},
		{"groups", func(in []Operand) []Operand { in[9] = i32(3); return in }, "divisible by num_groups"},
		{"zero groups", func(in []Operand) []Operand { in[9] = i32(0); return in }, "num_groups must be >= 1"},
		{"stride", func(in []Operand) []Operand { in[7] = i32(0); return in }, "strides must be >= 1"},
		{"activation", func(in []Operand) []Operand { in[10] = i32(4); return in }, "invalid activation"},
		{"negative padding", func(in []Operand) []Operand { in[3] = i32(-1); return in }, "paddings must be >= 0"},
		{"layout dtype", func(in []Operand) []Operand { in[11] = i32(0); return in }, "layout must be a Bool"},
		{"filter depth", func(in []Operand) []Operand { in[1] = tensor(f32, 2, 2, 2, 2); return in }, "filter depth"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := GroupedConv2D(tc.modify(valid()), output)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errMsg)
		})
	}

	_, err := GroupedConv2D(valid(), tensor(dtypes.TensorFloat16, 1, 2, 2, 2))
	require.ErrorContains(t, err, "must match the input dtype")
}

func TestGroupedConv2D_Quantized(t *testing.T) {
	input := Operand{Shape: shapes.Make(dtypes.TensorQuant8Asymm, 1, 3, 3, 2), Scale: 0.25, ZeroPoint: 100}
	filter := Operand{Shape: shapes.Make(dtypes.TensorQuant8Asymm, 2, 2, 2, 1), Scale: 0.25, ZeroPoint: 128}
	bias := Operand{Shape: shapes.Make(dtypes.TensorInt32, 2), Scale: 0.0625}
	output := Operand{Shape: shapes.Make(dtypes.TensorQuant8Asymm, 1, 2, 2, 2), Scale: 0.5, ZeroPoint: 80}
	inputs := explicitInputs(input, filter, 2, 0, 1, 2, 0, false)
	inputs[2] = bias
	_, err := GroupedConv2D(inputs, output)
	require.NoError(t, err)

	inputs[2].Scale = 0.125
	_, err = GroupedConv2D(inputs, output)
	require.ErrorContains(t, err, "bias scale")

	inputs[2] = tensor(dtypes.TensorQuant8Asymm, 2)
	_, err = GroupedConv2D(inputs, output)
	require.ErrorContains(t, err, "bias of a quantized convolution")

	// Per-channel filter.
	channel := &quant.ChannelParams{Scales: []float32{0.25, 0.5}}
	inputs[1] = Operand{Shape: shapes.Make(dtypes.TensorQuant8SymmPerChannel, 2, 2, 2, 1), Channel: channel}
	inputs[2] = Operand{Shape: shapes.Make(dtypes.TensorInt32, 2)}
	_, err = GroupedConv2D(inputs, output)
	require.NoError(t, err)

	inputs[2].Scale = 0.0625
	_, err = GroupedConv2D(inputs, output)
	require.ErrorContains(t, err, "must have scale 0")
	inputs[2].Scale = 0

	inputs[1].Channel = &quant.ChannelParams{Scales: []float32{0.25, 0.5}, ChannelDim: 3}
	_, err = GroupedConv2D(inputs, output)
	require.ErrorContains(t, err, "axis 0")

	inputs[1].Channel = &quant.ChannelParams{Scales: []float32{0.25, 0.5, 1}}
	_, err = GroupedConv2D(inputs, output)
	require.ErrorContains(t, err, "per-channel scales")
}

func TestPadding(t *testing.T) {
	head, tail := ExplicitPadding(3, 2, 1, 1, optypes.PaddingSame)
	assert.Equal(t, [2]int{0, 1}, [2]int{head, tail})
	head, tail = ExplicitPadding(2, 3, 1, 1, optypes.PaddingSame)
	assert.Equal(t, [2]int{1, 1}, [2]int{head, tail})
	head, tail = ExplicitPadding(5, 3, 2, 1, optypes.PaddingSame)
	assert.Equal(t, [2]int{1, 1}, [2]int{head, tail})
	head, tail = ExplicitPadding(5, 3, 2, 1, optypes.PaddingValid)
	assert.Equal(t, [2]int{0, 0}, [2]int{head, tail})

	assert.Equal(t, 3, OutputSize(3, 2, 1, 1, 0, 1))
	assert.Equal(t, 2, OutputSize(5, 3, 2, 1, 0, 0))
	assert.Equal(t, 1, OutputSize(5, 3, 1, 2, 0, 0))
	assert.Equal(t, 0, OutputSize(2, 3, 1, 1, 0, 0))
}

func TestCheckArity(t *testing.T) {
	require.NoError(t, CheckArity(optypes.GroupedConv2D, 11, 1))
	require.Error(t, CheckArity(optypes.GroupedConv2D, 10, 1))
	require.Error(t, CheckArity(optypes.GroupedConv2D, 12, 2))
	require.NoError(t, CheckArity(optypes.Concatenation, 5, 1))

	// Operations without signature checks return their declared output shapes.
	out := tensor(dtypes.TensorFloat32, 2, 3)
	outputShapes, err := Check(optypes.Relu, []Operand{out}, []Operand{out})
	require.NoError(t, err)
	assert.True(t, outputShapes[0].Equal(out.Shape))
}
