package groupedconv2d

import (
	"strings"
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/nnconform/dtypes"
	"github.com/gomlx/nnconform/model"
	"github.com/gomlx/nnconform/model/optypes"
	"github.com/gomlx/nnconform/reference"
	"github.com/gomlx/nnconform/testgen"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCases(t *testing.T) {
	all := Cases()
	require.Len(t, all, 240)

	counts := make(map[string]int)
	for _, c := range all {
		counts[c.ModelName]++
	}
	assert.Equal(t, map[string]int{"": 160, "large": 40, "channel": 40}, counts)

	assert.Equal(t, "nhwc_none", all[0].Name)
	assert.Equal(t, "channel_dynamic_output_shape_nchw_float16_weight_as_input", all[len(all)-1].Name)
	for _, name := range []string{
		"nhwc_relu_relaxed",
		"nchw_relu6_channelQuant8_weight_as_input",
		"dynamic_output_shape_nhwc_relu1_quant8",
		"large_nhwc",
		"large_nchw_float16",
		"large_dynamic_output_shape_nhwc_channelQuant8",
		"channel_nhwc_quant8_weight_as_input",
	} {
		c, found := Lookup(name)
		require.True(t, found, "case %q not found", name)
		assert.Equal(t, name, c.Name)
	}
	_, found := Lookup("nhwc_none_float64")
	assert.False(t, found)
}

func TestCreateModel_Default(t *testing.T) {
	m := model.New()
	CreateModel("nhwc_none", m)
	require.True(t, m.IsValid())
	assert.Equal(t, 13, m.NumOperands())
	ops := m.Operations()
	require.Len(t, ops, 1)
	assert.Equal(t, optypes.GroupedConv2D, ops[0].OpType)
	assert.Len(t, ops[0].Inputs, 12)
	assert.Equal(t, []model.OperandIndex{12}, ops[0].Outputs)
	assert.Equal(t, []model.OperandIndex{0}, m.Inputs())
	assert.Equal(t, []model.OperandIndex{12}, m.Outputs())
	assert.Equal(t, []int{1, 3, 3, 2}, m.Operand(0).Type.Dimensions)
	assert.Equal(t, []int{1, 2, 2, 2}, m.Operand(12).Type.Dimensions)

	err := exceptions.TryCatch[error](func() { CreateModel("unknown", model.New()) })
	assert.ErrorContains(t, err, `groupedconv2d: unknown case "unknown"`)
}

func TestCreateModel_All(t *testing.T) {
	for _, c := range Cases() {
		r := testgen.NewRecorder()
		CreateModel(c.Name, r)
		m := r.Model
		require.True(t, m.IsValid(), "case %s", c.Name)

		// Model inputs: only op1, or op1, op2 and op3 when the weights are inputs.
		if strings.HasSuffix(c.Name, "_weight_as_input") {
			assert.Equal(t, []model.OperandIndex{0, 1, 2}, m.Inputs(), "case %s", c.Name)
		} else {
			assert.Equal(t, []model.OperandIndex{0}, m.Inputs(), "case %s", c.Name)
		}
		outputs := m.Outputs()
		require.Len(t, outputs, 1)
		output := m.Operand(outputs[0])
		if c.Dynamic {
			assert.Equal(t, make([]int, 4), output.Type.Dimensions, "case %s", c.Name)
		} else {
			assert.True(t, output.Type.IsFullySpecified(), "case %s", c.Name)
		}

		// Relaxed computation is set exactly once, after identifying inputs and outputs.
		relaxed := strings.Contains(c.Name, "_relaxed")
		assert.Equal(t, relaxed, m.IsRelaxed(), "case %s", c.Name)
		if relaxed {
			assert.Equal(t, 1, r.Count("RelaxComputationFloat32toFloat16"), "case %s", c.Name)
			assert.Greater(t, r.IndexOf("RelaxComputationFloat32toFloat16"), r.IndexOf("IdentifyInputsAndOutputs"))
		} else {
			assert.Zero(t, r.Count("RelaxComputationFloat32toFloat16"), "case %s", c.Name)
		}

		// Quantized operands have positive scales and zero points within range.
		for idx := range m.NumOperands() {
			operandType := m.Operand(model.OperandIndex(idx)).Type
			switch {
			case operandType.DType.IsPerChannel():
				require.NotNil(t, operandType.ChannelQuant)
				for _, scale := range operandType.ChannelQuant.Scales {
					assert.Greater(t, scale, float32(0), "case %s", c.Name)
				}
			case operandType.DType.IsQuantized():
				assert.Greater(t, operandType.Scale, float32(0), "case %s", c.Name)
				lowest, highest := operandType.DType.ZeroPointRange()
				assert.GreaterOrEqual(t, operandType.ZeroPoint, lowest)
				assert.LessOrEqual(t, operandType.ZeroPoint, highest)
			case operandType.DType == dtypes.TensorInt32 && strings.Contains(c.Name, "_quant8"):
				assert.Greater(t, operandType.Scale, float32(0), "case %s", c.Name)
			}
		}

		// Building a second time gives a structurally identical model.
		m2 := model.New()
		CreateModel(c.Name, m2)
		assert.Equal(t, m.String(), m2.String(), "case %s", c.Name)
	}
}

func TestIsIgnored(t *testing.T) {
	for _, c := range Cases() {
		for i := range 3 {
			assert.False(t, IsIgnored(c.Name, i))
			assert.Equal(t, IsIgnored(c.Name, i), IsIgnored(c.Name, i))
		}
	}
	assert.False(t, IsIgnored("unknown", 0))
}

func TestQuantizedBiasScales(t *testing.T) {
	for _, c := range Cases() {
		if !strings.Contains(c.Name, "_quant8") {
			continue
		}
		input, filter, bias := c.Operands[0].Type, c.Operands[1].Type, c.Operands[2].Type
		assert.InDelta(t, input.Scale*filter.Scale, bias.Scale, 1e-6, "case %s", c.Name)
	}
}

// TestExampleValues checks that the example outputs of every description are what the grouped
// convolution computes from its example inputs.
func TestExampleValues(t *testing.T) {
	for caseName, d := range map[string]*testgen.Description{
		"nhwc_none":    defaultModel,
		"large_nhwc":   largeModel,
		"channel_nhwc": channelModel,
	} {
		c, found := Lookup(caseName)
		require.True(t, found, caseName)
		m := must.M1(c.Build())
		outputs, err := reference.Execute(m, c.Examples[0].Inputs)
		require.NoError(t, err, caseName)
		require.Len(t, outputs, 1)
		got := must.M1(dtypes.DecodeAs[float32](dtypes.TensorFloat32, outputs[0].Data))
		want := d.Example[output]
		require.Len(t, got, len(want), caseName)
		for i := range want {
			assert.InDeltaf(t, want[i], float64(got[i]), 1e-4, "%s: output[%d]", caseName, i)
		}
	}

	// Second pixel of the "channel" model, by hand: group 1 takes input channels 3..5 = [2, 11, 2],
	// output channel 2 has filter [2, 3, 3] and bias 30.
	c, _ := Lookup("channel_nhwc")
	outputs := must.M1(reference.Execute(must.M1(c.Build()), c.Examples[0].Inputs))
	got := must.M1(dtypes.DecodeAs[float32](dtypes.TensorFloat32, outputs[0].Data))
	assert.Equal(t, float32(2*2+11*3+2*3+30), got[6+2])
}
