// Package groupedconv2d holds the grouped 2D convolution conformance cases.
//
// Three models are described: the default one (explicit padding, with all fused activations), "large"
// (SAME padding, larger filter values) and "channel" (3 groups of 3 input channels). Each is expanded
// in both layouts, in float32, relaxed float32, quant8, channelQuant8 and float16, with the weights as
// constants or as model inputs, and with static or dynamic output shape: 240 cases in total.
package groupedconv2d

//go:generate go run ../../cmd/nnspecgen -format=go -package=groupedconv2d -out=fixtures_gen.go

import (
	"sync"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/nnconform/dtypes"
	"github.com/gomlx/nnconform/model/optypes"
	"github.com/gomlx/nnconform/testgen"
	"github.com/janpfeifer/must"
)

// Operand names shared by the descriptions.
const (
	input  = "op1"
	filter = "op2"
	bias   = "op3"
	output = "op4"
	act    = "act"
	layout = "layout"
)

func newLayout() *testgen.LayoutVariation {
	return &testgen.LayoutVariation{Flag: layout, Transposed: []string{input, output}}
}

// dataTypes returns the float variations plus quant8 and channelQuant8, the latter with the given
// filter scales and a bias scale of inputScale*filterScale per channel.
func dataTypes(quant8 map[string]testgen.Quantization, filterScales []float32) []testgen.DataType {
	channel := make(map[string]testgen.Quantization, len(quant8))
	for name, q := range quant8 {
		channel[name] = q
	}
	biasScales := make([]float32, len(filterScales))
	for i, scale := range filterScales {
		biasScales[i] = quant8[input].Scale * scale
	}
	channel[filter] = testgen.Quantization{DType: dtypes.TensorQuant8SymmPerChannel, ChannelScales: filterScales}
	channel[bias] = testgen.Quantization{DType: dtypes.TensorInt32, ChannelScales: biasScales}
	return []testgen.DataType{
		testgen.Float32,
		testgen.Relaxed,
		{Name: "quant8", Quantization: quant8},
		{Name: "channelQuant8", Quantization: channel},
		testgen.Float16,
	}
}

func asymm(scale float32, zeroPoint int32) testgen.Quantization {
	return testgen.Quantization{DType: dtypes.TensorQuant8Asymm, Scale: scale, ZeroPoint: zeroPoint}
}

func int32Bias(scale float32) testgen.Quantization {
	return testgen.Quantization{DType: dtypes.TensorInt32, Scale: scale}
}

// Default: explicit padding 0, stride 1, 2 groups.
var defaultModel = &testgen.Description{
	OpType: optypes.GroupedConv2D,
	Operands: []*testgen.OperandSpec{
		testgen.NewInput(input, 1, 3, 3, 2),
		testgen.NewParameter(filter, []int{2, 2, 2, 1}, 1, 2, 2, 1, 4, 3, 2, 1),
		testgen.NewParameter(bias, []int{2}, 10, -33.5),
		testgen.NewInt32Scalar("param", 0),
		testgen.NewInt32Scalar("param1", 0),
		testgen.NewInt32Scalar("param2", 0),
		testgen.NewInt32Scalar("param3", 0),
		testgen.NewInt32Scalar("param4", 1),
		testgen.NewInt32Scalar("param5", 1),
		testgen.NewInt32Scalar("param6", 2),
		testgen.NewInt32Scalar(act, 0),
		testgen.NewBoolScalar(layout, false),
		testgen.NewOutput(output, 1, 2, 2, 2),
	},
	Example: map[string][]float64{
		input:  {1, 2, 3, 4, 5, 6, 6, 5, 4, 3, 2, 1, 2, 3, 3, 3, 3, 3},
		output: {33, -0.5, 33, 7.5, 31, 4.5, 27, -9.5},
	},
	Layout:     newLayout(),
	Activation: &testgen.ActivationVariation{Operand: act, Outputs: []string{output}},
	DataTypes: dataTypes(map[string]testgen.Quantization{
		input:  asymm(0.25, 100),
		filter: asymm(0.25, 128),
		bias:   int32Bias(0.0625),
		output: asymm(0.5, 80),
	}, []float32{0.25, 0.5}),
	WeightsAsInput: []string{filter, bias},
}

// Large: SAME padding, stride 1, 2 groups.
var largeModel = &testgen.Description{
	Name:   "large",
	OpType: optypes.GroupedConv2D,
	Operands: []*testgen.OperandSpec{
		testgen.NewInput(input, 1, 3, 2, 2),
		testgen.NewParameter(filter, []int{2, 2, 3, 1}, 100, 20, 1, 200, 10, 2, 200, 30, 1, 100, 20, 3),
		testgen.NewParameter(bias, []int{2}, 500, -1000),
		testgen.NewInt32Scalar("param", int32(optypes.PaddingSame)),
		testgen.NewInt32Scalar("param1", 1),
		testgen.NewInt32Scalar("param2", 1),
		testgen.NewInt32Scalar("param3", 2),
		testgen.NewInt32Scalar("param4", int32(optypes.ActivationNone)),
		testgen.NewBoolScalar(layout, false),
		testgen.NewOutput(output, 1, 3, 2, 2),
	},
	Example: map[string][]float64{
		input:  {1, 2, 3, 4, 4, 3, 2, 1, 2, 3, 3, 3},
		output: {567, -873, 1480, -160, 608, -840, 1370, -10, 543, -907, 760, -310},
	},
	Layout: newLayout(),
	DataTypes: dataTypes(map[string]testgen.Quantization{
		input:  asymm(0.25, 128),
		filter: asymm(1, 0),
		bias:   int32Bias(0.25),
		output: asymm(10, 100),
	}, []float32{2, 2.5}),
	WeightsAsInput: []string{filter, bias},
}

// Channel: SAME padding, stride 1, 3 groups with 3 input and 2 output channels each.
var channelModel = &testgen.Description{
	Name:   "channel",
	OpType: optypes.GroupedConv2D,
	Operands: []*testgen.OperandSpec{
		testgen.NewInput(input, 1, 2, 2, 9),
		testgen.NewParameter(filter, []int{6, 1, 1, 3}, 1, 2, 3, 2, 1, 0, 2, 3, 3, 6, 6, 6, 9, 8, 5, 2, 1, 1),
		testgen.NewParameter(bias, []int{6}, 10, -20, 30, -40, 50, -60),
		testgen.NewInt32Scalar("param", int32(optypes.PaddingSame)),
		testgen.NewInt32Scalar("param1", 1),
		testgen.NewInt32Scalar("param2", 1),
		testgen.NewInt32Scalar("param3", 3),
		testgen.NewInt32Scalar("param4", int32(optypes.ActivationNone)),
		testgen.NewBoolScalar(layout, false),
		testgen.NewOutput(output, 1, 2, 2, 6),
	},
	Example: map[string][]float64{
		input: {
			1, 2, 3, 4, 55, 4, 3, 2, 1,
			5, 4, 3, 2, 11, 2, 3, 4, 5,
			2, 3, 2, 3, 22, 3, 2, 3, 2,
			1, 0, 2, 1, 33, 1, 2, 0, 1,
		},
		output: {
			24, -16, 215, 338, 98, -51,
			32, -6, 73, 50, 134, -45,
			24, -13, 111, 128, 102, -51,
			17, -18, 134, 170, 73, -55,
		},
	},
	Layout: newLayout(),
	DataTypes: dataTypes(map[string]testgen.Quantization{
		input:  asymm(0.5, 0),
		filter: asymm(0.25, 0),
		bias:   int32Bias(0.125),
		output: asymm(2, 60),
	}, []float32{0.25, 0.5, 0.25, 0.5, 0.25, 0.5}),
	WeightsAsInput: []string{filter, bias},
}

// Descriptions returns the descriptions of the models, in the order their cases are listed.
func Descriptions() []*testgen.Description {
	return []*testgen.Description{defaultModel, largeModel, channelModel}
}

var (
	muCases     sync.Mutex
	cases       []*testgen.Case
	casesByName map[string]*testgen.Case
)

// expand lazily expands all descriptions. The descriptions are fixed, so failing to expand them is a bug.
func expand() ([]*testgen.Case, map[string]*testgen.Case) {
	muCases.Lock()
	defer muCases.Unlock()
	if cases != nil {
		return cases, casesByName
	}
	var all []*testgen.Case
	byName := make(map[string]*testgen.Case)
	for _, d := range Descriptions() {
		for _, c := range must.M1(d.Expand()) {
			if _, found := byName[c.Name]; found {
				exceptions.Panicf("groupedconv2d: duplicate case name %q", c.Name)
			}
			byName[c.Name] = c
			all = append(all, c)
		}
	}
	cases, casesByName = all, byName
	return cases, casesByName
}

// Cases returns all cases, in generation order. The returned cases are shared and must not be modified.
func Cases() []*testgen.Case {
	all, _ := expand()
	return all
}

// Lookup returns the case with the given name.
func Lookup(name string) (*testgen.Case, bool) {
	_, byName := expand()
	c, found := byName[name]
	return c, found
}

// CreateModel populates b with the model of the named case. It panics if the case doesn't exist, or
// if the model can't be built (see testgen.Case.CreateModel).
func CreateModel(name string, b testgen.Builder) {
	c, found := Lookup(name)
	if !found {
		exceptions.Panicf("groupedconv2d: unknown case %q", name)
	}
	c.CreateModel(b)
}

// IsIgnored returns whether example i of the named case should be skipped. Unknown cases have no
// ignored examples.
func IsIgnored(name string, i int) bool {
	c, found := Lookup(name)
	return found && c.IsIgnored(i)
}
