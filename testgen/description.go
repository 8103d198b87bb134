// Package testgen expands declarative descriptions of single-operation models into concrete test
// cases: one per combination of layout, activation, data type, weights-as-input and dynamic output
// shape.
//
// Each Case can populate a model (Case.CreateModel) and carries the example input and expected output
// buffers used by a conformance harness. EmitGo renders the cases as a Go source file with one
// CreateModel_<name> and one is_ignored_<name> function per case.
package testgen

import (
	"github.com/gomlx/nnconform/dtypes"
	"github.com/gomlx/nnconform/model/optypes"
	"github.com/gomlx/nnconform/model/shapeinference"
	"github.com/pkg/errors"
)

// OperandKind is the role of an operand in a Description.
type OperandKind int

const (
	// Input tensors are given at execution time, with values taken from the example.
	Input OperandKind = iota

	// Parameter tensors are constants, with values fixed in the description.
	Parameter

	// Output tensors are produced by the operation, with expected values taken from the example.
	Output

	// Int32Scalar and BoolScalar are constant scalar parameters.
	Int32Scalar
	BoolScalar
)

// OperandSpec declares one operand of a Description.
type OperandSpec struct {
	Name       string
	Kind       OperandKind
	Dimensions []int

	// Values of Parameter operands, or the single value of scalars.
	Values []float64
}

// NewInput declares a float tensor given at execution time.
func NewInput(name string, dimensions ...int) *OperandSpec {
	return &OperandSpec{Name: name, Kind: Input, Dimensions: dimensions}
}

// NewParameter declares a constant float tensor.
func NewParameter(name string, dimensions []int, values ...float64) *OperandSpec {
	return &OperandSpec{Name: name, Kind: Parameter, Dimensions: dimensions, Values: values}
}

// NewOutput declares a float tensor produced by the operation.
func NewOutput(name string, dimensions ...int) *OperandSpec {
	return &OperandSpec{Name: name, Kind: Output, Dimensions: dimensions}
}

// NewInt32Scalar declares a constant Int32 scalar.
func NewInt32Scalar(name string, value int32) *OperandSpec {
	return &OperandSpec{Name: name, Kind: Int32Scalar, Values: []float64{float64(value)}}
}

// NewBoolScalar declares a constant Bool scalar.
func NewBoolScalar(name string, value bool) *OperandSpec {
	v := 0.0
	if value {
		v = 1
	}
	return &OperandSpec{Name: name, Kind: BoolScalar, Values: []float64{v}}
}

func (s *OperandSpec) isScalar() bool { return s.Kind == Int32Scalar || s.Kind == BoolScalar }

// Quantization of one operand in a quantized DataType.
type Quantization struct {
	DType     dtypes.DType
	Scale     float32
	ZeroPoint int32

	// ChannelScales are the scales of a TensorQuant8SymmPerChannel operand (quantized along axis 0)
	// or, for a TensorInt32 bias of a per-channel convolution, the scales used to quantize its values.
	// The operand type of such a bias has scale 0.
	ChannelScales []float32
}

// DataType variation: how the float operands of a description are represented.
type DataType struct {
	// Name is the suffix of the case names, empty for the default float32.
	Name string

	// Relaxed keeps float32 operands, but allows computing them with float16 range and precision.
	Relaxed bool

	// Float16 converts all float tensors to TensorFloat16.
	Float16 bool

	// Quantization for each tensor operand, by name. If set, all tensor operands must be listed.
	Quantization map[string]Quantization
}

// Float32, Relaxed and Float16 are the non-quantized data type variations.
var (
	Float32 = DataType{}
	Relaxed = DataType{Name: "relaxed", Relaxed: true}
	Float16 = DataType{Name: "float16", Float16: true}
)

// LayoutVariation generates an "nhwc" and an "nchw" version of each case.
type LayoutVariation struct {
	// Flag is the name of the BoolScalar operand set to true for NCHW.
	Flag string

	// Transposed lists the 4D operands (inputs, parameters or outputs) described in NHWC, which are
	// transposed to NCHW (both dimensions and values) in the "nchw" variation.
	Transposed []string
}

// ActivationVariation generates one version of each case per fused activation.
type ActivationVariation struct {
	// Operand is the name of the Int32Scalar holding the activation.
	Operand string

	// Outputs lists the outputs whose expected values are clamped by the activation.
	Outputs []string
}

// Description of a single-operation model and its variations.
type Description struct {
	// Name of the model, used as prefix of the case names. It can be empty.
	Name string

	OpType optypes.OpType

	// Operands in declaration order: all but the outputs are inputs of the operation, in this order.
	Operands []*OperandSpec

	// Example holds the values of the Input and Output operands, in NHWC layout, before activation.
	Example map[string][]float64

	Layout     *LayoutVariation
	Activation *ActivationVariation
	DataTypes  []DataType

	// WeightsAsInput lists the Parameter operands turned into model inputs in the "weight_as_input"
	// variation. If empty, there is no such variation.
	WeightsAsInput []string
}

// operand returns the spec with the given name, or nil.
func (d *Description) operand(name string) *OperandSpec {
	for _, spec := range d.Operands {
		if spec.Name == name {
			return spec
		}
	}
	return nil
}

// Validate checks the consistency of the description.
func (d *Description) Validate() error {
	if !d.OpType.IsValid() {
		return errors.Errorf("description %q: invalid operation type %s", d.Name, d.OpType)
	}
	seen := make(map[string]bool, len(d.Operands))
	var numInputs, numOutputs int
	for _, spec := range d.Operands {
		if spec.Name == "" || seen[spec.Name] {
			return errors.Errorf("description %q: operand names must be unique and not empty, got %q", d.Name, spec.Name)
		}
		seen[spec.Name] = true
		switch spec.Kind {
		case Input, Output:
			if spec.Kind == Output {
				numOutputs++
			}
			values, found := d.Example[spec.Name]
			if !found {
				return errors.Errorf("description %q: example has no values for %q", d.Name, spec.Name)
			}
			if size := product(spec.Dimensions); size != len(values) {
				return errors.Errorf("description %q: example has %d values for %q, but its dimensions %v require %d",
					d.Name, len(values), spec.Name, spec.Dimensions, size)
			}
		case Parameter:
			if size := product(spec.Dimensions); size != len(spec.Values) {
				return errors.Errorf("description %q: parameter %q has %d values, but its dimensions %v require %d",
					d.Name, spec.Name, len(spec.Values), spec.Dimensions, size)
			}
		case Int32Scalar, BoolScalar:
			if len(spec.Values) != 1 {
				return errors.Errorf("description %q: scalar %q must have exactly one value", d.Name, spec.Name)
			}
		default:
			return errors.Errorf("description %q: operand %q has invalid kind %d", d.Name, spec.Name, spec.Kind)
		}
		if spec.Kind != Output {
			numInputs++
		}
	}
	if numOutputs == 0 {
		return errors.Errorf("description %q has no outputs", d.Name)
	}
	if err := shapeinference.CheckArity(d.OpType, numInputs, numOutputs); err != nil {
		return errors.WithMessagef(err, "description %q", d.Name)
	}

	if d.Layout != nil {
		if spec := d.operand(d.Layout.Flag); spec == nil || spec.Kind != BoolScalar {
			return errors.Errorf("description %q: layout flag %q must be a bool scalar", d.Name, d.Layout.Flag)
		}
		for _, name := range d.Layout.Transposed {
			if spec := d.operand(name); spec == nil || len(spec.Dimensions) != 4 || spec.isScalar() {
				return errors.Errorf("description %q: transposed operand %q must be a 4D tensor", d.Name, name)
			}
		}
	}
	if d.Activation != nil {
		if spec := d.operand(d.Activation.Operand); spec == nil || spec.Kind != Int32Scalar {
			return errors.Errorf("description %q: activation %q must be an int32 scalar", d.Name, d.Activation.Operand)
		}
		for _, name := range d.Activation.Outputs {
			if spec := d.operand(name); spec == nil || spec.Kind != Output {
				return errors.Errorf("description %q: activation output %q must be an output", d.Name, name)
			}
		}
	}
	for _, name := range d.WeightsAsInput {
		if spec := d.operand(name); spec == nil || spec.Kind != Parameter {
			return errors.Errorf("description %q: weight %q must be a parameter", d.Name, name)
		}
	}
	for _, dt := range d.DataTypes {
		if dt.Quantization == nil {
			continue
		}
		for _, spec := range d.Operands {
			if spec.isScalar() {
				continue
			}
			if _, found := dt.Quantization[spec.Name]; !found {
				return errors.Errorf("description %q: data type %q has no quantization for %q", d.Name, dt.Name, spec.Name)
			}
		}
	}
	if len(d.DataTypes) == 0 {
		return errors.Errorf("description %q has no data types", d.Name)
	}
	dtNames := make(map[string]bool, len(d.DataTypes))
	for _, dt := range d.DataTypes {
		if dtNames[dt.Name] {
			return errors.Errorf("description %q has repeated data type %q", d.Name, dt.Name)
		}
		dtNames[dt.Name] = true
	}
	return nil
}

func product(dimensions []int) int {
	size := 1
	for _, dim := range dimensions {
		size *= dim
	}
	return size
}
