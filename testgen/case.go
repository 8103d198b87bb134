package testgen

import (
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/nnconform/model"
	"github.com/gomlx/nnconform/model/optypes"
)

// Builder is the model construction API used by Case.CreateModel. *model.Model implements it.
type Builder interface {
	AddOperand(operandType *model.OperandType) (model.OperandIndex, error)
	SetOperandValue(idx model.OperandIndex, data []byte) error
	AddOperation(opType optypes.OpType, inputs, outputs []model.OperandIndex) error
	IdentifyInputsAndOutputs(inputs, outputs []model.OperandIndex) error
	RelaxComputationFloat32toFloat16(relax bool) error
	IsValid() bool
}

var _ Builder = (*model.Model)(nil)

// Lifetime of an operand in a concrete Case.
type Lifetime int

const (
	LifetimeInput Lifetime = iota
	LifetimeConstant
	LifetimeOutput
)

// CaseOperand is one operand of a concrete Case.
type CaseOperand struct {
	// Name of the operand in the description.
	Name     string
	Lifetime Lifetime
	Type     model.OperandType

	// Value is the encoded value of constants.
	Value []byte
}

// ExpectedOutput is the expected value of one model output.
type ExpectedOutput struct {
	// Type of the output with all dimensions specified, even for dynamic output shape cases.
	Type model.OperandType

	// Data is the encoded expected value.
	Data []byte
}

// Example is one set of model inputs (in the order of the model inputs) and the expected outputs.
type Example struct {
	Inputs  [][]byte
	Outputs []ExpectedOutput
}

// Case is one concrete test model: a point in the variations of a Description.
type Case struct {
	// Name of the case, e.g. "nhwc_relu_quant8" or "large_dynamic_output_shape_nchw_weight_as_input".
	Name string

	// Variation values of the case.
	ModelName      string
	Dynamic        bool
	Layout         string
	Activation     optypes.Activation
	HasActivation  bool
	DataType       string
	Relaxed        bool
	WeightsAsInput bool

	OpType   optypes.OpType
	Operands []CaseOperand
	Examples []Example

	// ignored holds the indices of examples known not to be supported.
	ignored map[int]bool
}

// Inputs returns the indices of the operands that are model inputs, in order.
func (c *Case) Inputs() []model.OperandIndex {
	return c.operandsWith(LifetimeInput)
}

// Outputs returns the indices of the operands that are model outputs, in order.
func (c *Case) Outputs() []model.OperandIndex {
	return c.operandsWith(LifetimeOutput)
}

func (c *Case) operandsWith(lifetime Lifetime) []model.OperandIndex {
	var indices []model.OperandIndex
	for i, o := range c.Operands {
		if o.Lifetime == lifetime {
			indices = append(indices, model.OperandIndex(i))
		}
	}
	return indices
}

// CreateModel populates the empty builder b with the model of the case: it declares the operands in
// order, sets the values of the constants, adds the operation, identifies inputs and outputs and, for
// relaxed cases, allows float16 computation.
//
// Any error, or a final model that is not valid, is fatal: it panics with an error (see exceptions.TryCatch).
func (c *Case) CreateModel(b Builder) {
	fail := func(err error, format string, args ...any) {
		if err != nil {
			exceptions.Panicf("CreateModel_%s: %s: %+v", c.Name, fmt.Sprintf(format, args...), err)
		}
	}
	indices := make([]model.OperandIndex, len(c.Operands))
	for i := range c.Operands {
		o := &c.Operands[i]
		var err error
		indices[i], err = b.AddOperand(&o.Type)
		fail(err, "adding operand %q", o.Name)
		if o.Lifetime == LifetimeConstant {
			fail(b.SetOperandValue(indices[i], o.Value), "setting value of operand %q", o.Name)
		}
	}
	var opInputs, opOutputs, modelInputs []model.OperandIndex
	for i, o := range c.Operands {
		switch o.Lifetime {
		case LifetimeOutput:
			opOutputs = append(opOutputs, indices[i])
		case LifetimeInput:
			modelInputs = append(modelInputs, indices[i])
			opInputs = append(opInputs, indices[i])
		default:
			opInputs = append(opInputs, indices[i])
		}
	}
	fail(b.AddOperation(c.OpType, opInputs, opOutputs), "adding operation %s", c.OpType)
	fail(b.IdentifyInputsAndOutputs(modelInputs, opOutputs), "identifying inputs and outputs")
	if c.Relaxed {
		fail(b.RelaxComputationFloat32toFloat16(true), "relaxing computation")
	}
	if !b.IsValid() {
		exceptions.Panicf("CreateModel_%s: model is not valid", c.Name)
	}
}

// IsIgnored returns whether the example with index i is known not to be supported and should be skipped.
func (c *Case) IsIgnored(i int) bool {
	return c.ignored[i]
}

// Build creates a new model and populates it with CreateModel.
// The fatal errors of CreateModel are returned as errors.
func (c *Case) Build() (*model.Model, error) {
	m := model.New()
	if err := exceptions.TryCatch[error](func() { c.CreateModel(m) }); err != nil {
		return nil, err
	}
	return m, nil
}
