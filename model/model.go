// Package model is an append-only builder of computation graphs made of typed operands and operations.
//
// A Model is built by declaring operands (AddOperand), setting the values of the constant ones
// (SetOperandValue), wiring operations between operands (AddOperation), and finally identifying
// which operands are the inputs and outputs of the graph (IdentifyInputsAndOutputs).
// Validate (or IsValid) checks that the result is well-formed, and Finish freezes it.
//
// Example:
//
//	m := model.New()
//	f32 := model.MakeOperandType(dtypes.TensorFloat32, 1, 3, 3, 2)
//	x := must.M1(m.AddOperand(&f32))
//	...
//	must.M(m.AddOperation(optypes.GroupedConv2D, inputs, []model.OperandIndex{y}))
//	must.M(m.IdentifyInputsAndOutputs([]model.OperandIndex{x}, []model.OperandIndex{y}))
//	must.M(m.Finish())
package model

import (
	"slices"

	"github.com/gomlx/nnconform/dtypes"
	"github.com/gomlx/nnconform/model/optypes"
	"github.com/pkg/errors"
)

// Model holds a computation graph in construction.
type Model struct {
	operands   []*Operand
	operations []*Operation

	inputs, outputs []OperandIndex
	identified      bool

	relaxed  bool
	finished bool
}

// New creates an empty Model.
func New() *Model {
	return &Model{}
}

func (m *Model) checkNotFinished(what string) error {
	if m.finished {
		return errors.Errorf("%s: model already finished, it can no longer be modified", what)
	}
	return nil
}

// operand returns the operand for the index, or an error if it hasn't been declared.
func (m *Model) operand(idx OperandIndex) (*Operand, error) {
	if int(idx) >= len(m.operands) {
		return nil, errors.Errorf("operand #%d not declared, the model has %d operands", idx, len(m.operands))
	}
	return m.operands[idx], nil
}

// AddOperand declares a new operand of the given type and returns its index.
// The type is copied, so later changes to operandType don't affect the model.
func (m *Model) AddOperand(operandType *OperandType) (OperandIndex, error) {
	if err := m.checkNotFinished("AddOperand"); err != nil {
		return 0, err
	}
	if err := operandType.Validate(); err != nil {
		return 0, errors.WithMessagef(err, "AddOperand(#%d)", len(m.operands))
	}
	o := &Operand{
		index:    OperandIndex(len(m.operands)),
		Type:     operandType.Clone(),
		Lifetime: TemporaryVariable,
		producer: -1,
	}
	m.operands = append(m.operands, o)
	return o.index, nil
}

// SetOperandValue sets the value of a constant operand, given as its little-endian byte representation.
// The data is copied.
//
// The operand type must be fully specified and the length of data must match its memory size.
func (m *Model) SetOperandValue(idx OperandIndex, data []byte) error {
	if err := m.checkNotFinished("SetOperandValue"); err != nil {
		return err
	}
	o, err := m.operand(idx)
	if err != nil {
		return errors.WithMessage(err, "SetOperandValue")
	}
	switch {
	case o.Lifetime == ModelInput || o.Lifetime == ModelOutput:
		return errors.Errorf("SetOperandValue(#%d): operand is a %s, it cannot have a constant value", idx, o.Lifetime)
	case o.producer >= 0:
		return errors.Errorf("SetOperandValue(#%d): operand is the output of operation #%d", idx, o.producer)
	case !o.Type.IsFullySpecified():
		return errors.Errorf("SetOperandValue(#%d): operand type %s is not fully specified", idx, o.Type.ToText())
	}
	if want := o.Type.Memory(); uintptr(len(data)) != want {
		return errors.Errorf("SetOperandValue(#%d): operand type %s requires %d bytes, got %d", idx, o.Type.ToText(), want, len(data))
	}
	o.value = slices.Clone(data)
	if o.value == nil {
		o.value = []byte{}
	}
	o.Lifetime = ConstantCopy
	return nil
}

// SetOperandValueFrom encodes the flat values (e.g. []float32 for a TensorFloat32 operand) and sets
// them as the operand value. See Model.SetOperandValue.
func SetOperandValueFrom[T dtypes.Supported](m *Model, idx OperandIndex, flat []T) error {
	o, err := m.operand(idx)
	if err != nil {
		return errors.WithMessage(err, "SetOperandValue")
	}
	data, err := dtypes.Encode(o.Type.DType, flat)
	if err != nil {
		return errors.WithMessagef(err, "SetOperandValue(#%d)", idx)
	}
	return m.SetOperandValue(idx, data)
}

// AddOperation adds an operation of the given kind, with the given input and output operands.
// All operands must have been declared already, and the number of inputs and outputs must match
// the kind of operation.
func (m *Model) AddOperation(opType optypes.OpType, inputs, outputs []OperandIndex) error {
	if err := m.checkNotFinished("AddOperation"); err != nil {
		return err
	}
	opIdx := len(m.operations)
	if err := checkArity(opType, len(inputs), len(outputs)); err != nil {
		return errors.WithMessagef(err, "AddOperation(#%d)", opIdx)
	}
	for _, idx := range inputs {
		if _, err := m.operand(idx); err != nil {
			return errors.WithMessagef(err, "AddOperation(#%d, %s) input", opIdx, opType)
		}
	}
	for ii, idx := range outputs {
		o, err := m.operand(idx)
		if err != nil {
			return errors.WithMessagef(err, "AddOperation(#%d, %s) output", opIdx, opType)
		}
		switch {
		case o.Lifetime == ConstantCopy:
			return errors.Errorf("AddOperation(#%d, %s): output #%d is constant operand #%d", opIdx, opType, ii, idx)
		case o.Lifetime == ModelInput:
			return errors.Errorf("AddOperation(#%d, %s): output #%d is model input #%d", opIdx, opType, ii, idx)
		case o.producer >= 0:
			return errors.Errorf("AddOperation(#%d, %s): output #%d (operand #%d) is already produced by operation #%d",
				opIdx, opType, ii, idx, o.producer)
		case slices.Contains(inputs, idx):
			return errors.Errorf("AddOperation(#%d, %s): operand #%d used both as input and output", opIdx, opType, idx)
		case slices.Index(outputs, idx) != ii:
			return errors.Errorf("AddOperation(#%d, %s): operand #%d used twice as output", opIdx, opType, idx)
		}
	}

	op := &Operation{
		index:   opIdx,
		OpType:  opType,
		Inputs:  slices.Clone(inputs),
		Outputs: slices.Clone(outputs),
	}
	for _, idx := range inputs {
		m.operands[idx].numConsumers++
	}
	for _, idx := range outputs {
		m.operands[idx].producer = opIdx
	}
	m.operations = append(m.operations, op)
	return nil
}

// IdentifyInputsAndOutputs declares which operands are the inputs (given at execution time) and the
// outputs (returned) of the model, in order. It can only be called once.
func (m *Model) IdentifyInputsAndOutputs(inputs, outputs []OperandIndex) error {
	if err := m.checkNotFinished("IdentifyInputsAndOutputs"); err != nil {
		return err
	}
	if m.identified {
		return errors.New("IdentifyInputsAndOutputs: inputs and outputs already identified")
	}
	for ii, idx := range inputs {
		o, err := m.operand(idx)
		if err != nil {
			return errors.WithMessagef(err, "IdentifyInputsAndOutputs: input #%d", ii)
		}
		switch {
		case o.Lifetime == ConstantCopy:
			return errors.Errorf("IdentifyInputsAndOutputs: input #%d (operand #%d) is a constant", ii, idx)
		case o.producer >= 0:
			return errors.Errorf("IdentifyInputsAndOutputs: input #%d (operand #%d) is produced by operation #%d", ii, idx, o.producer)
		case slices.Index(inputs, idx) != ii:
			return errors.Errorf("IdentifyInputsAndOutputs: operand #%d listed twice as input", idx)
		}
	}
	for ii, idx := range outputs {
		o, err := m.operand(idx)
		if err != nil {
			return errors.WithMessagef(err, "IdentifyInputsAndOutputs: output #%d", ii)
		}
		switch {
		case o.Lifetime == ConstantCopy:
			return errors.Errorf("IdentifyInputsAndOutputs: output #%d (operand #%d) is a constant", ii, idx)
		case slices.Contains(inputs, idx):
			return errors.Errorf("IdentifyInputsAndOutputs: operand #%d is both an input and an output", idx)
		case slices.Index(outputs, idx) != ii:
			return errors.Errorf("IdentifyInputsAndOutputs: operand #%d listed twice as output", idx)
		}
	}
	for _, idx := range inputs {
		m.operands[idx].Lifetime = ModelInput
	}
	for _, idx := range outputs {
		m.operands[idx].Lifetime = ModelOutput
	}
	m.inputs = slices.Clone(inputs)
	m.outputs = slices.Clone(outputs)
	m.identified = true
	return nil
}

// RelaxComputationFloat32toFloat16 sets whether float32 operations may be computed with the range and
// precision of float16. The operand types are not affected.
func (m *Model) RelaxComputationFloat32toFloat16(relax bool) error {
	if err := m.checkNotFinished("RelaxComputationFloat32toFloat16"); err != nil {
		return err
	}
	m.relaxed = relax
	return nil
}

// Finish validates the model and freezes it: any later modification fails.
func (m *Model) Finish() error {
	if err := m.checkNotFinished("Finish"); err != nil {
		return err
	}
	if err := m.Validate(); err != nil {
		return errors.WithMessage(err, "Finish")
	}
	m.finished = true
	return nil
}

// IsFinished returns whether Finish was successfully called.
func (m *Model) IsFinished() bool { return m.finished }

// IsRelaxed returns whether float32 computation may be relaxed to float16.
func (m *Model) IsRelaxed() bool { return m.relaxed }

// NumOperands returns the number of declared operands.
func (m *Model) NumOperands() int { return len(m.operands) }

// Operand returns the operand with the given index, or nil if it doesn't exist.
func (m *Model) Operand(idx OperandIndex) *Operand {
	o, err := m.operand(idx)
	if err != nil {
		return nil
	}
	return o
}

// Operations returns the operations, in the order they were added. The slice must not be modified.
func (m *Model) Operations() []*Operation { return m.operations }

// Inputs returns the indices of the model inputs, in order.
func (m *Model) Inputs() []OperandIndex { return slices.Clone(m.inputs) }

// Outputs returns the indices of the model outputs, in order.
func (m *Model) Outputs() []OperandIndex { return slices.Clone(m.outputs) }
