package model

import (
	"github.com/gomlx/nnconform/model/shapeinference"
	"github.com/pkg/errors"
)

// Validate checks that the model is complete and well-formed:
//
//   - It has at least one operation, and the inputs and outputs have been identified with at least one output.
//   - Constant operands have values of the right size.
//   - Every temporary operand and every model output is produced by an operation.
//   - Every operand other than the model outputs is consumed by some operation.
//   - Operations are in topological order: their inputs are constants, model inputs, or outputs of earlier operations.
//   - The signature of every operation is valid (see package shapeinference).
func (m *Model) Validate() error {
	if len(m.operations) == 0 {
		return errors.New("invalid model: it has no operations")
	}
	if !m.identified {
		return errors.New("invalid model: inputs and outputs have not been identified")
	}
	if len(m.outputs) == 0 {
		return errors.New("invalid model: it has no outputs")
	}

	for _, o := range m.operands {
		switch o.Lifetime {
		case ConstantCopy:
			if want := o.Type.Memory(); uintptr(len(o.value)) != want {
				return errors.Errorf("invalid model: constant operand #%d has %d bytes, its type %s requires %d",
					o.index, len(o.value), o.Type.ToText(), want)
			}
			if o.numConsumers == 0 {
				return errors.Errorf("invalid model: constant operand #%d is never consumed", o.index)
			}
		case ModelInput:
			if o.numConsumers == 0 {
				return errors.Errorf("invalid model: model input operand #%d is never consumed", o.index)
			}
		case TemporaryVariable:
			if o.producer < 0 {
				return errors.Errorf("invalid model: operand #%d (%s) is neither a constant, a model input nor produced by an operation",
					o.index, o.Type.ToText())
			}
			if o.numConsumers == 0 {
				return errors.Errorf("invalid model: temporary operand #%d is never consumed", o.index)
			}
		case ModelOutput:
			if o.producer < 0 {
				return errors.Errorf("invalid model: model output operand #%d is not produced by any operation", o.index)
			}
		}
	}

	for _, op := range m.operations {
		inputs := make([]shapeinference.Operand, len(op.Inputs))
		for ii, idx := range op.Inputs {
			o := m.operands[idx]
			if o.producer >= op.index {
				return errors.Errorf("invalid model: operation #%d (%s) input #%d (operand #%d) is produced by later operation #%d",
					op.index, op.OpType, ii, idx, o.producer)
			}
			inputs[ii] = o.forInference()
		}
		outputs := make([]shapeinference.Operand, len(op.Outputs))
		for ii, idx := range op.Outputs {
			outputs[ii] = m.operands[idx].forInference()
		}
		if _, err := shapeinference.Check(op.OpType, inputs, outputs); err != nil {
			return errors.WithMessagef(err, "invalid model: operation #%d", op.index)
		}
	}
	return nil
}

// IsValid returns whether Validate passes.
func (m *Model) IsValid() bool {
	return m.Validate() == nil
}
