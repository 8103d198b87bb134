package testgen

import (
	"fmt"
	"strings"

	"github.com/gomlx/nnconform/model"
	"github.com/gomlx/nnconform/model/optypes"
)

// Recorder is a Builder that forwards calls to a *model.Model and records their names, in order.
//
// It is used to check the order of the builder calls made by Case.CreateModel, e.g. that a relaxed
// case calls RelaxComputationFloat32toFloat16 exactly once, after IdentifyInputsAndOutputs.
type Recorder struct {
	Model *model.Model
	Calls []string
}

var _ Builder = (*Recorder)(nil)

// NewRecorder returns a Recorder over a new empty model.
func NewRecorder() *Recorder {
	return &Recorder{Model: model.New()}
}

func (r *Recorder) record(format string, args ...any) {
	r.Calls = append(r.Calls, fmt.Sprintf(format, args...))
}

// AddOperand implements Builder.
func (r *Recorder) AddOperand(operandType *model.OperandType) (model.OperandIndex, error) {
	r.record("AddOperand(%s)", operandType.ToText())
	return r.Model.AddOperand(operandType)
}

// SetOperandValue implements Builder.
func (r *Recorder) SetOperandValue(idx model.OperandIndex, data []byte) error {
	r.record("SetOperandValue(%d)", idx)
	return r.Model.SetOperandValue(idx, data)
}

// AddOperation implements Builder.
func (r *Recorder) AddOperation(opType optypes.OpType, inputs, outputs []model.OperandIndex) error {
	r.record("AddOperation(%s)", opType)
	return r.Model.AddOperation(opType, inputs, outputs)
}

// IdentifyInputsAndOutputs implements Builder.
func (r *Recorder) IdentifyInputsAndOutputs(inputs, outputs []model.OperandIndex) error {
	r.record("IdentifyInputsAndOutputs(%v, %v)", inputs, outputs)
	return r.Model.IdentifyInputsAndOutputs(inputs, outputs)
}

// RelaxComputationFloat32toFloat16 implements Builder.
func (r *Recorder) RelaxComputationFloat32toFloat16(relax bool) error {
	r.record("RelaxComputationFloat32toFloat16(%t)", relax)
	return r.Model.RelaxComputationFloat32toFloat16(relax)
}

// IsValid implements Builder.
func (r *Recorder) IsValid() bool {
	r.record("IsValid")
	return r.Model.IsValid()
}

// Count returns how many recorded calls start with prefix.
func (r *Recorder) Count(prefix string) int {
	var n int
	for _, call := range r.Calls {
		if strings.HasPrefix(call, prefix) {
			n++
		}
	}
	return n
}

// IndexOf returns the position of the first recorded call starting with prefix, or -1.
func (r *Recorder) IndexOf(prefix string) int {
	for i, call := range r.Calls {
		if strings.HasPrefix(call, prefix) {
			return i
		}
	}
	return -1
}
