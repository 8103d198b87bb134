package model

import (
	"fmt"
	"io"

	"github.com/gomlx/nnconform/model/optypes"
	"github.com/gomlx/nnconform/model/shapeinference"
)

// Operation represents a single operation of the model.
type Operation struct {
	index int

	// OpType is the kind of the operation.
	OpType optypes.OpType

	// Inputs and Outputs of the operation, in the order of the operation signature.
	Inputs, Outputs []OperandIndex
}

// Index of the operation in the model.
func (op *Operation) Index() int { return op.index }

func checkArity(opType optypes.OpType, numInputs, numOutputs int) error {
	return shapeinference.CheckArity(opType, numInputs, numOutputs)
}

// Write writes a line with the operation in text format, using the model to look up the operand types.
//
// Example:
//
//	%12 = GROUPED_CONV_2D(%0, %1, ...) : (tensor<1x3x3x2xf32>, ...) -> (tensor<1x2x2x2xf32>)
func (op *Operation) Write(writer io.Writer, m *Model) error {
	var err error
	w := func(format string, args ...any) {
		if err != nil {
			return
		}
		_, err = fmt.Fprintf(writer, format, args...)
	}
	writeIndices := func(indices []OperandIndex) {
		for i, idx := range indices {
			if i > 0 {
				w(", ")
			}
			w("%%%d", idx)
		}
	}
	writeTypes := func(indices []OperandIndex) {
		for i, idx := range indices {
			if i > 0 {
				w(", ")
			}
			if o := m.Operand(idx); o != nil {
				w("%s", o.Type.ToText())
			} else {
				w("?")
			}
		}
	}

	w("  ")
	if len(op.Outputs) > 0 {
		writeIndices(op.Outputs)
		w(" = ")
	}
	w("%s(", op.OpType.APIName())
	writeIndices(op.Inputs)
	w(") : (")
	writeTypes(op.Inputs)
	w(") -> (")
	writeTypes(op.Outputs)
	w(")")
	return err
}
