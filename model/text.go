package model

import (
	"fmt"
	"io"
	"strings"

	"github.com/gomlx/nnconform/dtypes"
)

// maxConstantElementsInText is the number of elements of a constant value written in text format,
// larger values are elided.
const maxConstantElementsInText = 16

// Write writes the model in a human-readable text format.
//
// Example:
//
//	model(%0: tensor<1x3x3x2xf32>) -> (%12: tensor<1x2x2x2xf32>) {
//	  %1 = constant [1 2 2 1 4 3 2 1] : tensor<2x2x2x1xf32>
//	  ...
//	  %12 = GROUPED_CONV_2D(%0, %1, ...) : (...) -> (tensor<1x2x2x2xf32>)
//	}
func (m *Model) Write(writer io.Writer) error {
	var err error
	w := func(format string, args ...any) {
		if err != nil {
			return
		}
		_, err = fmt.Fprintf(writer, format, args...)
	}
	writeSignature := func(indices []OperandIndex) {
		for i, idx := range indices {
			if i > 0 {
				w(", ")
			}
			w("%%%d: %s", idx, m.operands[idx].Type.ToText())
		}
	}

	w("model(")
	writeSignature(m.inputs)
	w(") -> (")
	writeSignature(m.outputs)
	w(")")
	if m.relaxed {
		w(" relaxed")
	}
	w(" {\n")
	for _, o := range m.operands {
		if o.Lifetime != ConstantCopy {
			continue
		}
		w("  %%%d = constant %s : %s\n", o.index, constantToText(o), o.Type.ToText())
	}
	for _, op := range m.operations {
		if err == nil {
			err = op.Write(writer, m)
		}
		w("\n")
	}
	w("}")
	return err
}

// String implements fmt.Stringer.
func (m *Model) String() string {
	var sb strings.Builder
	if err := m.Write(&sb); err != nil {
		return fmt.Sprintf("model: failed to convert to text: %v", err)
	}
	return sb.String()
}

// constantToText formats the value of a constant operand.
func constantToText(o *Operand) string {
	if o.Type.Size() > maxConstantElementsInText {
		return fmt.Sprintf("<%d elements>", o.Type.Size())
	}
	flat, err := dtypes.Decode(o.Type.DType, o.value)
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	if o.Type.IsScalar() {
		// Decode returns a slice with one element for scalars.
		text := fmt.Sprintf("%v", flat)
		return strings.TrimSuffix(strings.TrimPrefix(text, "["), "]")
	}
	return fmt.Sprintf("%v", flat)
}
