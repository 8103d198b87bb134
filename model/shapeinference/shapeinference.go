// Package shapeinference validates the inputs of operations and calculates the shape of their outputs.
//
// Each operation kind with a full signature check gets its own function (so far only GroupedConv2D).
// Operands are described by Operand, which carries the value when it is known at construction
// time (constants), so scalar parameters like strides can be taken into account.
package shapeinference

import (
	"github.com/gomlx/nnconform/dtypes"
	"github.com/gomlx/nnconform/model/optypes"
	"github.com/gomlx/nnconform/model/shapes"
	"github.com/gomlx/nnconform/quant"
	"github.com/pkg/errors"
)

// Operand describes an input or output of an operation for the purpose of validation.
type Operand struct {
	Shape     shapes.Shape
	Scale     float32
	ZeroPoint int32

	// Channel holds the per-channel quantization parameters, if any.
	Channel *quant.ChannelParams

	// Value is the little-endian encoded value, if known (constants). Nil otherwise.
	Value []byte
}

// HasValue returns whether the operand value is known.
func (o Operand) HasValue() bool { return o.Value != nil }

// CheckArity validates the number of inputs and outputs of an operation of the given kind.
func CheckArity(opType optypes.OpType, numInputs, numOutputs int) error {
	if !opType.IsValid() {
		return errors.Errorf("unknown operation type %s", opType)
	}
	if !opType.ValidInputArity(numInputs) {
		return errors.Errorf("operation %s doesn't accept %d inputs", opType, numInputs)
	}
	if numOutputs != opType.NumOutputs() {
		return errors.Errorf("operation %s must have %d outputs, got %d", opType, opType.NumOutputs(), numOutputs)
	}
	return nil
}

// Check validates the inputs and outputs of an operation and returns the inferred output shapes.
//
// Operation kinds without a dedicated signature check only have their arity validated, and
// their declared output shapes are returned unchanged.
func Check(opType optypes.OpType, inputs, outputs []Operand) ([]shapes.Shape, error) {
	if err := CheckArity(opType, len(inputs), len(outputs)); err != nil {
		return nil, err
	}
	switch opType {
	case optypes.GroupedConv2D:
		shape, err := GroupedConv2D(inputs, outputs[0])
		if err != nil {
			return nil, err
		}
		return []shapes.Shape{shape}, nil
	}
	outputShapes := make([]shapes.Shape, len(outputs))
	for i, output := range outputs {
		outputShapes[i] = output.Shape
	}
	return outputShapes, nil
}

// scalarInt32 decodes an Int32 scalar operand. It returns found=false if the value is not known.
func scalarInt32(o Operand, name string) (value int, found bool, err error) {
	if o.Shape.DType != dtypes.Int32 {
		return 0, false, errors.Errorf("%s must be an %s scalar, got %s", name, dtypes.Int32, o.Shape)
	}
	if !o.HasValue() {
		return 0, false, nil
	}
	v, err := dtypes.DecodeScalar[int32](dtypes.Int32, o.Value)
	if err != nil {
		return 0, false, errors.WithMessagef(err, "decoding %s", name)
	}
	return int(v), true, nil
}

// scalarBool decodes a Bool scalar operand. It returns found=false if the value is not known.
func scalarBool(o Operand, name string) (value bool, found bool, err error) {
	if o.Shape.DType != dtypes.Bool {
		return false, false, errors.Errorf("%s must be a %s scalar, got %s", name, dtypes.Bool, o.Shape)
	}
	if !o.HasValue() {
		return false, false, nil
	}
	v, err := dtypes.DecodeScalar[bool](dtypes.Bool, o.Value)
	if err != nil {
		return false, false, errors.WithMessagef(err, "decoding %s", name)
	}
	return v, true, nil
}
