// Package reference executes models on the host, with straightforward (slow) kernels.
//
// It is used to compute and cross-check the expected outputs of the generated test cases.
// Only the operations listed in Supported have kernels; others fail at execution.
package reference

import (
	"slices"

	"github.com/gomlx/nnconform/model"
	"github.com/gomlx/nnconform/model/optypes"
	"github.com/gomlx/nnconform/model/shapeinference"
	"github.com/gomlx/nnconform/model/shapes"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Supported lists the operations with a reference kernel.
var Supported = []optypes.OpType{optypes.GroupedConv2D, optypes.Relu, optypes.Relu1, optypes.Relu6}

// Output of an execution: the actual dimensions (resolved for dynamic output shapes) and the
// little-endian encoded values.
type Output struct {
	Dimensions []int
	Data       []byte
}

// buffer holds the value of an operand during execution.
type buffer struct {
	dimensions []int
	data       []byte
}

// Execute runs the model on the given inputs, each given in the little-endian encoding of the
// corresponding model input type, and returns the outputs, in the order of the model outputs.
//
// Model inputs must have fully specified types.
// Outputs with unspecified dimensions get their dimensions inferred.
func Execute(m *model.Model, inputs [][]byte) ([]Output, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	modelInputs := m.Inputs()
	if len(inputs) != len(modelInputs) {
		return nil, errors.Errorf("model has %d inputs, %d were given", len(modelInputs), len(inputs))
	}

	buffers := make(map[model.OperandIndex]buffer, m.NumOperands())
	for ii, idx := range modelInputs {
		t := m.Operand(idx).Type
		if !t.IsFullySpecified() {
			return nil, errors.Errorf("model input #%d (operand #%d) has a not fully specified type %s", ii, idx, t.ToText())
		}
		if want := t.Memory(); uintptr(len(inputs[ii])) != want {
			return nil, errors.Errorf("model input #%d (operand #%d) of type %s requires %d bytes, got %d",
				ii, idx, t.ToText(), want, len(inputs[ii]))
		}
		buffers[idx] = buffer{dimensions: t.Dimensions, data: inputs[ii]}
	}
	for i := range m.NumOperands() {
		o := m.Operand(model.OperandIndex(i))
		if o.Lifetime == model.ConstantCopy {
			buffers[o.Index()] = buffer{dimensions: o.Type.Dimensions, data: o.Value()}
		}
	}

	for _, op := range m.Operations() {
		if err := executeOperation(m, op, buffers); err != nil {
			return nil, errors.WithMessagef(err, "executing operation #%d (%s)", op.Index(), op.OpType)
		}
	}

	outputs := make([]Output, 0, len(m.Outputs()))
	for _, idx := range m.Outputs() {
		b := buffers[idx]
		outputs = append(outputs, Output{Dimensions: slices.Clone(b.dimensions), Data: b.data})
	}
	return outputs, nil
}

// runtimeOperand returns the operand description with the actual dimensions and value of the execution.
func runtimeOperand(m *model.Model, idx model.OperandIndex, buffers map[model.OperandIndex]buffer) shapeinference.Operand {
	o := m.Operand(idx)
	operand := shapeinference.Operand{
		Shape:     o.Type.Shape,
		Scale:     o.Type.Scale,
		ZeroPoint: o.Type.ZeroPoint,
		Channel:   o.Type.ChannelQuant,
	}
	if b, found := buffers[idx]; found {
		if !operand.Shape.IsScalar() {
			operand.Shape = shapes.Make(o.Type.DType, b.dimensions...)
		}
		operand.Value = b.data
	}
	return operand
}

func executeOperation(m *model.Model, op *model.Operation, buffers map[model.OperandIndex]buffer) error {
	inputs := make([]shapeinference.Operand, len(op.Inputs))
	for ii, idx := range op.Inputs {
		inputs[ii] = runtimeOperand(m, idx, buffers)
		if !inputs[ii].HasValue() {
			return errors.Errorf("input #%d (operand #%d) has no value", ii, idx)
		}
	}
	output := runtimeOperand(m, op.Outputs[0], buffers)

	var result buffer
	var err error
	switch op.OpType {
	case optypes.GroupedConv2D:
		result, err = groupedConv2D(inputs, output)
	case optypes.Relu, optypes.Relu1, optypes.Relu6:
		result, err = clampOp(op.OpType, inputs[0], output)
	default:
		return errors.Errorf("operation %s has no reference kernel", op.OpType)
	}
	if err != nil {
		return err
	}
	if klog.V(2).Enabled() {
		klog.Infof("reference: operation #%d (%s) -> operand #%d with dimensions %v",
			op.Index(), op.OpType, op.Outputs[0], result.dimensions)
	}
	buffers[op.Outputs[0]] = result
	return nil
}
