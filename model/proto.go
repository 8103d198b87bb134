package model

import (
	"github.com/gomlx/nnconform/dtypes"
	"github.com/pkg/errors"
	"github.com/x448/float16"
	"google.golang.org/protobuf/types/known/structpb"
)

// ToProto converts the model to a generic protobuf Struct, suitable to be serialized with protojson
// or the binary protobuf encoding.
//
// Constant values are exported decoded (as lists of numbers or booleans), except float16 ones, which are
// exported as float32 values.
func (m *Model) ToProto() (*structpb.Struct, error) {
	operands := make([]any, len(m.operands))
	for i, o := range m.operands {
		dims := make([]any, len(o.Type.Dimensions))
		for axis, dim := range o.Type.Dimensions {
			dims[axis] = dim
		}
		operand := map[string]any{
			"index":      int(o.index),
			"type":       o.Type.DType.APIName(),
			"dimensions": dims,
			"lifetime":   o.Lifetime.String(),
		}
		if o.Type.Scale != 0 || o.Type.ZeroPoint != 0 {
			operand["scale"] = o.Type.Scale
			operand["zeroPoint"] = o.Type.ZeroPoint
		}
		if c := o.Type.ChannelQuant; c != nil {
			scales := make([]any, len(c.Scales))
			for ii, s := range c.Scales {
				scales[ii] = s
			}
			operand["channelQuant"] = map[string]any{"scales": scales, "channelDim": c.ChannelDim}
		}
		if o.Lifetime == ConstantCopy {
			value, err := valueToList(o.Type.DType, o.value)
			if err != nil {
				return nil, errors.WithMessagef(err, "converting value of operand #%d", o.index)
			}
			operand["value"] = value
		}
		operands[i] = operand
	}

	operations := make([]any, len(m.operations))
	for i, op := range m.operations {
		operations[i] = map[string]any{
			"type":    op.OpType.APIName(),
			"inputs":  indicesToList(op.Inputs),
			"outputs": indicesToList(op.Outputs),
		}
	}

	s, err := structpb.NewStruct(map[string]any{
		"operands":                         operands,
		"operations":                       operations,
		"inputIndexes":                     indicesToList(m.inputs),
		"outputIndexes":                    indicesToList(m.outputs),
		"relaxComputationFloat32toFloat16": m.relaxed,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to convert model to protobuf")
	}
	return s, nil
}

func indicesToList(indices []OperandIndex) []any {
	list := make([]any, len(indices))
	for i, idx := range indices {
		list[i] = int(idx)
	}
	return list
}

// valueToList decodes the value into a []any of types accepted by structpb.NewValue.
func valueToList(dtype dtypes.DType, data []byte) ([]any, error) {
	flat, err := dtypes.Decode(dtype, data)
	if err != nil {
		return nil, err
	}
	var list []any
	switch values := flat.(type) {
	case []float32:
		list = toAnyList(values)
	case []int32:
		list = toAnyList(values)
	case []uint32:
		list = toAnyList(values)
	case []int16:
		list = make([]any, len(values))
		for i, v := range values {
			list[i] = int32(v)
		}
	case []uint16:
		list = make([]any, len(values))
		for i, v := range values {
			list[i] = uint32(v)
		}
	case []int8:
		list = make([]any, len(values))
		for i, v := range values {
			list[i] = int32(v)
		}
	case []uint8:
		list = make([]any, len(values))
		for i, v := range values {
			list[i] = uint32(v)
		}
	case []float16.Float16:
		list = make([]any, len(values))
		for i, v := range values {
			list[i] = v.Float32()
		}
	case []bool:
		list = toAnyList(values)
	default:
		return nil, errors.Errorf("unsupported values type %T", flat)
	}
	return list, nil
}

func toAnyList[T any](values []T) []any {
	list := make([]any, len(values))
	for i, v := range values {
		list[i] = v
	}
	return list
}
