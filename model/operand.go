package model

import (
	"fmt"
	"io"
	"slices"

	"github.com/gomlx/nnconform/dtypes"
	"github.com/gomlx/nnconform/model/shapeinference"
	"github.com/gomlx/nnconform/model/shapes"
	"github.com/gomlx/nnconform/quant"
	"github.com/pkg/errors"
)

// OperandIndex is the stable handle of an operand in a Model, returned by Model.AddOperand.
type OperandIndex uint32

// OperandType describes one operand slot: its dtype and dimensions and, for quantized kinds, the
// quantization parameters.
type OperandType struct {
	shapes.Shape

	// Scale and ZeroPoint of asymmetric and symmetric per-tensor quantized kinds.
	// TensorInt32 operands used as quantized biases also carry a scale.
	Scale     float32
	ZeroPoint int32

	// ChannelQuant is required by (and only allowed for) TensorQuant8SymmPerChannel.
	ChannelQuant *quant.ChannelParams
}

// MakeOperandType is a shortcut to create a non-quantized OperandType.
func MakeOperandType(dtype dtypes.DType, dimensions ...int) OperandType {
	return OperandType{Shape: shapes.Make(dtype, dimensions...)}
}

// MakeQuantizedOperandType is a shortcut to create an asymmetric quantized OperandType.
func MakeQuantizedOperandType(dtype dtypes.DType, scale float32, zeroPoint int32, dimensions ...int) OperandType {
	return OperandType{Shape: shapes.Make(dtype, dimensions...), Scale: scale, ZeroPoint: zeroPoint}
}

// MakePerChannelOperandType is a shortcut to create a symmetric per-channel quantized OperandType.
func MakePerChannelOperandType(dtype dtypes.DType, scales []float32, channelDim int, dimensions ...int) OperandType {
	return OperandType{
		Shape:        shapes.Make(dtype, dimensions...),
		ChannelQuant: &quant.ChannelParams{Scales: slices.Clone(scales), ChannelDim: channelDim},
	}
}

// Validate checks the consistency of the operand type.
func (t *OperandType) Validate() error {
	if t == nil {
		return errors.New("nil operand type")
	}
	if _, err := shapes.MakeOrError(t.DType, t.Dimensions...); err != nil {
		return err
	}
	dtype := t.DType
	if t.ChannelQuant != nil && !dtype.IsPerChannel() {
		return errors.Errorf("per-channel quantization parameters given for non per-channel dtype %s", dtype)
	}
	switch {
	case dtype.IsPerChannel():
		if t.ChannelQuant == nil {
			return errors.Errorf("%s requires per-channel quantization parameters", dtype)
		}
		if t.Scale != 0 || t.ZeroPoint != 0 {
			return errors.Errorf("%s must have scale and zero point 0 (the scales are given per channel), got scale=%g, zero point=%d",
				dtype, t.Scale, t.ZeroPoint)
		}
		if err := t.ChannelQuant.Validate(t.Dimensions); err != nil {
			return errors.WithMessagef(err, "invalid %s", dtype)
		}
	case dtype.IsQuantized():
		if err := (quant.Params{Scale: t.Scale, ZeroPoint: t.ZeroPoint}).Validate(dtype); err != nil {
			return err
		}
	case dtype == dtypes.TensorInt32:
		if t.Scale < 0 {
			return errors.Errorf("%s scale must be >= 0, got %g", dtype, t.Scale)
		}
	default:
		if t.Scale != 0 || t.ZeroPoint != 0 {
			return errors.Errorf("%s must have scale and zero point 0, got scale=%g, zero point=%d", dtype, t.Scale, t.ZeroPoint)
		}
	}
	return nil
}

// Clone makes a deep copy of the operand type.
func (t OperandType) Clone() OperandType {
	c := t
	c.Shape = t.Shape.Clone()
	if t.ChannelQuant != nil {
		c.ChannelQuant = &quant.ChannelParams{Scales: slices.Clone(t.ChannelQuant.Scales), ChannelDim: t.ChannelQuant.ChannelDim}
	}
	return c
}

// Equal compares all fields of the operand types.
func (t OperandType) Equal(t2 OperandType) bool {
	if !t.Shape.Equal(t2.Shape) || t.Scale != t2.Scale || t.ZeroPoint != t2.ZeroPoint {
		return false
	}
	if (t.ChannelQuant == nil) != (t2.ChannelQuant == nil) {
		return false
	}
	return t.ChannelQuant == nil ||
		(t.ChannelQuant.ChannelDim == t2.ChannelQuant.ChannelDim && slices.Equal(t.ChannelQuant.Scales, t2.ChannelQuant.Scales))
}

// ToText returns the text representation of the operand type, e.g. "tensor<1x2xqu8>{scale=0.5, zero_point=80}".
func (t OperandType) ToText() string {
	text := t.Shape.ToText()
	switch {
	case t.ChannelQuant != nil:
		text += fmt.Sprintf("{scales=%v, channel_dim=%d}", t.ChannelQuant.Scales, t.ChannelQuant.ChannelDim)
	case t.Scale != 0 || t.ZeroPoint != 0:
		text += fmt.Sprintf("{scale=%g, zero_point=%d}", t.Scale, t.ZeroPoint)
	}
	return text
}

//go:generate go tool enumer -type=Lifetime -output=gen_lifetime_enumer.go operand.go

// Lifetime of an operand in the model.
type Lifetime int

const (
	// TemporaryVariable is produced by one operation and consumed by others.
	TemporaryVariable Lifetime = iota

	// ModelInput values are given at execution time.
	ModelInput

	// ModelOutput values are produced by the model and returned to the caller.
	ModelOutput

	// ConstantCopy operands have their value set at construction time.
	ConstantCopy
)

// Operand represents one operand of the model.
type Operand struct {
	index    OperandIndex
	Type     OperandType
	Lifetime Lifetime

	// value is set for ConstantCopy operands.
	value []byte

	// producer is the index of the operation that outputs this operand, or -1.
	producer     int
	numConsumers int
}

// Index of the operand in the model.
func (o *Operand) Index() OperandIndex { return o.index }

// Value returns the constant value of the operand, or nil if it is not a constant.
// The returned slice must not be modified.
func (o *Operand) Value() []byte { return o.value }

// forInference converts the operand to the representation used by the shapeinference package.
func (o *Operand) forInference() shapeinference.Operand {
	return shapeinference.Operand{
		Shape:     o.Type.Shape,
		Scale:     o.Type.Scale,
		ZeroPoint: o.Type.ZeroPoint,
		Channel:   o.Type.ChannelQuant,
		Value:     o.value,
	}
}

// Write writes the operand in text format, e.g. `%3`.
func (o *Operand) Write(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%%%d", o.index)
	return err
}
