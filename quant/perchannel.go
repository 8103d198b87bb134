package quant

import (
	"github.com/gomlx/nnconform/dtypes"
	"github.com/pkg/errors"
)

// ChannelParams holds symmetric per-channel quantization: one scale per index of ChannelDim.
type ChannelParams struct {
	Scales     []float32
	ChannelDim int
}

// Validate checks the parameters against the dimensions of the operand.
// Unspecified (0) dimensions are not checked against the number of scales.
func (c ChannelParams) Validate(dimensions []int) error {
	if len(dimensions) > 0 && (c.ChannelDim < 0 || c.ChannelDim >= len(dimensions)) {
		return errors.Errorf("per-channel quantization axis %d out of range for rank %d", c.ChannelDim, len(dimensions))
	}
	if len(c.Scales) == 0 {
		return errors.New("per-channel quantization requires at least one scale")
	}
	if len(dimensions) > 0 {
		if dim := dimensions[c.ChannelDim]; dim != 0 && dim != len(c.Scales) {
			return errors.Errorf("per-channel quantization has %d scales, but axis %d has dimension %d",
				len(c.Scales), c.ChannelDim, dim)
		}
	}
	for i, scale := range c.Scales {
		if !(scale > 0) {
			return errors.Errorf("per-channel quantization scale #%d must be > 0, got %g", i, scale)
		}
	}
	return nil
}

// channelOf returns the channel of the element at flat index idx for the given dimensions.
func (c ChannelParams) channelOf(dimensions []int, idx int) int {
	inner := 1
	for _, dim := range dimensions[c.ChannelDim+1:] {
		inner *= dim
	}
	return (idx / inner) % dimensions[c.ChannelDim]
}

// Quantize converts real values laid out with the given dimensions to TensorQuant8SymmPerChannel storage.
func (c ChannelParams) Quantize(values []float64, dimensions []int) ([]int8, error) {
	if err := c.Validate(dimensions); err != nil {
		return nil, err
	}
	if size := product(dimensions); size != len(values) {
		return nil, errors.Errorf("got %d values for dimensions %v (%d elements)", len(values), dimensions, size)
	}
	out := make([]int8, len(values))
	for i, v := range values {
		scale := c.Scales[c.channelOf(dimensions, i)]
		out[i] = int8(Saturate(dtypes.TensorQuant8SymmPerChannel, Round(v/float64(scale))))
	}
	return out, nil
}

// Dequantize converts TensorQuant8SymmPerChannel storage back to real values.
func (c ChannelParams) Dequantize(stored []int8, dimensions []int) ([]float64, error) {
	if err := c.Validate(dimensions); err != nil {
		return nil, err
	}
	if size := product(dimensions); size != len(stored) {
		return nil, errors.Errorf("got %d values for dimensions %v (%d elements)", len(stored), dimensions, size)
	}
	out := make([]float64, len(stored))
	for i, q := range stored {
		out[i] = float64(c.Scales[c.channelOf(dimensions, i)]) * float64(q)
	}
	return out, nil
}

// BiasScales returns the per-channel scales of a convolution bias: inputScale * filterScale[c].
func (c ChannelParams) BiasScales(inputScale float32) []float32 {
	scales := make([]float32, len(c.Scales))
	for i, s := range c.Scales {
		scales[i] = inputScale * s
	}
	return scales
}

// QuantizeBiasPerChannel quantizes bias values, one per output channel, with per-channel scales.
func QuantizeBiasPerChannel(values []float64, scales []float32) ([]int32, error) {
	if len(values) != len(scales) {
		return nil, errors.Errorf("got %d bias values but %d scales", len(values), len(scales))
	}
	out := make([]int32, len(values))
	for i, v := range values {
		if !(scales[i] > 0) {
			return nil, errors.Errorf("bias scale #%d must be > 0, got %g", i, scales[i])
		}
		out[i] = Saturate(dtypes.TensorInt32, Round(v/float64(scales[i])))
	}
	return out, nil
}

func product(dimensions []int) int {
	size := 1
	for _, dim := range dimensions {
		size *= dim
	}
	return size
}
