package optypes

import "math"

//go:generate go tool enumer -type=Activation -trimprefix=Activation -transform=lower -output=gen_activation_enumer.go fusecodes.go
//go:generate go tool enumer -type=PaddingScheme -trimprefix=Padding -transform=lower -output=gen_paddingscheme_enumer.go fusecodes.go

// Activation is the fused activation function selector (NNAPI FuseCode) taken by
// convolutions and element-wise operations. Its String is the lower-case name used in
// test case names: "none", "relu", "relu1", "relu6".
type Activation int32

const (
	ActivationNone  Activation = 0
	ActivationRelu  Activation = 1
	ActivationRelu1 Activation = 2
	ActivationRelu6 Activation = 3
)

// IsValid returns whether the activation code is known.
func (a Activation) IsValid() bool {
	return a >= ActivationNone && a <= ActivationRelu6
}

// Range returns the clamping interval of the activation. The bounds are infinite when the
// activation doesn't clamp on that side.
func (a Activation) Range() (lowest, highest float64) {
	switch a {
	case ActivationRelu:
		return 0, math.Inf(1)
	case ActivationRelu1:
		return -1, 1
	case ActivationRelu6:
		return 0, 6
	}
	return math.Inf(-1), math.Inf(1)
}

// PaddingScheme for operations using implicit padding.
type PaddingScheme int32

const (
	// PaddingExplicit is not an NNAPI code: it marks operations given explicit paddings.
	PaddingExplicit PaddingScheme = 0

	// PaddingSame pads so that the output spatial size is ceil(input/stride).
	PaddingSame PaddingScheme = 1

	// PaddingValid doesn't pad.
	PaddingValid PaddingScheme = 2
)
