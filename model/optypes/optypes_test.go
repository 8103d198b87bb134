package optypes

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpType(t *testing.T) {
	require.Equal(t, "GroupedConv2D", GroupedConv2D.String())
	require.Equal(t, "GROUPED_CONV_2D", GroupedConv2D.APIName())
	require.Equal(t, OpType(55), GroupedConv2D)
	require.Equal(t, GroupedConv2D, FromAPIName("GROUPED_CONV_2D"))
	require.Equal(t, Invalid, FromAPIName("NOT_AN_OP"))
	require.Equal(t, "OpType(1000)", OpType(1000).String())
	require.False(t, OpType(1000).IsValid())
}

func TestOpType_Arity(t *testing.T) {
	for _, n := range []int{9, 11, 12, 14} {
		require.Truef(t, GroupedConv2D.ValidInputArity(n), "GroupedConv2D should accept %d inputs", n)
	}
	require.False(t, GroupedConv2D.ValidInputArity(10))
	require.False(t, GroupedConv2D.ValidInputArity(13))
	require.Equal(t, 1, GroupedConv2D.NumOutputs())

	require.True(t, Concatenation.ValidInputArity(5))
	require.False(t, Concatenation.ValidInputArity(1))
	require.False(t, Invalid.ValidInputArity(1))
	require.Equal(t, 0, Invalid.NumOutputs())
}

func TestActivation(t *testing.T) {
	require.Equal(t, "relu6", ActivationRelu6.String())
	require.Equal(t, "Activation(7)", Activation(7).String())
	require.Equal(t, []string{"none", "relu", "relu1", "relu6"}, ActivationStrings())
	act, err := ActivationString("Relu1")
	require.NoError(t, err)
	require.Equal(t, ActivationRelu1, act)
	_, err = ActivationString("tanh")
	require.Error(t, err)
	require.True(t, ActivationRelu1.IsValid())
	require.False(t, Activation(4).IsValid())

	lowest, highest := ActivationRelu1.Range()
	require.Equal(t, -1.0, lowest)
	require.Equal(t, 1.0, highest)
	lowest, _ = ActivationNone.Range()
	require.True(t, math.IsInf(lowest, -1))

	require.Equal(t, "same", PaddingSame.String())
	require.Equal(t, "explicit", PaddingExplicit.String())
	padding, err := PaddingSchemeString("valid")
	require.NoError(t, err)
	require.Equal(t, PaddingValid, padding)
	require.False(t, PaddingScheme(3).IsAPaddingScheme())
}
