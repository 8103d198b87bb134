package dtypes

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func TestEncodeDecode(t *testing.T) {
	buf, err := Encode(TensorFloat32, []float32{1, -33.5})
	require.NoError(t, err)
	require.Len(t, buf, 8)
	got, err := DecodeAs[float32](TensorFloat32, buf)
	require.NoError(t, err)
	require.Equal(t, []float32{1, -33.5}, got)

	halves := []float16.Float16{float16.Fromfloat32(7.5), float16.Fromfloat32(-0.5)}
	buf, err = Encode(TensorFloat16, halves)
	require.NoError(t, err)
	require.Len(t, buf, 4)
	gotHalves, err := DecodeAs[float16.Float16](TensorFloat16, buf)
	require.NoError(t, err)
	require.Equal(t, float32(7.5), gotHalves[0].Float32())
	require.Equal(t, float32(-0.5), gotHalves[1].Float32())

	buf, err = Encode(TensorQuant8SymmPerChannel, []int8{-127, 3})
	require.NoError(t, err)
	require.Equal(t, []byte{0x81, 3}, buf)
	gotInt8, err := DecodeAs[int8](TensorQuant8SymmPerChannel, buf)
	require.NoError(t, err)
	require.Equal(t, []int8{-127, 3}, gotInt8)

	buf, err = Encode(Bool, []bool{true})
	require.NoError(t, err)
	require.Equal(t, []byte{1}, buf)
	b, err := DecodeScalar[bool](Bool, buf)
	require.NoError(t, err)
	require.True(t, b)

	buf, err = Encode(Int32, []int32{-2})
	require.NoError(t, err)
	require.Equal(t, []byte{0xfe, 0xff, 0xff, 0xff}, buf)
	i, err := DecodeScalar[int32](Int32, buf)
	require.NoError(t, err)
	require.Equal(t, int32(-2), i)
}

func TestEncode_Errors(t *testing.T) {
	_, err := Encode(TensorFloat32, []int32{1})
	require.Error(t, err)
	_, err = Encode(TensorQuant8Asymm, []int8{1})
	require.Error(t, err)
	_, err = Encode(Invalid, []float32{1})
	require.Error(t, err)
	_, err = Encode(TensorFloat32, float32(1))
	require.Error(t, err)

	_, err = Decode(TensorFloat32, []byte{1, 2, 3})
	require.Error(t, err)
	_, err = DecodeAs[float32](TensorInt32, []byte{1, 2, 3, 4})
	require.Error(t, err)
	_, err = DecodeScalar[int32](TensorInt32, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	require.Error(t, err)
}
