package shapes

import (
	"fmt"
	"io"
	"strings"

	"github.com/gomlx/nnconform/dtypes"
)

// DTypeToText returns the short name of the dtype used in the text rendering of models.
func DTypeToText(dtype dtypes.DType) string {
	switch dtype {
	case dtypes.Float32, dtypes.TensorFloat32:
		return "f32"
	case dtypes.Float16, dtypes.TensorFloat16:
		return "f16"
	case dtypes.Int32, dtypes.TensorInt32:
		return "si32"
	case dtypes.UInt32:
		return "ui32"
	case dtypes.Bool, dtypes.TensorBool8:
		return "i1"
	case dtypes.TensorQuant8Asymm:
		return "qu8"
	case dtypes.TensorQuant8AsymmSigned:
		return "qs8"
	case dtypes.TensorQuant8Symm:
		return "qsymm8"
	case dtypes.TensorQuant8SymmPerChannel:
		return "qsymm8pc"
	case dtypes.TensorQuant16Asymm:
		return "qu16"
	case dtypes.TensorQuant16Symm:
		return "qsymm16"
	default:
		return fmt.Sprintf("unknown_dtype<%s>", dtype.String())
	}
}

// ToText returns the text representation of the shape's type, e.g. "tensor<1x3x?x2xf32>".
// Unspecified dimensions are rendered as "?", and tensors of unknown rank as "tensor<*xf32>".
func (s Shape) ToText() string {
	var sb strings.Builder
	_ = s.WriteText(&sb)
	return sb.String()
}

// WriteText writes the text representation of the shape's type to the given writer.
func (s Shape) WriteText(writer io.Writer) error {
	var err error
	w := func(format string, args ...any) {
		if err != nil {
			// No op if an error was encountered earlier
			return
		}
		_, err = fmt.Fprintf(writer, format, args...)
	}

	if s.IsScalar() {
		w("%s", DTypeToText(s.DType))
		return err
	}
	w("tensor<")
	if s.Rank() == 0 {
		w("*x")
	}
	for _, dim := range s.Dimensions {
		if dim == 0 {
			w("?x")
		} else {
			w("%dx", dim)
		}
	}
	w("%s>", DTypeToText(s.DType))
	return err
}
