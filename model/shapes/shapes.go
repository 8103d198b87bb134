// Package shapes defines Shape, the dtype and dimensions of an operand.
//
// Unlike most tensor libraries, a dimension of 0 is allowed and means "unspecified": the size
// of that axis is only known at execution time. A Shape with any unspecified axis (or an
// unspecified rank for tensors, represented by nil Dimensions) is not fully specified.
package shapes

import (
	"fmt"
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/nnconform/dtypes"
	"github.com/pkg/errors"
)

// Shape of an operand: its DType and the dimensions of each axis.
// Scalar dtypes always have rank 0.
type Shape struct {
	DType      dtypes.DType
	Dimensions []int
}

// Make returns a Shape with the given dtype and dimensions.
//
// Dimensions must be >= 0 (0 meaning unspecified), otherwise it panics.
// See MakeOrError for a version that returns an error.
func Make(dtype dtypes.DType, dimensions ...int) Shape {
	s, err := MakeOrError(dtype, dimensions...)
	if err != nil {
		exceptions.Panicf("%v", err)
	}
	return s
}

// MakeOrError is the same as Make, but it returns an error instead of panicking.
func MakeOrError(dtype dtypes.DType, dimensions ...int) (Shape, error) {
	s := Shape{DType: dtype, Dimensions: slices.Clone(dimensions)}
	if !dtype.IsValid() {
		return Shape{}, errors.Errorf("shapes.Make(%s): invalid dtype", s)
	}
	if dtype.IsScalar() && len(dimensions) > 0 {
		return Shape{}, errors.Errorf("shapes.Make(%s): scalar dtype %s cannot have dimensions", s, dtype)
	}
	for _, dim := range dimensions {
		if dim < 0 {
			return Shape{}, errors.Errorf("shapes.Make(%s): cannot create a shape with an axis with dimension < 0", s)
		}
	}
	return s, nil
}

// Invalid returns an invalid shape.
func Invalid() Shape {
	return Shape{DType: dtypes.Invalid}
}

// Ok returns whether the shape has a valid dtype.
func (s Shape) Ok() bool { return s.DType.IsValid() }

// Rank of a shape is the number of axes. A shortcut to len(Shape.Dimensions).
func (s Shape) Rank() int { return len(s.Dimensions) }

// IsScalar returns whether the Shape is a scalar.
func (s Shape) IsScalar() bool { return s.DType.IsScalar() }

// IsFullySpecified returns whether all dimensions are known.
// Tensors with rank 0 are considered of unknown rank, and hence not fully specified.
func (s Shape) IsFullySpecified() bool {
	if s.IsScalar() {
		return true
	}
	if s.Rank() == 0 {
		return false
	}
	return !slices.Contains(s.Dimensions, 0)
}

// Size returns the number of elements of the shape. Scalars have size 1.
// If the shape is not fully specified it returns 0.
func (s Shape) Size() int {
	if !s.IsFullySpecified() {
		return 0
	}
	size := 1
	for _, dim := range s.Dimensions {
		size *= dim
	}
	return size
}

// Memory returns the number of bytes needed to store a value of the shape,
// or 0 if it is not fully specified.
func (s Shape) Memory() uintptr {
	return s.DType.Memory() * uintptr(s.Size())
}

// Clone makes a deep copy of the shape.
func (s Shape) Clone() Shape {
	return Shape{DType: s.DType, Dimensions: slices.Clone(s.Dimensions)}
}

// Equal compares dtype and dimensions.
func (s Shape) Equal(s2 Shape) bool {
	return s.DType == s2.DType && slices.Equal(s.Dimensions, s2.Dimensions)
}

// Compatible returns whether the shapes are the same, treating unspecified (0) dimensions of
// either side as matching anything. An unspecified rank (no dimensions) matches any rank.
func (s Shape) Compatible(s2 Shape) bool {
	if s.DType != s2.DType {
		return false
	}
	if s.Rank() == 0 || s2.Rank() == 0 {
		return true
	}
	if s.Rank() != s2.Rank() {
		return false
	}
	for axis, dim := range s.Dimensions {
		dim2 := s2.Dimensions[axis]
		if dim != 0 && dim2 != 0 && dim != dim2 {
			return false
		}
	}
	return true
}

// String implements fmt.Stringer and pretty-prints the shape.
func (s Shape) String() string {
	if s.IsScalar() || s.Rank() == 0 {
		return fmt.Sprintf("(%s)", s.DType)
	}
	return fmt.Sprintf("(%s)%v", s.DType, s.Dimensions)
}
