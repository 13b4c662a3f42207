// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	// Registers the CPU backend so every program has one.
	_ "github.com/born-ml/tfcore/internal/backend/cpu"
	"github.com/born-ml/tfcore/internal/engine"
	"github.com/born-ml/tfcore/internal/ops"
	"github.com/born-ml/tfcore/internal/tensor"
)

// Tensor is an immutable handle to backend data.
type Tensor = tensor.Tensor

// Variable is a named, mutable tensor registered with the engine.
type Variable = tensor.Variable

// Shape represents the dimensions of a tensor.
// Example: Shape{2, 3, 4} represents a 3D tensor with dimensions 2×3×4.
type Shape = tensor.Shape

// DataType is the element type of a tensor.
type DataType = tensor.DataType

// Values is a flat slice of tensor elements: []float32, []int32 or []bool.
type Values = tensor.Values

// Data type constants.
const (
	Float32 DataType = tensor.Float32
	Int32   DataType = tensor.Int32
	Bool    DataType = tensor.Bool
)

// ParseDataType parses "float32", "int32" or "bool".
func ParseDataType(s string) (DataType, error) {
	return tensor.ParseDataType(s)
}

// Creation functions

// Of creates a tensor from flat values and a shape. A nil shape makes a
// 1D tensor.
//
// Example:
//
//	x, err := tensor.Of([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
func Of(values Values, shape Shape) (*Tensor, error) {
	return ops.TensorOf(values, shape)
}

// OfType is Of with an explicit dtype; values are converted.
func OfType(values Values, shape Shape, dtype DataType) (*Tensor, error) {
	return ops.TensorOfType(values, shape, dtype)
}

// MustOf is Of that panics on invalid input.
func MustOf(values Values, shape Shape) *Tensor {
	return ops.MustTensorOf(values, shape)
}

// Scalar creates a rank-0 float32 tensor.
func Scalar(v float64) *Tensor { return ops.Scalar(v) }

// Fill creates a tensor of shape with every element set to v.
func Fill(shape Shape, v float64, dtype DataType) *Tensor { return ops.Fill(shape, v, dtype) }

// Zeros creates a float32 tensor of zeros.
func Zeros(shape Shape) *Tensor { return ops.Zeros(shape) }

// Ones creates a float32 tensor of ones.
func Ones(shape Shape) *Tensor { return ops.Ones(shape) }

// ZerosLike creates zeros with the shape and dtype of x.
func ZerosLike(x *Tensor) *Tensor { return ops.ZerosLike(x) }

// OnesLike creates ones with the shape and dtype of x.
func OnesLike(x *Tensor) *Tensor { return ops.OnesLike(x) }

// Clone returns a new tensor sharing the data of x.
func Clone(x *Tensor) *Tensor { return ops.Clone(x) }

// NewVariable registers a variable initialized from initial. An empty name
// gets a generated one.
func NewVariable(initial *Tensor, trainable bool, name string) (*Variable, error) {
	return ops.Variable(initial, trainable, name)
}

// Math functions

// Add returns a + b.
func Add(a, b *Tensor) *Tensor { return ops.Add(a, b) }

// Sub returns a - b.
func Sub(a, b *Tensor) *Tensor { return ops.Sub(a, b) }

// Mul returns a * b.
func Mul(a, b *Tensor) *Tensor { return ops.Mul(a, b) }

// Div returns a / b as float32.
func Div(a, b *Tensor) *Tensor { return ops.Div(a, b) }

// Equal returns a bool mask of a == b.
func Equal(a, b *Tensor) *Tensor { return ops.Equal(a, b) }

// Neg returns -x.
func Neg(x *Tensor) *Tensor { return ops.Neg(x) }

// Square returns x * x.
func Square(x *Tensor) *Tensor { return ops.Square(x) }

// Sqrt returns the square root of x.
func Sqrt(x *Tensor) *Tensor { return ops.Sqrt(x) }

// Exp returns e^x.
func Exp(x *Tensor) *Tensor { return ops.Exp(x) }

// Log returns the natural logarithm of x.
func Log(x *Tensor) *Tensor { return ops.Log(x) }

// Relu returns max(x, 0).
func Relu(x *Tensor) *Tensor { return ops.Relu(x) }

// Step returns 1 where x > 0 and alpha elsewhere.
func Step(x *Tensor, alpha float64) *Tensor { return ops.Step(x, alpha) }

// Sum reduces x over axes; nil reduces every axis.
func Sum(x *Tensor, axes []int, keepDims bool) *Tensor { return ops.Sum(x, axes, keepDims) }

// Max reduces x over axes; nil reduces every axis.
func Max(x *Tensor, axes []int, keepDims bool) *Tensor { return ops.Max(x, axes, keepDims) }

// Norm returns the euclidean norm of x over axes.
func Norm(x *Tensor, axes []int, keepDims bool) *Tensor { return ops.Norm(x, axes, keepDims) }

// MatMul multiplies the last two dimensions of a and b.
//
// Example:
//
//	a := tensor.Ones(tensor.Shape{2, 3})
//	b := tensor.Ones(tensor.Shape{3, 4})
//	c := tensor.MatMul(a, b, false, false) // Shape: [2, 4]
func MatMul(a, b *Tensor, transposeA, transposeB bool) *Tensor {
	return ops.MatMul(a, b, transposeA, transposeB)
}

// Manipulation functions

// Reshape returns x with a new shape; one entry may be -1.
func Reshape(x *Tensor, shape []int) *Tensor { return ops.Reshape(x, shape) }

// Cast converts x to dtype.
func Cast(x *Tensor, dtype DataType) *Tensor { return ops.Cast(x, dtype) }

// Transpose permutes the dimensions of x; nil reverses them.
func Transpose(x *Tensor, perm []int) *Tensor { return ops.Transpose(x, perm) }

// Concat joins xs along axis.
//
// Example:
//
//	a := tensor.Ones(tensor.Shape{2, 3})
//	b := tensor.Zeros(tensor.Shape{2, 3})
//	c := tensor.Concat([]*tensor.Tensor{a, b}, 0) // Shape: [4, 3]
func Concat(xs []*Tensor, axis int) *Tensor { return ops.Concat(xs, axis) }

// Slice extracts a block of x; a size of -1 extends to the end.
func Slice(x *Tensor, begin, size []int) *Tensor { return ops.Slice(x, begin, size) }

// Split cuts x along axis into pieces of the given sizes.
func Split(x *Tensor, sizes []int, axis int) []*Tensor { return ops.Split(x, sizes, axis) }

// TopK returns the k largest values along the last axis and their indices.
func TopK(x *Tensor, k int) (values, indices *Tensor) { return ops.TopK(x, k) }

// Memory functions

// Tidy runs fn and disposes every tensor it created except the ones
// reachable from its result and kept tensors.
func Tidy[T any](name string, fn func() T) T {
	return engine.Tidy(engine.Get(), name, fn)
}

// Keep exempts t from disposal by enclosing Tidy calls.
func Keep(t *Tensor) *Tensor { return engine.Get().Keep(t) }

// Utility functions

// BroadcastShapes computes the broadcast shape for two shapes following NumPy broadcasting rules.
// Returns the resulting shape and whether broadcasting is needed.
func BroadcastShapes(a, b Shape) (Shape, bool, error) {
	return tensor.BroadcastShapes(a, b)
}
