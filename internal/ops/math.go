package ops

import (
	"github.com/born-ml/tfcore/internal/kernel"
	"github.com/born-ml/tfcore/internal/tensor"
)

func binary(kernelName string, a, b *tensor.Tensor) *tensor.Tensor {
	return run(kernelName, tensor.NamedTensorMap{"a": a, "b": b}, nil)
}

func unary(kernelName string, x *tensor.Tensor) *tensor.Tensor {
	return run(kernelName, tensor.NamedTensorMap{"x": x}, nil)
}

// Add returns a + b with broadcasting.
func Add(a, b *tensor.Tensor) *tensor.Tensor { return binary(kernel.Add, a, b) }

// Sub returns a - b with broadcasting.
func Sub(a, b *tensor.Tensor) *tensor.Tensor { return binary(kernel.Sub, a, b) }

// Mul returns a * b with broadcasting.
func Mul(a, b *tensor.Tensor) *tensor.Tensor { return binary(kernel.Multiply, a, b) }

// Div returns a / b with broadcasting as float32.
func Div(a, b *tensor.Tensor) *tensor.Tensor { return binary(kernel.RealDiv, a, b) }

// Equal returns a bool tensor marking where a == b.
func Equal(a, b *tensor.Tensor) *tensor.Tensor { return binary(kernel.Equal, a, b) }

// Neg returns -x.
func Neg(x *tensor.Tensor) *tensor.Tensor { return unary(kernel.Neg, x) }

// Square returns x * x.
func Square(x *tensor.Tensor) *tensor.Tensor { return unary(kernel.Square, x) }

// Sqrt returns the elementwise square root.
func Sqrt(x *tensor.Tensor) *tensor.Tensor { return unary(kernel.Sqrt, x) }

// Exp returns e^x.
func Exp(x *tensor.Tensor) *tensor.Tensor { return unary(kernel.Exp, x) }

// Log returns the natural logarithm.
func Log(x *tensor.Tensor) *tensor.Tensor { return unary(kernel.Log, x) }

// Relu returns max(x, 0).
func Relu(x *tensor.Tensor) *tensor.Tensor { return unary(kernel.Relu, x) }

// Step returns 1 where x > 0 and alpha elsewhere (NaN stays NaN).
func Step(x *tensor.Tensor, alpha float64) *tensor.Tensor {
	return run(kernel.Step, tensor.NamedTensorMap{"x": x}, kernel.Attrs{"alpha": alpha})
}

// Sum reduces x over axes (all axes when empty). Bool and int32 inputs sum
// to int32.
func Sum(x *tensor.Tensor, axes []int, keepDims bool) *tensor.Tensor {
	return run(kernel.Sum, tensor.NamedTensorMap{"x": x}, kernel.Attrs{"axis": axes, "keepDims": keepDims})
}

// Max reduces x over axes (all axes when empty).
func Max(x *tensor.Tensor, axes []int, keepDims bool) *tensor.Tensor {
	return run(kernel.Max, tensor.NamedTensorMap{"x": x}, kernel.Attrs{"axis": axes, "keepDims": keepDims})
}

// Norm returns the euclidean norm of x over axes (all axes when empty).
func Norm(x *tensor.Tensor, axes []int, keepDims bool) *tensor.Tensor {
	if x.DType() != tensor.Float32 {
		x = Cast(x, tensor.Float32)
	}
	return Sqrt(Sum(Square(x), axes, keepDims))
}

// MatMul multiplies the last two dimensions of a and b, optionally
// transposing either first. Leading dimensions broadcast.
func MatMul(a, b *tensor.Tensor, transposeA, transposeB bool) *tensor.Tensor {
	return run(kernel.BatchMatMul, tensor.NamedTensorMap{"a": a, "b": b},
		kernel.Attrs{"transposeA": transposeA, "transposeB": transposeB})
}
