// Package ops provides tensor operations as thin wrappers over kernel
// dispatch on the process-wide engine, plus the gradient API and the
// gradient registrations of every differentiable kernel.
//
// Operations panic on invalid arguments (shape mismatches, bad axes), the
// same way kernels do. Creation from user data and the gradient API return
// errors instead.
package ops

import (
	"fmt"

	"github.com/born-ml/tfcore/internal/engine"
	"github.com/born-ml/tfcore/internal/kernel"
	"github.com/born-ml/tfcore/internal/tensor"
)

func run(kernelName string, inputs tensor.NamedTensorMap, attrs kernel.Attrs) *tensor.Tensor {
	return engine.Get().RunKernel(kernelName, inputs, attrs)[0]
}

// TensorOf creates a tensor from flat values ([]float32, []int32 or []bool)
// and a shape. A nil shape makes a 1D tensor.
func TensorOf(values tensor.Values, shape tensor.Shape) (*tensor.Tensor, error) {
	dtype, ok := tensor.ValuesDType(values)
	if !ok {
		return nil, fmt.Errorf("tensor values must be []float32, []int32 or []bool, got %T", values)
	}
	return TensorOfType(values, shape, dtype)
}

// TensorOfType creates a tensor of dtype, converting values if needed.
func TensorOfType(values tensor.Values, shape tensor.Shape, dtype tensor.DataType) (*tensor.Tensor, error) {
	if _, ok := tensor.ValuesDType(values); !ok {
		return nil, fmt.Errorf("tensor values must be []float32, []int32 or []bool, got %T", values)
	}
	if shape == nil {
		shape = tensor.Shape{tensor.ValuesLen(values)}
	}
	return engine.Get().MakeTensor(values, shape, dtype, nil)
}

// MustTensorOf is TensorOf for values known to be valid. It panics on error.
func MustTensorOf(values tensor.Values, shape tensor.Shape) *tensor.Tensor {
	t, err := TensorOf(values, shape)
	if err != nil {
		panic(err)
	}
	return t
}

// Scalar creates a rank-0 float32 tensor.
func Scalar(v float64) *tensor.Tensor {
	return Fill(tensor.Shape{}, v, tensor.Float32)
}

// Fill creates a tensor of shape with every element set to v.
func Fill(shape tensor.Shape, v float64, dtype tensor.DataType) *tensor.Tensor {
	return run(kernel.Fill, nil, kernel.Attrs{"shape": []int(shape), "value": v, "dtype": dtype})
}

// Zeros creates a float32 tensor of zeros.
func Zeros(shape tensor.Shape) *tensor.Tensor {
	return Fill(shape, 0, tensor.Float32)
}

// Ones creates a float32 tensor of ones.
func Ones(shape tensor.Shape) *tensor.Tensor {
	return Fill(shape, 1, tensor.Float32)
}

// ZerosLike creates zeros with the shape and dtype of x.
func ZerosLike(x *tensor.Tensor) *tensor.Tensor {
	return run(kernel.ZerosLike, tensor.NamedTensorMap{"x": x}, nil)
}

// OnesLike creates ones with the shape and dtype of x.
func OnesLike(x *tensor.Tensor) *tensor.Tensor {
	return run(kernel.OnesLike, tensor.NamedTensorMap{"x": x}, nil)
}

// Clone returns a new tensor sharing the buffer of x.
func Clone(x *tensor.Tensor) *tensor.Tensor {
	return run(kernel.Identity, tensor.NamedTensorMap{"x": x}, nil)
}

// Variable creates a registered variable initialized from initial. An
// empty name gets a generated one.
func Variable(initial *tensor.Tensor, trainable bool, name string) (*tensor.Variable, error) {
	return engine.Get().MakeVariable(initial, trainable, name, initial.DType())
}
