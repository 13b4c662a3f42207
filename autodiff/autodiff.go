// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package autodiff provides automatic differentiation capabilities.
//
// Gradients are computed in reverse mode. While a gradient function runs,
// the engine records every kernel on a tape; the tape is then filtered to
// the nodes between the inputs and the result and walked backwards using
// the gradient registered for each kernel.
//
// Example:
//
//	import (
//	    "github.com/born-ml/tfcore/autodiff"
//	    "github.com/born-ml/tfcore/tensor"
//	)
//
//	func main() {
//	    f := func(x *tensor.Tensor) *tensor.Tensor { return tensor.Square(x) }
//	    x := tensor.MustOf([]float32{1, 2, 3}, nil)
//	    dx, err := autodiff.Grad(f)(x, nil) // [2, 4, 6]
//	}
package autodiff

import (
	"github.com/born-ml/tfcore/internal/engine"
	"github.com/born-ml/tfcore/internal/ops"
	"github.com/born-ml/tfcore/tensor"
)

// Grad returns a function computing the gradient of f at x. The optional
// dy weights the result and must have the shape of f(x).
func Grad(f func(x *tensor.Tensor) *tensor.Tensor) func(x, dy *tensor.Tensor) (*tensor.Tensor, error) {
	return ops.Grad(f)
}

// Grads returns a function computing the gradients of f with respect to
// each of its arguments.
//
// Example:
//
//	g := autodiff.Grads(func(xs ...*tensor.Tensor) *tensor.Tensor {
//	    return tensor.Mul(xs[0], xs[1])
//	})
//	grads, err := g([]*tensor.Tensor{a, b}, nil) // [b, a]
func Grads(f func(xs ...*tensor.Tensor) *tensor.Tensor) func(xs []*tensor.Tensor, dy *tensor.Tensor) ([]*tensor.Tensor, error) {
	return ops.Grads(f)
}

// ValueAndGrad is Grad that also returns f(x).
func ValueAndGrad(f func(x *tensor.Tensor) *tensor.Tensor) func(x, dy *tensor.Tensor) (value, grad *tensor.Tensor, err error) {
	return ops.ValueAndGrad(f)
}

// ValueAndGrads is Grads that also returns f(xs...).
func ValueAndGrads(f func(xs ...*tensor.Tensor) *tensor.Tensor) func(xs []*tensor.Tensor, dy *tensor.Tensor) (value *tensor.Tensor, grads []*tensor.Tensor, err error) {
	return ops.ValueAndGrads(f)
}

// VariableGrads computes the value of the scalar f and its gradients with
// respect to varList, keyed by variable name. A nil varList means every
// trainable registered variable.
func VariableGrads(f func() *tensor.Tensor, varList []*tensor.Variable) (*tensor.Tensor, map[string]*tensor.Tensor, error) {
	return ops.VariableGrads(f, varList)
}

// SaveFunc stores tensors for use by a custom gradient.
type SaveFunc = engine.GradSaveFunc

// CustomGradResult is what a CustomGrad function returns: the forward value
// and a function mapping dy and the saved tensors to input gradients.
type CustomGradResult = engine.CustomGradResult

// CustomGrad wraps f so that its gradient is the one f supplies instead of
// the gradients of the kernels it runs.
//
// Example:
//
//	square := autodiff.CustomGrad(func(save autodiff.SaveFunc, xs ...*tensor.Tensor) autodiff.CustomGradResult {
//	    save([]*tensor.Tensor{xs[0]})
//	    return autodiff.CustomGradResult{
//	        Value: tensor.Square(xs[0]),
//	        GradFunc: func(dy *tensor.Tensor, saved []*tensor.Tensor) []*tensor.Tensor {
//	            return []*tensor.Tensor{tensor.Mul(dy, tensor.Mul(saved[0], tensor.Scalar(2)))}
//	        },
//	    }
//	})
func CustomGrad(f func(save SaveFunc, inputs ...*tensor.Tensor) CustomGradResult) func(inputs ...*tensor.Tensor) *tensor.Tensor {
	return ops.CustomGrad(f)
}
