package engine

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/born-ml/tfcore/internal/backend"
	"github.com/born-ml/tfcore/internal/kernel"
	"github.com/born-ml/tfcore/internal/tensor"
)

type gradientsResult struct {
	value *tensor.Tensor
	grads []*tensor.Tensor
	err   error
}

func (r gradientsResult) ContainerTensors() []*tensor.Tensor {
	return append([]*tensor.Tensor{r.value}, r.grads...)
}

func (e *Engine) startTape() {
	if e.state.gradientDepth == 0 {
		e.state.activeTape = nil
	}
	e.state.gradientDepth++
}

func (e *Engine) endTape() {
	e.state.gradientDepth--
}

// Gradients computes y = f() and the gradients of y with respect to xs.
// dy weights the result and defaults to ones shaped like y. A gradient in
// the returned slice is nil when x does not influence y.
//
// Unless allowNoGradients is set, an error is returned when no recorded
// kernel connects xs to y.
func (e *Engine) Gradients(f func() *tensor.Tensor, xs []*tensor.Tensor, dy *tensor.Tensor, allowNoGradients bool) (*tensor.Tensor, []*tensor.Tensor, error) {
	if len(xs) == 0 {
		return nil, nil, errors.New("gradients() received an empty list of xs")
	}
	if dy != nil && dy.DType() != tensor.Float32 {
		return nil, nil, fmt.Errorf("dy must have 'float32' dtype, but has '%s'", dy.DType())
	}

	var y *tensor.Tensor
	scopedRun(e.startTape, e.endTape, func() {
		y = Tidy(e, "forward", f)
	})
	if y == nil {
		e.releaseTape()
		return nil, nil, errors.New("the result y returned by f() must be a tensor")
	}

	if dy != nil && !dy.Shape().Equal(y.Shape()) {
		e.releaseTape()
		return nil, nil, fmt.Errorf("the shape of dy must match the shape returned by f(x): %v vs %v",
			[]int(dy.Shape()), []int(y.Shape()))
	}

	filteredTape := FilteredNodesXToY(e.state.activeTape, xs, y)
	if !allowNoGradients && len(filteredTape) == 0 {
		e.releaseTape()
		return nil, nil, errors.New("cannot compute gradient of y=f(x) with respect to x; make sure that the f you passed encloses all operations that lead from x to y")
	}

	res := Tidy(e, "backward", func() gradientsResult {
		defer e.releaseTape()

		acc := make(map[int]*tensor.Tensor)
		if dy == nil {
			ones, err := e.MakeTensor(tensor.MakeOnes(y.Size(), tensor.Float32), y.Shape(), tensor.Float32, nil)
			if err != nil {
				return gradientsResult{err: err}
			}
			acc[y.ID()] = ones
		} else {
			acc[y.ID()] = dy
		}

		tidy := func(f func() *tensor.Tensor) *tensor.Tensor { return Tidy(e, "", f) }
		add := func(a, b *tensor.Tensor) *tensor.Tensor {
			return e.RunKernel(kernel.Add, tensor.NamedTensorMap{"a": a, "b": b}, nil)[0]
		}
		if err := BackpropagateGradients(acc, filteredTape, tidy, add); err != nil {
			return gradientsResult{err: err}
		}

		grads := make([]*tensor.Tensor, len(xs))
		for i, x := range xs {
			grads[i] = acc[x.ID()]
		}
		return gradientsResult{value: y, grads: grads}
	})
	if res.err != nil {
		return nil, nil, res.err
	}
	return res.value, res.grads, nil
}

// releaseTape disposes the tensors saved for the backward pass once the
// outermost gradient computation is done.
func (e *Engine) releaseTape() {
	if e.state.gradientDepth != 0 {
		return
	}
	for _, node := range e.state.activeTape {
		for _, t := range node.Saved {
			t.Dispose()
		}
	}
	e.state.activeTape = nil
}

// GradSaveFunc saves tensors from a custom forward pass for its gradient.
type GradSaveFunc func(tensors []*tensor.Tensor)

// CustomGradResult is returned by the function wrapped with CustomGrad.
// GradFunc receives the output gradient and the saved tensors and returns
// one gradient per input.
type CustomGradResult struct {
	Value    *tensor.Tensor
	GradFunc func(dy *tensor.Tensor, saved []*tensor.Tensor) []*tensor.Tensor
}

// CustomGrad wraps f so that its gradient is GradFunc instead of the
// gradient of the kernels f runs. The returned function panics when f or
// its GradFunc break the contract.
func (e *Engine) CustomGrad(f func(save GradSaveFunc, inputs ...*tensor.Tensor) CustomGradResult) func(inputs ...*tensor.Tensor) *tensor.Tensor {
	return func(inputs ...*tensor.Tensor) *tensor.Tensor {
		inputMap := make(tensor.NamedTensorMap, len(inputs))
		for i, in := range inputs {
			if in == nil {
				panic("the args passed in customGrad(f)(x1, x2,...) must all be tensors")
			}
			inputMap[strconv.Itoa(i)] = in
		}

		var res CustomGradResult
		forward := func(_ backend.KernelBackend, save func([]*tensor.Tensor)) []*tensor.Tensor {
			res = f(save, inputs...)
			if res.Value == nil {
				panic("the function f passed in customGrad(f) must return an object where obj.Value is a tensor")
			}
			if res.GradFunc == nil {
				panic("the function f passed in customGrad(f) must return an object where obj.GradFunc is a function")
			}
			return []*tensor.Tensor{res.Value}
		}
		gradient := func(dys, saved []*tensor.Tensor, _ kernel.Attrs) kernel.NamedGradientMap {
			grads := res.GradFunc(dys[0], saved)
			if len(grads) != len(inputs) {
				panic("the function f passed in customGrad(f) must return an object where obj.GradFunc is a function that returns the same number of tensors as inputs passed to f(...)")
			}
			gradMap := make(kernel.NamedGradientMap, len(grads))
			for i, g := range grads {
				if g == nil {
					panic("the function f passed in customGrad(f) must return an object where obj.GradFunc is a function that returns a list of only tensors")
				}
				gradMap[strconv.Itoa(i)] = func() *tensor.Tensor { return g }
			}
			return gradMap
		}
		return e.RunForward(inputMap, forward, gradient)[0]
	}
}
