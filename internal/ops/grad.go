package ops

import (
	"errors"
	"fmt"

	"github.com/born-ml/tfcore/internal/engine"
	"github.com/born-ml/tfcore/internal/tensor"
)

var errNoGradientPath = errors.New("cannot compute gradient of y=f(x) with respect to x; make sure that the f you passed encloses all operations that lead from x to y")

func checkGrads(grads []*tensor.Tensor) error {
	for _, g := range grads {
		if g == nil {
			return errNoGradientPath
		}
	}
	return nil
}

type valueAndGrads struct {
	value *tensor.Tensor
	grads []*tensor.Tensor
}

func (v valueAndGrads) ContainerTensors() []*tensor.Tensor {
	return append([]*tensor.Tensor{v.value}, v.grads...)
}

// valueAndGradsTidy runs the gradient computation in a tidy scope so
// intermediates are released; only the value (when keepValue) and the
// gradients survive.
func valueAndGradsTidy(f func() *tensor.Tensor, xs []*tensor.Tensor, dy *tensor.Tensor, api string, keepValue bool) (*tensor.Tensor, []*tensor.Tensor, error) {
	e := engine.Get()
	var err error
	res := engine.Tidy(e, "", func() valueAndGrads {
		value, grads, gerr := e.Gradients(f, xs, dy, false)
		if gerr != nil {
			err = gerr
			return valueAndGrads{}
		}
		if err = checkGrads(grads); err != nil {
			return valueAndGrads{}
		}
		if !keepValue {
			value = nil
		}
		return valueAndGrads{value: value, grads: grads}
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", api, err)
	}
	return res.value, res.grads, nil
}

// Grad returns a function computing df/dx. dy weights the result and may
// be nil.
func Grad(f func(x *tensor.Tensor) *tensor.Tensor) func(x, dy *tensor.Tensor) (*tensor.Tensor, error) {
	return func(x, dy *tensor.Tensor) (*tensor.Tensor, error) {
		if x == nil {
			return nil, errors.New("the x passed in grad(f)(x) must be a tensor")
		}
		_, grads, err := valueAndGradsTidy(func() *tensor.Tensor { return f(x) }, []*tensor.Tensor{x}, dy, "grad(f)(x, dy)", false)
		if err != nil {
			return nil, err
		}
		return grads[0], nil
	}
}

// Grads returns a function computing the gradients of f with respect to
// each of its arguments.
func Grads(f func(xs ...*tensor.Tensor) *tensor.Tensor) func(xs []*tensor.Tensor, dy *tensor.Tensor) ([]*tensor.Tensor, error) {
	return func(xs []*tensor.Tensor, dy *tensor.Tensor) ([]*tensor.Tensor, error) {
		if err := checkArgs(xs, "grads(f)(args)"); err != nil {
			return nil, err
		}
		_, grads, err := valueAndGradsTidy(func() *tensor.Tensor { return f(xs...) }, xs, dy, "grads(f)([x1,...], dy)", false)
		return grads, err
	}
}

// ValueAndGrad is Grad that also returns f(x).
func ValueAndGrad(f func(x *tensor.Tensor) *tensor.Tensor) func(x, dy *tensor.Tensor) (value, grad *tensor.Tensor, err error) {
	return func(x, dy *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, error) {
		if x == nil {
			return nil, nil, errors.New("the x passed in valueAndGrad(f)(x) must be a tensor")
		}
		value, grads, err := valueAndGradsTidy(func() *tensor.Tensor { return f(x) }, []*tensor.Tensor{x}, dy, "valueAndGrad(f)(x, dy)", true)
		if err != nil {
			return nil, nil, err
		}
		return value, grads[0], nil
	}
}

// ValueAndGrads is Grads that also returns f(xs...).
func ValueAndGrads(f func(xs ...*tensor.Tensor) *tensor.Tensor) func(xs []*tensor.Tensor, dy *tensor.Tensor) (value *tensor.Tensor, grads []*tensor.Tensor, err error) {
	return func(xs []*tensor.Tensor, dy *tensor.Tensor) (*tensor.Tensor, []*tensor.Tensor, error) {
		if err := checkArgs(xs, "valueAndGrads(f)(args)"); err != nil {
			return nil, nil, err
		}
		return valueAndGradsTidy(func() *tensor.Tensor { return f(xs...) }, xs, dy, "valueAndGrads(f)([x1,...], dy)", true)
	}
}

func checkArgs(xs []*tensor.Tensor, api string) error {
	if len(xs) == 0 {
		return fmt.Errorf("the args passed in %s must be a non-empty list of tensors", api)
	}
	for _, x := range xs {
		if x == nil {
			return fmt.Errorf("the args passed in %s must be a list of tensors", api)
		}
	}
	return nil
}

// VariableGrads computes the gradients of the scalar f() with respect to
// varList, or every registered trainable variable when varList is nil.
// Non-trainable variables named in varList map to nil gradients.
func VariableGrads(f func() *tensor.Tensor, varList []*tensor.Variable) (*tensor.Tensor, map[string]*tensor.Tensor, error) {
	e := engine.Get()
	specified := varList != nil
	if !specified {
		registered := e.RegisteredVariables()
		for _, name := range tensor.SortedNames(registered) {
			varList = append(varList, registered[name])
		}
	}

	var trainable, nonTrainable []*tensor.Variable
	for _, v := range varList {
		if v == nil {
			return nil, nil, errors.New("the varList passed in variableGrads(f, varList) must be a list of variables")
		}
		if v.Trainable() {
			trainable = append(trainable, v)
		} else if specified {
			nonTrainable = append(nonTrainable, v)
		}
	}
	if len(trainable) == 0 {
		return nil, nil, fmt.Errorf("variableGrads() expects at least one of the input variables to be trainable, but none of the %d variables is trainable", len(varList))
	}

	xs := make([]*tensor.Tensor, len(trainable))
	for i, v := range trainable {
		xs[i] = v.Tensor
	}
	value, grads, err := e.Gradients(f, xs, nil, true)
	if err != nil {
		return nil, nil, err
	}

	found := false
	for _, g := range grads {
		found = found || g != nil
	}
	if !found {
		return nil, nil, errors.New("cannot find a connection between any variable and the result of the loss function y=f(x); make sure the operations that use variables are inside the function f")
	}
	if value.Rank() != 0 {
		return nil, nil, fmt.Errorf("the f passed in variableGrads(f) must return a scalar, but it returned a rank-%d tensor", value.Rank())
	}

	named := make(map[string]*tensor.Tensor, len(varList))
	for i, v := range trainable {
		if grads[i] != nil {
			named[v.Name()] = grads[i]
		}
	}
	for _, v := range nonTrainable {
		named[v.Name()] = nil
	}
	return value, named, nil
}

// CustomGrad wraps f so that its gradient is the GradFunc it returns.
func CustomGrad(f func(save engine.GradSaveFunc, inputs ...*tensor.Tensor) engine.CustomGradResult) func(inputs ...*tensor.Tensor) *tensor.Tensor {
	return engine.Get().CustomGrad(f)
}
