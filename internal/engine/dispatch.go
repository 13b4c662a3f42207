package engine

import (
	"fmt"

	"github.com/born-ml/tfcore/internal/backend"
	"github.com/born-ml/tfcore/internal/env"
	"github.com/born-ml/tfcore/internal/kernel"
	"github.com/born-ml/tfcore/internal/profiler"
	"github.com/born-ml/tfcore/internal/tensor"
)

// ForwardFunc computes a custom (unregistered) kernel. Tensors passed to
// save are kept for the backward pass when the tape is recording.
type ForwardFunc func(b backend.KernelBackend, save func(tensors []*tensor.Tensor)) []*tensor.Tensor

type kernelParams struct {
	kernelName string
	inputs     tensor.NamedTensorMap
	attrs      kernel.Attrs

	// Set for custom kernels only.
	forwardFunc   ForwardFunc
	backwardsFunc kernel.GradFunc
}

// RunKernel executes a registered kernel on the active backend. It panics
// when the kernel is not registered for that backend or the kernel fails.
func (e *Engine) RunKernel(kernelName string, inputs tensor.NamedTensorMap, attrs kernel.Attrs) []*tensor.Tensor {
	return e.runKernelFunc(kernelParams{kernelName: kernelName, inputs: inputs, attrs: attrs})
}

// RunForward executes a custom kernel named after the active scope. The
// optional gradient is used when the tape records the call.
func (e *Engine) RunForward(inputs tensor.NamedTensorMap, forward ForwardFunc, gradient kernel.GradFunc) []*tensor.Tensor {
	return e.runKernelFunc(kernelParams{inputs: inputs, forwardFunc: forward, backwardsFunc: gradient})
}

func (e *Engine) isTapeOn() bool {
	return e.state.gradientDepth > 0 && e.state.kernelDepth == 0
}

func (e *Engine) runKernelFunc(params kernelParams) []*tensor.Tensor {
	var saved []*tensor.Tensor
	isTapeOn := e.isTapeOn()
	startingBytes := e.state.numBytes
	startingTensors := e.state.numTensors

	checkLeaks := e.shouldCheckForMemLeaks()
	if checkLeaks {
		e.state.numDataMovesStack = append(e.state.numDataMovesStack, 0)
		defer func() {
			e.state.numDataMovesStack = e.state.numDataMovesStack[:len(e.state.numDataMovesStack)-1]
		}()
	}

	b := e.mustBackend()
	registered := params.forwardFunc == nil

	kernelOrScopeName := params.kernelName
	if !registered {
		kernelOrScopeName = e.scopeName()
	}

	var kernelFunc func() []*tensor.Tensor
	if registered {
		backendName := e.BackendName()
		config := kernel.Get(params.kernelName, backendName)
		if config == nil {
			panic(fmt.Sprintf("kernel '%s' not registered for backend '%s'", params.kernelName, backendName))
		}
		kernelFunc = func() []*tensor.Tensor {
			numDataIDsBefore := b.NumDataIDs()
			infos, err := config.KernelFunc(kernel.Input{Inputs: params.inputs, Backend: b, Attrs: params.attrs})
			if err != nil {
				panic(fmt.Sprintf("kernel '%s' failed: %v", params.kernelName, err))
			}
			if checkLeaks {
				e.checkKernelForMemLeak(b, params.kernelName, numDataIDsBefore, len(infos))
			}
			outputs := make([]*tensor.Tensor, len(infos))
			for i, info := range infos {
				outputs[i] = e.MakeTensorFromInfo(info, b)
			}
			if isTapeOn {
				saved = e.saveTensorsForBackwardMode(tensorsForGradient(params.kernelName, params.inputs, outputs))
			}
			return outputs
		}
	} else {
		save := func(tensors []*tensor.Tensor) {
			if !isTapeOn {
				return
			}
			saved = e.saveTensorsForBackwardMode(tensors)
		}
		kernelFunc = func() []*tensor.Tensor {
			numDataIDsBefore := b.NumDataIDs()
			outputs := Tidy(e, "", func() []*tensor.Tensor { return params.forwardFunc(b, save) })
			if checkLeaks {
				e.checkKernelForMemLeak(b, kernelOrScopeName, numDataIDsBefore, len(outputs))
			}
			return outputs
		}
	}

	var (
		outputs []*tensor.Tensor
		kp      profiler.KernelProfile
	)
	scopedRun(
		func() { e.state.kernelDepth++ },
		func() { e.state.kernelDepth-- },
		func() {
			debug := e.env.GetBool(env.FlagDebug)
			if !debug && !e.state.profiling {
				outputs = kernelFunc()
				return
			}
			p := e.profiler
			if p == nil {
				p = profiler.New(b, e.env, e.logger)
			}
			kp = p.ProfileKernel(kernelOrScopeName, params.inputs, kernelFunc)
			if debug {
				p.LogKernelProfile(kp)
			}
			outputs = kp.Outputs
		},
	)

	if isTapeOn {
		e.addTapeNode(kernelOrScopeName, params.inputs, outputs, params.backwardsFunc, saved, params.attrs)
	}

	if e.state.profiling {
		inputShapes := make([]tensor.Shape, 0, len(params.inputs))
		for _, name := range tensor.SortedNames(params.inputs) {
			if in := params.inputs[name]; in != nil {
				inputShapes = append(inputShapes, in.Shape())
			} else {
				inputShapes = append(inputShapes, nil)
			}
		}
		outputShapes := make([]tensor.Shape, len(outputs))
		for i, out := range outputs {
			outputShapes[i] = out.Shape()
		}
		e.state.activeProfile.Kernels = append(e.state.activeProfile.Kernels, KernelInfo{
			Name:                 kernelOrScopeName,
			BytesAdded:           e.state.numBytes - startingBytes,
			TotalBytesSnapshot:   e.state.numBytes,
			TensorsAdded:         e.state.numTensors - startingTensors,
			TotalTensorsSnapshot: e.state.numTensors,
			InputShapes:          inputShapes,
			OutputShapes:         outputShapes,
			KernelTimeMs:         kp.TimeMs,
			ExtraInfo:            kp.ExtraInfo,
		})
	}
	return outputs
}

func (e *Engine) checkKernelForMemLeak(b backend.KernelBackend, kernelName string, numDataIDsBefore, numOutputs int) {
	numMoves := 0
	if n := len(e.state.numDataMovesStack); n > 0 {
		numMoves = e.state.numDataMovesStack[n-1]
	}
	leaked := b.NumDataIDs() - numDataIDsBefore - numOutputs - numMoves
	if leaked > 0 {
		panic(fmt.Sprintf("backend '%s' has an internal memory leak (%d data ids) after running '%s'",
			e.BackendName(), leaked, kernelName))
	}
}

// tensorsForGradient picks the inputs and outputs the kernel's gradient
// declared it needs.
func tensorsForGradient(kernelName string, inputs tensor.NamedTensorMap, outputs []*tensor.Tensor) []*tensor.Tensor {
	config := kernel.Gradient(kernelName)
	if config == nil {
		return nil
	}

	var toSave []*tensor.Tensor
	if config.SaveAllInputs {
		for _, name := range tensor.SortedNames(inputs) {
			toSave = append(toSave, inputs[name])
		}
	} else {
		for _, name := range config.InputsToSave {
			toSave = append(toSave, inputs[name])
		}
	}
	for i, out := range outputs {
		if i < len(config.OutputsToSave) && config.OutputsToSave[i] {
			toSave = append(toSave, out)
		}
	}
	return toSave
}

func (e *Engine) saveTensorsForBackwardMode(tensors []*tensor.Tensor) []*tensor.Tensor {
	saved := make([]*tensor.Tensor, len(tensors))
	for i, t := range tensors {
		saved[i] = e.Keep(e.Clone(t))
	}
	return saved
}

// Clone returns a new tensor sharing x's buffer.
func (e *Engine) Clone(x *tensor.Tensor) *tensor.Tensor {
	return e.RunKernel(kernel.Identity, tensor.NamedTensorMap{"x": x}, nil)[0]
}

func (e *Engine) addTapeNode(
	kernelName string,
	inputs tensor.NamedTensorMap,
	outputs []*tensor.Tensor,
	gradFunc kernel.GradFunc,
	saved []*tensor.Tensor,
	attrs kernel.Attrs,
) {
	node := &TapeNode{
		ID:         e.state.nextTapeNodeID,
		KernelName: kernelName,
		Inputs:     inputs,
		Outputs:    outputs,
		Saved:      saved,
	}
	e.state.nextTapeNodeID++

	if config := kernel.Gradient(kernelName); config != nil {
		gradFunc = config.GradFunc
	}
	if gradFunc != nil {
		node.Gradient = func(dys []*tensor.Tensor) kernel.NamedGradientMap {
			filled := make([]*tensor.Tensor, len(dys))
			for i, dy := range dys {
				if dy != nil {
					filled[i] = dy
					continue
				}
				out := outputs[i]
				zeros, err := e.MakeTensor(tensor.MakeZeros(out.Size(), out.DType()), out.Shape(), out.DType(), nil)
				if err != nil {
					panic(err)
				}
				filled[i] = zeros
			}
			return gradFunc(filled, saved, attrs)
		}
	}
	e.state.activeTape = append(e.state.activeTape, node)
}
