package engine

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strconv"
	"time"

	"github.com/born-ml/tfcore/internal/backend"
	"github.com/born-ml/tfcore/internal/env"
	"github.com/born-ml/tfcore/internal/kernel"
	"github.com/born-ml/tfcore/internal/tensor"
)

// MakeTensor writes values to a backend (the active one when b is nil) and
// returns a tracked tensor. Values of another dtype are converted.
func (e *Engine) MakeTensor(values tensor.Values, shape tensor.Shape, dtype tensor.DataType, b backend.KernelBackend) (*tensor.Tensor, error) {
	if values == nil {
		return nil, errors.New("values passed to MakeTensor are nil")
	}
	if _, ok := tensor.ValuesDType(values); !ok {
		return nil, fmt.Errorf("unsupported values type %T", values)
	}
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	if n := tensor.ValuesLen(values); n != shape.NumElements() {
		return nil, fmt.Errorf("based on the provided shape, %v, the tensor should have %d values but has %d",
			[]int(shape), shape.NumElements(), n)
	}
	values = tensor.ConvertValues(values, dtype)

	if b == nil {
		var err error
		if b, err = e.Backend(); err != nil {
			return nil, err
		}
	}
	id := b.Write(values, shape, dtype)
	t := tensor.New(shape, dtype, id, newTensorID(), e)
	e.trackTensor(t, b)
	return t, nil
}

// MakeTensorFromDataID wraps an existing backend buffer in a new tracked
// tensor.
func (e *Engine) MakeTensorFromDataID(id tensor.DataID, shape tensor.Shape, dtype tensor.DataType, b backend.KernelBackend) *tensor.Tensor {
	t := tensor.New(shape, dtype, id, newTensorID(), e)
	e.trackTensor(t, b)
	return t
}

// MakeTensorFromInfo wraps a kernel output in a new tracked tensor.
func (e *Engine) MakeTensorFromInfo(info tensor.TensorInfo, b backend.KernelBackend) *tensor.Tensor {
	return e.MakeTensorFromDataID(info.DataID, info.Shape, info.DType, b)
}

// MakeVariable registers a variable initialized from initial. An empty
// name gets a generated one. The initial value is cast when dtype differs.
func (e *Engine) MakeVariable(initial *tensor.Tensor, trainable bool, name string, dtype tensor.DataType) (*tensor.Variable, error) {
	if name == "" {
		name = strconv.Itoa(newVariableID())
	}
	if _, ok := e.state.registeredVariables[name]; ok {
		return nil, fmt.Errorf("variable with name %s was already registered", name)
	}
	if dtype != initial.DType() {
		initial = e.RunKernel(kernel.Cast, tensor.NamedTensorMap{"x": initial}, kernel.Attrs{"dtype": dtype})[0]
	}
	v := tensor.NewVariable(initial, trainable, name, newTensorID(), e)
	e.state.registeredVariables[name] = v
	e.IncRef(v.Tensor)
	return v, nil
}

// RegisteredVariables returns the registered variables by name.
func (e *Engine) RegisteredVariables() map[string]*tensor.Variable {
	return maps.Clone(e.state.registeredVariables)
}

func (e *Engine) trackTensor(t *tensor.Tensor, b backend.KernelBackend) {
	e.state.numTensors++
	bytes := t.Size() * t.DType().BytesPerElement()
	e.state.numBytes += bytes

	if _, ok := e.state.tensorInfo[t.DataID()]; !ok {
		if b == nil {
			b = e.mustBackend()
		}
		e.state.numDataBuffers++
		e.state.tensorInfo[t.DataID()] = &dataInfo{
			backend: b,
			bytes:   bytes,
			dtype:   t.DType(),
			shape:   t.Shape(),
		}
	}
	if !t.IsVariable() {
		e.track(t)
	}
}

// IncRef tracks t and increments the refcount of its buffer.
func (e *Engine) IncRef(t *tensor.Tensor) {
	e.trackTensor(t, nil)
	info := e.state.tensorInfo[t.DataID()]
	info.backend.IncRef(t.DataID())
}

// DisposeTensor releases t's share of its buffer.
func (e *Engine) DisposeTensor(t *tensor.Tensor) {
	info, ok := e.state.tensorInfo[t.DataID()]
	if !ok {
		return
	}
	e.state.numTensors--
	e.state.numBytes -= t.Size() * t.DType().BytesPerElement()

	if info.backend.DisposeData(t.DataID(), false) {
		e.removeDataID(t.DataID(), info.backend)
	}
}

func (e *Engine) removeDataID(id tensor.DataID, b backend.KernelBackend) {
	if info, ok := e.state.tensorInfo[id]; ok && info.backend == b {
		delete(e.state.tensorInfo, id)
		e.state.numDataBuffers--
	}
}

// DisposeVariable releases the variable and unregisters its name.
func (e *Engine) DisposeVariable(v *tensor.Variable) {
	e.DisposeTensor(v.Tensor)
	if registered, ok := e.state.registeredVariables[v.Name()]; ok && registered == v {
		delete(e.state.registeredVariables, v.Name())
	}
}

// DisposeVariables disposes every registered variable.
func (e *Engine) DisposeVariables() {
	for _, name := range tensor.SortedNames(e.state.registeredVariables) {
		e.state.registeredVariables[name].Dispose()
	}
}

// Memory reports engine and backend memory usage.
func (e *Engine) Memory() MemoryInfo {
	info := MemoryInfo{
		NumTensors:     e.state.numTensors,
		NumDataBuffers: e.state.numDataBuffers,
		NumBytes:       e.state.numBytes,
	}
	if b, err := e.Backend(); err == nil {
		bm := b.Memory()
		info.NumBytesInBackend = bm.NumBytesInBackend
		info.Unreliable = bm.Unreliable
		info.Reasons = bm.Reasons
	}
	return info
}

// MoveData migrates a buffer from its current backend to b. Backends call
// it through their DataStorage when a kernel consumes foreign data.
func (e *Engine) MoveData(b backend.KernelBackend, id tensor.DataID) {
	info, ok := e.state.tensorInfo[id]
	if !ok {
		return
	}
	src := info.backend
	values := e.ReadSync(id)
	refCount := src.RefCount(id)
	src.DisposeData(id, true)
	info.backend = b
	b.Move(id, values, info.shape, info.dtype, refCount)
	if e.shouldCheckForMemLeaks() && len(e.state.numDataMovesStack) > 0 {
		e.state.numDataMovesStack[len(e.state.numDataMovesStack)-1]++
	}
}

// ReadSync reads a buffer from whichever backend holds it.
func (e *Engine) ReadSync(id tensor.DataID) tensor.Values {
	info, ok := e.state.tensorInfo[id]
	if !ok {
		panic(fmt.Sprintf("no tensor data found for %s", id))
	}
	return info.backend.ReadSync(id)
}

// Read reads a buffer, waiting on the backend if needed.
func (e *Engine) Read(ctx context.Context, id tensor.DataID) (tensor.Values, error) {
	info, ok := e.state.tensorInfo[id]
	if !ok {
		return nil, fmt.Errorf("no tensor data found for %s", id)
	}
	return info.backend.Read(ctx, id)
}

// Time measures f on the active backend and adds the wall time.
func (e *Engine) Time(f func()) (backend.TimingInfo, error) {
	b, err := e.Backend()
	if err != nil {
		return backend.TimingInfo{}, err
	}
	start := time.Now()
	timing, err := b.Time(f)
	if err != nil {
		return timing, err
	}
	timing.WallMs = float64(time.Since(start).Nanoseconds()) / 1e6
	return timing, nil
}

func (e *Engine) shouldCheckForMemLeaks() bool {
	return e.env.GetBool(env.FlagIsTest)
}

// Keep exempts t from disposal by enclosing tidy scopes.
func (e *Engine) Keep(t *tensor.Tensor) *tensor.Tensor {
	t.MarkKept()
	return t
}

func (e *Engine) track(t *tensor.Tensor) {
	if e.state.activeScope != nil {
		t.SetScopeID(e.state.activeScope.id)
		e.state.activeScope.track = append(e.state.activeScope.track, t)
	}
}

// StartScope opens a tidy scope. Tensors created until the matching
// EndScope are tracked by it.
func (e *Engine) StartScope(name string) {
	scope := &scopeState{name: "unnamed scope", id: e.state.nextScopeID}
	e.state.nextScopeID++
	if name != "" {
		scope.name = name
	}
	e.state.scopeStack = append(e.state.scopeStack, scope)
	e.state.activeScope = scope
}

// EndScope closes the active scope. Tensors it tracked are disposed unless
// kept or contained in result; those in result move to the parent scope.
func (e *Engine) EndScope(result any) {
	keep := tensor.TensorsInContainer(result)
	keepIDs := make(map[int]bool, len(keep))
	for _, t := range keep {
		keepIDs[t.ID()] = true
	}

	if !e.env.GetBool(env.FlagKeepIntermediateTensors) {
		for _, t := range e.state.activeScope.track {
			if !t.Kept() && !keepIDs[t.ID()] {
				t.Dispose()
			}
		}
	}

	old := e.state.scopeStack[len(e.state.scopeStack)-1]
	e.state.scopeStack = e.state.scopeStack[:len(e.state.scopeStack)-1]
	if len(e.state.scopeStack) == 0 {
		e.state.activeScope = nil
	} else {
		e.state.activeScope = e.state.scopeStack[len(e.state.scopeStack)-1]
	}

	for _, t := range keep {
		if !t.Kept() && t.ScopeID() == old.id {
			e.track(t)
		}
	}
}

func (e *Engine) scopeName() string {
	if e.state.activeScope == nil {
		return ""
	}
	return e.state.activeScope.name
}

// scopedRun runs f between start and end; end also runs when f panics.
func scopedRun(start, end func(), f func()) {
	start()
	defer end()
	f()
}

// Tidy runs fn in a new scope and disposes every tensor created inside it
// except the ones reachable from the returned value and kept tensors.
func Tidy[T any](e *Engine, name string, fn func() T) T {
	var result T
	scopedRun(
		func() { e.StartScope(name) },
		func() { e.EndScope(result) },
		func() { result = fn() },
	)
	return result
}
