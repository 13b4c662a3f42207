// Package engine implements the tensor engine: it owns the active backend,
// dispatches kernels, records the gradient tape, reference-counts tensor
// buffers and disposes intermediates at the end of tidy scopes.
//
// Architecture:
//   - Backend registry: named factories with priorities, lazily initialized
//   - Kernel dispatch: RunKernel looks up (kernel, backend) in the kernel registry
//   - Tape: kernels executed under Gradients are recorded and walked backwards
//   - Memory: per-DataID bookkeeping plus scope-based disposal (Tidy)
//
// The engine is not safe for concurrent kernel execution; callers serialize
// access. Only the backend registry is guarded, because asynchronous backend
// initialization completes on its own goroutine.
package engine

import (
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/born-ml/tfcore/internal/backend"
	"github.com/born-ml/tfcore/internal/env"
	"github.com/born-ml/tfcore/internal/kernel"
	"github.com/born-ml/tfcore/internal/profiler"
	"github.com/born-ml/tfcore/internal/tensor"
)

// ErrNoBackend is returned when no registered backend could be initialized.
var ErrNoBackend = errors.New("could not initialize any backends, all backend initializations failed")

var (
	nextTensorID   atomic.Int64
	nextVariableID atomic.Int64
)

func newTensorID() int   { return int(nextTensorID.Add(1) - 1) }
func newVariableID() int { return int(nextVariableID.Add(1) - 1) }

type scopeState struct {
	track []*tensor.Tensor
	name  string
	id    int
}

type dataInfo struct {
	backend backend.KernelBackend
	bytes   int
	dtype   tensor.DataType
	shape   tensor.Shape
}

// KernelInfo is one entry of a profile.
type KernelInfo struct {
	Name                 string
	BytesAdded           int
	TotalBytesSnapshot   int
	TensorsAdded         int
	TotalTensorsSnapshot int
	InputShapes          []tensor.Shape
	OutputShapes         []tensor.Shape
	KernelTimeMs         float64
	ExtraInfo            string
}

// ProfileInfo summarizes the kernels executed inside Profile.
type ProfileInfo struct {
	NewBytes    int
	NewTensors  int
	PeakBytes   int
	Kernels     []KernelInfo
	KernelNames []string
	Result      any
}

// MemoryInfo is the engine memory report.
type MemoryInfo struct {
	NumTensors        int
	NumDataBuffers    int
	NumBytes          int
	NumBytesInBackend int
	Unreliable        bool
	Reasons           []string
}

type state struct {
	registeredVariables map[string]*tensor.Variable

	nextTapeNodeID int
	numBytes       int
	numTensors     int
	numDataBuffers int

	activeTape    []*TapeNode
	gradientDepth int
	kernelDepth   int

	activeScope       *scopeState
	scopeStack        []*scopeState
	numDataMovesStack []int
	nextScopeID       int

	tensorInfo map[tensor.DataID]*dataInfo

	profiling     bool
	activeProfile ProfileInfo
}

func newState() *state {
	return &state{
		registeredVariables: make(map[string]*tensor.Variable),
		tensorInfo:          make(map[tensor.DataID]*dataInfo),
	}
}

func (s *state) dispose() {
	for _, name := range tensor.SortedNames(s.registeredVariables) {
		s.registeredVariables[name].Dispose()
	}
}

type factoryEntry struct {
	factory  backend.Factory
	priority int
	async    bool
	order    int
}

type pendingInit struct {
	id      int
	name    string
	done    chan struct{}
	success bool
}

// Engine is the tensor engine.
type Engine struct {
	env *env.Environment

	mu              sync.Mutex
	registry        map[string]backend.KernelBackend
	registryFactory map[string]*factoryEntry
	registrations   int
	backendName     string
	backendInstance backend.KernelBackend
	pendingInit     *pendingInit
	pendingInitID   int
	initGroup       singleflight.Group

	profiler *profiler.Profiler
	logger   profiler.Logger
	state    *state
}

// New creates an engine reading flags from environment.
func New(environment *env.Environment) *Engine {
	return &Engine{
		env:             environment,
		registry:        make(map[string]backend.KernelBackend),
		registryFactory: make(map[string]*factoryEntry),
		state:           newState(),
	}
}

// Env returns the engine's flag environment.
func (e *Engine) Env() *env.Environment {
	return e.env
}

// SetProfileLogger replaces the logger used for DEBUG kernel profiles.
func (e *Engine) SetProfileLogger(l profiler.Logger) {
	e.logger = l
	if e.profiler != nil && e.backendInstance != nil {
		e.profiler = profiler.New(e.backendInstance, e.env, l)
	}
}

var (
	globalMu sync.Mutex
	global   *Engine
)

// Get returns the process-wide engine, creating it on first use.
func Get() *Engine {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		global = New(env.Default())
	}
	return global
}

// Set replaces the process-wide engine and returns the previous one.
func Set(e *Engine) *Engine {
	globalMu.Lock()
	defer globalMu.Unlock()
	prev := global
	global = e
	return prev
}

// Reset disposes every variable and backend instance and resets the flag
// environment. Backend factories stay registered.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.pendingInitID++
	instances := e.registry
	e.registry = make(map[string]backend.KernelBackend)
	e.backendName = ""
	e.backendInstance = nil
	e.pendingInit = nil
	e.mu.Unlock()

	e.state.dispose()
	e.env.Reset()
	e.state = newState()
	e.profiler = nil

	for _, name := range tensor.SortedNames(instances) {
		disposeRegisteredKernels(name, instances[name])
		instances[name].Dispose()
	}
}

func disposeRegisteredKernels(backendName string, b backend.KernelBackend) {
	for _, k := range kernel.ForBackend(backendName) {
		if k.DisposeFunc != nil {
			k.DisposeFunc(b)
		}
	}
}
