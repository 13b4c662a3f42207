// Package kernel holds the global kernel and gradient registries.
//
// A kernel is identified by (kernel name, backend name). Gradients are
// backend independent and are identified by kernel name only.
package kernel

import (
	"fmt"
	"log/slog"
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/born-ml/tfcore/internal/backend"
	"github.com/born-ml/tfcore/internal/tensor"
)

// Input is what a kernel function receives.
type Input struct {
	Inputs  tensor.NamedTensorMap
	Backend backend.KernelBackend
	Attrs   Attrs
}

// Func computes a kernel and returns descriptors of the buffers it wrote.
type Func func(in Input) ([]tensor.TensorInfo, error)

// SetupFunc runs when the kernel's backend becomes active.
type SetupFunc func(b backend.KernelBackend)

// DisposeFunc runs when the kernel's backend is removed.
type DisposeFunc func(b backend.KernelBackend)

// Config registers a kernel implementation for one backend.
type Config struct {
	KernelName  string
	BackendName string
	KernelFunc  Func
	SetupFunc   SetupFunc
	DisposeFunc DisposeFunc
}

// NamedGradientMap maps input names to lazily evaluated gradients.
type NamedGradientMap map[string]func() *tensor.Tensor

// GradFunc computes input gradients from output gradients (dys), the tensors
// saved during the forward pass and the kernel attributes.
type GradFunc func(dys []*tensor.Tensor, saved []*tensor.Tensor, attrs Attrs) NamedGradientMap

// GradConfig registers the gradient of a kernel.
//
// InputsToSave names the inputs kept for the backward pass, OutputsToSave
// flags outputs by position. SaveAllInputs saves every input in name order
// (used by variadic kernels).
type GradConfig struct {
	KernelName    string
	InputsToSave  []string
	OutputsToSave []bool
	SaveAllInputs bool
	GradFunc      GradFunc
}

type registryKey struct {
	backend string
	kernel  string
}

var (
	mu        sync.RWMutex
	kernels   = orderedmap.New[registryKey, Config]()
	gradients = make(map[string]GradConfig)
)

// Register adds a kernel. Registering the same (kernel, backend) pair again
// overwrites the previous config with a warning.
func Register(config Config) {
	key := registryKey{backend: config.BackendName, kernel: config.KernelName}

	mu.Lock()
	_, present := kernels.Set(key, config)
	mu.Unlock()

	if present {
		slog.Warn("kernel is already registered, overwriting",
			"kernel", config.KernelName, "backend", config.BackendName)
	}
}

// Get returns the kernel registered for the pair or nil.
func Get(kernelName, backendName string) *Config {
	mu.RLock()
	defer mu.RUnlock()
	config, ok := kernels.Get(registryKey{backend: backendName, kernel: kernelName})
	if !ok {
		return nil
	}
	return &config
}

// ForBackend returns every kernel registered for a backend, in
// registration order.
func ForBackend(backendName string) []Config {
	mu.RLock()
	defer mu.RUnlock()

	var result []Config
	for pair := kernels.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Key.backend == backendName {
			result = append(result, pair.Value)
		}
	}
	return result
}

// Unregister removes a kernel.
func Unregister(kernelName, backendName string) error {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := kernels.Delete(registryKey{backend: backendName, kernel: kernelName}); !ok {
		return fmt.Errorf("the kernel '%s' for backend '%s' is not registered", kernelName, backendName)
	}
	return nil
}

// CopyRegistered registers every kernel of one backend under another
// backend name.
func CopyRegistered(registeredBackendName, newBackendName string) {
	for _, config := range ForBackend(registeredBackendName) {
		config.BackendName = newBackendName
		Register(config)
	}
}

// RegisterGradient adds a gradient and reports whether it replaced one
// already registered for the same kernel.
func RegisterGradient(config GradConfig) (replaced bool) {
	mu.Lock()
	defer mu.Unlock()
	_, replaced = gradients[config.KernelName]
	gradients[config.KernelName] = config
	return replaced
}

// Gradient returns the gradient registered for a kernel or nil.
func Gradient(kernelName string) *GradConfig {
	mu.RLock()
	defer mu.RUnlock()
	config, ok := gradients[kernelName]
	if !ok {
		return nil
	}
	return &config
}

// UnregisterGradient removes a gradient.
func UnregisterGradient(kernelName string) error {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := gradients[kernelName]; !ok {
		return fmt.Errorf("the gradient '%s' is not registered", kernelName)
	}
	delete(gradients, kernelName)
	return nil
}
