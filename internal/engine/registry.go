package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/born-ml/tfcore/internal/backend"
	"github.com/born-ml/tfcore/internal/env"
	"github.com/born-ml/tfcore/internal/kernel"
	"github.com/born-ml/tfcore/internal/profiler"
)

// RegisterBackend registers a synchronous backend factory. Higher priority
// backends are preferred when no backend was selected explicitly. It
// returns false (and logs a warning) when the name is already registered.
func (e *Engine) RegisterBackend(name string, factory backend.Factory, priority int) bool {
	return e.registerBackend(name, factory, priority, false)
}

// RegisterAsyncBackend registers a factory whose initialization runs in
// the background. Kernels cannot run on it until Ready or SetBackend has
// waited for the initialization.
func (e *Engine) RegisterAsyncBackend(name string, factory backend.Factory, priority int) bool {
	return e.registerBackend(name, factory, priority, true)
}

// RegisterGradient adds a gradient to the global registry. Replacing an
// existing gradient warns when the engine's DEBUG flag is set.
func (e *Engine) RegisterGradient(config kernel.GradConfig) bool {
	replaced := kernel.RegisterGradient(config)
	if replaced && e.env.GetBool(env.FlagDebug) {
		slog.Warn("overriding the gradient", "kernel", config.KernelName)
	}
	return replaced
}

func (e *Engine) registerBackend(name string, factory backend.Factory, priority int, async bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.registryFactory[name]; ok {
		slog.Warn("backend was already registered, reusing existing backend factory", "backend", name)
		return false
	}
	e.registrations++
	e.registryFactory[name] = &factoryEntry{
		factory:  factory,
		priority: priority,
		async:    async,
		order:    e.registrations,
	}
	return true
}

// BackendNames returns the names of all registered factories, sorted by
// priority.
func (e *Engine) BackendNames() []string {
	return e.SortedBackends()
}

// SortedBackends returns registered backend names by descending priority,
// earlier registrations first on ties.
func (e *Engine) SortedBackends() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	names := make([]string, 0, len(e.registryFactory))
	for name := range e.registryFactory {
		names = append(names, name)
	}
	slices.SortFunc(names, func(a, b string) int {
		fa, fb := e.registryFactory[a], e.registryFactory[b]
		if fa.priority != fb.priority {
			return fb.priority - fa.priority
		}
		return fa.order - fb.order
	})
	return names
}

// BackendName returns the name of the active backend ("" if none).
func (e *Engine) BackendName() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.backendName
}

// FindBackend returns an initialized backend by name. A registered but not
// yet initialized synchronous backend is initialized on the spot; nil is
// returned for unknown names and async backends still initializing.
func (e *Engine) FindBackend(name string) backend.KernelBackend {
	e.mu.Lock()
	b, ok := e.registry[name]
	_, registered := e.registryFactory[name]
	e.mu.Unlock()
	if ok {
		return b
	}
	if !registered {
		return nil
	}

	_, pending, err := e.initializeBackend(name)
	if err != nil || pending != nil {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry[name]
}

// FindBackendFactory returns the registered factory or nil.
func (e *Engine) FindBackendFactory(name string) backend.Factory {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.registryFactory[name]
	if !ok {
		return nil
	}
	return entry.factory
}

// RemoveBackend disposes the backend instance (if initialized) and removes
// its factory. A pending initialization of the backend is abandoned.
func (e *Engine) RemoveBackend(name string) error {
	e.mu.Lock()
	if _, ok := e.registryFactory[name]; !ok {
		e.mu.Unlock()
		return fmt.Errorf("%s backend not found in registry", name)
	}
	if e.pendingInit != nil && e.pendingInit.name == name {
		// Supersede the in-flight initialization.
		e.pendingInitID++
		e.pendingInit = nil
	}
	instance, initialized := e.registry[name]
	delete(e.registry, name)
	delete(e.registryFactory, name)
	if e.backendName == name {
		e.backendName = ""
		e.backendInstance = nil
	}
	e.mu.Unlock()

	if initialized {
		disposeRegisteredKernels(name, instance)
		instance.Dispose()
	}
	return nil
}

// SetBackend makes name the active backend, waiting for an asynchronous
// initialization if needed. It reports false when initialization failed.
func (e *Engine) SetBackend(ctx context.Context, name string) (bool, error) {
	e.mu.Lock()
	if _, ok := e.registryFactory[name]; !ok {
		e.mu.Unlock()
		return false, fmt.Errorf("backend name '%s' not found in registry", name)
	}
	e.backendName = name
	_, initialized := e.registry[name]
	if !initialized {
		e.backendInstance = nil
	}
	e.mu.Unlock()

	if !initialized {
		success, pending, err := e.initializeBackend(name)
		if err != nil {
			return false, err
		}
		if pending != nil {
			if success, err = waitInit(ctx, pending); err != nil {
				return false, err
			}
		}
		if !success {
			return false, nil
		}
	}

	e.mu.Lock()
	instance, ok := e.registry[name]
	if !ok || e.backendName != name {
		e.mu.Unlock()
		return false, nil
	}
	e.backendInstance = instance
	e.mu.Unlock()

	for _, k := range kernel.ForBackend(name) {
		if k.SetupFunc != nil {
			k.SetupFunc(instance)
		}
	}
	e.profiler = profiler.New(instance, e.env, e.logger)
	return true, nil
}

// Ready waits until a backend is active, initializing the registered
// backends in priority order until one succeeds.
func (e *Engine) Ready(ctx context.Context) error {
	e.mu.Lock()
	pending := e.pendingInit
	active := e.backendInstance
	e.mu.Unlock()

	if pending != nil {
		success, err := waitInit(ctx, pending)
		if err != nil {
			return err
		}
		e.mu.Lock()
		active = e.backendInstance
		e.mu.Unlock()
		if active == nil && success {
			_, err := e.SetBackend(ctx, pending.name)
			return err
		}
		return nil
	}
	if active != nil {
		return nil
	}

	for _, name := range e.SortedBackends() {
		success, pending, err := e.initializeBackend(name)
		if err != nil {
			return err
		}
		if pending != nil {
			if success, err = waitInit(ctx, pending); err != nil {
				return err
			}
		}
		if success {
			if _, err := e.SetBackend(ctx, name); err != nil {
				return err
			}
			return nil
		}
	}
	return ErrNoBackend
}

// Backend returns the active backend, lazily selecting the best
// synchronous backend when none was set.
func (e *Engine) Backend() (backend.KernelBackend, error) {
	e.mu.Lock()
	if e.pendingInit != nil {
		name := e.pendingInit.name
		e.mu.Unlock()
		return nil, notInitializedError(name)
	}
	instance := e.backendInstance
	e.mu.Unlock()
	if instance != nil {
		return instance, nil
	}

	name, async, err := e.initializeBackendsAndReturnBest()
	if err != nil {
		return nil, err
	}
	if async {
		return nil, notInitializedError(name)
	}
	if _, err := e.SetBackend(context.Background(), name); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.backendInstance == nil {
		return nil, notInitializedError(name)
	}
	return e.backendInstance, nil
}

func notInitializedError(name string) error {
	return fmt.Errorf("backend '%s' has not yet been initialized; call Ready or SetBackend before running kernels", name)
}

// mustBackend is the kernel-path variant of Backend.
func (e *Engine) mustBackend() backend.KernelBackend {
	b, err := e.Backend()
	if err != nil {
		panic(err)
	}
	return b
}

func (e *Engine) initializeBackendsAndReturnBest() (string, bool, error) {
	for _, name := range e.SortedBackends() {
		success, pending, err := e.initializeBackend(name)
		if err != nil {
			return "", false, err
		}
		if pending != nil || success {
			return name, pending != nil, nil
		}
	}
	return "", false, ErrNoBackend
}

// initializeBackend instantiates a registered backend. Synchronous
// factories report success directly; asynchronous ones return the pending
// initialization to wait on.
func (e *Engine) initializeBackend(name string) (bool, *pendingInit, error) {
	e.mu.Lock()
	entry, ok := e.registryFactory[name]
	if !ok {
		e.mu.Unlock()
		return false, nil, fmt.Errorf("cannot initialize backend %s, no registration found", name)
	}
	if _, done := e.registry[name]; done {
		e.mu.Unlock()
		return true, nil, nil
	}

	if !entry.async {
		e.mu.Unlock()
		instance, err := e.runFactory(context.Background(), name, entry.factory)
		if err != nil {
			slog.Warn("initialization of backend failed", "backend", name, "error", err)
			return false, nil, nil
		}
		e.mu.Lock()
		if existing, ok := e.registry[name]; ok && existing != instance {
			instance.Dispose()
		} else {
			e.registry[name] = instance
		}
		e.mu.Unlock()
		return true, nil, nil
	}

	e.pendingInitID++
	p := &pendingInit{id: e.pendingInitID, name: name, done: make(chan struct{})}
	e.pendingInit = p
	e.mu.Unlock()

	go func() {
		defer close(p.done)
		instance, err := e.runFactory(context.Background(), name, entry.factory)

		e.mu.Lock()
		defer e.mu.Unlock()
		if p.id < e.pendingInitID {
			// A newer initialization or a removal superseded this one.
			if instance != nil {
				instance.Dispose()
			}
			return
		}
		e.pendingInit = nil
		if err != nil {
			slog.Warn("initialization of backend failed", "backend", name, "error", err)
			return
		}
		e.registry[name] = instance
		p.success = true
	}()
	return false, p, nil
}

// runFactory invokes a factory, collapsing concurrent initializations of
// the same backend into one call and turning factory panics into errors.
func (e *Engine) runFactory(ctx context.Context, name string, factory backend.Factory) (backend.KernelBackend, error) {
	v, err, _ := e.initGroup.Do(name, func() (result any, err error) {
		defer func() {
			if r := recover(); r != nil {
				result = nil
				err = fmt.Errorf("backend %s factory panicked: %v", name, r)
			}
		}()
		return factory(ctx, e)
	})
	if err != nil {
		return nil, err
	}
	instance, ok := v.(backend.KernelBackend)
	if !ok || instance == nil {
		return nil, fmt.Errorf("backend %s factory returned no backend", name)
	}
	return instance, nil
}

func waitInit(ctx context.Context, p *pendingInit) (bool, error) {
	select {
	case <-p.done:
		return p.success, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
