// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package engine exposes the process-wide tensor engine: backend selection,
// memory accounting, profiling and runtime flags.
//
// Example:
//
//	import (
//	    "github.com/born-ml/tfcore/engine"
//	    "github.com/born-ml/tfcore/tensor"
//	)
//
//	func main() {
//	    if err := engine.Ready(ctx); err != nil {
//	        log.Fatal(err)
//	    }
//	    info, err := engine.Profile(func() any {
//	        return tensor.MatMul(a, b, false, false)
//	    })
//	    fmt.Println(info.KernelNames, info.PeakBytes)
//	}
package engine

import (
	"context"

	// Registers the CPU backend so every program has one.
	_ "github.com/born-ml/tfcore/internal/backend/cpu"
	"github.com/born-ml/tfcore/internal/backend"
	"github.com/born-ml/tfcore/internal/engine"
	"github.com/born-ml/tfcore/internal/env"
)

// KernelBackend is the contract a backend implements.
type KernelBackend = backend.KernelBackend

// DataMover migrates data between backends; the engine passes itself to
// backend factories as one.
type DataMover = backend.DataMover

// Factory creates a backend instance.
type Factory = backend.Factory

// MemoryInfo is the engine memory report.
type MemoryInfo = engine.MemoryInfo

// ProfileInfo summarizes the kernels run inside Profile.
type ProfileInfo = engine.ProfileInfo

// KernelInfo is one kernel execution inside a profile.
type KernelInfo = engine.KernelInfo

// TimingInfo reports how long a block of backend work took.
type TimingInfo = backend.TimingInfo

// Platform describes the host.
type Platform = env.Platform

// Flag names.
const (
	FlagDebug                   = env.FlagDebug
	FlagIsTest                  = env.FlagIsTest
	FlagProd                    = env.FlagProd
	FlagKeepIntermediateTensors = env.FlagKeepIntermediateTensors
	FlagFloatPrecision          = env.FlagFloatPrecision
	FlagNumWorkers              = env.FlagNumWorkers
)

// Ready initializes the best registered backend unless one is active.
func Ready(ctx context.Context) error {
	return engine.Get().Ready(ctx)
}

// SetBackend activates the named backend, waiting for an asynchronous
// initialization. It reports whether the backend could be initialized.
func SetBackend(ctx context.Context, name string) (bool, error) {
	return engine.Get().SetBackend(ctx, name)
}

// BackendName returns the name of the active backend.
func BackendName() string {
	return engine.Get().BackendName()
}

// Backends returns the registered backend names, highest priority first.
func Backends() []string {
	return engine.Get().SortedBackends()
}

// RegisterBackend registers a synchronous backend factory. It returns false
// when name is already registered.
func RegisterBackend(name string, factory Factory, priority int) bool {
	return engine.Get().RegisterBackend(name, factory, priority)
}

// RegisterAsyncBackend registers a factory that initializes in the
// background; SetBackend and Ready wait for it.
func RegisterAsyncBackend(name string, factory Factory, priority int) bool {
	return engine.Get().RegisterAsyncBackend(name, factory, priority)
}

// RemoveBackend disposes and unregisters a backend.
func RemoveBackend(name string) error {
	return engine.Get().RemoveBackend(name)
}

// Memory reports tensor and byte counts.
func Memory() MemoryInfo {
	return engine.Get().Memory()
}

// Profile runs fn and reports the kernels it executed and the memory they
// allocated.
func Profile(fn func() any) (ProfileInfo, error) {
	return engine.Get().Profile(fn)
}

// Time measures f on the active backend.
func Time(f func()) (TimingInfo, error) {
	return engine.Get().Time(f)
}

// DisposeVariables disposes every registered variable.
func DisposeVariables() {
	engine.Get().DisposeVariables()
}

// Reset disposes variables and backend instances and resets the flags.
func Reset() {
	engine.Get().Reset()
}

// SetFlag sets a runtime flag.
func SetFlag(name string, value any) error {
	return engine.Get().Env().Set(name, value)
}

// Flag returns the value of a runtime flag.
func Flag(name string) (any, error) {
	return engine.Get().Env().Get(name)
}

// Flags returns a copy of every evaluated flag.
func Flags() map[string]any {
	return engine.Get().Env().Flags()
}

// HostPlatform returns the platform name and description.
func HostPlatform() (string, Platform) {
	return engine.Get().Env().Platform()
}
