// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package cpu

import (
	"github.com/born-ml/tfcore/engine"
	internalcpu "github.com/born-ml/tfcore/internal/backend/cpu"
	internalengine "github.com/born-ml/tfcore/internal/engine"
)

// Name is the registry name of the CPU backend.
const Name = internalcpu.Name

// Priority is the priority the CPU backend is registered with.
const Priority = internalcpu.Priority

// Backend represents the CPU backend implementation.
type Backend = internalcpu.Backend

// Compile-time check that Backend implements engine.KernelBackend.
var _ engine.KernelBackend = (*Backend)(nil)

// New creates a standalone CPU backend with default settings. Backends
// used for computation are created by the engine from a Factory.
func New(mover engine.DataMover) *Backend {
	return internalcpu.New(mover, nil)
}

// Factory returns a factory creating CPU backends configured from the
// engine flags FLOAT_PRECISION and NUM_WORKERS.
//
// Example:
//
//	// A second CPU backend, e.g. to test data migration.
//	engine.RegisterBackend("cpu-fp16", cpu.Factory(), 0)
func Factory() engine.Factory {
	return internalcpu.NewFactory(internalengine.Get().Env())
}

