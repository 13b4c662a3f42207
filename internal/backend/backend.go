// Package backend defines the contract every execution target (CPU, GPU, ...)
// implements for the engine: data storage keyed by DataID, reference
// counting, timing and precision information.
//
// Implementations:
//   - cpu: pure Go kernels (internal/backend/cpu)
package backend

import (
	"context"

	"github.com/born-ml/tfcore/internal/tensor"
)

// MemoryInfo is the backend part of the engine memory report.
type MemoryInfo struct {
	NumBytesInBackend int
	Unreliable        bool
	Reasons           []string
}

// TimingInfo reports how long a block of backend work took.
type TimingInfo struct {
	KernelMs  float64
	WallMs    float64
	ExtraInfo string
}

// Timer measures backend work.
type Timer interface {
	// TimerAvailable reports whether Time measures kernel time precisely.
	TimerAvailable() bool
	Time(f func()) (TimingInfo, error)
}

// KernelBackend is a pluggable execution target.
type KernelBackend interface {
	Timer

	// Write stores values (a []float32, []int32 or []bool) under a new
	// DataID with refcount 1.
	Write(values tensor.Values, shape tensor.Shape, dtype tensor.DataType) tensor.DataID
	// Move stores values under an existing DataID that migrated from
	// another backend.
	Move(id tensor.DataID, values tensor.Values, shape tensor.Shape, dtype tensor.DataType, refCount int)
	Read(ctx context.Context, id tensor.DataID) (tensor.Values, error)
	ReadSync(id tensor.DataID) tensor.Values

	// DisposeData decrements the refcount and frees the buffer once it
	// reaches zero (or immediately when force is set). It reports whether
	// the buffer was freed.
	DisposeData(id tensor.DataID, force bool) bool
	RefCount(id tensor.DataID) int
	IncRef(id tensor.DataID)
	NumDataIDs() int

	Memory() MemoryInfo
	// FloatPrecision is 32 or 16.
	FloatPrecision() int
	Epsilon() float32
	Dispose()
}

// DataMover migrates a DataID owned by another backend into b.
// The engine implements it.
type DataMover interface {
	MoveData(b KernelBackend, id tensor.DataID)
}

// Factory creates a backend instance.
type Factory func(ctx context.Context, mover DataMover) (KernelBackend, error)
