// Package cpu implements the pure Go CPU backend and registers its kernels.
//
// Storage is a DataStorage of flat value slices with reference counts.
// Elementwise kernels broadcast NumPy-style and split their loops across
// workers; BatchMatMul delegates to gonum BLAS.
package cpu

import (
	"context"
	"fmt"
	"time"

	"github.com/x448/float16"

	"github.com/born-ml/tfcore/internal/backend"
	"github.com/born-ml/tfcore/internal/engine"
	"github.com/born-ml/tfcore/internal/env"
	"github.com/born-ml/tfcore/internal/parallel"
	"github.com/born-ml/tfcore/internal/tensor"
)

// Name is the registry name of the CPU backend.
const Name = "cpu"

// Priority is the registration priority of the CPU backend.
const Priority = 1

const memoryReason = "The reported memory is an upper bound. Due to automatic garbage collection, the true allocated memory may be less."

type tensorData struct {
	values   tensor.Values
	dtype    tensor.DataType
	refCount int
}

// Backend is the CPU KernelBackend.
type Backend struct {
	data      *backend.DataStorage[tensorData]
	precision int
	parallel  parallel.Config
}

// New creates a CPU backend. Precision (32 or 16) and the worker count are
// read from environment; a nil environment uses the defaults.
func New(mover backend.DataMover, environment *env.Environment) *Backend {
	b := &Backend{precision: 32, parallel: parallel.DefaultConfig()}
	if environment != nil {
		if environment.GetNumber(env.FlagFloatPrecision) == 16 {
			b.precision = 16
		}
		b.parallel = parallel.WithWorkers(int(environment.GetNumber(env.FlagNumWorkers)))
	}
	b.data = backend.NewDataStorage[tensorData](b, mover)
	return b
}

// NewFactory returns a factory creating CPU backends configured from
// environment.
func NewFactory(environment *env.Environment) backend.Factory {
	return func(_ context.Context, mover backend.DataMover) (backend.KernelBackend, error) {
		return New(mover, environment), nil
	}
}

// Register registers the CPU backend with e under Name.
func Register(e *engine.Engine) bool {
	return e.RegisterBackend(Name, NewFactory(e.Env()), Priority)
}

func init() {
	registerKernels(Name)
	Register(engine.Get())
}

// Write stores a copy of values under a new DataID.
func (b *Backend) Write(values tensor.Values, _ tensor.Shape, dtype tensor.DataType) tensor.DataID {
	id := tensor.NewDataID()
	b.data.Set(id, tensorData{values: b.store(values, dtype), dtype: dtype, refCount: 1})
	return id
}

// Move stores values that migrated from another backend.
func (b *Backend) Move(id tensor.DataID, values tensor.Values, _ tensor.Shape, dtype tensor.DataType, refCount int) {
	b.data.Set(id, tensorData{values: b.store(values, dtype), dtype: dtype, refCount: refCount})
}

func (b *Backend) store(values tensor.Values, dtype tensor.DataType) tensor.Values {
	values = tensor.ConvertValues(values, dtype)
	switch v := values.(type) {
	case []float32:
		out := make([]float32, len(v))
		copy(out, v)
		if b.precision == 16 {
			quantizeHalf(out)
		}
		return out
	case []int32:
		out := make([]int32, len(v))
		copy(out, v)
		return out
	case []bool:
		out := make([]bool, len(v))
		copy(out, v)
		return out
	default:
		panic(fmt.Sprintf("cpu: unsupported values type %T", values))
	}
}

// quantizeHalf rounds float32 values to the nearest IEEE 754 half.
func quantizeHalf(vals []float32) {
	for i, v := range vals {
		vals[i] = float16.Fromfloat32(v).Float32()
	}
}

// ReadSync returns the stored values. Callers must not modify them.
func (b *Backend) ReadSync(id tensor.DataID) tensor.Values {
	d, ok := b.data.Get(id)
	if !ok {
		panic(fmt.Sprintf("cpu: no data found for %s", id))
	}
	return d.values
}

// Read returns the stored values; the CPU backend never blocks.
func (b *Backend) Read(ctx context.Context, id tensor.DataID) (tensor.Values, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d, ok := b.data.Get(id)
	if !ok {
		return nil, fmt.Errorf("cpu: no data found for %s", id)
	}
	return d.values, nil
}

// DisposeData decrements the refcount and frees the buffer at zero.
func (b *Backend) DisposeData(id tensor.DataID, force bool) bool {
	freed := true
	b.data.Update(id, func(d *tensorData) {
		d.refCount--
		if !force && d.refCount > 0 {
			freed = false
		}
	})
	if freed {
		b.data.Delete(id)
	}
	return freed
}

// RefCount returns the refcount of a locally held buffer (0 otherwise).
func (b *Backend) RefCount(id tensor.DataID) int {
	d, ok := b.data.Peek(id)
	if !ok {
		return 0
	}
	return d.refCount
}

// IncRef increments the refcount, migrating the buffer first if needed.
func (b *Backend) IncRef(id tensor.DataID) {
	if _, ok := b.data.Get(id); !ok {
		panic(fmt.Sprintf("cpu: no data found for %s", id))
	}
	b.data.Update(id, func(d *tensorData) { d.refCount++ })
}

// NumDataIDs returns the number of buffers held.
func (b *Backend) NumDataIDs() int {
	return b.data.NumDataIDs()
}

// Memory reports the bytes held by live buffers.
func (b *Backend) Memory() backend.MemoryInfo {
	total := 0
	b.data.Range(func(_ tensor.DataID, d tensorData) {
		total += tensor.ValuesLen(d.values) * d.dtype.BytesPerElement()
	})
	return backend.MemoryInfo{
		NumBytesInBackend: total,
		Unreliable:        true,
		Reasons:           []string{memoryReason},
	}
}

// TimerAvailable reports true: CPU kernels finish before Time returns.
func (b *Backend) TimerAvailable() bool { return true }

// Time measures f.
func (b *Backend) Time(f func()) (backend.TimingInfo, error) {
	start := time.Now()
	f()
	return backend.TimingInfo{KernelMs: float64(time.Since(start).Nanoseconds()) / 1e6}, nil
}

// FloatPrecision returns 32 or 16.
func (b *Backend) FloatPrecision() int { return b.precision }

// Epsilon returns the smallest value treated as non-zero.
func (b *Backend) Epsilon() float32 {
	if b.precision == 16 {
		return 1e-4
	}
	return 1e-7
}

// Dispose drops every buffer.
func (b *Backend) Dispose() {
	var ids []tensor.DataID
	b.data.Range(func(id tensor.DataID, _ tensorData) { ids = append(ids, id) })
	for _, id := range ids {
		b.data.Delete(id)
	}
}

// values returns the storage of t, migrating it if another backend owns it.
func (b *Backend) values(t *tensor.Tensor) tensor.Values {
	return b.ReadSync(t.DataID())
}

func (b *Backend) float32s(t *tensor.Tensor) []float32 {
	if vals, ok := b.values(t).([]float32); ok {
		return vals
	}
	return tensor.ToFloat32s(b.values(t))
}

// output stores freshly computed values (without copying) and describes
// them for the engine.
func (b *Backend) output(values tensor.Values, shape tensor.Shape, dtype tensor.DataType) tensor.TensorInfo {
	values = tensor.ConvertValues(values, dtype)
	if f, ok := values.([]float32); ok && b.precision == 16 {
		quantizeHalf(f)
	}
	id := tensor.NewDataID()
	b.data.Set(id, tensorData{values: values, dtype: dtype, refCount: 1})
	return tensor.TensorInfo{DataID: id, Shape: shape.Clone(), DType: dtype}
}

// share returns a view of t's buffer with a new shape.
func (b *Backend) share(t *tensor.Tensor, shape tensor.Shape) tensor.TensorInfo {
	b.IncRef(t.DataID())
	return tensor.TensorInfo{DataID: t.DataID(), Shape: shape.Clone(), DType: t.DType()}
}
