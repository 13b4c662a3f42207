package tensor

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync/atomic"
)

var dataIDSeq atomic.Uint64

type dataKey struct {
	seq uint64
}

// DataID is the opaque key a backend uses to locate a tensor's storage.
// DataIDs are comparable and unique for the lifetime of the process.
type DataID struct {
	key *dataKey
}

// NewDataID allocates a fresh DataID.
func NewDataID() DataID {
	return DataID{key: &dataKey{seq: dataIDSeq.Add(1)}}
}

// IsZero reports whether the DataID was never allocated.
func (d DataID) IsZero() bool {
	return d.key == nil
}

func (d DataID) String() string {
	if d.key == nil {
		return "data#nil"
	}
	return "data#" + strconv.FormatUint(d.key.seq, 10)
}

// TensorInfo describes a backend buffer: what kernels consume and produce.
type TensorInfo struct {
	DataID DataID
	Shape  Shape
	DType  DataType
}

// Tracker is implemented by the engine that owns a tensor's bookkeeping.
type Tracker interface {
	ReadSync(id DataID) Values
	Read(ctx context.Context, id DataID) (Values, error)
	DisposeTensor(t *Tensor)
	DisposeVariable(v *Variable)
	IncRef(t *Tensor)
}

// Tensor is an immutable handle to a shaped, typed, backend-resident buffer.
type Tensor struct {
	id       int
	dataID   DataID
	shape    Shape
	strides  []int
	dtype    DataType
	size     int
	kept     bool
	scopeID  int
	disposed bool
	variable bool
	tracker  Tracker
}

// New creates a tensor handle. It is normally called by the engine, which
// also takes care of tracking it.
func New(shape Shape, dtype DataType, dataID DataID, id int, tracker Tracker) *Tensor {
	shape = shape.Clone()
	return &Tensor{
		id:      id,
		dataID:  dataID,
		shape:   shape,
		strides: shape.ComputeStrides(),
		dtype:   dtype,
		size:    shape.NumElements(),
		tracker: tracker,
	}
}

// ID returns the unique tensor id.
func (t *Tensor) ID() int { return t.id }

// DataID returns the backend data key.
func (t *Tensor) DataID() DataID { return t.dataID }

// Shape returns the tensor's shape. Callers must not modify it.
func (t *Tensor) Shape() Shape { return t.shape }

// Strides returns the row-major strides.
func (t *Tensor) Strides() []int { return t.strides }

// DType returns the tensor's data type.
func (t *Tensor) DType() DataType { return t.dtype }

// Size returns the number of elements.
func (t *Tensor) Size() int { return t.size }

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int { return len(t.shape) }

// Info returns the TensorInfo view of the tensor.
func (t *Tensor) Info() TensorInfo {
	return TensorInfo{DataID: t.dataID, Shape: t.shape, DType: t.dtype}
}

// Kept reports whether the tensor survives the end of its tidy scope.
func (t *Tensor) Kept() bool { return t.kept }

// MarkKept exempts the tensor from scope disposal.
func (t *Tensor) MarkKept() { t.kept = true }

// ScopeID returns the id of the scope currently tracking the tensor.
func (t *Tensor) ScopeID() int { return t.scopeID }

// SetScopeID records which scope tracks the tensor.
func (t *Tensor) SetScopeID(id int) { t.scopeID = id }

// IsVariable reports whether the handle belongs to a Variable.
func (t *Tensor) IsVariable() bool { return t.variable }

// IsDisposed reports whether Dispose has been called.
func (t *Tensor) IsDisposed() bool { return t.disposed }

func (t *Tensor) checkDisposed() {
	if t.disposed {
		panic(fmt.Sprintf("tensor is disposed (id %d)", t.id))
	}
}

// DataSync synchronously reads the tensor values from its backend.
// The returned slice is one of []float32, []int32 or []bool.
func (t *Tensor) DataSync() Values {
	t.checkDisposed()
	return t.tracker.ReadSync(t.dataID)
}

// Data reads the tensor values, waiting on the backend if needed.
func (t *Tensor) Data(ctx context.Context) (Values, error) {
	if t.disposed {
		return nil, fmt.Errorf("tensor is disposed (id %d)", t.id)
	}
	return t.tracker.Read(ctx, t.dataID)
}

// Float32s returns a copy of the values converted to float32.
func (t *Tensor) Float32s() []float32 {
	return ToFloat32s(t.DataSync())
}

// Int32s returns a copy of the values converted to int32.
func (t *Tensor) Int32s() []int32 {
	vals, _ := ConvertValues(t.DataSync(), Int32).([]int32)
	return slices.Clone(vals)
}

// Bools returns a copy of the values converted to bool.
func (t *Tensor) Bools() []bool {
	vals, _ := ConvertValues(t.DataSync(), Bool).([]bool)
	return slices.Clone(vals)
}

// Dispose releases the tensor. Disposing twice is a no-op.
func (t *Tensor) Dispose() {
	if t.disposed {
		return
	}
	t.tracker.DisposeTensor(t)
	t.disposed = true
}

// String returns a short description of the tensor.
func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(id=%d, shape=%v, dtype=%s)", t.id, []int(t.shape), t.dtype)
}

// Variable is a mutable tensor whose backing data can be reassigned.
type Variable struct {
	*Tensor
	name      string
	trainable bool
}

// NewVariable creates a variable sharing the data of initial.
// The caller (the engine) must register it and increment the refcount.
func NewVariable(initial *Tensor, trainable bool, name string, id int, tracker Tracker) *Variable {
	t := New(initial.shape, initial.dtype, initial.dataID, id, tracker)
	t.variable = true
	return &Variable{Tensor: t, name: name, trainable: trainable}
}

// Name returns the variable's registered name.
func (v *Variable) Name() string { return v.name }

// Trainable reports whether optimizers and VariableGrads consider it.
func (v *Variable) Trainable() bool { return v.trainable }

// SetTrainable toggles the trainable flag.
func (v *Variable) SetTrainable(trainable bool) { v.trainable = trainable }

// Assign points the variable at the data of newValue.
func (v *Variable) Assign(newValue *Tensor) error {
	if newValue.dtype != v.dtype {
		return fmt.Errorf("dtype of the new value (%s) and previous value (%s) must match", newValue.dtype, v.dtype)
	}
	if !newValue.shape.Equal(v.shape) {
		return fmt.Errorf("shape of the new value (%v) and previous value (%v) must match", newValue.shape, v.shape)
	}
	v.checkDisposed()
	v.tracker.DisposeTensor(v.Tensor)
	v.dataID = newValue.dataID
	v.tracker.IncRef(v.Tensor)
	return nil
}

// Dispose unregisters the variable and releases its data.
func (v *Variable) Dispose() {
	if v.disposed {
		return
	}
	v.tracker.DisposeVariable(v)
	v.disposed = true
}
