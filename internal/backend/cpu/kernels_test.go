package cpu_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"

	"github.com/born-ml/tfcore/internal/backend/cpu"
	"github.com/born-ml/tfcore/internal/env"
	"github.com/born-ml/tfcore/internal/ops"
	"github.com/born-ml/tfcore/internal/tensor"
)

func f32(vals []float32, shape ...int) *tensor.Tensor {
	if shape == nil {
		return ops.MustTensorOf(vals, nil)
	}
	return ops.MustTensorOf(vals, tensor.Shape(shape))
}

func TestBinaryKernels(t *testing.T) {
	a := f32([]float32{1, 2, 3, 4}, 2, 2)
	row := f32([]float32{10, 20})
	col := f32([]float32{1, 2}, 2, 1)

	assert.Equal(t, []float32{11, 22, 13, 24}, ops.Add(a, row).Float32s())
	assert.Equal(t, []float32{0, 1, 1, 2}, ops.Sub(a, col).Float32s())
	assert.Equal(t, []float32{10, 40, 30, 80}, ops.Mul(a, row).Float32s())
	assert.Equal(t, tensor.Shape{2, 2}, ops.Mul(col, row).Shape())

	assert.Panics(t, func() { ops.Add(a, f32([]float32{1, 2, 3})) })
}

func TestBinaryKernels_DTypes(t *testing.T) {
	i := ops.MustTensorOf([]int32{7, -4}, nil)
	j := ops.MustTensorOf([]int32{2, 2}, nil)

	sum := ops.Add(i, j)
	assert.Equal(t, tensor.Int32, sum.DType())
	assert.Equal(t, []int32{9, -2}, sum.Int32s())

	// RealDiv always produces float32.
	div := ops.Div(i, j)
	assert.Equal(t, tensor.Float32, div.DType())
	assert.Equal(t, []float32{3.5, -2}, div.Float32s())

	mixed := ops.Mul(i, f32([]float32{0.5, 0.5}))
	assert.Equal(t, tensor.Float32, mixed.DType())
	assert.Equal(t, []float32{3.5, -2}, mixed.Float32s())

	eq := ops.Equal(i, ops.MustTensorOf([]int32{7}, nil))
	assert.Equal(t, tensor.Bool, eq.DType())
	assert.Equal(t, []bool{true, false}, eq.Bools())
}

func TestUnaryKernels(t *testing.T) {
	x := f32([]float32{-2, 0, 4})

	assert.Equal(t, []float32{2, 0, -4}, ops.Neg(x).Float32s())
	assert.Equal(t, []float32{4, 0, 16}, ops.Square(x).Float32s())
	assert.Equal(t, []float32{0, 0, 4}, ops.Relu(x).Float32s())
	assert.Equal(t, []float32{0.5, 0.5, 1}, ops.Step(x, 0.5).Float32s())
	assert.InDeltaSlice(t, []float32{float32(math.Exp(-2)), 1, float32(math.Exp(4))}, ops.Exp(x).Float32s(), 1e-3)

	sq := ops.Sqrt(x).Float32s()
	assert.True(t, math.IsNaN(float64(sq[0])))
	assert.Equal(t, []float32{0, 2}, sq[1:])

	logs := ops.Log(x).Float32s()
	assert.True(t, math.IsInf(float64(logs[1]), -1))

	nan := f32([]float32{float32(math.NaN())})
	assert.True(t, math.IsNaN(float64(ops.Step(nan, 0).Float32s()[0])))

	ints := ops.MustTensorOf([]int32{-3, 5}, nil)
	assert.Equal(t, []int32{0, 5}, ops.Relu(ints).Int32s())
	assert.Equal(t, tensor.Float32, ops.Sqrt(ints).DType())
}

func TestReduceKernels(t *testing.T) {
	x := f32([]float32{1, 5, 3, 4, 2, 6}, 2, 3)

	assert.Equal(t, []float32{21}, ops.Sum(x, nil, false).Float32s())
	assert.Equal(t, tensor.Shape{}, ops.Sum(x, nil, false).Shape())
	assert.Equal(t, []float32{5, 7, 9}, ops.Sum(x, []int{0}, false).Float32s())

	kept := ops.Sum(x, []int{-1}, true)
	assert.Equal(t, tensor.Shape{2, 1}, kept.Shape())
	assert.Equal(t, []float32{9, 12}, kept.Float32s())

	assert.Equal(t, []float32{5, 6}, ops.Max(x, []int{1}, false).Float32s())
	assert.Panics(t, func() { ops.Sum(x, []int{2}, false) })

	bools := ops.MustTensorOf([]bool{true, false, true}, nil)
	count := ops.Sum(bools, nil, false)
	assert.Equal(t, tensor.Int32, count.DType())
	assert.Equal(t, []int32{2}, count.Int32s())
	assert.Equal(t, tensor.Bool, ops.Max(bools, nil, false).DType())

	withNaN := f32([]float32{1, float32(math.NaN()), 3})
	assert.True(t, math.IsNaN(float64(ops.Max(withNaN, nil, false).Float32s()[0])))

	assert.InDelta(t, 5.0, ops.Norm(f32([]float32{3, 4}), nil, false).Float32s()[0], 1e-6)
}

func TestBatchMatMul(t *testing.T) {
	a := f32([]float32{1, 2, 3, 4}, 2, 2)
	b := f32([]float32{5, 6, 7, 8}, 2, 2)

	assert.Equal(t, []float32{19, 22, 43, 50}, ops.MatMul(a, b, false, false).Float32s())
	assert.Equal(t, []float32{26, 30, 38, 44}, ops.MatMul(a, b, true, false).Float32s())
	assert.Equal(t, []float32{17, 23, 39, 53}, ops.MatMul(a, b, false, true).Float32s())

	batched := f32([]float32{1, 2, 3, 4}, 2, 1, 2)
	ones := f32([]float32{1, 1}, 2, 1)
	out := ops.MatMul(batched, ones, false, false)
	assert.Equal(t, tensor.Shape{2, 1, 1}, out.Shape())
	assert.Equal(t, []float32{3, 7}, out.Float32s())

	assert.Panics(t, func() { ops.MatMul(a, f32([]float32{1, 2, 3}, 3, 1), false, false) })
	assert.Panics(t, func() { ops.MatMul(f32([]float32{1, 2}), b, false, false) })
}

func TestManipulationKernels(t *testing.T) {
	x := f32([]float32{1, 2, 3, 4, 5, 6}, 2, 3)

	r := ops.Reshape(x, []int{3, -1})
	assert.Equal(t, tensor.Shape{3, 2}, r.Shape())
	assert.Equal(t, x.DataID(), r.DataID())
	assert.Panics(t, func() { ops.Reshape(x, []int{4, -1}) })
	assert.Panics(t, func() { ops.Reshape(x, []int{-1, -1}) })

	tr := ops.Transpose(x, nil)
	assert.Equal(t, tensor.Shape{3, 2}, tr.Shape())
	assert.Equal(t, []float32{1, 4, 2, 5, 3, 6}, tr.Float32s())
	assert.Panics(t, func() { ops.Transpose(x, []int{0, 0}) })

	c := ops.Concat([]*tensor.Tensor{x, f32([]float32{7, 8}, 2, 1)}, 1)
	assert.Equal(t, tensor.Shape{2, 4}, c.Shape())
	assert.Equal(t, []float32{1, 2, 3, 7, 4, 5, 6, 8}, c.Float32s())
	assert.Panics(t, func() { ops.Concat([]*tensor.Tensor{x, f32([]float32{1, 2, 3})}, 0) })

	s := ops.Slice(x, []int{0, 1}, []int{-1, 2})
	assert.Equal(t, tensor.Shape{2, 2}, s.Shape())
	assert.Equal(t, []float32{2, 3, 5, 6}, s.Float32s())
	assert.Panics(t, func() { ops.Slice(x, []int{1, 2}, []int{1, 2}) })

	parts := ops.Split(x, []int{1, 2}, -1)
	require.Len(t, parts, 2)
	assert.Equal(t, []float32{1, 4}, parts[0].Float32s())
	assert.Equal(t, []float32{2, 3, 5, 6}, parts[1].Float32s())

	b := ops.Cast(f32([]float32{0, 2.5}), tensor.Bool)
	assert.Equal(t, []bool{false, true}, b.Bools())
	i := ops.Cast(f32([]float32{2.9, -1.2}), tensor.Int32)
	assert.Equal(t, []int32{2, -1}, i.Int32s())
}

func TestCreationKernels(t *testing.T) {
	assert.Equal(t, []int32{7, 7}, ops.Fill(tensor.Shape{2}, 7, tensor.Int32).Int32s())
	assert.Equal(t, tensor.Shape{}, ops.Scalar(3).Shape())

	ints := ops.MustTensorOf([]int32{4, 5, 6}, tensor.Shape{3, 1})
	z := ops.ZerosLike(ints)
	assert.Equal(t, tensor.Int32, z.DType())
	assert.Equal(t, tensor.Shape{3, 1}, z.Shape())
	assert.Equal(t, []int32{0, 0, 0}, z.Int32s())
	assert.Equal(t, []int32{1, 1, 1}, ops.OnesLike(ints).Int32s())
}

func TestTopK(t *testing.T) {
	x := f32([]float32{1, 3, 3, 2, 9, 0, 5, 5}, 2, 4)

	values, indices := ops.TopK(x, 2)
	assert.Equal(t, tensor.Shape{2, 2}, values.Shape())
	assert.Equal(t, []float32{3, 3, 9, 5}, values.Float32s())
	// Equal values keep the lower index first.
	assert.Equal(t, []int32{1, 2, 0, 2}, indices.Int32s())

	values, indices = ops.TopK(x, 0)
	assert.Equal(t, tensor.Shape{2, 0}, values.Shape())
	assert.Empty(t, indices.Int32s())

	assert.Panics(t, func() { ops.TopK(x, 5) })
	assert.Panics(t, func() { ops.TopK(ops.Scalar(1), 1) })
}

func TestInt32KernelsAreExact(t *testing.T) {
	// 16777217 is the first int32 that float32 cannot represent.
	x := ops.MustTensorOf([]int32{16777217, 3, 100000001}, nil)

	values, indices := ops.TopK(x, 3)
	assert.Equal(t, tensor.Int32, values.DType())
	assert.Equal(t, []int32{100000001, 16777217, 3}, values.Int32s())
	assert.Equal(t, []int32{2, 0, 1}, indices.Int32s())

	near := ops.MustTensorOf([]int32{16777216}, nil)
	assert.Equal(t, []bool{false}, ops.Equal(ops.MustTensorOf([]int32{16777217}, nil), near).Bools())
	assert.Equal(t, []bool{true}, ops.Equal(near, ops.MustTensorOf([]int32{16777216}, nil)).Bools())
	assert.Equal(t, []bool{true, false, false}, ops.Equal(x, ops.MustTensorOf([]int32{16777217}, nil)).Bools())
}

func TestAccessorsReturnCopies(t *testing.T) {
	ints := ops.MustTensorOf([]int32{1, 2}, nil)
	got := ints.Int32s()
	got[0] = 99
	assert.Equal(t, []int32{1, 2}, ints.Int32s())

	bools := ops.MustTensorOf([]bool{true, false}, nil)
	flags := bools.Bools()
	flags[0] = false
	assert.Equal(t, []bool{true, false}, bools.Bools())

	floats := f32([]float32{1, 2})
	vals := floats.Float32s()
	vals[0] = 99
	assert.Equal(t, []float32{1, 2}, floats.Float32s())
}

func TestHalfPrecisionStorage(t *testing.T) {
	environment := env.NewWithLookup(func(string) string { return "" })
	env.RegisterEngineFlags(environment)
	require.NoError(t, environment.Set(env.FlagFloatPrecision, float64(16)))

	b := cpu.New(nil, environment)
	defer b.Dispose()
	assert.Equal(t, 16, b.FloatPrecision())
	assert.Equal(t, float32(1e-4), b.Epsilon())

	id := b.Write([]float32{0.1, 65504, 1e-9}, tensor.Shape{3}, tensor.Float32)
	want := []float32{
		float16.Fromfloat32(0.1).Float32(),
		65504,
		float16.Fromfloat32(1e-9).Float32(),
	}
	assert.Equal(t, want, b.ReadSync(id))
	assert.NotEqual(t, float32(0.1), want[0])
}

func TestMemory(t *testing.T) {
	b := cpu.New(nil, nil)
	defer b.Dispose()
	b.Write([]float32{1, 2}, tensor.Shape{2}, tensor.Float32)
	b.Write([]bool{true}, tensor.Shape{1}, tensor.Bool)

	m := b.Memory()
	assert.Equal(t, 9, m.NumBytesInBackend)
	assert.True(t, m.Unreliable)
	assert.NotEmpty(t, m.Reasons)
}
