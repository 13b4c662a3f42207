// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/tfcore/tensor"
)

// TestCreationFunctions verifies the high-level creation API.
func TestCreationFunctions(t *testing.T) {
	tests := []struct {
		name  string
		fn    func() *tensor.Tensor
		shape tensor.Shape
		want  []float32
	}{
		{"Zeros", func() *tensor.Tensor { return tensor.Zeros(tensor.Shape{2, 2}) }, tensor.Shape{2, 2}, []float32{0, 0, 0, 0}},
		{"Ones", func() *tensor.Tensor { return tensor.Ones(tensor.Shape{3}) }, tensor.Shape{3}, []float32{1, 1, 1}},
		{"Fill", func() *tensor.Tensor { return tensor.Fill(tensor.Shape{2}, 3.5, tensor.Float32) }, tensor.Shape{2}, []float32{3.5, 3.5}},
		{"Scalar", func() *tensor.Tensor { return tensor.Scalar(7) }, tensor.Shape{}, []float32{7}},
		{"MustOf", func() *tensor.Tensor { return tensor.MustOf([]float32{1, 2, 3, 4}, tensor.Shape{2, 2}) }, tensor.Shape{2, 2}, []float32{1, 2, 3, 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := tt.fn()
			defer x.Dispose()
			assert.Equal(t, tt.shape, x.Shape())
			assert.Equal(t, tensor.Float32, x.DType())
			assert.Equal(t, tt.want, x.Float32s())
		})
	}
}

func TestOf_Errors(t *testing.T) {
	_, err := tensor.Of([]float32{1, 2, 3}, tensor.Shape{2, 2})
	assert.Error(t, err)

	_, err = tensor.Of([]float64{1}, nil)
	assert.Error(t, err)
}

func TestOfType_Converts(t *testing.T) {
	x, err := tensor.OfType([]float32{1.7, -2.2}, nil, tensor.Int32)
	require.NoError(t, err)
	defer x.Dispose()
	assert.Equal(t, tensor.Int32, x.DType())
	assert.Equal(t, []int32{1, -2}, x.Int32s())
}

func TestMatMulAndBroadcast(t *testing.T) {
	got := tensor.Tidy("test", func() []float32 {
		a := tensor.MustOf([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
		b := tensor.Ones(tensor.Shape{3, 1})
		c := tensor.MatMul(a, b, false, false)
		return tensor.Add(c, tensor.Scalar(1)).Float32s()
	})
	assert.Equal(t, []float32{7, 16}, got)
}

func TestTidy_DisposesIntermediates(t *testing.T) {
	x := tensor.MustOf([]float32{3, 4}, nil)
	defer x.Dispose()

	var intermediate *tensor.Tensor
	y := tensor.Tidy("normalize", func() *tensor.Tensor {
		intermediate = tensor.Norm(x, nil, false)
		return tensor.Div(x, intermediate)
	})
	defer y.Dispose()

	assert.True(t, intermediate.IsDisposed())
	assert.False(t, y.IsDisposed())
	assert.InDeltaSlice(t, []float32{0.6, 0.8}, y.Float32s(), 1e-6)
}

func TestBroadcastShapes(t *testing.T) {
	shape, _, err := tensor.BroadcastShapes(tensor.Shape{3, 1}, tensor.Shape{3, 4})
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{3, 4}, shape)

	_, _, err = tensor.BroadcastShapes(tensor.Shape{3}, tensor.Shape{4})
	assert.Error(t, err)
}

func TestParseDataType(t *testing.T) {
	dt, err := tensor.ParseDataType("int32")
	require.NoError(t, err)
	assert.Equal(t, tensor.Int32, dt)

	_, err = tensor.ParseDataType("complex64")
	assert.Error(t, err)
}
