package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMakeValues(t *testing.T) {
	assert.Equal(t, []float32{0, 0}, MakeZeros(2, Float32))
	assert.Equal(t, []int32{1, 1, 1}, MakeOnes(3, Int32))
	assert.Equal(t, []bool{true}, MakeFilled(1, Bool, 7))
	assert.Equal(t, []float32{2.5, 2.5}, MakeFilled(2, Float32, 2.5))
}

func TestConvertValues(t *testing.T) {
	f := []float32{1.5, 0, -2.7}
	assert.Equal(t, []int32{1, 0, -2}, ConvertValues(f, Int32))
	assert.Equal(t, []bool{true, false, true}, ConvertValues(f, Bool))
	assert.Equal(t, []float32{1, 0}, ConvertValues([]bool{true, false}, Float32))

	// Same dtype is returned without copying.
	same := ConvertValues(f, Float32).([]float32)
	same[0] = 42
	assert.Equal(t, float32(42), f[0])

	// ToFloat32s always copies.
	cp := ToFloat32s(f)
	cp[0] = 0
	assert.Equal(t, float32(42), f[0])
}

func TestValuesDTypeAndLen(t *testing.T) {
	dt, ok := ValuesDType([]int32{1})
	assert.True(t, ok)
	assert.Equal(t, Int32, dt)
	_, ok = ValuesDType([]float64{1})
	assert.False(t, ok)

	assert.Equal(t, 3, ValuesLen([]bool{true, false, true}))
	assert.Panics(t, func() { ValuesLen("nope") })
}
