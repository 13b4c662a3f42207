package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/tfcore/internal/tensor"
)

func noop(Input) ([]tensor.TensorInfo, error) { return nil, nil }

func TestRegistry_RegisterGetUnregister(t *testing.T) {
	const be = "registry-test"
	Register(Config{KernelName: "A", BackendName: be, KernelFunc: noop})
	Register(Config{KernelName: "B", BackendName: be, KernelFunc: noop})
	Register(Config{KernelName: "A", BackendName: "registry-test-other", KernelFunc: noop})
	t.Cleanup(func() {
		_ = Unregister("A", be)
		_ = Unregister("B", be)
		_ = Unregister("A", "registry-test-other")
	})

	got := Get("A", be)
	require.NotNil(t, got)
	assert.Equal(t, be, got.BackendName)
	assert.Nil(t, Get("C", be))

	var names []string
	for _, c := range ForBackend(be) {
		names = append(names, c.KernelName)
	}
	assert.Equal(t, []string{"A", "B"}, names)

	require.NoError(t, Unregister("B", be))
	assert.Error(t, Unregister("B", be))
	assert.Len(t, ForBackend(be), 1)
}

func TestRegistry_CopyRegistered(t *testing.T) {
	Register(Config{KernelName: "X", BackendName: "copy-src", KernelFunc: noop})
	CopyRegistered("copy-src", "copy-dst")
	t.Cleanup(func() {
		_ = Unregister("X", "copy-src")
		_ = Unregister("X", "copy-dst")
	})

	got := Get("X", "copy-dst")
	require.NotNil(t, got)
	assert.Equal(t, "copy-dst", got.BackendName)
}

func TestRegistry_Gradients(t *testing.T) {
	assert.False(t, RegisterGradient(GradConfig{KernelName: "grad-test"}))
	assert.True(t, RegisterGradient(GradConfig{KernelName: "grad-test", InputsToSave: []string{"x"}}))
	got := Gradient("grad-test")
	require.NotNil(t, got)
	assert.Equal(t, []string{"x"}, got.InputsToSave)

	require.NoError(t, UnregisterGradient("grad-test"))
	assert.Nil(t, Gradient("grad-test"))
	assert.Error(t, UnregisterGradient("grad-test"))
}

func TestAttrs(t *testing.T) {
	a := Attrs{
		"i":     int64(3),
		"f":     float32(0.5),
		"axes":  tensor.Shape{1, 2},
		"axis":  4,
		"b":     true,
		"dtype": "int32",
		"bad":   "x",
	}
	assert.Equal(t, 3, a.Int("i", 0))
	assert.Equal(t, 7, a.Int("missing", 7))
	assert.Equal(t, 0.5, a.Float("f", 0))
	assert.Equal(t, []int{1, 2}, a.Ints("axes"))
	assert.Equal(t, []int{4}, a.Ints("axis"))
	assert.Nil(t, a.Ints("missing"))
	assert.True(t, a.Bool("b", false))
	assert.Equal(t, tensor.Int32, a.DType("dtype", tensor.Float32))
	assert.Equal(t, tensor.Bool, a.DType("missing", tensor.Bool))
	assert.Panics(t, func() { a.Int("bad", 0) })
	assert.Panics(t, func() { a.DType("bad", tensor.Float32) })
}

func TestNames(t *testing.T) {
	names := Names()
	assert.Contains(t, names, BatchMatMul)
	seen := make(map[string]bool)
	for _, n := range names {
		assert.False(t, seen[n], "duplicate %s", n)
		seen[n] = true
	}
}
