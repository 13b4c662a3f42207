package engine_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/born-ml/tfcore/internal/backend"
	"github.com/born-ml/tfcore/internal/backend/cpu"
	"github.com/born-ml/tfcore/internal/engine"
	"github.com/born-ml/tfcore/internal/env"
	"github.com/born-ml/tfcore/internal/kernel"
	_ "github.com/born-ml/tfcore/internal/ops"
	"github.com/born-ml/tfcore/internal/tensor"
)

// newEngine returns an isolated engine with only the CPU backend registered
// and leak checks on.
func newEngine(t *testing.T) *engine.Engine {
	t.Helper()
	environment := env.NewWithLookup(func(string) string { return "" })
	env.RegisterEngineFlags(environment)
	require.NoError(t, environment.Set(env.FlagIsTest, true))

	e := engine.New(environment)
	require.True(t, e.RegisterBackend(cpu.Name, cpu.NewFactory(environment), cpu.Priority))
	t.Cleanup(e.Reset)
	return e
}

// useGlobal installs e as the process engine so ops (and gradients built
// from them) run on it.
func useGlobal(t *testing.T, e *engine.Engine) {
	t.Helper()
	prev := engine.Set(e)
	t.Cleanup(func() { engine.Set(prev) })
}

// copyKernels registers the CPU kernels under another backend name.
func copyKernels(t *testing.T, name string) {
	t.Helper()
	kernel.CopyRegistered(cpu.Name, name)
	t.Cleanup(func() {
		for _, k := range kernel.ForBackend(name) {
			_ = kernel.Unregister(k.KernelName, name)
		}
	})
}

func mk(t *testing.T, e *engine.Engine, vals ...float32) *tensor.Tensor {
	t.Helper()
	x, err := e.MakeTensor(vals, tensor.Shape{len(vals)}, tensor.Float32, nil)
	require.NoError(t, err)
	return x
}

func failingFactory(err error) backend.Factory {
	return func(context.Context, backend.DataMover) (backend.KernelBackend, error) { return nil, err }
}

func TestReady_PrefersHighestPriorityWorkingBackend(t *testing.T) {
	e := newEngine(t)
	e.RegisterBackend("broken", failingFactory(errors.New("no device")), 10)
	e.RegisterBackend("panics", func(context.Context, backend.DataMover) (backend.KernelBackend, error) {
		panic("boom")
	}, 5)
	assert.False(t, e.RegisterBackend(cpu.Name, cpu.NewFactory(nil), 100))

	assert.Equal(t, []string{"broken", "panics", cpu.Name}, e.SortedBackends())
	require.NoError(t, e.Ready(context.Background()))
	assert.Equal(t, cpu.Name, e.BackendName())
	assert.Nil(t, e.FindBackend("broken"))
	assert.NotNil(t, e.FindBackendFactory("broken"))
}

func TestReady_NoBackend(t *testing.T) {
	e := engine.New(env.NewWithLookup(func(string) string { return "" }))
	e.RegisterBackend("broken", failingFactory(errors.New("no device")), 1)
	assert.ErrorIs(t, e.Ready(context.Background()), engine.ErrNoBackend)
	_, err := e.Backend()
	assert.ErrorIs(t, err, engine.ErrNoBackend)
}

func TestSetBackend_Errors(t *testing.T) {
	e := newEngine(t)
	_, err := e.SetBackend(context.Background(), "missing")
	assert.Error(t, err)
	assert.Error(t, e.RemoveBackend("missing"))

	e.RegisterBackend("broken", failingFactory(errors.New("no device")), 0)
	ok, err := e.SetBackend(context.Background(), "broken")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAsyncBackend(t *testing.T) {
	defer goleak.VerifyNone(t)
	e := newEngine(t)
	copyKernels(t, "slow")

	release := make(chan struct{})
	var calls atomic.Int32
	e.RegisterAsyncBackend("slow", func(_ context.Context, mover backend.DataMover) (backend.KernelBackend, error) {
		calls.Add(1)
		<-release
		return cpu.New(mover, nil), nil
	}, 2)

	// The async backend wins on priority but cannot run kernels yet.
	_, err := e.Backend()
	require.ErrorContains(t, err, "has not yet been initialized")
	_, err = e.Backend()
	require.Error(t, err)

	close(release)
	require.NoError(t, e.Ready(context.Background()))
	assert.Equal(t, "slow", e.BackendName())
	assert.Equal(t, int32(1), calls.Load())

	x := mk(t, e, 1, 2)
	y := e.RunKernel(kernel.Square, tensor.NamedTensorMap{"x": x}, nil)[0]
	assert.Equal(t, []float32{1, 4}, y.Float32s())
}

func TestAsyncBackend_CancelAndRemove(t *testing.T) {
	defer goleak.VerifyNone(t)
	e := newEngine(t)

	release := make(chan struct{})
	e.RegisterAsyncBackend("stuck", func(_ context.Context, mover backend.DataMover) (backend.KernelBackend, error) {
		<-release
		return cpu.New(mover, nil), nil
	}, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.SetBackend(ctx, "stuck")
	require.ErrorIs(t, err, context.Canceled)

	// Removing the backend abandons the initialization; its late result
	// is discarded.
	require.NoError(t, e.RemoveBackend("stuck"))
	close(release)

	require.NoError(t, e.Ready(context.Background()))
	assert.Equal(t, cpu.Name, e.BackendName())
	assert.Nil(t, e.FindBackend("stuck"))
}

func TestTidy(t *testing.T) {
	e := newEngine(t)
	require.NoError(t, e.Ready(context.Background()))
	before := e.Memory().NumTensors

	var inner, kept *tensor.Tensor
	out := engine.Tidy(e, "outer", func() *tensor.Tensor {
		a := mk(t, e, 1, 2)
		kept = e.Keep(mk(t, e, 3))
		inner = engine.Tidy(e, "inner", func() *tensor.Tensor {
			return e.RunKernel(kernel.Square, tensor.NamedTensorMap{"x": a}, nil)[0]
		})
		return e.RunKernel(kernel.Add, tensor.NamedTensorMap{"a": a, "b": inner}, nil)[0]
	})

	assert.Equal(t, []float32{2, 6}, out.Float32s())
	assert.True(t, inner.IsDisposed())
	assert.False(t, kept.IsDisposed())
	assert.Equal(t, before+2, e.Memory().NumTensors)

	out.Dispose()
	kept.Dispose()
	assert.Equal(t, before, e.Memory().NumTensors)
}

func TestTidy_DisposesOnPanic(t *testing.T) {
	e := newEngine(t)
	require.NoError(t, e.Ready(context.Background()))
	before := e.Memory().NumTensors

	assert.Panics(t, func() {
		engine.Tidy(e, "panics", func() *tensor.Tensor {
			mk(t, e, 1)
			panic("boom")
		})
	})
	assert.Equal(t, before, e.Memory().NumTensors)
}

func TestKeepIntermediateTensors(t *testing.T) {
	e := newEngine(t)
	require.NoError(t, e.Ready(context.Background()))
	require.NoError(t, e.Env().Set(env.FlagKeepIntermediateTensors, true))

	var a *tensor.Tensor
	engine.Tidy(e, "", func() *tensor.Tensor {
		a = mk(t, e, 1)
		return nil
	})
	assert.False(t, a.IsDisposed())
	a.Dispose()
}

func TestClone_SharesBuffer(t *testing.T) {
	e := newEngine(t)
	require.NoError(t, e.Ready(context.Background()))
	start := e.Memory()

	x := mk(t, e, 1, 2, 3)
	c := e.Clone(x)
	m := e.Memory()
	assert.Equal(t, start.NumTensors+2, m.NumTensors)
	assert.Equal(t, start.NumDataBuffers+1, m.NumDataBuffers)
	assert.Equal(t, start.NumBytes+24, m.NumBytes)
	assert.True(t, m.Unreliable)

	x.Dispose()
	assert.Equal(t, []float32{1, 2, 3}, c.Float32s())
	c.Dispose()
	assert.Equal(t, start.NumDataBuffers, e.Memory().NumDataBuffers)
}

func TestMakeTensor_Errors(t *testing.T) {
	e := newEngine(t)
	_, err := e.MakeTensor(nil, tensor.Shape{1}, tensor.Float32, nil)
	assert.Error(t, err)
	_, err = e.MakeTensor([]float64{1}, tensor.Shape{1}, tensor.Float32, nil)
	assert.Error(t, err)
	_, err = e.MakeTensor([]float32{1, 2}, tensor.Shape{3}, tensor.Float32, nil)
	assert.Error(t, err)
	_, err = e.MakeTensor([]float32{}, tensor.Shape{-1}, tensor.Float32, nil)
	assert.Error(t, err)

	x, err := e.MakeTensor([]float32{1.7, 0}, tensor.Shape{2}, tensor.Int32, nil)
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 0}, x.Int32s())
}

func TestVariables(t *testing.T) {
	e := newEngine(t)
	require.NoError(t, e.Ready(context.Background()))

	x := mk(t, e, 1, 2)
	v, err := e.MakeVariable(x, true, "w", tensor.Float32)
	require.NoError(t, err)
	_, err = e.MakeVariable(x, true, "w", tensor.Float32)
	assert.Error(t, err)

	anon, err := e.MakeVariable(x, false, "", tensor.Int32)
	require.NoError(t, err)
	assert.NotEmpty(t, anon.Name())
	assert.Equal(t, tensor.Int32, anon.Tensor.DType())

	// The variable keeps the buffer alive after x is gone.
	x.Dispose()
	assert.Equal(t, []float32{1, 2}, v.Tensor.Float32s())

	y := mk(t, e, 5, 6)
	require.NoError(t, v.Assign(y))
	y.Dispose()
	assert.Equal(t, []float32{5, 6}, v.Tensor.Float32s())
	assert.Error(t, v.Assign(mk(t, e, 1)))

	assert.Len(t, e.RegisteredVariables(), 2)
	e.DisposeVariables()
	assert.Empty(t, e.RegisteredVariables())
	assert.True(t, v.IsDisposed())
}

func TestMoveData(t *testing.T) {
	e := newEngine(t)
	copyKernels(t, "cpu2")
	e.RegisterBackend("cpu2", cpu.NewFactory(e.Env()), 0)

	ok, err := e.SetBackend(context.Background(), cpu.Name)
	require.NoError(t, err)
	require.True(t, ok)
	x := mk(t, e, 1, 2, 3)
	first := e.FindBackend(cpu.Name)

	ok, err = e.SetBackend(context.Background(), "cpu2")
	require.NoError(t, err)
	require.True(t, ok)

	// Leak checks are on, so the migration must be accounted for.
	y := e.RunKernel(kernel.Neg, tensor.NamedTensorMap{"x": x}, nil)[0]
	assert.Equal(t, []float32{-1, -2, -3}, y.Float32s())
	assert.Equal(t, 0, first.NumDataIDs())
	assert.Equal(t, 1, e.FindBackend("cpu2").RefCount(x.DataID()))
	assert.Equal(t, []float32{1, 2, 3}, x.Float32s())
}

func TestLeakCheck(t *testing.T) {
	e := newEngine(t)
	require.NoError(t, e.Ready(context.Background()))

	kernel.Register(kernel.Config{
		KernelName:  "LeakyTestKernel",
		BackendName: cpu.Name,
		KernelFunc: func(in kernel.Input) ([]tensor.TensorInfo, error) {
			in.Backend.Write([]float32{0}, tensor.Shape{1}, tensor.Float32)
			id := in.Backend.Write([]float32{1}, tensor.Shape{1}, tensor.Float32)
			return []tensor.TensorInfo{{DataID: id, Shape: tensor.Shape{1}, DType: tensor.Float32}}, nil
		},
	})
	t.Cleanup(func() { _ = kernel.Unregister("LeakyTestKernel", cpu.Name) })

	assert.PanicsWithValue(t,
		"backend 'cpu' has an internal memory leak (1 data ids) after running 'LeakyTestKernel'",
		func() { e.RunKernel("LeakyTestKernel", nil, nil) })

	require.NoError(t, e.Env().Set(env.FlagIsTest, false))
	assert.NotPanics(t, func() { e.RunKernel("LeakyTestKernel", nil, nil) })

	assert.Panics(t, func() { e.RunKernel("NotAKernel", nil, nil) })
}

func TestProfile(t *testing.T) {
	e := newEngine(t)
	require.NoError(t, e.Ready(context.Background()))
	x := mk(t, e, 1, 2)

	info, err := e.Profile(func() any { return nil })
	require.NoError(t, err)
	assert.Empty(t, info.Kernels)
	assert.Equal(t, e.Memory().NumBytes, info.PeakBytes)

	info, err = e.Profile(func() any {
		return e.RunKernel(kernel.Square, tensor.NamedTensorMap{"x": x}, nil)[0]
	})
	require.NoError(t, err)
	assert.Equal(t, []string{kernel.Square}, info.KernelNames)
	assert.Equal(t, 8, info.NewBytes)
	assert.Equal(t, 1, info.NewTensors)
	require.Len(t, info.Kernels, 1)
	k := info.Kernels[0]
	assert.Equal(t, []tensor.Shape{{2}}, k.InputShapes)
	assert.Equal(t, []tensor.Shape{{2}}, k.OutputShapes)
	assert.Equal(t, 8, k.BytesAdded)
	assert.Equal(t, info.PeakBytes, k.TotalBytesSnapshot)
	assert.GreaterOrEqual(t, k.KernelTimeMs, 0.0)
	assert.IsType(t, &tensor.Tensor{}, info.Result)

	timing, err := e.Time(func() {})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, timing.WallMs, 0.0)
}

type recordingLogger struct{ names []string }

func (r *recordingLogger) LogKernelProfile(name string, _ *tensor.Tensor, _ float64, _ tensor.NamedTensorMap, _ string) {
	r.names = append(r.names, name)
}

func TestDebugLogsKernelProfiles(t *testing.T) {
	e := newEngine(t)
	rec := &recordingLogger{}
	e.SetProfileLogger(rec)
	require.NoError(t, e.Ready(context.Background()))
	require.NoError(t, e.Env().Set(env.FlagDebug, true))

	x := mk(t, e, 1)
	e.RunKernel(kernel.Exp, tensor.NamedTensorMap{"x": x}, nil)
	assert.Equal(t, []string{kernel.Exp}, rec.names)
}

func TestGradients(t *testing.T) {
	e := newEngine(t)
	useGlobal(t, e)
	require.NoError(t, e.Ready(context.Background()))
	x := mk(t, e, 3)
	other := mk(t, e, 1)

	y, grads, err := e.Gradients(func() *tensor.Tensor {
		return e.RunKernel(kernel.Multiply, tensor.NamedTensorMap{"a": x, "b": x}, nil)[0]
	}, []*tensor.Tensor{x, other}, nil, true)
	require.NoError(t, err)
	assert.Equal(t, []float32{9}, y.Float32s())
	// x is used twice, so the two partial gradients are summed.
	assert.Equal(t, []float32{6}, grads[0].Float32s())
	assert.Nil(t, grads[1])

	_, _, err = e.Gradients(func() *tensor.Tensor {
		return e.RunKernel(kernel.Square, tensor.NamedTensorMap{"x": other}, nil)[0]
	}, []*tensor.Tensor{x}, nil, false)
	assert.ErrorContains(t, err, "cannot compute gradient")

	_, _, err = e.Gradients(func() *tensor.Tensor { return x }, nil, nil, false)
	assert.Error(t, err)

	dy := mk(t, e, 1, 2)
	_, _, err = e.Gradients(func() *tensor.Tensor {
		return e.RunKernel(kernel.Square, tensor.NamedTensorMap{"x": x}, nil)[0]
	}, []*tensor.Tensor{x}, dy, false)
	assert.ErrorContains(t, err, "the shape of dy must match")
}

func TestGradients_NilResultReleasesTape(t *testing.T) {
	e := newEngine(t)
	useGlobal(t, e)
	require.NoError(t, e.Ready(context.Background()))
	x := mk(t, e, 2)
	before := e.Memory().NumTensors

	_, _, err := e.Gradients(func() *tensor.Tensor {
		sq := e.RunKernel(kernel.Square, tensor.NamedTensorMap{"x": x}, nil)[0]
		e.RunKernel(kernel.Exp, tensor.NamedTensorMap{"x": sq}, nil)
		return nil
	}, []*tensor.Tensor{x}, nil, false)
	assert.ErrorContains(t, err, "must be a tensor")
	assert.Equal(t, before, e.Memory().NumTensors)
}

func TestRegisterGradient_WarnsOnOverrideInDebug(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	e := newEngine(t)
	const name = "override-test"
	t.Cleanup(func() { _ = kernel.UnregisterGradient(name) })

	assert.False(t, e.RegisterGradient(kernel.GradConfig{KernelName: name}))
	assert.True(t, e.RegisterGradient(kernel.GradConfig{KernelName: name}))
	assert.Empty(t, buf.String())

	require.NoError(t, e.Env().Set(env.FlagDebug, true))
	assert.True(t, e.RegisterGradient(kernel.GradConfig{KernelName: name}))
	assert.Contains(t, buf.String(), "overriding the gradient")
	assert.Contains(t, buf.String(), "kernel="+name)
}

func TestCustomGrad(t *testing.T) {
	e := newEngine(t)
	useGlobal(t, e)
	require.NoError(t, e.Ready(context.Background()))
	x := mk(t, e, 2)

	double := e.CustomGrad(func(save engine.GradSaveFunc, inputs ...*tensor.Tensor) engine.CustomGradResult {
		return engine.CustomGradResult{
			Value: e.RunKernel(kernel.Add, tensor.NamedTensorMap{"a": inputs[0], "b": inputs[0]}, nil)[0],
			GradFunc: func(dy *tensor.Tensor, _ []*tensor.Tensor) []*tensor.Tensor {
				return []*tensor.Tensor{e.RunKernel(kernel.Neg, tensor.NamedTensorMap{"x": dy}, nil)[0]}
			},
		}
	})

	y, grads, err := e.Gradients(func() *tensor.Tensor { return double(x) }, []*tensor.Tensor{x}, nil, false)
	require.NoError(t, err)
	assert.Equal(t, []float32{4}, y.Float32s())
	assert.Equal(t, []float32{-1}, grads[0].Float32s())

	assert.Panics(t, func() { double(nil) })
}
