package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/tfcore/internal/kernel"
	"github.com/born-ml/tfcore/internal/parallel"
	"github.com/born-ml/tfcore/internal/tensor"
)

type number interface {
	~float32 | ~int32
}

// binaryOp holds the float and integer variants of an elementwise binary
// kernel. A nil i32 computes integer inputs in float32.
type binaryOp struct {
	name string
	f32  func(a, b float32) float32
	i32  func(a, b int32) int32
	// floatOut forces a float32 result (RealDiv).
	floatOut bool
}

var (
	addOp = binaryOp{
		name: kernel.Add,
		f32:  func(a, b float32) float32 { return a + b },
		i32:  func(a, b int32) int32 { return a + b },
	}
	subOp = binaryOp{
		name: kernel.Sub,
		f32:  func(a, b float32) float32 { return a - b },
		i32:  func(a, b int32) int32 { return a - b },
	}
	mulOp = binaryOp{
		name: kernel.Multiply,
		f32:  func(a, b float32) float32 { return a * b },
		i32:  func(a, b int32) int32 { return a * b },
	}
	divOp = binaryOp{
		name:     kernel.RealDiv,
		f32:      func(a, b float32) float32 { return a / b },
		floatOut: true,
	}
)

// binaryKernel computes op over inputs "a" and "b" with broadcasting.
func binaryKernel(op binaryOp) kernel.Func {
	return func(in kernel.Input) ([]tensor.TensorInfo, error) {
		b := cpuBackend(in)
		x, y := in.Inputs["a"], in.Inputs["b"]
		if x == nil || y == nil {
			return nil, fmt.Errorf("%s: inputs 'a' and 'b' are required", op.name)
		}
		outShape, _, err := tensor.BroadcastShapes(x.Shape(), y.Shape())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op.name, err)
		}

		dtype := tensor.UpcastType(x.DType(), y.DType())
		if op.floatOut || op.i32 == nil {
			dtype = tensor.Float32
		}

		if dtype == tensor.Float32 {
			out := broadcastBinary(b.float32s(x), b.float32s(y), x.Shape(), y.Shape(), outShape, op.f32, b.parallel)
			return []tensor.TensorInfo{b.output(out, outShape, tensor.Float32)}, nil
		}
		xs, _ := tensor.ConvertValues(b.values(x), tensor.Int32).([]int32)
		ys, _ := tensor.ConvertValues(b.values(y), tensor.Int32).([]int32)
		out := broadcastBinary(xs, ys, x.Shape(), y.Shape(), outShape, op.i32, b.parallel)
		return []tensor.TensorInfo{b.output(out, outShape, dtype)}, nil
	}
}

func broadcastBinary[T number](a, b []T, aShape, bShape, outShape tensor.Shape, op func(x, y T) T, cfg parallel.Config) []T {
	size := outShape.NumElements()
	out := make([]T, size)

	if aShape.Equal(bShape) {
		parallel.ForRange(size, func(start, end int) {
			for i := start; i < end; i++ {
				out[i] = op(a[i], b[i])
			}
		}, cfg)
		return out
	}

	outStrides := outShape.ComputeStrides()
	aStrides := broadcastStrides(aShape, outShape)
	bStrides := broadcastStrides(bShape, outShape)
	parallel.ForRange(size, func(start, end int) {
		for i := start; i < end; i++ {
			out[i] = op(a[flatIndex(i, outStrides, aStrides)], b[flatIndex(i, outStrides, bStrides)])
		}
	}, cfg)
	return out
}

// unaryOp is an elementwise kernel over input "x".
type unaryOp struct {
	name string
	f32  func(x float32, attrs kernel.Attrs) float32
	i32  func(x int32) int32
	// floatOut forces a float32 result (Sqrt, Exp, Log, Step).
	floatOut bool
}

var (
	negOp = unaryOp{
		name: kernel.Neg,
		f32:  func(x float32, _ kernel.Attrs) float32 { return -x },
		i32:  func(x int32) int32 { return -x },
	}
	squareOp = unaryOp{
		name: kernel.Square,
		f32:  func(x float32, _ kernel.Attrs) float32 { return x * x },
		i32:  func(x int32) int32 { return x * x },
	}
	sqrtOp = unaryOp{
		name:     kernel.Sqrt,
		f32:      func(x float32, _ kernel.Attrs) float32 { return float32(math.Sqrt(float64(x))) },
		floatOut: true,
	}
	expOp = unaryOp{
		name:     kernel.Exp,
		f32:      func(x float32, _ kernel.Attrs) float32 { return float32(math.Exp(float64(x))) },
		floatOut: true,
	}
	logOp = unaryOp{
		name:     kernel.Log,
		f32:      func(x float32, _ kernel.Attrs) float32 { return float32(math.Log(float64(x))) },
		floatOut: true,
	}
	reluOp = unaryOp{
		name: kernel.Relu,
		f32: func(x float32, _ kernel.Attrs) float32 {
			if x < 0 {
				return 0
			}
			return x
		},
		i32: func(x int32) int32 { return max(x, 0) },
	}
	stepOp = unaryOp{
		name: kernel.Step,
		f32: func(x float32, attrs kernel.Attrs) float32 {
			switch {
			case x != x:
				return x
			case x > 0:
				return 1
			default:
				return float32(attrs.Float("alpha", 0))
			}
		},
		floatOut: true,
	}
)

func unaryKernel(op unaryOp) kernel.Func {
	return func(in kernel.Input) ([]tensor.TensorInfo, error) {
		b := cpuBackend(in)
		x := in.Inputs["x"]
		if x == nil {
			return nil, fmt.Errorf("%s: input 'x' is required", op.name)
		}

		if x.DType() == tensor.Int32 && op.i32 != nil && !op.floatOut {
			xs, _ := b.values(x).([]int32)
			out := make([]int32, len(xs))
			parallel.ForRange(len(xs), func(start, end int) {
				for i := start; i < end; i++ {
					out[i] = op.i32(xs[i])
				}
			}, b.parallel)
			return []tensor.TensorInfo{b.output(out, x.Shape(), tensor.Int32)}, nil
		}

		xs := b.float32s(x)
		out := make([]float32, len(xs))
		parallel.ForRange(len(xs), func(start, end int) {
			for i := start; i < end; i++ {
				out[i] = op.f32(xs[i], in.Attrs)
			}
		}, b.parallel)
		return []tensor.TensorInfo{b.output(out, x.Shape(), tensor.Float32)}, nil
	}
}

func cpuBackend(in kernel.Input) *Backend {
	b, ok := in.Backend.(*Backend)
	if !ok {
		panic(fmt.Sprintf("cpu kernel called with backend %T", in.Backend))
	}
	return b
}

// equal compares inputs "a" and "b" elementwise with broadcasting and
// returns a bool tensor.
func equal(in kernel.Input) ([]tensor.TensorInfo, error) {
	b := cpuBackend(in)
	x, y := in.Inputs["a"], in.Inputs["b"]
	if x == nil || y == nil {
		return nil, fmt.Errorf("%s: inputs 'a' and 'b' are required", kernel.Equal)
	}
	outShape, _, err := tensor.BroadcastShapes(x.Shape(), y.Shape())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", kernel.Equal, err)
	}
	if tensor.UpcastType(x.DType(), y.DType()) == tensor.Float32 {
		out := broadcastBinary(b.float32s(x), b.float32s(y), x.Shape(), y.Shape(), outShape, equalTo[float32], b.parallel)
		return []tensor.TensorInfo{b.output(out, outShape, tensor.Bool)}, nil
	}
	xs, _ := tensor.ConvertValues(b.values(x), tensor.Int32).([]int32)
	ys, _ := tensor.ConvertValues(b.values(y), tensor.Int32).([]int32)
	out := broadcastBinary(xs, ys, x.Shape(), y.Shape(), outShape, equalTo[int32], b.parallel)
	return []tensor.TensorInfo{b.output(out, outShape, tensor.Bool)}, nil
}

func equalTo[T number](p, q T) T {
	if p == q {
		return 1
	}
	return 0
}
