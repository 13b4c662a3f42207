package cpu

import (
	"fmt"
	"math"
	"slices"

	"github.com/born-ml/tfcore/internal/kernel"
	"github.com/born-ml/tfcore/internal/tensor"
)

// reduceShapes returns the output shape of reducing shape over axes, with
// and without the reduced dimensions kept as size 1.
func reduceShapes(shape tensor.Shape, axes []int, keepDims bool) tensor.Shape {
	out := make(tensor.Shape, 0, len(shape))
	for i, d := range shape {
		switch {
		case !slices.Contains(axes, i):
			out = append(out, d)
		case keepDims:
			out = append(out, 1)
		}
	}
	return out
}

// reduceIndex returns, for each input element, the flat index of the
// output element it reduces into.
func reduceIndex(shape tensor.Shape, axes []int) []int {
	kept := shape.Clone()
	for _, ax := range axes {
		kept[ax] = 1
	}
	outStrides := broadcastStrides(kept, shape)
	inStrides := shape.ComputeStrides()

	size := shape.NumElements()
	idx := make([]int, size)
	for i := range idx {
		idx[i] = flatIndex(i, inStrides, outStrides)
	}
	return idx
}

// reduceKernel implements Sum and Max.
//
// Attrs:
//   - axis: axes to reduce (empty reduces everything)
//   - keepDims: keep reduced axes as size 1
func reduceKernel(name string) kernel.Func {
	return func(in kernel.Input) ([]tensor.TensorInfo, error) {
		b := cpuBackend(in)
		x := in.Inputs["x"]
		if x == nil {
			return nil, fmt.Errorf("%s: input 'x' is required", name)
		}
		axes, err := tensor.ParseAxes(in.Attrs.Ints("axis"), x.Rank())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		outShape := reduceShapes(x.Shape(), axes, in.Attrs.Bool("keepDims", false))
		outSize := outShape.NumElements()
		idx := reduceIndex(x.Shape(), axes)

		dtype := x.DType()
		if dtype == tensor.Bool || (name == kernel.Sum && dtype == tensor.Int32) {
			dtype = tensor.Int32
		}

		if dtype == tensor.Int32 {
			xs, _ := tensor.ConvertValues(b.values(x), tensor.Int32).([]int32)
			out := make([]int32, outSize)
			if name == kernel.Max {
				for i := range out {
					out[i] = math.MinInt32
				}
			}
			for i, v := range xs {
				if name == kernel.Max {
					out[idx[i]] = max(out[idx[i]], v)
				} else {
					out[idx[i]] += v
				}
			}
			if name == kernel.Max && x.DType() == tensor.Bool {
				return []tensor.TensorInfo{b.output(out, outShape, tensor.Bool)}, nil
			}
			return []tensor.TensorInfo{b.output(out, outShape, tensor.Int32)}, nil
		}

		xs := b.float32s(x)
		out := make([]float32, outSize)
		if name == kernel.Max {
			for i := range out {
				out[i] = float32(math.Inf(-1))
			}
		}
		for i, v := range xs {
			if name != kernel.Max {
				out[idx[i]] += v
				continue
			}
			if v > out[idx[i]] || v != v {
				out[idx[i]] = v
			}
		}
		return []tensor.TensorInfo{b.output(out, outShape, tensor.Float32)}, nil
	}
}
