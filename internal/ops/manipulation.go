package ops

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/born-ml/tfcore/internal/engine"
	"github.com/born-ml/tfcore/internal/kernel"
	"github.com/born-ml/tfcore/internal/tensor"
)

// Reshape returns a view of x with a new shape. One entry may be -1.
func Reshape(x *tensor.Tensor, shape []int) *tensor.Tensor {
	return run(kernel.Reshape, tensor.NamedTensorMap{"x": x}, kernel.Attrs{"shape": shape})
}

// Cast converts x to dtype. Casting to the same dtype shares the buffer.
func Cast(x *tensor.Tensor, dtype tensor.DataType) *tensor.Tensor {
	return run(kernel.Cast, tensor.NamedTensorMap{"x": x}, kernel.Attrs{"dtype": dtype})
}

// Transpose permutes the dimensions of x. A nil perm reverses them.
func Transpose(x *tensor.Tensor, perm []int) *tensor.Tensor {
	attrs := kernel.Attrs{}
	if perm != nil {
		attrs["perm"] = perm
	}
	return run(kernel.Transpose, tensor.NamedTensorMap{"x": x}, attrs)
}

// Concat joins xs along axis. A single tensor is cloned.
func Concat(xs []*tensor.Tensor, axis int) *tensor.Tensor {
	if len(xs) == 0 {
		panic("pass at least one tensor to concat")
	}
	if len(xs) == 1 {
		return Clone(xs[0])
	}
	inputs := make(tensor.NamedTensorMap, len(xs))
	for i, x := range xs {
		inputs[strconv.Itoa(i)] = x
	}
	return run(kernel.Concat, inputs, kernel.Attrs{"axis": axis})
}

// Slice extracts a block of x. A size entry of -1 extends to the end.
func Slice(x *tensor.Tensor, begin, size []int) *tensor.Tensor {
	return run(kernel.Slice, tensor.NamedTensorMap{"x": x}, kernel.Attrs{"begin": begin, "size": size})
}

// Split cuts x along axis into pieces of the given sizes.
func Split(x *tensor.Tensor, sizes []int, axis int) []*tensor.Tensor {
	axes, err := tensor.ParseAxes([]int{axis}, x.Rank())
	if err != nil {
		panic(err)
	}
	axis = axes[0]

	total := 0
	for _, s := range sizes {
		total += s
	}
	if total != x.Shape()[axis] {
		panic(fmt.Sprintf("the sum of sizes %v must match the size of axis %d (%d)", sizes, axis, x.Shape()[axis]))
	}

	begin := make([]int, x.Rank())
	out := make([]*tensor.Tensor, len(sizes))
	for i, s := range sizes {
		size := []int(x.Shape().Clone())
		size[axis] = s
		out[i] = Slice(x, slices.Clone(begin), size)
		begin[axis] += s
	}
	return out
}

// TopK returns the k largest values along the last axis of x and their
// int32 indices, sorted descending with ties broken by lower index.
func TopK(x *tensor.Tensor, k int) (values, indices *tensor.Tensor) {
	outs := engine.Get().RunKernel(kernel.TopK, tensor.NamedTensorMap{"x": x}, kernel.Attrs{"k": k, "sorted": true})
	return outs[0], outs[1]
}
