package cpu

import (
	"fmt"
	"strconv"

	"github.com/born-ml/tfcore/internal/kernel"
	"github.com/born-ml/tfcore/internal/tensor"
)

func identity(in kernel.Input) ([]tensor.TensorInfo, error) {
	x := in.Inputs["x"]
	if x == nil {
		return nil, fmt.Errorf("Identity: input 'x' is required")
	}
	return []tensor.TensorInfo{cpuBackend(in).share(x, x.Shape())}, nil
}

// inferShape resolves a single -1 entry of shape against size.
func inferShape(shape []int, size int) (tensor.Shape, error) {
	out := make(tensor.Shape, len(shape))
	copy(out, shape)
	implicit := -1
	known := 1
	for i, d := range shape {
		switch {
		case d == -1:
			if implicit != -1 {
				return nil, fmt.Errorf("shapes can only have 1 implicit size, found -1 at dim %d and dim %d", implicit, i)
			}
			implicit = i
		case d < 0:
			return nil, fmt.Errorf("shapes can not be < 0, found %d at dim %d", d, i)
		default:
			known *= d
		}
	}
	if implicit == -1 {
		if known != size {
			return nil, fmt.Errorf("size(%d) must match the product of shape %v", size, shape)
		}
		return out, nil
	}
	if known == 0 || size%known != 0 {
		return nil, fmt.Errorf("the implicit shape can't be a fractional number, got %d / %d", size, known)
	}
	out[implicit] = size / known
	return out, nil
}

// reshape returns a view sharing the input buffer.
func reshape(in kernel.Input) ([]tensor.TensorInfo, error) {
	x := in.Inputs["x"]
	if x == nil {
		return nil, fmt.Errorf("Reshape: input 'x' is required")
	}
	shape, err := inferShape(in.Attrs.Ints("shape"), x.Size())
	if err != nil {
		return nil, fmt.Errorf("Reshape: %w", err)
	}
	return []tensor.TensorInfo{cpuBackend(in).share(x, shape)}, nil
}

func cast(in kernel.Input) ([]tensor.TensorInfo, error) {
	b := cpuBackend(in)
	x := in.Inputs["x"]
	if x == nil {
		return nil, fmt.Errorf("Cast: input 'x' is required")
	}
	dtype := in.Attrs.DType("dtype", x.DType())
	if dtype == x.DType() {
		return []tensor.TensorInfo{b.share(x, x.Shape())}, nil
	}
	return []tensor.TensorInfo{b.output(tensor.ConvertValues(b.values(x), dtype), x.Shape(), dtype)}, nil
}

// gather copies src into a new buffer of the same dtype, reading element
// index(i) for output element i.
func gather(src tensor.Values, size int, index func(i int) int) tensor.Values {
	switch vals := src.(type) {
	case []float32:
		out := make([]float32, size)
		for i := range out {
			out[i] = vals[index(i)]
		}
		return out
	case []int32:
		out := make([]int32, size)
		for i := range out {
			out[i] = vals[index(i)]
		}
		return out
	case []bool:
		out := make([]bool, size)
		for i := range out {
			out[i] = vals[index(i)]
		}
		return out
	default:
		panic(fmt.Sprintf("cpu: unsupported values type %T", src))
	}
}

func transpose(in kernel.Input) ([]tensor.TensorInfo, error) {
	b := cpuBackend(in)
	x := in.Inputs["x"]
	if x == nil {
		return nil, fmt.Errorf("Transpose: input 'x' is required")
	}
	rank := x.Rank()
	perm := in.Attrs.Ints("perm")
	if perm == nil {
		perm = make([]int, rank)
		for i := range perm {
			perm[i] = rank - 1 - i
		}
	}
	if len(perm) != rank {
		return nil, fmt.Errorf("Transpose: error in transpose: rank of input %d must match length of perm %v", rank, perm)
	}
	seen := make([]bool, rank)
	for _, p := range perm {
		if p < 0 || p >= rank || seen[p] {
			return nil, fmt.Errorf("Transpose: all entries in 'perm' %v must be a permutation of [0, %d)", perm, rank)
		}
		seen[p] = true
	}

	inShape := x.Shape()
	outShape := make(tensor.Shape, rank)
	for i, p := range perm {
		outShape[i] = inShape[p]
	}
	inStrides := x.Strides()
	outStrides := outShape.ComputeStrides()

	out := gather(b.values(x), x.Size(), func(i int) int {
		src := 0
		for d := 0; d < rank; d++ {
			coord := i / outStrides[d]
			i %= outStrides[d]
			src += coord * inStrides[perm[d]]
		}
		return src
	})
	return []tensor.TensorInfo{b.output(out, outShape, x.DType())}, nil
}

// concat joins inputs "0".."n-1" along attr axis.
func concat(in kernel.Input) ([]tensor.TensorInfo, error) {
	b := cpuBackend(in)
	if len(in.Inputs) == 0 {
		return nil, fmt.Errorf("Concat: at least one input is required")
	}
	xs := make([]*tensor.Tensor, len(in.Inputs))
	for i := range xs {
		x, ok := in.Inputs[strconv.Itoa(i)]
		if !ok || x == nil {
			return nil, fmt.Errorf("Concat: missing input %d", i)
		}
		xs[i] = x
	}

	first := xs[0]
	rank := first.Rank()
	axes, err := tensor.ParseAxes([]int{in.Attrs.Int("axis", 0)}, rank)
	if err != nil {
		return nil, fmt.Errorf("Concat: %w", err)
	}
	axis := axes[0]

	outShape := first.Shape().Clone()
	dtype := first.DType()
	for j, x := range xs[1:] {
		if x.Rank() != rank {
			return nil, fmt.Errorf("Concat: error in concat%dD: rank of tensors[%d] must be the same as the rank of the rest (%d)", rank, j+1, rank)
		}
		for d := 0; d < rank; d++ {
			if d != axis && x.Shape()[d] != outShape[d] {
				return nil, fmt.Errorf("Concat: error in concat%dD: shape of tensors (%v) does not match (%v) along the non-concatenated axis", rank, []int(x.Shape()), []int(first.Shape()))
			}
		}
		outShape[axis] += x.Shape()[axis]
		dtype = tensor.UpcastType(dtype, x.DType())
	}

	// Treat every input as [outer, inner] where inner spans axis and the
	// dimensions after it.
	outer := 1
	for d := 0; d < axis; d++ {
		outer *= outShape[d]
	}
	outInner := outShape.NumElements()
	if outer > 0 {
		outInner /= outer
	}

	out := tensor.MakeZeros(outShape.NumElements(), dtype)
	offset := 0
	for _, x := range xs {
		inner := 0
		if outer > 0 {
			inner = x.Size() / outer
		}
		src := tensor.ConvertValues(b.values(x), dtype)
		for o := 0; o < outer; o++ {
			copyValues(out, o*outInner+offset, src, o*inner, inner)
		}
		offset += inner
	}
	return []tensor.TensorInfo{b.output(out, outShape, dtype)}, nil
}

func copyValues(dst tensor.Values, dstOff int, src tensor.Values, srcOff, n int) {
	switch d := dst.(type) {
	case []float32:
		copy(d[dstOff:dstOff+n], src.([]float32)[srcOff:srcOff+n])
	case []int32:
		copy(d[dstOff:dstOff+n], src.([]int32)[srcOff:srcOff+n])
	case []bool:
		copy(d[dstOff:dstOff+n], src.([]bool)[srcOff:srcOff+n])
	}
}

// slice extracts attr size elements starting at attr begin. A size of -1
// extends to the end of the dimension.
func slice(in kernel.Input) ([]tensor.TensorInfo, error) {
	b := cpuBackend(in)
	x := in.Inputs["x"]
	if x == nil {
		return nil, fmt.Errorf("Slice: input 'x' is required")
	}
	rank := x.Rank()
	begin := in.Attrs.Ints("begin")
	size := in.Attrs.Ints("size")
	if len(begin) != rank || len(size) != rank {
		return nil, fmt.Errorf("Slice: error in slice%dD: length of begin %v and size %v must match the rank of the array (%d)", rank, begin, size, rank)
	}

	inShape := x.Shape()
	outShape := make(tensor.Shape, rank)
	for d := 0; d < rank; d++ {
		s := size[d]
		if s == -1 {
			s = inShape[d] - begin[d]
		}
		if begin[d] < 0 || s < 0 || begin[d]+s > inShape[d] {
			return nil, fmt.Errorf("Slice: error in slice%dD: begin[%d] + size[%d] (%d) would overflow input.shape[%d] (%d)",
				rank, d, d, begin[d]+s, d, inShape[d])
		}
		outShape[d] = s
	}

	inStrides := x.Strides()
	outStrides := outShape.ComputeStrides()
	out := gather(b.values(x), outShape.NumElements(), func(i int) int {
		src := 0
		for d := 0; d < rank; d++ {
			coord := i / outStrides[d]
			i %= outStrides[d]
			src += (coord + begin[d]) * inStrides[d]
		}
		return src
	})
	return []tensor.TensorInfo{b.output(out, outShape, x.DType())}, nil
}

// fill creates a tensor of attr shape filled with attr value.
func fill(in kernel.Input) ([]tensor.TensorInfo, error) {
	shape := tensor.Shape(in.Attrs.Ints("shape"))
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("Fill: %w", err)
	}
	dtype := in.Attrs.DType("dtype", tensor.Float32)
	values := tensor.MakeFilled(shape.NumElements(), dtype, in.Attrs.Float("value", 0))
	return []tensor.TensorInfo{cpuBackend(in).output(values, shape, dtype)}, nil
}

func filledLike(name string, value float64) kernel.Func {
	return func(in kernel.Input) ([]tensor.TensorInfo, error) {
		x := in.Inputs["x"]
		if x == nil {
			return nil, fmt.Errorf("%s: input 'x' is required", name)
		}
		values := tensor.MakeFilled(x.Size(), x.DType(), value)
		return []tensor.TensorInfo{cpuBackend(in).output(values, x.Shape(), x.DType())}, nil
	}
}
