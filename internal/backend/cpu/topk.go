package cpu

import (
	"fmt"

	"github.com/emirpasic/gods/v2/trees/binaryheap"

	"github.com/born-ml/tfcore/internal/kernel"
	"github.com/born-ml/tfcore/internal/tensor"
)

type scored[T number] struct {
	value T
	index int32
}

// worse orders candidates so the heap root is the one to evict first: the
// lower value, or on equal values the higher index.
func worse[T number](a, b scored[T]) int {
	switch {
	case a.value < b.value:
		return -1
	case a.value > b.value:
		return 1
	case a.index > b.index:
		return -1
	case a.index < b.index:
		return 1
	default:
		return 0
	}
}

// topK selects the k largest entries along the last axis of input "x".
// Outputs are the values (descending, ties by lower index) and their int32
// indices, both shaped [..., k].
func topK(in kernel.Input) ([]tensor.TensorInfo, error) {
	b := cpuBackend(in)
	x := in.Inputs["x"]
	if x == nil {
		return nil, fmt.Errorf("TopK: input 'x' is required")
	}
	if x.Rank() == 0 {
		return nil, fmt.Errorf("TopK: topk() expects the input to be of rank 1 or higher")
	}
	lastDim := x.Shape()[x.Rank()-1]
	k := in.Attrs.Int("k", 1)
	if k < 0 {
		return nil, fmt.Errorf("TopK: 'k' passed to topk() must be >= 0 but got %d", k)
	}
	if k > lastDim {
		return nil, fmt.Errorf("TopK: 'k' passed to topk() must be <= the last dimension (%d) but got %d", lastDim, k)
	}

	batch := 0
	if lastDim > 0 {
		batch = x.Size() / lastDim
	}
	outShape := x.Shape().Clone()
	outShape[len(outShape)-1] = k

	if x.DType() == tensor.Float32 {
		values, indices := selectTopK(b.float32s(x), batch, lastDim, k)
		return []tensor.TensorInfo{
			b.output(values, outShape, tensor.Float32),
			b.output(indices, outShape, tensor.Int32),
		}, nil
	}
	xs, _ := tensor.ConvertValues(b.values(x), tensor.Int32).([]int32)
	values, indices := selectTopK(xs, batch, lastDim, k)
	return []tensor.TensorInfo{
		b.output(values, outShape, x.DType()),
		b.output(indices, outShape, tensor.Int32),
	}, nil
}

// selectTopK keeps the k best entries of each row in a bounded heap.
func selectTopK[T number](xs []T, batch, lastDim, k int) ([]T, []int32) {
	values := make([]T, batch*k)
	indices := make([]int32, batch*k)

	for row := 0; row < batch && k > 0; row++ {
		heap := binaryheap.NewWith[scored[T]](worse[T])
		base := row * lastDim
		for i := 0; i < lastDim; i++ {
			cand := scored[T]{value: xs[base+i], index: int32(i)}
			if heap.Size() < k {
				heap.Push(cand)
				continue
			}
			if root, _ := heap.Peek(); worse(cand, root) > 0 {
				heap.Pop()
				heap.Push(cand)
			}
		}
		for j := k - 1; j >= 0; j-- {
			best, _ := heap.Pop()
			values[row*k+j] = best.value
			indices[row*k+j] = best.index
		}
	}
	return values, indices
}
