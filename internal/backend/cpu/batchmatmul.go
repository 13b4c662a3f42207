package cpu

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/born-ml/tfcore/internal/kernel"
	"github.com/born-ml/tfcore/internal/parallel"
	"github.com/born-ml/tfcore/internal/tensor"
)

// batchMatMul multiplies the last two dimensions of inputs "a" and "b".
// Leading (batch) dimensions broadcast.
//
// For [B, M, K] @ [B, K, N] -> [B, M, N]. With transposeA the last two
// dimensions of a are read as [K, M]; transposeB likewise reads b as [N, K].
func batchMatMul(in kernel.Input) ([]tensor.TensorInfo, error) {
	b := cpuBackend(in)
	x, y := in.Inputs["a"], in.Inputs["b"]
	if x == nil || y == nil {
		return nil, fmt.Errorf("BatchMatMul: inputs 'a' and 'b' are required")
	}
	transposeA := in.Attrs.Bool("transposeA", false)
	transposeB := in.Attrs.Bool("transposeB", false)

	aShape, bShape := x.Shape(), y.Shape()
	if len(aShape) < 2 || len(bShape) < 2 {
		return nil, fmt.Errorf("BatchMatMul: inputs must be at least 2D, got %dD and %dD", len(aShape), len(bShape))
	}

	aRows, aCols := aShape[len(aShape)-2], aShape[len(aShape)-1]
	bRows, bCols := bShape[len(bShape)-2], bShape[len(bShape)-1]
	m, k1 := aRows, aCols
	if transposeA {
		m, k1 = aCols, aRows
	}
	k2, n := bRows, bCols
	if transposeB {
		k2, n = bCols, bRows
	}
	if k1 != k2 {
		return nil, fmt.Errorf("BatchMatMul: inner shapes (%d) and (%d) of tensors with shapes %v and %v and transposeA=%t and transposeB=%t must match",
			k1, k2, []int(aShape), []int(bShape), transposeA, transposeB)
	}

	aBatch := aShape[:len(aShape)-2]
	bBatch := bShape[:len(bShape)-2]
	outBatch, _, err := tensor.BroadcastShapes(aBatch, bBatch)
	if err != nil {
		return nil, fmt.Errorf("BatchMatMul: batch dimensions: %w", err)
	}
	outShape := append(outBatch.Clone(), m, n)
	batch := outBatch.NumElements()
	out := make([]float32, batch*m*n)

	if m == 0 || n == 0 || k1 == 0 || batch == 0 {
		return []tensor.TensorInfo{b.output(out, outShape, tensor.Float32)}, nil
	}

	as, bs := b.float32s(x), b.float32s(y)
	batchStrides := outBatch.ComputeStrides()
	aBatchStrides := broadcastStrides(aBatch, outBatch)
	bBatchStrides := broadcastStrides(bBatch, outBatch)
	aSize, bSize := aRows*aCols, bRows*bCols

	tA, tB := blas.NoTrans, blas.NoTrans
	if transposeA {
		tA = blas.Trans
	}
	if transposeB {
		tB = blas.Trans
	}

	parallel.ForBatch(batch, func(i int) {
		ai, bi := i, i
		if len(outBatch) > 0 {
			ai = flatIndex(i, batchStrides, aBatchStrides)
			bi = flatIndex(i, batchStrides, bBatchStrides)
		}
		am := blas32.General{Rows: aRows, Cols: aCols, Stride: aCols, Data: as[ai*aSize : (ai+1)*aSize]}
		bm := blas32.General{Rows: bRows, Cols: bCols, Stride: bCols, Data: bs[bi*bSize : (bi+1)*bSize]}
		cm := blas32.General{Rows: m, Cols: n, Stride: n, Data: out[i*m*n : (i+1)*m*n]}
		blas32.Gemm(tA, tB, 1, am, bm, 0, cm)
	}, b.parallel)

	return []tensor.TensorInfo{b.output(out, outShape, tensor.Float32)}, nil
}
