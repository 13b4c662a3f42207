// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides a pure Go CPU backend for tensor operations.
//
// # Overview
//
// This package implements a CPU backend with:
//   - Pure Go implementation (no CGO)
//   - gonum BLAS for batched matrix multiplication
//   - Optional half-precision storage (FLOAT_PRECISION=16)
//   - NumPy-compatible broadcasting
//
// The backend registers itself with the engine under the name "cpu" when
// the package (or any public tfcore package) is imported.
//
// # Basic Usage
//
//	import (
//	    _ "github.com/born-ml/tfcore/backend/cpu"
//	    "github.com/born-ml/tfcore/tensor"
//	)
//
//	func main() {
//	    x := tensor.Zeros(tensor.Shape{2, 3})
//	    y := tensor.Ones(tensor.Shape{2, 3})
//	    z := tensor.Add(x, y)
//	}
//
// # Performance
//
// Elementwise kernels split their loops across NUM_WORKERS goroutines once
// the tensor is large enough. BatchMatMul runs one BLAS call per batch.
//
// # Thread Safety
//
// Kernels of one engine must not run concurrently. Separate engines may
// use separate backend instances concurrently.
package cpu
