// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the public tensor API of tfcore.
//
// # Overview
//
// A Tensor is an immutable handle to a typed, shaped buffer owned by a
// backend. Operations dispatch kernels on the process-wide engine, which
// picks the highest-priority registered backend (the pure Go CPU backend
// is always available).
//
// # Basic Usage
//
//	import "github.com/born-ml/tfcore/tensor"
//
//	func main() {
//	    x := tensor.MustOf([]float32{1, 2, 3, 4}, tensor.Shape{2, 2})
//	    y := tensor.Ones(tensor.Shape{2, 2})
//	    z := tensor.MatMul(x, y, false, false)
//	    fmt.Println(z.Float32s())
//	}
//
// # Supported Data Types
//
//   - float32
//   - int32
//   - bool (masks)
//
// # Broadcasting
//
// Binary operations follow NumPy broadcasting rules:
//
//	a := tensor.Zeros(tensor.Shape{3, 1})
//	b := tensor.Ones(tensor.Shape{3, 4})
//	c := tensor.Add(a, b) // (3, 4)
//
// # Memory Management
//
// Buffers are reference counted by their backend. Release a tensor with
// Dispose, or run the computation inside Tidy, which disposes every
// intermediate tensor that is not returned or kept:
//
//	y := tensor.Tidy("normalize", func() *tensor.Tensor {
//	    return tensor.Div(x, tensor.Norm(x, nil, false))
//	})
package tensor
