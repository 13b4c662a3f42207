package cpu

import (
	"github.com/born-ml/tfcore/internal/kernel"
)

// registerKernels registers every CPU kernel under backendName.
func registerKernels(backendName string) {
	funcs := map[string]kernel.Func{
		kernel.Add:         binaryKernel(addOp),
		kernel.Sub:         binaryKernel(subOp),
		kernel.Multiply:    binaryKernel(mulOp),
		kernel.RealDiv:     binaryKernel(divOp),
		kernel.Neg:         unaryKernel(negOp),
		kernel.Square:      unaryKernel(squareOp),
		kernel.Sqrt:        unaryKernel(sqrtOp),
		kernel.Exp:         unaryKernel(expOp),
		kernel.Log:         unaryKernel(logOp),
		kernel.Relu:        unaryKernel(reluOp),
		kernel.Step:        unaryKernel(stepOp),
		kernel.Sum:         reduceKernel(kernel.Sum),
		kernel.Max:         reduceKernel(kernel.Max),
		kernel.Equal:       equal,
		kernel.BatchMatMul: batchMatMul,
		kernel.Reshape:     reshape,
		kernel.Cast:        cast,
		kernel.Identity:    identity,
		kernel.Transpose:   transpose,
		kernel.Concat:      concat,
		kernel.Slice:       slice,
		kernel.TopK:        topK,
		kernel.Fill:        fill,
		kernel.ZerosLike:   filledLike(kernel.ZerosLike, 0),
		kernel.OnesLike:    filledLike(kernel.OnesLike, 1),
	}
	for _, name := range kernel.Names() {
		if f, ok := funcs[name]; ok {
			kernel.Register(kernel.Config{KernelName: name, BackendName: backendName, KernelFunc: f})
		}
	}
}
