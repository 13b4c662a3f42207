package ops

import (
	"strconv"

	"github.com/born-ml/tfcore/internal/kernel"
	"github.com/born-ml/tfcore/internal/tensor"
)

func init() {
	for _, config := range gradConfigs() {
		kernel.RegisterGradient(config)
	}
}

type grads = kernel.NamedGradientMap

// reduceToShape sums dy over the axes broadcasting added and reshapes the
// result to shape.
func reduceToShape(dy *tensor.Tensor, shape tensor.Shape) *tensor.Tensor {
	res := dy
	if axes := tensor.ReductionAxes(shape, dy.Shape()); len(axes) > 0 {
		res = Sum(res, axes, false)
	}
	return Reshape(res, shape)
}

func float(x *tensor.Tensor) *tensor.Tensor {
	return Cast(x, tensor.Float32)
}

func gradConfigs() []kernel.GradConfig {
	return []kernel.GradConfig{
		{
			KernelName:   kernel.Add,
			InputsToSave: []string{"a", "b"},
			GradFunc: func(dys, saved []*tensor.Tensor, _ kernel.Attrs) grads {
				a, b := saved[0], saved[1]
				return grads{
					"a": func() *tensor.Tensor { return reduceToShape(dys[0], a.Shape()) },
					"b": func() *tensor.Tensor { return reduceToShape(dys[0], b.Shape()) },
				}
			},
		},
		{
			KernelName:   kernel.Sub,
			InputsToSave: []string{"a", "b"},
			GradFunc: func(dys, saved []*tensor.Tensor, _ kernel.Attrs) grads {
				a, b := saved[0], saved[1]
				return grads{
					"a": func() *tensor.Tensor { return reduceToShape(dys[0], a.Shape()) },
					"b": func() *tensor.Tensor { return Neg(reduceToShape(dys[0], b.Shape())) },
				}
			},
		},
		{
			KernelName:   kernel.Multiply,
			InputsToSave: []string{"a", "b"},
			GradFunc: func(dys, saved []*tensor.Tensor, _ kernel.Attrs) grads {
				a, b := saved[0], saved[1]
				dy := dys[0]
				return grads{
					"a": func() *tensor.Tensor { return reduceToShape(Mul(dy, float(b)), a.Shape()) },
					"b": func() *tensor.Tensor { return reduceToShape(Mul(dy, float(a)), b.Shape()) },
				}
			},
		},
		{
			KernelName:   kernel.RealDiv,
			InputsToSave: []string{"a", "b"},
			GradFunc: func(dys, saved []*tensor.Tensor, _ kernel.Attrs) grads {
				a, b := saved[0], saved[1]
				dy := dys[0]
				return grads{
					"a": func() *tensor.Tensor { return reduceToShape(Div(dy, float(b)), a.Shape()) },
					"b": func() *tensor.Tensor {
						res := reduceToShape(Mul(dy, float(a)), b.Shape())
						return Neg(Div(res, float(Square(b))))
					},
				}
			},
		},
		{
			KernelName: kernel.Neg,
			GradFunc: func(dys, _ []*tensor.Tensor, _ kernel.Attrs) grads {
				return grads{"x": func() *tensor.Tensor { return Neg(dys[0]) }}
			},
		},
		{
			KernelName:   kernel.Square,
			InputsToSave: []string{"x"},
			GradFunc: func(dys, saved []*tensor.Tensor, _ kernel.Attrs) grads {
				x := saved[0]
				return grads{"x": func() *tensor.Tensor { return Mul(dys[0], Mul(float(x), Scalar(2))) }}
			},
		},
		{
			KernelName:   kernel.Sqrt,
			InputsToSave: []string{"x"},
			GradFunc: func(dys, saved []*tensor.Tensor, _ kernel.Attrs) grads {
				x := saved[0]
				return grads{"x": func() *tensor.Tensor { return Div(dys[0], Mul(Sqrt(float(x)), Scalar(2))) }}
			},
		},
		{
			KernelName:    kernel.Exp,
			OutputsToSave: []bool{true},
			GradFunc: func(dys, saved []*tensor.Tensor, _ kernel.Attrs) grads {
				y := saved[0]
				return grads{"x": func() *tensor.Tensor { return Mul(dys[0], y) }}
			},
		},
		{
			KernelName:   kernel.Log,
			InputsToSave: []string{"x"},
			GradFunc: func(dys, saved []*tensor.Tensor, _ kernel.Attrs) grads {
				x := saved[0]
				return grads{"x": func() *tensor.Tensor { return Div(dys[0], float(x)) }}
			},
		},
		{
			KernelName:   kernel.Relu,
			InputsToSave: []string{"x"},
			GradFunc: func(dys, saved []*tensor.Tensor, _ kernel.Attrs) grads {
				x := saved[0]
				return grads{"x": func() *tensor.Tensor { return Mul(dys[0], Step(float(x), 0)) }}
			},
		},
		{
			KernelName: kernel.Step,
			GradFunc: func(dys, _ []*tensor.Tensor, _ kernel.Attrs) grads {
				return grads{"x": func() *tensor.Tensor { return ZerosLike(dys[0]) }}
			},
		},
		{
			KernelName:   kernel.Sum,
			InputsToSave: []string{"x"},
			GradFunc: func(dys, saved []*tensor.Tensor, attrs kernel.Attrs) grads {
				x := saved[0]
				return grads{"x": func() *tensor.Tensor {
					expanded := expandReduced(dys[0], x.Shape(), attrs.Ints("axis"))
					return Mul(expanded, Ones(x.Shape()))
				}}
			},
		},
		{
			KernelName:    kernel.Max,
			InputsToSave:  []string{"x"},
			OutputsToSave: []bool{true},
			GradFunc: func(dys, saved []*tensor.Tensor, attrs kernel.Attrs) grads {
				x, y := saved[0], saved[1]
				return grads{"x": func() *tensor.Tensor {
					axes := attrs.Ints("axis")
					yExpanded := expandReduced(y, x.Shape(), axes)
					dyExpanded := expandReduced(dys[0], x.Shape(), axes)
					return Mul(dyExpanded, float(Equal(x, yExpanded)))
				}}
			},
		},
		{
			KernelName:   kernel.BatchMatMul,
			InputsToSave: []string{"a", "b"},
			GradFunc:     batchMatMulGrad,
		},
		{
			KernelName:   kernel.Reshape,
			InputsToSave: []string{"x"},
			GradFunc: func(dys, saved []*tensor.Tensor, _ kernel.Attrs) grads {
				x := saved[0]
				return grads{"x": func() *tensor.Tensor { return Reshape(dys[0], x.Shape()) }}
			},
		},
		{
			KernelName: kernel.Cast,
			GradFunc: func(dys, _ []*tensor.Tensor, _ kernel.Attrs) grads {
				return grads{"x": func() *tensor.Tensor { return Clone(dys[0]) }}
			},
		},
		{
			KernelName: kernel.Identity,
			GradFunc: func(dys, _ []*tensor.Tensor, _ kernel.Attrs) grads {
				return grads{"x": func() *tensor.Tensor { return float(dys[0]) }}
			},
		},
		{
			KernelName: kernel.Transpose,
			GradFunc: func(dys, _ []*tensor.Tensor, attrs kernel.Attrs) grads {
				perm := attrs.Ints("perm")
				return grads{"x": func() *tensor.Tensor {
					if perm == nil {
						return Transpose(dys[0], nil)
					}
					undo := make([]int, len(perm))
					for i, p := range perm {
						undo[p] = i
					}
					return Transpose(dys[0], undo)
				}}
			},
		},
		{
			KernelName:    kernel.Concat,
			SaveAllInputs: true,
			GradFunc: func(dys, saved []*tensor.Tensor, attrs kernel.Attrs) grads {
				axes, err := tensor.ParseAxes([]int{attrs.Int("axis", 0)}, saved[0].Rank())
				if err != nil {
					panic(err)
				}
				sizes := make([]int, len(saved))
				for i, t := range saved {
					sizes[i] = t.Shape()[axes[0]]
				}
				parts := Split(dys[0], sizes, axes[0])
				out := make(grads, len(parts))
				for i, p := range parts {
					out[strconv.Itoa(i)] = func() *tensor.Tensor { return p }
				}
				return out
			},
		},
		{
			KernelName:   kernel.Slice,
			InputsToSave: []string{"x"},
			GradFunc: func(dys, saved []*tensor.Tensor, attrs kernel.Attrs) grads {
				x := saved[0]
				begin := attrs.Ints("begin")
				return grads{"x": func() *tensor.Tensor { return padSlice(dys[0], x.Shape(), begin) }}
			},
		},
		{
			KernelName: kernel.ZerosLike,
			GradFunc: func(dys, _ []*tensor.Tensor, _ kernel.Attrs) grads {
				return grads{"x": func() *tensor.Tensor { return ZerosLike(dys[0]) }}
			},
		},
		{
			KernelName: kernel.OnesLike,
			GradFunc: func(dys, _ []*tensor.Tensor, _ kernel.Attrs) grads {
				return grads{"x": func() *tensor.Tensor { return ZerosLike(dys[0]) }}
			},
		},
	}
}

// expandReduced reshapes the result of a reduction over axes of shape so
// that it broadcasts against shape again.
func expandReduced(t *tensor.Tensor, shape tensor.Shape, axes []int) *tensor.Tensor {
	parsed, err := tensor.ParseAxes(axes, len(shape))
	if err != nil {
		panic(err)
	}
	expanded := []int(shape.Clone())
	for _, ax := range parsed {
		expanded[ax] = 1
	}
	return Reshape(t, expanded)
}

// padSlice places dy at offset begin inside zeros of shape by
// concatenating zero blocks before and after it along every dimension.
func padSlice(dy *tensor.Tensor, shape tensor.Shape, begin []int) *tensor.Tensor {
	res := float(dy)
	for d := range shape {
		before := begin[d]
		after := shape[d] - begin[d] - res.Shape()[d]
		parts := make([]*tensor.Tensor, 0, 3)
		if before > 0 {
			s := res.Shape().Clone()
			s[d] = before
			parts = append(parts, Zeros(s))
		}
		parts = append(parts, res)
		if after > 0 {
			s := res.Shape().Clone()
			s[d] = after
			parts = append(parts, Zeros(s))
		}
		res = Concat(parts, d)
	}
	return res
}

func batchMatMulGrad(dys, saved []*tensor.Tensor, attrs kernel.Attrs) grads {
	a, b := saved[0], saved[1]
	dy := dys[0]
	transposeA := attrs.Bool("transposeA", false)
	transposeB := attrs.Bool("transposeB", false)

	var derA, derB func() *tensor.Tensor
	switch {
	case !transposeA && !transposeB:
		derA = func() *tensor.Tensor { return MatMul(dy, b, false, true) }
		derB = func() *tensor.Tensor { return MatMul(a, dy, true, false) }
	case !transposeA && transposeB:
		derA = func() *tensor.Tensor { return MatMul(dy, b, false, false) }
		derB = func() *tensor.Tensor { return MatMul(dy, a, true, false) }
	case transposeA && !transposeB:
		derA = func() *tensor.Tensor { return MatMul(b, dy, false, true) }
		derB = func() *tensor.Tensor { return MatMul(a, dy, false, false) }
	default:
		derA = func() *tensor.Tensor { return MatMul(b, dy, true, true) }
		derB = func() *tensor.Tensor { return MatMul(dy, a, true, true) }
	}
	return grads{
		"a": func() *tensor.Tensor { return reduceToShape(derA(), a.Shape()) },
		"b": func() *tensor.Tensor { return reduceToShape(derB(), b.Shape()) },
	}
}
