package engine

import (
	"fmt"
	"strings"

	"github.com/born-ml/tfcore/internal/kernel"
	"github.com/born-ml/tfcore/internal/tensor"
)

// TapeNode records one kernel execution for the backward pass.
type TapeNode struct {
	ID         int
	KernelName string
	Inputs     tensor.NamedTensorMap
	Outputs    []*tensor.Tensor
	Saved      []*tensor.Tensor
	// Gradient maps output gradients (one per output, never nil) to lazily
	// evaluated input gradients. Nil when the kernel has no gradient.
	Gradient func(dys []*tensor.Tensor) kernel.NamedGradientMap
}

// FilteredNodesXToY returns the nodes of tape that lie on a path from any
// of xs to y. Inputs of the returned nodes are pruned to the ones that
// both depend on xs and lead to y; nodes are copies and tape is untouched.
//
// Algorithm:
//  1. Forward pass: mark every tensor computed from xs
//  2. Backward pass: mark every tensor y depends on
//  3. Keep nodes marked by both passes
func FilteredNodesXToY(tape []*TapeNode, xs []*tensor.Tensor, y *tensor.Tensor) []*TapeNode {
	tensorsFromX := make(map[int]bool, len(xs))
	for _, x := range xs {
		tensorsFromX[x.ID()] = true
	}

	nodesFromX := make(map[int]bool)
	for _, node := range tape {
		for _, in := range node.Inputs {
			if in != nil && tensorsFromX[in.ID()] {
				for _, out := range node.Outputs {
					tensorsFromX[out.ID()] = true
				}
				nodesFromX[node.ID] = true
				break
			}
		}
	}

	tensorsLeadToY := map[int]bool{y.ID(): true}
	nodesToY := make(map[int]bool)
	for i := len(tape) - 1; i >= 0; i-- {
		node := tape[i]
		for _, out := range node.Outputs {
			if !tensorsLeadToY[out.ID()] {
				continue
			}
			for _, in := range node.Inputs {
				if in != nil {
					tensorsLeadToY[in.ID()] = true
				}
			}
			nodesToY[node.ID] = true
			break
		}
	}

	var filtered []*TapeNode
	for _, node := range tape {
		if !nodesFromX[node.ID] || !nodesToY[node.ID] {
			continue
		}
		pruned := make(tensor.NamedTensorMap, len(node.Inputs))
		for name, in := range node.Inputs {
			if in != nil && tensorsFromX[in.ID()] && tensorsLeadToY[in.ID()] {
				pruned[name] = in
			}
		}
		copied := *node
		copied.Inputs = pruned
		filtered = append(filtered, &copied)
	}
	return filtered
}

// BackpropagateGradients walks filteredTape backwards, accumulating input
// gradients into acc (keyed by tensor id). acc must already hold the
// gradient of y. tidy evaluates each lazy gradient in its own scope; add
// sums gradients of tensors consumed more than once.
func BackpropagateGradients(
	acc map[int]*tensor.Tensor,
	filteredTape []*TapeNode,
	tidy func(f func() *tensor.Tensor) *tensor.Tensor,
	add func(a, b *tensor.Tensor) *tensor.Tensor,
) error {
	for i := len(filteredTape) - 1; i >= 0; i-- {
		node := filteredTape[i]

		dys := make([]*tensor.Tensor, len(node.Outputs))
		for j, out := range node.Outputs {
			dys[j] = acc[out.ID()]
		}

		if node.Gradient == nil {
			return fmt.Errorf("cannot compute gradient: gradient function not found for %s", node.KernelName)
		}
		inputGradients := node.Gradient(dys)

		for _, name := range tensor.SortedNames(node.Inputs) {
			gradFn, ok := inputGradients[name]
			if !ok {
				return fmt.Errorf("cannot backprop through input %s; available gradients found: %s",
					name, strings.Join(tensor.SortedNames(inputGradients), ","))
			}

			dx := tidy(gradFn)
			if dx.DType() != tensor.Float32 {
				return fmt.Errorf("error in gradient for op %s: the gradient of input %s must have 'float32' dtype, but has '%s'",
					node.KernelName, name, dx.DType())
			}
			x := node.Inputs[name]
			if !dx.Shape().Equal(x.Shape()) {
				return fmt.Errorf("error in gradient for op %s: the gradient of input '%s' has shape '%v', which does not match the shape of the input '%v'",
					node.KernelName, name, []int(dx.Shape()), []int(x.Shape()))
			}

			if cur, ok := acc[x.ID()]; ok {
				acc[x.ID()] = add(cur, dx)
				cur.Dispose()
			} else {
				acc[x.ID()] = dx
			}
		}
	}
	return nil
}
