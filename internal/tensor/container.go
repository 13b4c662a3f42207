package tensor

import (
	"slices"
	"strconv"
)

// NamedTensorMap maps kernel input names to tensors.
// Variadic kernels (e.g. Concat) use "0", "1", ... as names.
type NamedTensorMap map[string]*Tensor

// SortedNames returns the map keys in a stable order: numeric names
// ascending first, then the remaining names lexically.
func SortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	slices.SortFunc(names, func(a, b string) int {
		ai, aErr := strconv.Atoi(a)
		bi, bErr := strconv.Atoi(b)
		switch {
		case aErr == nil && bErr == nil:
			return ai - bi
		case aErr == nil:
			return -1
		case bErr == nil:
			return 1
		case a < b:
			return -1
		case a > b:
			return 1
		default:
			return 0
		}
	})
	return names
}

// Container is implemented by user types that hold tensors and want tidy
// scopes to look inside them.
type Container interface {
	ContainerTensors() []*Tensor
}

// TensorsInContainer walks result and collects every tensor it holds.
// Supported shapes are tensors, variables, slices and string-keyed maps of
// those (nested arbitrarily) and Container implementations.
func TensorsInContainer(result any) []*Tensor {
	var list []*Tensor
	seen := make(map[int]bool)
	walkContainer(result, &list, seen)
	return list
}

func walkContainer(v any, list *[]*Tensor, seen map[int]bool) {
	add := func(t *Tensor) {
		if t == nil || seen[t.id] {
			return
		}
		seen[t.id] = true
		*list = append(*list, t)
	}

	switch c := v.(type) {
	case nil:
	case *Tensor:
		add(c)
	case *Variable:
		if c != nil {
			add(c.Tensor)
		}
	case []*Tensor:
		for _, t := range c {
			add(t)
		}
	case []*Variable:
		for _, t := range c {
			if t != nil {
				add(t.Tensor)
			}
		}
	case NamedTensorMap:
		for _, name := range SortedNames(c) {
			add(c[name])
		}
	case map[string]*Tensor:
		for _, name := range SortedNames(c) {
			add(c[name])
		}
	case []any:
		for _, item := range c {
			walkContainer(item, list, seen)
		}
	case map[string]any:
		for _, name := range SortedNames(c) {
			walkContainer(c[name], list, seen)
		}
	case Container:
		for _, t := range c.ContainerTensors() {
			add(t)
		}
	}
}
