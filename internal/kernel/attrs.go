package kernel

import (
	"fmt"

	"github.com/born-ml/tfcore/internal/tensor"
)

// Attrs carries non-tensor kernel parameters (axes, flags, dtypes).
type Attrs map[string]any

// Int returns an int attribute or def when absent.
func (a Attrs) Int(key string, def int) int {
	v, ok := a[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		panic(fmt.Sprintf("attr %s: expected int, got %T", key, v))
	}
}

// Ints returns an []int attribute or nil when absent.
func (a Attrs) Ints(key string) []int {
	v, ok := a[key]
	if !ok || v == nil {
		return nil
	}
	switch n := v.(type) {
	case []int:
		return n
	case tensor.Shape:
		return []int(n)
	case int:
		return []int{n}
	default:
		panic(fmt.Sprintf("attr %s: expected []int, got %T", key, v))
	}
}

// Bool returns a bool attribute or def when absent.
func (a Attrs) Bool(key string, def bool) bool {
	v, ok := a[key]
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		panic(fmt.Sprintf("attr %s: expected bool, got %T", key, v))
	}
	return b
}

// Float returns a float64 attribute or def when absent.
func (a Attrs) Float(key string, def float64) float64 {
	v, ok := a[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	default:
		panic(fmt.Sprintf("attr %s: expected float, got %T", key, v))
	}
}

// DType returns a DataType attribute or def when absent.
func (a Attrs) DType(key string, def tensor.DataType) tensor.DataType {
	v, ok := a[key]
	if !ok {
		return def
	}
	switch d := v.(type) {
	case tensor.DataType:
		return d
	case string:
		dt, err := tensor.ParseDataType(d)
		if err != nil {
			panic(fmt.Sprintf("attr %s: %v", key, err))
		}
		return dt
	default:
		panic(fmt.Sprintf("attr %s: expected dtype, got %T", key, v))
	}
}
