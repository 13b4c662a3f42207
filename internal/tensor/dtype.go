// Package tensor provides the core tensor handle types for the engine.
//
// A Tensor never owns memory. It is an immutable handle (id, shape, dtype)
// pointing at a DataID whose storage lives inside a backend. The engine that
// created the tensor is its Tracker and is consulted for reads and disposal.
package tensor

import "fmt"

// DataType represents runtime type information for tensors.
type DataType int

// Supported data types for tensors.
const (
	Float32 DataType = iota
	Int32
	Bool
)

// BytesPerElement returns the byte size of one element of the data type.
func (dt DataType) BytesPerElement() int {
	switch dt {
	case Float32, Int32:
		return 4
	case Bool:
		return 1
	default:
		panic(fmt.Sprintf("unknown data type %d", int(dt)))
	}
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Int32:
		return "int32"
	case Bool:
		return "bool"
	default:
		return "unknown"
	}
}

// ParseDataType converts a dtype name into a DataType.
func ParseDataType(s string) (DataType, error) {
	switch s {
	case "float32":
		return Float32, nil
	case "int32":
		return Int32, nil
	case "bool":
		return Bool, nil
	default:
		return 0, fmt.Errorf("unknown data type %q", s)
	}
}

// UpcastType returns the wider of two data types (bool < int32 < float32).
func UpcastType(a, b DataType) DataType {
	if a == Float32 || b == Float32 {
		return Float32
	}
	if a == Int32 || b == Int32 {
		return Int32
	}
	return Bool
}
