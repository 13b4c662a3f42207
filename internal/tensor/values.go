package tensor

import "fmt"

// Values is the flat backing array of a tensor as handed to and returned by
// backends. It is one of []float32, []int32 or []bool.
type Values = any

// MakeZeros allocates a zeroed backing array for size elements of dtype.
func MakeZeros(size int, dtype DataType) Values {
	switch dtype {
	case Float32:
		return make([]float32, size)
	case Int32:
		return make([]int32, size)
	case Bool:
		return make([]bool, size)
	default:
		panic(fmt.Sprintf("unknown data type %s", dtype))
	}
}

// MakeFilled allocates a backing array with every element set to v.
func MakeFilled(size int, dtype DataType, v float64) Values {
	switch dtype {
	case Float32:
		out := make([]float32, size)
		for i := range out {
			out[i] = float32(v)
		}
		return out
	case Int32:
		out := make([]int32, size)
		for i := range out {
			out[i] = int32(v)
		}
		return out
	case Bool:
		out := make([]bool, size)
		for i := range out {
			out[i] = v != 0
		}
		return out
	default:
		panic(fmt.Sprintf("unknown data type %s", dtype))
	}
}

// MakeOnes allocates a backing array filled with ones.
func MakeOnes(size int, dtype DataType) Values {
	return MakeFilled(size, dtype, 1)
}

// ValuesDType reports the dtype of a backing array.
func ValuesDType(v Values) (DataType, bool) {
	switch v.(type) {
	case []float32:
		return Float32, true
	case []int32:
		return Int32, true
	case []bool:
		return Bool, true
	default:
		return 0, false
	}
}

// ValuesLen returns the number of elements in a backing array.
func ValuesLen(v Values) int {
	switch vals := v.(type) {
	case []float32:
		return len(vals)
	case []int32:
		return len(vals)
	case []bool:
		return len(vals)
	default:
		panic(fmt.Sprintf("unsupported values type %T", v))
	}
}

// ConvertValues returns v converted to dtype. The input is returned as is
// when it already has that dtype.
func ConvertValues(v Values, dtype DataType) Values {
	if dt, ok := ValuesDType(v); ok && dt == dtype {
		return v
	}
	switch dtype {
	case Float32:
		return ToFloat32s(v)
	case Int32:
		f := ToFloat32s(v)
		out := make([]int32, len(f))
		for i, x := range f {
			out[i] = int32(x)
		}
		return out
	case Bool:
		f := ToFloat32s(v)
		out := make([]bool, len(f))
		for i, x := range f {
			out[i] = x != 0
		}
		return out
	default:
		panic(fmt.Sprintf("unknown data type %s", dtype))
	}
}

// ToFloat32s returns the values as a fresh []float32.
func ToFloat32s(v Values) []float32 {
	switch vals := v.(type) {
	case []float32:
		out := make([]float32, len(vals))
		copy(out, vals)
		return out
	case []int32:
		out := make([]float32, len(vals))
		for i, x := range vals {
			out[i] = float32(x)
		}
		return out
	case []bool:
		out := make([]float32, len(vals))
		for i, x := range vals {
			if x {
				out[i] = 1
			}
		}
		return out
	default:
		panic(fmt.Sprintf("unsupported values type %T", v))
	}
}
