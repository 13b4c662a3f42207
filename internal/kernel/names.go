package kernel

// Kernel names shared by ops, gradients and backends.
const (
	Add         = "Add"
	Sub         = "Sub"
	Multiply    = "Multiply"
	RealDiv     = "RealDiv"
	Neg         = "Neg"
	Square      = "Square"
	Sqrt        = "Sqrt"
	Exp         = "Exp"
	Log         = "Log"
	Relu        = "Relu"
	Step        = "Step"
	Sum         = "Sum"
	Max         = "Max"
	Equal       = "Equal"
	BatchMatMul = "BatchMatMul"
	Reshape     = "Reshape"
	Cast        = "Cast"
	Identity    = "Identity"
	Transpose   = "Transpose"
	Concat      = "Concat"
	Slice       = "Slice"
	TopK        = "TopK"
	Fill        = "Fill"
	ZerosLike   = "ZerosLike"
	OnesLike    = "OnesLike"
)

// Names returns every kernel name above in declaration order.
func Names() []string {
	return []string{
		Add, Sub, Multiply, RealDiv, Neg, Square, Sqrt, Exp, Log, Relu, Step,
		Sum, Max, Equal, BatchMatMul, Reshape, Cast, Identity, Transpose, Concat,
		Slice, TopK, Fill, ZerosLike, OnesLike,
	}
}
