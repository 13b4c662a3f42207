package env

import (
	"log/slog"
	"runtime"
	"sync"

	"github.com/klauspost/cpuid/v2"
)

// Flag names understood by the engine and the CPU backend.
const (
	FlagDebug                     = "DEBUG"
	FlagIsTest                    = "IS_TEST"
	FlagProd                      = "PROD"
	FlagCheckComputationForErrors = "CHECK_COMPUTATION_FOR_ERRORS"
	FlagKeepIntermediateTensors   = "KEEP_INTERMEDIATE_TENSORS"
	FlagDeprecationWarnings       = "DEPRECATION_WARNINGS_ENABLED"
	FlagFloatPrecision            = "FLOAT_PRECISION"
	FlagNumWorkers                = "NUM_WORKERS"
	FlagHasAVX2                   = "HAS_AVX2"
	FlagHasAVX512                 = "HAS_AVX512"
)

var (
	defaultOnce sync.Once
	defaultEnv  *Environment
)

// Default returns the process-wide environment with all engine flags
// registered and the host platform detected.
func Default() *Environment {
	defaultOnce.Do(func() {
		defaultEnv = New()
		RegisterEngineFlags(defaultEnv)
		defaultEnv.SetPlatform("go/"+runtime.GOOS+"-"+runtime.GOARCH, DetectPlatform())
	})
	return defaultEnv
}

// RegisterEngineFlags registers every flag the engine and backends read.
func RegisterEngineFlags(e *Environment) {
	e.RegisterFlag(FlagDebug, func() FlagValue { return false }, func(v FlagValue) {
		if on, _ := v.(bool); on {
			slog.Warn("debugging mode is ON: the output of every kernel will be read back and checked for NaNs, this significantly impacts performance")
		}
	})
	e.RegisterFlag(FlagIsTest, func() FlagValue { return false }, nil)
	e.RegisterFlag(FlagProd, func() FlagValue { return false }, nil)
	e.RegisterFlag(FlagCheckComputationForErrors, func() FlagValue { return true }, nil)
	e.RegisterFlag(FlagKeepIntermediateTensors, func() FlagValue { return false }, func(v FlagValue) {
		if on, _ := v.(bool); on {
			slog.Warn("keep intermediate tensors is ON: tidy scopes will not dispose intermediates, memory will grow")
		}
	})
	e.RegisterFlag(FlagDeprecationWarnings, func() FlagValue { return true }, nil)
	e.RegisterFlag(FlagFloatPrecision, func() FlagValue { return float64(32) }, nil)
	e.RegisterFlag(FlagNumWorkers, func() FlagValue { return float64(runtime.NumCPU()) }, nil)
	e.RegisterFlag(FlagHasAVX2, func() FlagValue { return cpuid.CPU.Supports(cpuid.AVX2) }, nil)
	e.RegisterFlag(FlagHasAVX512, func() FlagValue { return cpuid.CPU.Supports(cpuid.AVX512F) }, nil)
}
