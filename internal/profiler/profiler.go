// Package profiler wraps kernel execution with timing and NaN checks.
package profiler

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/born-ml/tfcore/internal/backend"
	"github.com/born-ml/tfcore/internal/env"
	"github.com/born-ml/tfcore/internal/tensor"
)

// KernelProfile is the result of profiling one kernel invocation.
type KernelProfile struct {
	KernelName string
	Inputs     tensor.NamedTensorMap
	Outputs    []*tensor.Tensor
	TimeMs     float64
	ExtraInfo  string
}

// Profiler times kernels through a backend timer.
type Profiler struct {
	timer  backend.Timer
	env    *env.Environment
	logger Logger
}

// New creates a profiler. A nil logger logs through slog.Default.
func New(timer backend.Timer, environment *env.Environment, logger Logger) *Profiler {
	if logger == nil {
		logger = NewLogger(nil)
	}
	return &Profiler{timer: timer, env: environment, logger: logger}
}

// ProfileKernel runs f and measures it. When the backend has no precise
// timer the outputs are read back so the wall time covers the computation.
func (p *Profiler) ProfileKernel(kernelName string, inputs tensor.NamedTensorMap, f func() []*tensor.Tensor) KernelProfile {
	var outputs []*tensor.Tensor
	hold := func() { outputs = f() }

	var timing backend.TimingInfo
	if p.timer.TimerAvailable() {
		ti, err := p.timer.Time(hold)
		if err != nil {
			slog.Warn("kernel timer failed", "kernel", kernelName, "error", err)
		}
		timing = ti
	} else {
		start := time.Now()
		hold()
		for _, out := range outputs {
			out.DataSync()
		}
		timing.KernelMs = msSince(start)
	}

	if p.env.GetBool(env.FlagCheckComputationForErrors) {
		for _, out := range outputs {
			CheckComputationForErrors(out.DataSync(), out.DType(), kernelName)
		}
	}

	return KernelProfile{
		KernelName: kernelName,
		Inputs:     inputs,
		Outputs:    outputs,
		TimeMs:     timing.KernelMs,
		ExtraInfo:  timing.ExtraInfo,
	}
}

// LogKernelProfile writes one record per output of the profile.
func (p *Profiler) LogKernelProfile(kp KernelProfile) {
	for _, out := range kp.Outputs {
		p.logger.LogKernelProfile(kp.KernelName, out, kp.TimeMs, kp.Inputs, kp.ExtraInfo)
	}
}

// CheckComputationForErrors reports (and logs) the first NaN or infinity in
// float32 values. Other dtypes are never checked.
func CheckComputationForErrors(values tensor.Values, dtype tensor.DataType, kernelName string) bool {
	if dtype != tensor.Float32 {
		return false
	}
	vals, ok := values.([]float32)
	if !ok {
		return false
	}
	for _, v := range vals {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			slog.Warn(fmt.Sprintf("found %v in the result of '%s'", v, kernelName))
			return true
		}
	}
	return false
}

// Logger receives kernel profiles.
type Logger interface {
	LogKernelProfile(name string, result *tensor.Tensor, timeMs float64, inputs tensor.NamedTensorMap, extraInfo string)
}

type slogLogger struct {
	log *slog.Logger
}

// NewLogger returns a Logger writing structured records to l
// (slog.Default when nil).
func NewLogger(l *slog.Logger) Logger {
	return &slogLogger{log: l}
}

func (s *slogLogger) LogKernelProfile(name string, result *tensor.Tensor, timeMs float64, inputs tensor.NamedTensorMap, extraInfo string) {
	l := s.log
	if l == nil {
		l = slog.Default()
	}
	l.Info("kernel",
		"name", name,
		"time_ms", fmt.Sprintf("%.3f", timeMs),
		"rank", result.Rank(),
		"shape", fmt.Sprint([]int(result.Shape())),
		"size", result.Size(),
		"inputs", describeInputs(inputs),
		"extra", extraInfo,
	)
}

func describeInputs(inputs tensor.NamedTensorMap) string {
	parts := make([]string, 0, len(inputs))
	for _, name := range tensor.SortedNames(inputs) {
		in := inputs[name]
		if in == nil {
			parts = append(parts, name+": null")
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %dD %v", name, in.Rank(), []int(in.Shape())))
	}
	return strings.Join(parts, ", ")
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Nanoseconds()) / 1e6
}
