package env

import (
	"log/slog"
	"runtime"

	"github.com/klauspost/cpuid/v2"
)

// Platform describes the host the engine runs on.
type Platform struct {
	OS           string
	Arch         string
	CPUBrand     string
	LogicalCores int
	Features     []string
}

// DetectPlatform inspects the host CPU.
func DetectPlatform() Platform {
	p := Platform{
		OS:           runtime.GOOS,
		Arch:         runtime.GOARCH,
		CPUBrand:     cpuid.CPU.BrandName,
		LogicalCores: cpuid.CPU.LogicalCores,
	}
	if p.LogicalCores == 0 {
		p.LogicalCores = runtime.NumCPU()
	}
	for _, f := range []struct {
		name string
		id   cpuid.FeatureID
	}{
		{"avx", cpuid.AVX},
		{"avx2", cpuid.AVX2},
		{"fma3", cpuid.FMA3},
		{"avx512f", cpuid.AVX512F},
		{"asimd", cpuid.ASIMD},
	} {
		if cpuid.CPU.Supports(f.id) {
			p.Features = append(p.Features, f.name)
		}
	}
	return p
}

// SetPlatform records the platform, warning when one is overwritten.
func (e *Environment) SetPlatform(name string, p Platform) {
	e.mu.Lock()
	previous := e.platformName
	e.mu.Unlock()

	if previous != "" && !e.quiet() {
		slog.Warn("platform has already been set, overwriting", "previous", previous, "platform", name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.platformName = name
	e.platform = p
}

// Platform returns the platform name and description.
func (e *Environment) Platform() (string, Platform) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.platformName, e.platform
}
