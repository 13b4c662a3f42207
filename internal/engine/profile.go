package engine

// Profile runs fn and reports the kernels it executed with their memory
// deltas and timings. PeakBytes is the largest byte count seen after any
// kernel, or the starting count when fn ran no kernel.
func (e *Engine) Profile(fn func() any) (ProfileInfo, error) {
	if _, err := e.Backend(); err != nil {
		return ProfileInfo{}, err
	}

	startBytes := e.state.numBytes
	startTensors := e.state.numTensors

	e.state.activeProfile = ProfileInfo{}
	scopedRun(
		func() { e.state.profiling = true },
		func() { e.state.profiling = false },
		func() { e.state.activeProfile.Result = fn() },
	)

	info := e.state.activeProfile
	info.PeakBytes = startBytes
	seen := make(map[string]bool)
	for _, k := range info.Kernels {
		info.PeakBytes = max(info.PeakBytes, k.TotalBytesSnapshot)
		if !seen[k.Name] {
			seen[k.Name] = true
			info.KernelNames = append(info.KernelNames, k.Name)
		}
	}
	info.NewBytes = e.state.numBytes - startBytes
	info.NewTensors = e.state.numTensors - startTensors
	e.state.activeProfile = info
	return info, nil
}
