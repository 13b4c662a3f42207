// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package engine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/tfcore/engine"
	"github.com/born-ml/tfcore/tensor"
)

func TestReady_SelectsCPU(t *testing.T) {
	require.NoError(t, engine.Ready(context.Background()))
	assert.Equal(t, "cpu", engine.BackendName())
	assert.Contains(t, engine.Backends(), "cpu")
}

func TestProfile_MatMul(t *testing.T) {
	a := tensor.Ones(tensor.Shape{4, 8})
	b := tensor.Ones(tensor.Shape{8, 2})
	defer a.Dispose()
	defer b.Dispose()

	info, err := engine.Profile(func() any {
		return tensor.MatMul(a, b, false, false)
	})
	require.NoError(t, err)
	defer info.Result.(*tensor.Tensor).Dispose()

	assert.Equal(t, []string{"BatchMatMul"}, info.KernelNames)
	assert.Equal(t, 1, info.NewTensors)
	assert.Equal(t, 4*2*4, info.NewBytes)
	require.Len(t, info.Kernels, 1)
	assert.Equal(t, []tensor.Shape{{4, 2}}, info.Kernels[0].OutputShapes)
}

func TestMemory_TracksTensors(t *testing.T) {
	before := engine.Memory()
	x := tensor.Zeros(tensor.Shape{10})
	during := engine.Memory()
	x.Dispose()
	after := engine.Memory()

	assert.Equal(t, before.NumTensors+1, during.NumTensors)
	assert.Equal(t, before.NumBytes+40, during.NumBytes)
	assert.Equal(t, before.NumTensors, after.NumTensors)
	assert.True(t, during.Unreliable)
}

func TestFlags(t *testing.T) {
	v, err := engine.Flag(engine.FlagKeepIntermediateTensors)
	require.NoError(t, err)
	assert.Equal(t, false, v)

	assert.Error(t, engine.SetFlag("NOT_A_FLAG", true))
	_, err = engine.Flag("NOT_A_FLAG")
	assert.Error(t, err)

	name, platform := engine.HostPlatform()
	assert.NotEmpty(t, name)
	assert.NotEmpty(t, platform.OS)
}
