// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package cpu_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/tfcore/backend/cpu"
	"github.com/born-ml/tfcore/tensor"
)

func TestNew_StandaloneStorage(t *testing.T) {
	b := cpu.New(nil)
	defer b.Dispose()

	id := b.Write([]float32{1, 2, 3}, tensor.Shape{3}, tensor.Float32)
	assert.Equal(t, 1, b.NumDataIDs())
	assert.Equal(t, 1, b.RefCount(id))

	vals, err := b.Read(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, vals)

	b.IncRef(id)
	assert.False(t, b.DisposeData(id, false))
	assert.True(t, b.DisposeData(id, false))
	assert.Equal(t, 0, b.NumDataIDs())
}

func TestFactory(t *testing.T) {
	b, err := cpu.Factory()(context.Background(), nil)
	require.NoError(t, err)
	defer b.Dispose()
	assert.Equal(t, 32, b.FloatPrecision())
}
