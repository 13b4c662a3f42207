package parallel

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestFor(t *testing.T) {
	cfg := WithWorkers(4)

	var counter int64
	n := 10000

	For(n, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, cfg)

	assert.Equal(t, int64(n), counter)
}

func TestForRange_CoversEveryIndexOnce(t *testing.T) {
	cfg := WithWorkers(3)
	n := 5000
	hits := make([]int32, n)

	ForRange(n, func(start, end int) {
		for i := start; i < end; i++ {
			atomic.AddInt32(&hits[i], 1)
		}
	}, cfg)

	for i, h := range hits {
		if h != 1 {
			t.Fatalf("index %d visited %d times", i, h)
		}
	}
}

func TestForRange_Sequential(t *testing.T) {
	cfg := WithWorkers(1)
	assert.False(t, cfg.Enabled)

	calls := 0
	ForRange(100000, func(start, end int) {
		calls++
		assert.Equal(t, 0, start)
		assert.Equal(t, 100000, end)
	}, cfg)
	assert.Equal(t, 1, calls)
}

func TestForRange_SmallChunk(t *testing.T) {
	// Small work units stay on the calling goroutine.
	cfg := WithWorkers(8)

	calls := 0
	ForRange(cfg.MinChunkSize, func(_, _ int) { calls++ }, cfg)
	assert.Equal(t, 1, calls)

	ForRange(0, func(_, _ int) { calls++ }, cfg)
	assert.Equal(t, 1, calls)
}

func TestForBatch(t *testing.T) {
	cfg := WithWorkers(2)

	results := make([]bool, 7)
	ForBatch(len(results), func(b int) {
		results[b] = true
	}, cfg)

	for b, ok := range results {
		assert.True(t, ok, "missing batch %d", b)
	}
}

func BenchmarkFor(b *testing.B) {
	cfg := DefaultConfig()
	n := 100000
	data := make([]float32, n)

	b.Run("parallel", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			For(n, func(j int) { data[j] = float32(j) * 2 }, cfg)
		}
	})
	b.Run("sequential", func(b *testing.B) {
		seq := Config{Enabled: false}
		for i := 0; i < b.N; i++ {
			For(n, func(j int) { data[j] = float32(j) * 2 }, seq)
		}
	})
}
