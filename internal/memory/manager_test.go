package memory

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClearAllInvokesRegistered(t *testing.T) {
	m := NewManager(0)
	var order []string
	m.Register("vectors", func() { order = append(order, "vectors") })
	m.Register("terms", func() { order = append(order, "terms") })
	m.Register("candidates", func() { order = append(order, "candidates") })
	m.Unregister("candidates")

	assert.Equal(t, []string{"terms", "vectors"}, m.Registered())
	assert.Equal(t, []string{"terms", "vectors"}, m.ClearAll())
	assert.Equal(t, []string{"terms", "vectors"}, order)
}

func TestCheckPressure(t *testing.T) {
	var heap atomic.Uint64
	heap.Store(100)
	m := NewManager(1000, WithHeapReader(func() uint64 { return heap.Load() }))
	cleared := 0
	m.Register("cache", func() { cleared++ })

	assert.False(t, m.CheckPressure())
	heap.Store(5000)
	assert.True(t, m.CheckPressure())
	assert.Equal(t, 1, cleared)
}

func TestCheckPressureDisabled(t *testing.T) {
	m := NewManager(0, WithHeapReader(func() uint64 { return 1 << 40 }))
	m.Register("cache", func() { t.Fatal("must not clear") })
	assert.False(t, m.CheckPressure())
}

func TestRelieveWaitsForBackoff(t *testing.T) {
	m := NewManager(1, WithHeapReader(func() uint64 { return 2 }), WithBackoff(20*time.Millisecond))
	start := time.Now()
	require.NoError(t, m.Relieve(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.Relieve(ctx), context.Canceled)
}

func TestMonitor(t *testing.T) {
	var clears atomic.Int32
	m := NewManager(10, WithHeapReader(func() uint64 { return 11 }))
	m.Register("cache", func() { clears.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Monitor(ctx, 2*time.Millisecond)
		close(done)
	}()
	require.Eventually(t, func() bool { return clears.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()
	<-done
}

func TestRuntimeHeapReader(t *testing.T) {
	assert.Greater(t, readRuntimeHeap(), uint64(0))
}
