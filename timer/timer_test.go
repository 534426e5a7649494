package timer

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimer_InvokesHandlerPeriodically(t *testing.T) {
	var ticks atomic.Int32
	tm := New(func() { ticks.Add(1) }, 10*time.Millisecond)

	tm.Start()
	defer tm.Stop()

	assert.Eventually(t, func() bool {
		return ticks.Load() >= 3
	}, time.Second, 5*time.Millisecond)
}

func TestTimer_StopHaltsHandler(t *testing.T) {
	var ticks atomic.Int32
	tm := New(func() { ticks.Add(1) }, 5*time.Millisecond)

	tm.Start()
	assert.Eventually(t, func() bool {
		return ticks.Load() >= 1
	}, time.Second, time.Millisecond)

	tm.Stop()
	after := ticks.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, ticks.Load(), "no ticks may fire after Stop returns")
}

func TestTimer_StartTwiceIsNoOp(t *testing.T) {
	var ticks atomic.Int32
	tm := New(func() { ticks.Add(1) }, 5*time.Millisecond)

	tm.Start()
	tm.Start()
	defer tm.Stop()

	time.Sleep(40 * time.Millisecond)
	tm.Stop()

	// A doubled goroutine would roughly double the tick count; allow a wide
	// margin but catch gross duplication.
	assert.LessOrEqual(t, ticks.Load(), int32(12))
}

func TestTimer_StopTwiceIsSafe(t *testing.T) {
	tm := New(func() {}, 5*time.Millisecond)
	tm.Start()
	tm.Stop()
	require.NotPanics(t, func() { tm.Stop() })
}

func TestTimer_Restart(t *testing.T) {
	var ticks atomic.Int32
	tm := New(func() { ticks.Add(1) }, 5*time.Millisecond)

	tm.Start()
	assert.Eventually(t, func() bool { return ticks.Load() >= 1 }, time.Second, time.Millisecond)
	tm.Stop()

	before := ticks.Load()
	tm.Start()
	defer tm.Stop()
	assert.Eventually(t, func() bool { return ticks.Load() > before }, time.Second, time.Millisecond)
}
