package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_LaneForIsStable(t *testing.T) {
	pool := NewPool(8, 0)

	first := pool.LaneFor("whatsapp:+4917612345678")
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, pool.LaneFor("whatsapp:+4917612345678"))
	}
	assert.GreaterOrEqual(t, first, 0)
	assert.Less(t, first, 8)
}

func TestPool_LaneForSpreadsKeys(t *testing.T) {
	pool := NewPool(4, 0)
	used := map[int]bool{}
	for i := 0; i < 200; i++ {
		used[pool.LaneFor(fmt.Sprintf("whatsapp:+49176%07d", i))] = true
	}
	assert.Len(t, used, 4)
}

func TestPool_SameKeyRunsInOrder(t *testing.T) {
	pool := NewPool(4, 16)
	pool.Start(context.Background())

	var mu sync.Mutex
	var order []int
	var running atomic.Int32

	for i := 0; i < 20; i++ {
		i := i
		require.NoError(t, pool.Submit(context.Background(), "driver-1", func(context.Context) {
			assert.Equal(t, int32(1), running.Add(1), "same-key jobs must not overlap")
			time.Sleep(time.Millisecond)
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			running.Add(-1)
		}))
	}
	pool.Close()

	require.Len(t, order, 20)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestPool_DifferentLanesRunConcurrently(t *testing.T) {
	pool := NewPool(2, 1)
	pool.Start(context.Background())
	defer pool.Close()

	// Find two keys on different lanes.
	a, b := "a", ""
	for i := 0; b == ""; i++ {
		k := fmt.Sprintf("k%d", i)
		if pool.LaneFor(k) != pool.LaneFor(a) {
			b = k
		}
	}

	release := make(chan struct{})
	started := make(chan struct{}, 2)
	for _, key := range []string{a, b} {
		require.NoError(t, pool.Submit(context.Background(), key, func(context.Context) {
			started <- struct{}{}
			<-release
		}))
	}

	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(2 * time.Second):
			t.Fatal("jobs on different lanes did not run concurrently")
		}
	}
	assert.Equal(t, 2, pool.Active())
	close(release)
}

func TestPool_SubmitAfterClose(t *testing.T) {
	pool := NewPool(2, 0)
	pool.Start(context.Background())
	pool.Close()
	pool.Close() // idempotent

	err := pool.Submit(context.Background(), "k", func(context.Context) {})
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestPool_SubmitRespectsContext(t *testing.T) {
	pool := NewPool(1, 0) // unbuffered and not started: Submit blocks

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := pool.Submit(ctx, "k", func(context.Context) {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPool_PanicDoesNotKillLane(t *testing.T) {
	pool := NewPool(1, 4)
	pool.Start(context.Background())

	var ran atomic.Bool
	require.NoError(t, pool.Submit(context.Background(), "k", func(context.Context) { panic("boom") }))
	require.NoError(t, pool.Submit(context.Background(), "k", func(context.Context) { ran.Store(true) }))
	pool.Close()

	assert.True(t, ran.Load())
	assert.Equal(t, 0, pool.Active())
}

func TestNewPool_ClampsArguments(t *testing.T) {
	pool := NewPool(0, -1)
	assert.Equal(t, 1, pool.Lanes())
}

func TestPool_Running(t *testing.T) {
	p := NewPool(2, 1)
	assert.False(t, p.Running())
	p.Start(context.Background())
	assert.True(t, p.Running())
	p.Close()
	assert.False(t, p.Running())
}

func TestPool_CloseUnblocksFullLane(t *testing.T) {
	pool := NewPool(1, 0)
	release := make(chan struct{})
	started := make(chan struct{})
	pool.Start(context.Background())

	require.NoError(t, pool.Submit(context.Background(), "k", func(context.Context) {
		close(started)
		<-release
	}))
	<-started

	// The lane is busy and has no buffer, so this Submit blocks.
	submitErr := make(chan error, 1)
	go func() {
		submitErr <- pool.Submit(context.Background(), "k", func(context.Context) {})
	}()

	closed := make(chan struct{})
	go func() {
		pool.Close()
		close(closed)
	}()

	select {
	case err := <-submitErr:
		assert.ErrorIs(t, err, ErrPoolClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Submit stayed blocked after Close")
	}

	close(release)
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
}
