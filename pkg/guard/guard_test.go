package guard

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoRunsOperation(t *testing.T) {
	calls := 0
	g := New("op", func(ctx context.Context) error {
		calls++
		return nil
	})

	ran, err := g.Do(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)

	ran, err = g.Do(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "op", g.Name())
}

func TestDoPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	g := New("op", func(ctx context.Context) error { return boom })

	ran, err := g.Do(context.Background())
	assert.True(t, ran)
	assert.ErrorIs(t, err, boom)
	assert.False(t, g.InFlight())
}

func TestOverlappingCallIsDroppedNotQueued(t *testing.T) {
	var calls atomic.Int32
	entered := make(chan struct{})
	release := make(chan struct{})
	g := New("op", func(ctx context.Context) error {
		calls.Add(1)
		close(entered)
		<-release
		return nil
	})

	done := make(chan bool)
	go func() {
		ran, _ := g.Do(context.Background())
		done <- ran
	}()
	<-entered
	assert.True(t, g.InFlight())

	ran, err := g.Do(context.Background())
	assert.NoError(t, err)
	assert.False(t, ran)

	close(release)
	assert.True(t, <-done)

	// nothing was queued behind the first call
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestManyConcurrentCallersRunAtMostOnceWhileInFlight(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	g := New("op", func(ctx context.Context) error {
		calls.Add(1)
		<-release
		return nil
	})

	first := make(chan struct{})
	go func() {
		_, _ = g.Do(context.Background())
		close(first)
	}()
	require.Eventually(t, g.InFlight, time.Second, time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ran, _ := g.Do(context.Background())
			assert.False(t, ran)
		}()
	}
	wg.Wait()
	close(release)
	<-first

	assert.Equal(t, int32(1), calls.Load())
}
