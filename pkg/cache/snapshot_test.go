package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingLoader(calls *atomic.Int32) Loader[int] {
	return func(ctx context.Context) (int, error) {
		return int(calls.Add(1)), nil
	}
}

func TestSnapshot_CachesWithinTTL(t *testing.T) {
	var calls atomic.Int32
	s := NewSnapshot("tools", time.Minute, countingLoader(&calls))
	ctx := context.Background()

	v1, err := s.Get(ctx)
	require.NoError(t, err)
	v2, err := s.Get(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, v1)
	assert.Equal(t, 1, v2)
	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, s.LoadedAt().IsZero())
	assert.Equal(t, "tools", s.Name())
	assert.Equal(t, time.Minute, s.TTL())
}

func TestSnapshot_ReloadsAfterExpiry(t *testing.T) {
	var calls atomic.Int32
	s := NewSnapshot("tools", time.Minute, countingLoader(&calls))
	now := time.Now()
	s.now = func() time.Time { return now }

	v, _ := s.Get(context.Background())
	assert.Equal(t, 1, v)

	now = now.Add(2 * time.Minute)
	v, _ = s.Get(context.Background())
	assert.Equal(t, 2, v)
}

func TestSnapshot_Invalidate(t *testing.T) {
	var calls atomic.Int32
	s := NewSnapshot("handlers", time.Hour, countingLoader(&calls))

	v, _ := s.Get(context.Background())
	assert.Equal(t, 1, v)

	s.Invalidate()
	assert.True(t, s.LoadedAt().IsZero())

	v, _ = s.Get(context.Background())
	assert.Equal(t, 2, v)
}

func TestSnapshot_ZeroTTLDisablesCaching(t *testing.T) {
	var calls atomic.Int32
	s := NewSnapshot("tools", 0, countingLoader(&calls))

	_, _ = s.Get(context.Background())
	_, _ = s.Get(context.Background())
	assert.Equal(t, int32(2), calls.Load())
}

func TestSnapshot_LoaderErrorNotCached(t *testing.T) {
	fail := true
	s := NewSnapshot("tools", time.Hour, func(ctx context.Context) (string, error) {
		if fail {
			return "", errors.New("db down")
		}
		return "ok", nil
	})

	_, err := s.Get(context.Background())
	assert.EqualError(t, err, "db down")

	fail = false
	v, err := s.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestSnapshot_ConcurrentMissesShareOneLoad(t *testing.T) {
	var calls atomic.Int32
	s := NewSnapshot("tools", time.Hour, func(ctx context.Context) (int, error) {
		time.Sleep(20 * time.Millisecond)
		return int(calls.Add(1)), nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := s.Get(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, 1, v)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestSnapshot_InvalidateDuringLoadDiscardsResult(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	s := NewSnapshot("tools", time.Hour, func(ctx context.Context) (int, error) {
		n := int(calls.Add(1))
		if n == 1 {
			close(started)
			<-release
		}
		return n, nil
	})

	done := make(chan int)
	go func() {
		v, _ := s.Get(context.Background())
		done <- v
	}()

	<-started
	s.Invalidate()
	close(release)
	assert.Equal(t, 1, <-done)

	v, _ := s.Get(context.Background())
	assert.Equal(t, 2, v)
}
