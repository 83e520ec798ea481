package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientRateLimiter_Acquire(t *testing.T) {
	t.Run("should allow requests under limit", func(t *testing.T) {
		limiter := NewClientRateLimiter(10, 5)

		for i := 0; i < 5; i++ {
			release, err := limiter.Acquire()
			require.Nil(t, err)
			require.NotNil(t, release)
		}
		requests, inFlight := limiter.Stats()
		assert.Equal(t, 5, requests)
		assert.Equal(t, 5, inFlight)
	})

	t.Run("should reject when concurrent limit exceeded", func(t *testing.T) {
		limiter := NewClientRateLimiter(100, 3)

		for i := 0; i < 3; i++ {
			_, err := limiter.Acquire()
			require.Nil(t, err)
		}

		_, err := limiter.Acquire()
		require.NotNil(t, err)
		assert.Equal(t, TooManyConcurrent, err.Code)
		assert.Equal(t, "too many concurrent requests", err.Message)
	})

	t.Run("should reject when rate limit exceeded", func(t *testing.T) {
		limiter := NewClientRateLimiter(5, 10)

		for i := 0; i < 5; i++ {
			release, err := limiter.Acquire()
			require.Nil(t, err)
			release()
		}

		_, err := limiter.Acquire()
		require.NotNil(t, err)
		assert.Equal(t, RateLimitExceeded, err.Code)
	})

	t.Run("should allow requests after window expires", func(t *testing.T) {
		now := time.Unix(1_700_000_000, 0)
		limiter := NewClientRateLimiter(2, 10)
		limiter.now = func() time.Time { return now }

		for i := 0; i < 2; i++ {
			release, err := limiter.Acquire()
			require.Nil(t, err)
			release()
		}
		_, err := limiter.Acquire()
		require.NotNil(t, err)

		now = now.Add(61 * time.Second)
		release, err := limiter.Acquire()
		require.Nil(t, err)
		release()
	})

	t.Run("should release a slot once", func(t *testing.T) {
		limiter := NewClientRateLimiter(100, 1)

		release, err := limiter.Acquire()
		require.Nil(t, err)
		_, err = limiter.Acquire()
		require.NotNil(t, err)

		release()
		release()
		_, inFlight := limiter.Stats()
		assert.Equal(t, 0, inFlight)

		_, err = limiter.Acquire()
		assert.Nil(t, err)
	})

	t.Run("should treat non-positive limits as unlimited", func(t *testing.T) {
		limiter := NewClientRateLimiter(-1, -1)
		for i := 0; i < 200; i++ {
			_, err := limiter.Acquire()
			require.Nil(t, err)
		}
	})
}
