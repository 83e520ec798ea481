package cron

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateEverySchedule(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("without anchor", func(t *testing.T) {
		next, err := calculateNextRunFrom(EverySchedule(time.Minute), now)
		require.NoError(t, err)
		assert.Equal(t, now.Add(time.Minute).UnixMilli(), next)
	})

	t.Run("aligned to anchor", func(t *testing.T) {
		anchor := now.Add(-90 * time.Second).UnixMilli()
		schedule := Schedule{Kind: ScheduleKindEvery, EveryMs: 60000, AnchorMs: &anchor}

		next, err := calculateNextRunFrom(schedule, now)
		require.NoError(t, err)
		assert.Equal(t, now.Add(30*time.Second).UnixMilli(), next)
	})

	t.Run("future anchor", func(t *testing.T) {
		anchor := now.Add(time.Hour).UnixMilli()
		schedule := Schedule{Kind: ScheduleKindEvery, EveryMs: 60000, AnchorMs: &anchor}

		next, err := calculateNextRunFrom(schedule, now)
		require.NoError(t, err)
		assert.Equal(t, anchor, next)
	})

	t.Run("non-positive interval", func(t *testing.T) {
		_, err := CalculateNextRun(Schedule{Kind: ScheduleKindEvery})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "positive 'everyMs'")
	})
}

func TestCalculateCronSchedule(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("daily at three", func(t *testing.T) {
		next, err := calculateNextRunFrom(CronSchedule("0 3 * * *"), now)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC).UnixMilli(), next)
	})

	t.Run("descriptor", func(t *testing.T) {
		next, err := calculateNextRunFrom(CronSchedule("@hourly"), now)
		require.NoError(t, err)
		assert.Equal(t, now.Add(time.Hour).UnixMilli(), next)
	})

	t.Run("timezone", func(t *testing.T) {
		schedule := Schedule{Kind: ScheduleKindCron, Expr: "0 3 * * *", TZ: "Asia/Tokyo"}
		next, err := calculateNextRunFrom(schedule, now)
		require.NoError(t, err)

		tokyo, err := time.LoadLocation("Asia/Tokyo")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 1, 2, 3, 0, 0, 0, tokyo).UnixMilli(), next)
	})

	t.Run("invalid expression", func(t *testing.T) {
		_, err := CalculateNextRun(CronSchedule("not a cron"))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid cron expression")
	})

	t.Run("invalid timezone", func(t *testing.T) {
		_, err := CalculateNextRun(Schedule{Kind: ScheduleKindCron, Expr: "* * * * *", TZ: "Nowhere/City"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid timezone")
	})

	t.Run("missing expression", func(t *testing.T) {
		_, err := CalculateNextRun(Schedule{Kind: ScheduleKindCron})
		assert.Error(t, err)
	})
}

func TestUnknownScheduleKind(t *testing.T) {
	_, err := CalculateNextRun(Schedule{Kind: "at"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown schedule kind")
}
