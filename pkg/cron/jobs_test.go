package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePruner struct {
	cutoff  time.Time
	removed int64
	err     error
}

func (f *fakePruner) Prune(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.removed, f.err
}

type fakeRefresher struct{ calls int }

func (f *fakeRefresher) Refresh() { f.calls++ }

func TestPruneRunLogs(t *testing.T) {
	p := &fakePruner{removed: 7}
	var reported int64

	before := time.Now()
	err := PruneRunLogs(p, 48*time.Hour, func(n int64) { reported = n })(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(7), reported)
	assert.WithinDuration(t, before.Add(-48*time.Hour), p.cutoff, time.Second)
}

func TestPruneRunLogsError(t *testing.T) {
	p := &fakePruner{err: errors.New("locked")}

	err := PruneRunLogs(p, time.Hour, nil)(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locked")
}

func TestRefreshRegistry(t *testing.T) {
	r := &fakeRefresher{}
	require.NoError(t, RefreshRegistry(r)(context.Background()))
	assert.Equal(t, 1, r.calls)
}
