package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Pruner deletes run logs created before cutoff
type Pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// Refresher drops cached tool state
type Refresher interface {
	Refresh()
}

// PruneRunLogs returns a job that removes run logs older than retention.
// onPruned, if set, receives the number of rows removed.
func PruneRunLogs(p Pruner, retention time.Duration, onPruned func(int64)) JobFunc {
	return func(ctx context.Context) error {
		cutoff := time.Now().Add(-retention)
		n, err := p.Prune(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("prune run logs: %w", err)
		}
		if onPruned != nil {
			onPruned(n)
		}
		log.Info().Int64("removed", n).Time("cutoff", cutoff).Msg("Pruned run logs")
		return nil
	}
}

// RefreshRegistry returns a job that refreshes r
func RefreshRegistry(r Refresher) JobFunc {
	return func(context.Context) error {
		r.Refresh()
		return nil
	}
}
