package coretools

import (
	"context"
	"time"

	"github.com/harun/toolhub/pkg/schema"
	"github.com/harun/toolhub/pkg/tool"
)

const defaultMaxDelay = 5.0

// Echo returns the message it was given.
type Echo struct {
	Base
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewEcho binds an echo tool to a tool record
func NewEcho(t *tool.Tool) (tool.Executor, error) {
	return &Echo{Base: newBase(t, echoSchema()), now: time.Now, sleep: sleepContext}, nil
}

// Execute echoes input["message"]. A delay in (0, max_delay] seconds is
// honoured first; other delays are ignored.
func (e *Echo) Execute(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	message, err := schema.RequireString(input, "message")
	if err != nil {
		return nil, err
	}

	if delay, ok := schema.ToFloat(input["delay"]); ok {
		maxDelay := e.SettingFloat("max_delay", defaultMaxDelay)
		if delay > 0 && delay <= maxDelay {
			if err := e.sleep(ctx, time.Duration(delay*float64(time.Second))); err != nil {
				return nil, err
			}
		}
	}

	return map[string]interface{}{
		"echoed_message": message,
		"timestamp":      e.now().UTC().Format("2006-01-02T15:04:05.000000Z"),
		"length":         len(message),
	}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
