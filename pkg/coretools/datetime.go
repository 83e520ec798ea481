package coretools

import (
	"context"
	"errors"
	"time"
	_ "time/tzdata"

	"github.com/harun/toolhub/pkg/schema"
	"github.com/harun/toolhub/pkg/tool"
)

const (
	iso8601Layout   = "2006-01-02T15:04:05-07:00"
	formattedLayout = "2006-01-02 15:04:05 MST"
)

var errInvalidZone = errors.New("invalid timezone")

// DateTime reports the current time in a requested timezone.
type DateTime struct {
	Base
	now func() time.Time
}

// NewDateTime binds a datetime tool to a tool record
func NewDateTime(t *tool.Tool) (tool.Executor, error) {
	return &DateTime{Base: newBase(t, dateTimeSchema()), now: time.Now}, nil
}

// Execute returns the current time in input["timezone"], UTC by default.
func (d *DateTime) Execute(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	tz := schema.OptionalString(input, "timezone", "UTC")

	loc, err := loadZone(tz)
	if err != nil {
		return nil, tool.InvalidInput("Invalid timezone: %s. Please use a valid IANA timezone identifier.", tz)
	}

	now := d.now().In(loc)
	return map[string]interface{}{
		"datetime_iso8601": now.Format(iso8601Layout),
		"timezone":         loc.String(),
		"timestamp":        now.Unix(),
		"formatted":        now.Format(formattedLayout),
	}, nil
}

// loadZone rejects "Local", which names the host zone rather than an IANA
// identifier.
func loadZone(name string) (*time.Location, error) {
	if name == "Local" {
		return nil, errInvalidZone
	}
	return time.LoadLocation(name)
}
