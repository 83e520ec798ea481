package cron

import (
	"context"
	"time"
)

// ScheduleKind represents the type of schedule
type ScheduleKind string

const (
	ScheduleKindEvery ScheduleKind = "every"
	ScheduleKindCron  ScheduleKind = "cron"
)

// Schedule represents a time specification for job execution
type Schedule struct {
	Kind ScheduleKind `json:"kind"`

	// For "every" schedule
	EveryMs  int64  `json:"everyMs,omitempty"`  // Interval in milliseconds
	AnchorMs *int64 `json:"anchorMs,omitempty"` // Optional anchor point

	// For "cron" schedule
	Expr string `json:"expr,omitempty"` // Cron expression (5-field format)
	TZ   string `json:"tz,omitempty"`   // Optional timezone
}

// CronSchedule is shorthand for a 5-field cron schedule
func CronSchedule(expr string) Schedule {
	return Schedule{Kind: ScheduleKindCron, Expr: expr}
}

// EverySchedule is shorthand for a fixed interval schedule
func EverySchedule(d time.Duration) Schedule {
	return Schedule{Kind: ScheduleKindEvery, EveryMs: d.Milliseconds()}
}

// JobFunc is the work a job performs
type JobFunc func(ctx context.Context) error

// JobState tracks runtime state of a job
type JobState struct {
	NextRunAtMs       *int64 `json:"nextRunAtMs,omitempty"`       // When to run next
	RunningAtMs       *int64 `json:"runningAtMs,omitempty"`       // When started (if running)
	LastRunAtMs       *int64 `json:"lastRunAtMs,omitempty"`       // When last executed
	LastStatus        string `json:"lastStatus,omitempty"`        // "ok" or "error"
	LastError         string `json:"lastError,omitempty"`         // Last error message
	LastDurationMs    *int64 `json:"lastDurationMs,omitempty"`    // Last execution duration
	ConsecutiveErrors int    `json:"consecutiveErrors,omitempty"` // Sequential failure count
}

// Job represents a scheduled maintenance job
type Job struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Enabled     bool     `json:"enabled"`
	CreatedAtMs int64    `json:"createdAtMs"`
	Schedule    Schedule `json:"schedule"`
	State       JobState `json:"state"`

	run JobFunc
}

// AddParams contains parameters for creating a job
type AddParams struct {
	Name        string
	Description string
	Enabled     bool
	Schedule    Schedule
	Run         JobFunc
}

// EventAction represents the type of event
type EventAction string

const (
	EventActionFinished EventAction = "finished"
	EventActionAdded    EventAction = "added"
	EventActionDeleted  EventAction = "deleted"
)

// Event represents a scheduler event
type Event struct {
	Action      EventAction `json:"action"`
	JobID       string      `json:"jobId"`
	JobName     string      `json:"jobName,omitempty"`
	Status      string      `json:"status,omitempty"`      // "ok" or "error"
	Error       string      `json:"error,omitempty"`       // Error message if failed
	DurationMs  *int64      `json:"durationMs,omitempty"`  // Execution duration
	NextRunAtMs *int64      `json:"nextRunAtMs,omitempty"` // Next scheduled run
}

// ServiceOptions configures the scheduler
type ServiceOptions struct {
	OnEvent func(evt Event) // optional; called with the scheduler locked, must not call back into it
}

// Now returns current time in milliseconds
func Now() int64 {
	return time.Now().UnixMilli()
}

// Int64Ptr returns a pointer to an int64 value
func Int64Ptr(v int64) *int64 {
	return &v
}
