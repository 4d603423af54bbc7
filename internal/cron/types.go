// Package cron runs the bot's persisted scheduled jobs: internal maintenance
// (memory cleanup, counting snapshots) and user-visible announcements.
package cron

import "github.com/google/uuid"

// Schedule kinds.
const (
	KindCron  = "cron"  // standard cron expression with seconds
	KindEvery = "every" // fixed interval in milliseconds
	KindAt    = "at"    // one-shot at an absolute time
)

// Job payload kinds the gateway knows how to run.
const (
	PayloadAnnounce         = "announce"
	PayloadMemoryCleanup    = "memory_cleanup"
	PayloadCountingSnapshot = "counting_snapshot"
)

type Schedule struct {
	Kind    string `json:"kind"`
	Expr    string `json:"expr,omitempty"`
	EveryMs int64  `json:"every_ms,omitempty"`
	AtMs    int64  `json:"at_ms,omitempty"`
}

type Payload struct {
	Kind      string `json:"kind"`
	ChannelID string `json:"channel_id,omitempty"`
	Message   string `json:"message,omitempty"`
}

type State struct {
	LastRunAtMs int64  `json:"last_run_at_ms"`
	LastStatus  string `json:"last_status,omitempty"`
	LastError   string `json:"last_error,omitempty"`
}

type Job struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Enabled        bool     `json:"enabled"`
	DeleteAfterRun bool     `json:"delete_after_run,omitempty"`
	Schedule       Schedule `json:"schedule"`
	Payload        Payload  `json:"payload"`
	State          State    `json:"state"`
}

func NewJob(name string, schedule Schedule, payload Payload) Job {
	return Job{
		ID:       uuid.NewString(),
		Name:     name,
		Enabled:  true,
		Schedule: schedule,
		Payload:  payload,
	}
}
