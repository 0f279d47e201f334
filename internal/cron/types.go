// Package cron starts analyses on a schedule. Two schedule types are
// supported:
//   - "cron":  standard cron expression (5-field or @hourly style, parsed by gronx)
//   - "every": fixed interval, as a Go duration ("15m")
//
// Jobs live in the config file; nothing is persisted between restarts.
package cron

import (
	"errors"
	"time"
)

// ErrSkipped is returned by a RunFunc that declined to start a run, for
// example because another run is still streaming. The job is not failed.
var ErrSkipped = errors.New("run skipped")

// Job is one scheduled analysis.
type Job struct {
	ID       string   `json:"id"`
	Expr     string   `json:"cron,omitempty"`  // cron expression
	Every    string   `json:"every,omitempty"` // interval, e.g. "30m"
	Symbol   string   `json:"symbol"`
	Agents   []string `json:"agents,omitempty"`
	Model    string   `json:"model,omitempty"`
	Disabled bool     `json:"disabled,omitempty"`
}

// Kind returns "cron" or "every".
func (j Job) Kind() string {
	if j.Expr != "" {
		return "cron"
	}
	return "every"
}

// JobState tracks runtime state for a job.
type JobState struct {
	NextRun    time.Time `json:"nextRun,omitzero"`
	LastRun    time.Time `json:"lastRun,omitzero"`
	LastStatus string    `json:"lastStatus,omitempty"` // "started", "skipped" or "error"
	LastError  string    `json:"lastError,omitempty"`
	LastRunID  string    `json:"lastRunId,omitempty"`
}

// JobStatus is a job with its state, as reported by Service.Status.
type JobStatus struct {
	Job
	State JobState `json:"state"`
}

// RunFunc starts the analysis for job and returns its run ID.
type RunFunc func(job Job) (runID string, err error)
