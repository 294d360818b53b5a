// Package taskrunner drives Apify actor tasks: start a run, wait for it to
// finish, and read the items from its default dataset.
package taskrunner

import (
	"errors"
	"time"
)

var (
	// ErrNotConfigured is returned when the token or task id is missing.
	ErrNotConfigured = errors.New("task runner not configured: token and task id are required")
	// ErrRunFailed is returned when a run ends in any terminal status but SUCCEEDED.
	ErrRunFailed = errors.New("task run did not succeed")
	// ErrRunTimeout is returned when a run is still going after RunTimeout.
	ErrRunTimeout = errors.New("timed out waiting for task run")
)

// Run statuses reported by Apify.
const (
	StatusReady     = "READY"
	StatusRunning   = "RUNNING"
	StatusSucceeded = "SUCCEEDED"
	StatusFailed    = "FAILED"
	StatusAborting  = "ABORTING"
	StatusAborted   = "ABORTED"
	StatusTimingOut = "TIMING-OUT"
	StatusTimedOut  = "TIMED-OUT"
)

// Run is an actor task run.
type Run struct {
	ID               string     `json:"id"`
	Status           string     `json:"status"`
	DefaultDatasetID string     `json:"defaultDatasetId"`
	StartedAt        time.Time  `json:"startedAt"`
	FinishedAt       *time.Time `json:"finishedAt"`
}

// IsTerminal reports whether the run has stopped.
func (r *Run) IsTerminal() bool {
	switch r.Status {
	case StatusSucceeded, StatusFailed, StatusAborted, StatusTimedOut:
		return true
	default:
		return false
	}
}

// envelope is Apify's {"data": ...} response wrapper.
type envelope[T any] struct {
	Data T `json:"data"`
}

// Default configuration values.
const (
	DefaultBaseURL         = "https://api.apify.com"
	DefaultPollInterval    = 5 * time.Second
	DefaultRunTimeout      = 10 * time.Minute
	DefaultDatasetPageSize = 1000
	DefaultHTTPTimeout     = 30 * time.Second
)

// Config configures the client.
type Config struct {
	BaseURL         string
	Token           string
	TaskID          string
	PollInterval    time.Duration
	RunTimeout      time.Duration
	DatasetPageSize int
	HTTPTimeout     time.Duration
}

func (c *Config) setDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = DefaultRunTimeout
	}
	if c.DatasetPageSize <= 0 {
		c.DatasetPageSize = DefaultDatasetPageSize
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = DefaultHTTPTimeout
	}
}
