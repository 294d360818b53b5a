// Package sse streams job lifecycle events to dashboards over Server-Sent Events.
package sse

import (
	"context"
	"errors"
	"time"
)

// Event is one SSE frame: "event: <Type>\ndata: <JSON>\n\n".
type Event struct {
	Type  string `json:"type"`
	Data  any    `json:"data"`
	ID    string `json:"id,omitempty"`
	Retry int    `json:"retry,omitempty"`
}

// ErrTooManyClients is returned by Subscribe when MaxClients is reached.
var ErrTooManyClients = errors.New("too many SSE clients")

// ErrBufferFull is returned by Publish when the broker cannot keep up.
var ErrBufferFull = errors.New("SSE publish buffer full")

// Publisher sends events to the broker.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Broker fans published events out to subscribed clients.
type Broker interface {
	Publisher
	// Subscribe registers a client. The channel closes when ctx ends,
	// cleanup is called, or the broker stops.
	Subscribe(ctx context.Context, opts ...ClientOption) (events <-chan Event, cleanup func(), err error)
	Start(ctx context.Context) error
	Stop() error
	ClientCount() int
}

// EventFilter returns true for events the client wants.
type EventFilter func(event Event) bool

// ClientOptions configures a single SSE client connection.
type ClientOptions struct {
	Filter     EventFilter
	BufferSize int
}

// Job event types.
const (
	EventTypeJobStatus    = "job:status"
	EventTypeJobProgress  = "job:progress"
	EventTypeJobCompleted = "job:completed"
)

const eventTypeConnected = "connected"

// JobStatusData is the payload for job:status events.
type JobStatusData struct {
	JobID     string `json:"job_id"`
	Kind      string `json:"kind"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// JobProgressData is the payload for job:progress events.
type JobProgressData struct {
	JobID     string `json:"job_id"`
	Kind      string `json:"kind"`
	Processed int    `json:"processed"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Total     int    `json:"total"`
	Timestamp string `json:"timestamp"`
}

// JobCompletedData is the payload for job:completed events.
type JobCompletedData struct {
	JobID        string `json:"job_id"`
	Kind         string `json:"kind"`
	Status       string `json:"status"`
	DurationMs   int64  `json:"duration_ms"`
	Result       any    `json:"result,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	Timestamp    string `json:"timestamp"`
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// NewJobStatusEvent creates a job:status event.
func NewJobStatusEvent(jobID, kind, status string) Event {
	return Event{
		Type: EventTypeJobStatus,
		ID:   jobID,
		Data: JobStatusData{JobID: jobID, Kind: kind, Status: status, Timestamp: now()},
	}
}

// NewJobProgressEvent creates a job:progress event.
func NewJobProgressEvent(jobID, kind string, processed, succeeded, failed, total int) Event {
	return Event{
		Type: EventTypeJobProgress,
		ID:   jobID,
		Data: JobProgressData{
			JobID:     jobID,
			Kind:      kind,
			Processed: processed,
			Succeeded: succeeded,
			Failed:    failed,
			Total:     total,
			Timestamp: now(),
		},
	}
}

// NewJobCompletedEvent creates a job:completed event.
func NewJobCompletedEvent(jobID, kind, status string, duration time.Duration, result any, errMsg string) Event {
	return Event{
		Type: EventTypeJobCompleted,
		ID:   jobID,
		Data: JobCompletedData{
			JobID:        jobID,
			Kind:         kind,
			Status:       status,
			DurationMs:   duration.Milliseconds(),
			Result:       result,
			ErrorMessage: errMsg,
			Timestamp:    now(),
		},
	}
}
