package event

import "time"

type EventType string

// Job lifecycle. Per-job publication order is started, then any number of
// progress/warning, then exactly one of completed/failed.
const (
	EventJobStarted   EventType = "job.started"
	EventJobProgress  EventType = "job.progress"
	EventJobWarning   EventType = "job.warning"
	EventJobCompleted EventType = "job.completed"
	EventJobFailed    EventType = "job.failed"
)

type Event struct {
	Type      EventType
	Timestamp time.Time
	Payload   any
}

// JobEvent is the payload for all job lifecycle events. CorrelationID is the
// client-chosen token that routes the event to a notification channel.
type JobEvent struct {
	JobID         string
	CorrelationID string
	UserID        string
	SourceKey     string
	Progress      float64
	Detail        string
	Result        *JobResult
}

// JobResult describes a completed job's output artifact.
type JobResult struct {
	DownloadID string
	URL        string
	Filename   string
	Size       int64
	StorageKey string
}
