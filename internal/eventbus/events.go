package eventbus

import "time"

// Event types published by ingestion and notification dispatch.
const (
	IngestFetched = "ingest.fetched"
	IngestFailed  = "ingest.failed"

	NotifySent     = "notify.sent"
	NotifyFailed   = "notify.failed"
	NotifyUnrouted = "notify.unrouted"
)

// IngestEvent is the Data of ingest.* events.
type IngestEvent struct {
	Source   string
	Status   int
	Bytes    int
	Duration time.Duration
	Error    string
}

// NotifyEvent is the Data of notify.* events. Content is never included.
type NotifyEvent struct {
	Channel string
	Type    string
	To      string
}
