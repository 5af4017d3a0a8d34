// Package storage persists ingestion snapshots.
//
// Each successful fetch of a source produces one Snapshot. Stores keep the
// most recent snapshots per source and drop older ones. Notification
// messages are never stored.
package storage
