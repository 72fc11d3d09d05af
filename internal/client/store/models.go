package store

import "time"

// Status of a locally recorded session. The device is the system of record
// until a sync pass hands the session over to the server; synced sessions
// are deleted right after confirmation.
type Status string

const (
	StatusRecording   Status = "recording"
	StatusPendingSync Status = "pending_sync"
	StatusSynced      Status = "synced"
	StatusDiscarded   Status = "discarded"
	StatusCancelled   Status = "cancelled"
)

type Session struct {
	ID             int64      `json:"id"`
	Status         Status     `json:"status"`
	RemoteID       *string    `json:"remote_id"`
	LineID         *string    `json:"line_id"`
	LineName       *string    `json:"line_name"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at"`
	LastActivityAt time.Time  `json:"last_activity_at"`
}

// LineRef names the line a finished trip belongs to: an existing catalogue
// line by id, or a free-text proposal by name. At most one is set.
type LineRef struct {
	LineID   *string
	LineName string
}
