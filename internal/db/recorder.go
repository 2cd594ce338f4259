package db

import (
	"database/sql"
	"log"
)

// Recorder is a nil-safe wrapper around the event log. A nil Recorder (or
// one without a database) drops events, so the reply path never depends on
// the log being configured or healthy.
type Recorder struct {
	db *sql.DB
}

// NewRecorder wraps an open event database. database may be nil to disable
// recording.
func NewRecorder(database *sql.DB) *Recorder {
	if database == nil {
		return nil
	}
	return &Recorder{db: database}
}

// Log records an event and returns its id, or 0 when recording is disabled
// or fails. Failures are logged and swallowed.
func (r *Recorder) Log(parentID *int64, eventType string, payload map[string]any) int64 {
	if r == nil || r.db == nil {
		return 0
	}
	id, err := LogEvent(r.db, parentID, eventType, payload)
	if err != nil {
		log.Printf("event log write failed type=%s: %v", eventType, err)
		return 0
	}
	return id
}
