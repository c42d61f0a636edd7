package model

import (
	"time"
)

// ArchiveEntry is a finalized record as written to the archive sink.
type ArchiveEntry struct {
	ID         string       `json:"id" bson:"_id" db:"id"`
	RequestID  string       `json:"request_id" bson:"request_id" db:"request_id"`
	Method     string       `json:"method" bson:"method" db:"method"`
	URL        string       `json:"url" bson:"url" db:"url"`
	Host       string       `json:"host,omitempty" bson:"host,omitempty" db:"host"`
	Timestamp  time.Time    `json:"timestamp" bson:"timestamp" db:"timestamp"`
	ArchivedAt time.Time    `json:"archived_at" bson:"archived_at" db:"archived_at"`
	Headers    []Header     `json:"headers,omitempty" bson:"headers,omitempty" db:"headers"`
	Body       *RequestBody `json:"body,omitempty" bson:"body,omitempty" db:"body"`
}
