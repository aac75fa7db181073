// internal/model/item.go
package model

import "time"

type ItemStatus string

const (
    ItemQueued ItemStatus = "queued"
    ItemSent   ItemStatus = "sent"
    ItemFailed ItemStatus = "failed"
)

// MaxEmailLength is the RFC 5321 path limit.
const MaxEmailLength = 254

type Item struct {
    ID        int64      `db:"id" json:"id"`
    JobID     int64      `db:"job_id" json:"job_id"`
    Email     string     `db:"email" json:"email"`
    Status    ItemStatus `db:"status" json:"status"` // queued, sent, failed
    Attempts  int        `db:"attempts" json:"attempts"`
    Error     string     `db:"error,omitempty" json:"error,omitempty"`
    UpdatedAt *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}
