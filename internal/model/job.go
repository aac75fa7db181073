// internal/model/job.go
package model

import "time"

type JobStatus string

const (
    JobPending JobStatus = "pending"
    JobRunning JobStatus = "running"
    JobDone    JobStatus = "done"
    JobExpired JobStatus = "expired"
    JobFailed  JobStatus = "failed"
)

// Dispatchable reports whether the dispatcher may still pick the job.
func (s JobStatus) Dispatchable() bool {
    return s == JobPending || s == JobRunning
}

type Job struct {
    ID            int64      `db:"id" json:"id"`
    TemplateRef   string     `db:"template_ref" json:"template_ref"`
    Status        JobStatus  `db:"status" json:"status"`
    StartAt       time.Time  `db:"start_at" json:"start_at"`
    RatePerMinute int        `db:"rate_per_minute" json:"rate_per_minute"`
    Total         int        `db:"total" json:"total"`
    Sent          int        `db:"sent" json:"sent"`
    Failed        int        `db:"failed" json:"failed"`
    CreatedAt     time.Time  `db:"created_at" json:"created_at"`
    UpdatedAt     *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// BatchSize is the number of items one tick may process for this job.
func (j *Job) BatchSize() int {
    if j.RatePerMinute < 1 {
        return 1
    }
    return j.RatePerMinute
}
