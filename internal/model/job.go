package model

import "time"

// JobStatus tracks a processing job through the durable queue.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobClaimed    JobStatus = "claimed"
	JobDone       JobStatus = "done"
	JobDeadLetter JobStatus = "dead_letter"
)

// Job is one "process this document" unit of work. Jobs are keyed by
// document identity: enqueuing the same document while a job is in flight
// must not create a second concurrent claim.
type Job struct {
	ID         int64      `json:"id"`
	DocumentID string     `json:"document_id"`
	StorageKey string     `json:"storage_key"`
	Status     JobStatus  `json:"status"`
	Attempts   int        `json:"attempts"`
	LastError  string     `json:"last_error,omitempty"`
	VisibleAt  time.Time  `json:"visible_at"`
	ClaimedBy  string     `json:"claimed_by,omitempty"`
	ClaimedAt  *time.Time `json:"claimed_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// QueueStats summarizes the queue for operability commands.
type QueueStats struct {
	Pending    int `json:"pending"`
	Claimed    int `json:"claimed"`
	Done       int `json:"done"`
	DeadLetter int `json:"dead_letter"`
}
