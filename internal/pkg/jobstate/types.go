package jobstate

import (
	"encoding/json"
	"time"
)

// JobKind distinguishes the two background operations that share the store.
type JobKind string

const (
	JobKindRefresh       JobKind = "refresh"
	JobKindBulkReconcile JobKind = "bulk_reconcile"
)

// JobStatus is the lifecycle of one job's progress snapshot.
type JobStatus string

const (
	JobStatusPending             JobStatus = "pending"
	JobStatusProcessing          JobStatus = "processing"
	JobStatusCompleted           JobStatus = "completed"
	JobStatusCompletedWithErrors JobStatus = "completed_with_errors"
)

// Stats is the running tally of one job.
type Stats struct {
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Changed   int `json:"changed"`
	Rejected  int `json:"rejected"`
	Errors    int `json:"errors"`
}

// ActiveLock is the single-flight descriptor. Its presence under the lock
// key means "a run of this kind is in progress". The lock is advisory and
// expires; the progress snapshot is the source of truth for completion.
type ActiveLock struct {
	JobID        string    `json:"job_id"`
	Kind         JobKind   `json:"kind"`
	StartedAt    time.Time `json:"started_at"`
	From         string    `json:"from,omitempty"`
	To           string    `json:"to,omitempty"`
	EmpAccountID *uint     `json:"emp_account_id,omitempty"`
	UploadID     *uint     `json:"upload_id,omitempty"`
	MaxAgeHours  int       `json:"max_age_hours,omitempty"`
	Limit        int       `json:"limit,omitempty"`
}

// JobProgress is the per-job snapshot polled by clients.
type JobProgress struct {
	JobID             string     `json:"job_id"`
	Kind              JobKind    `json:"kind"`
	Status            JobStatus  `json:"status"`
	Progress          int        `json:"progress"`
	AccountsTotal     int        `json:"accounts_total"`
	AccountsProcessed int        `json:"accounts_processed"`
	CurrentAccount    string     `json:"current_account,omitempty"`
	Stats             Stats      `json:"stats"`
	StartedAt         time.Time  `json:"started_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
}

// Terminal reports whether the job has finished, successfully or not.
func (p *JobProgress) Terminal() bool {
	return p.Status == JobStatusCompleted || p.Status == JobStatusCompletedWithErrors
}

func (l *ActiveLock) marshal() (string, error) {
	b, err := json.Marshal(l)
	return string(b), err
}

func unmarshalLock(data string) (*ActiveLock, error) {
	var lock ActiveLock
	if err := json.Unmarshal([]byte(data), &lock); err != nil {
		return nil, err
	}
	return &lock, nil
}

func (p *JobProgress) marshal() (string, error) {
	b, err := json.Marshal(p)
	return string(b), err
}

func unmarshalProgress(data string) (*JobProgress, error) {
	var progress JobProgress
	if err := json.Unmarshal([]byte(data), &progress); err != nil {
		return nil, err
	}
	return &progress, nil
}
