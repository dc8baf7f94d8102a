package jobqueue

import (
	"encoding/json"
	"time"
)

// JobType defines the type of job
type JobType string

const (
	JobTypeRefreshHistory JobType = "refresh_history"
	JobTypeBulkReconcile  JobType = "bulk_reconcile"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job represents a background job
type Job struct {
	ID          string                 `json:"id"`
	Type        JobType                `json:"type"`
	Status      JobStatus              `json:"status"`
	Payload     map[string]interface{} `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	ErrorMsg    string                 `json:"error_msg,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
}

// RefreshJobPayload contains the payload for gateway history refresh jobs.
// JobID doubles as the progress snapshot key in the job state store.
type RefreshJobPayload struct {
	JobID        string `json:"job_id"`
	From         string `json:"from"` // ISO date, inclusive
	To           string `json:"to"`   // ISO date, inclusive
	EmpAccountID *uint  `json:"emp_account_id,omitempty"`
}

// ToMap converts the payload to a map for storage
func (p RefreshJobPayload) ToMap() map[string]interface{} {
	m := map[string]interface{}{
		"job_id": p.JobID,
		"from":   p.From,
		"to":     p.To,
	}
	if p.EmpAccountID != nil {
		m["emp_account_id"] = *p.EmpAccountID
	}
	return m
}

// FromMap creates a payload from a map
func RefreshJobPayloadFromMap(data map[string]interface{}) (*RefreshJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload RefreshJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// BulkReconcileJobPayload contains the payload for bulk reconciliation jobs
type BulkReconcileJobPayload struct {
	JobID       string `json:"job_id"`
	MaxAgeHours int    `json:"max_age_hours"`
	Limit       int    `json:"limit"`
	UploadID    *uint  `json:"upload_id,omitempty"`
}

// ToMap converts the payload to a map for storage
func (p BulkReconcileJobPayload) ToMap() map[string]interface{} {
	m := map[string]interface{}{
		"job_id":        p.JobID,
		"max_age_hours": p.MaxAgeHours,
		"limit":         p.Limit,
	}
	if p.UploadID != nil {
		m["upload_id"] = *p.UploadID
	}
	return m
}

// FromMap creates a payload from a map
func BulkReconcileJobPayloadFromMap(data map[string]interface{}) (*BulkReconcileJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload BulkReconcileJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// IsRetryable checks if the job can be retried
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// MarkAsProcessing updates the job status to processing
func (j *Job) MarkAsProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.UpdatedAt = now
	j.ProcessedAt = &now
}

// MarkAsCompleted updates the job status to completed
func (j *Job) MarkAsCompleted() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.UpdatedAt = now
	j.CompletedAt = &now
	j.ErrorMsg = ""
}

// MarkAsFailed updates the job status to failed
func (j *Job) MarkAsFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.UpdatedAt = time.Now()
	j.ErrorMsg = errorMsg
	j.RetryCount++
}

// MarkAsRetrying updates the job status to retrying
func (j *Job) MarkAsRetrying() {
	j.Status = JobStatusRetrying
	j.UpdatedAt = time.Now()
}
