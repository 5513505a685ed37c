package jobqueue

import (
	"encoding/json"
	"time"
)

// JobType defines the type of job
type JobType string

const (
	JobTypeLedgerAudit      JobType = "ledger_audit"
	JobTypeLedgerAuditSweep JobType = "ledger_audit_sweep"
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

// LedgerAuditJobPayload contains the payload for a single-account audit job
type LedgerAuditJobPayload struct {
	UserID uint `json:"user_id"`
}

// ToMap converts the payload to a map for storage
func (p LedgerAuditJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"user_id": p.UserID,
	}
}

// FromMap creates a payload from a map
func LedgerAuditJobPayloadFromMap(data map[string]interface{}) (*LedgerAuditJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload LedgerAuditJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// LedgerAuditSweepJobPayload contains payload for scanning accounts and enqueuing per-account audit jobs
type LedgerAuditSweepJobPayload struct {
	CursorID  uint `json:"cursor_id"` // last processed Account.ID; 0 = start
	BatchSize int  `json:"batch_size"`
}

func (p LedgerAuditSweepJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"cursor_id":  p.CursorID,
		"batch_size": p.BatchSize,
	}
}

func LedgerAuditSweepJobPayloadFromMap(data map[string]interface{}) (*LedgerAuditSweepJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var payload LedgerAuditSweepJobPayload
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
