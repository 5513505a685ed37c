package jobqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobTypeConstants(t *testing.T) {
	assert.Equal(t, "ledger_audit", string(JobTypeLedgerAudit))
	assert.Equal(t, "ledger_audit_sweep", string(JobTypeLedgerAuditSweep))
}

func TestJobStatusConstants(t *testing.T) {
	assert.Equal(t, "pending", string(JobStatusPending))
	assert.Equal(t, "processing", string(JobStatusProcessing))
	assert.Equal(t, "completed", string(JobStatusCompleted))
	assert.Equal(t, "failed", string(JobStatusFailed))
	assert.Equal(t, "retrying", string(JobStatusRetrying))
}

func TestJobStatusTransitions(t *testing.T) {
	job := &Job{
		ID:         "test-job",
		Type:       JobTypeLedgerAudit,
		Status:     JobStatusPending,
		MaxRetries: 3,
	}

	job.MarkAsProcessing()
	assert.Equal(t, JobStatusProcessing, job.Status)
	assert.NotNil(t, job.ProcessedAt)

	job.MarkAsCompleted()
	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.NotNil(t, job.CompletedAt)
	assert.Empty(t, job.ErrorMsg)

	job.MarkAsFailed("audit sum failed")
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, "audit sum failed", job.ErrorMsg)
	assert.Equal(t, 1, job.RetryCount)

	job.MarkAsRetrying()
	assert.Equal(t, JobStatusRetrying, job.Status)
}

func TestJobIsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		job       Job
		retryable bool
	}{
		{"failed under limit", Job{Status: JobStatusFailed, RetryCount: 1, MaxRetries: 3}, true},
		{"failed at limit", Job{Status: JobStatusFailed, RetryCount: 3, MaxRetries: 3}, false},
		{"pending is not retryable", Job{Status: JobStatusPending, RetryCount: 0, MaxRetries: 3}, false},
		{"completed is not retryable", Job{Status: JobStatusCompleted, RetryCount: 1, MaxRetries: 3}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, tt.job.IsRetryable())
		})
	}
}

func TestLedgerAuditJobPayloadRoundTrip(t *testing.T) {
	original := LedgerAuditJobPayload{UserID: 42}

	data := original.ToMap()
	assert.Equal(t, map[string]interface{}{"user_id": uint(42)}, data)

	result, err := LedgerAuditJobPayloadFromMap(data)
	require.NoError(t, err)
	assert.Equal(t, &original, result)
}

func TestLedgerAuditSweepJobPayloadRoundTrip(t *testing.T) {
	original := LedgerAuditSweepJobPayload{CursorID: 1000, BatchSize: 200}

	data := original.ToMap()
	assert.Equal(t, map[string]interface{}{"cursor_id": uint(1000), "batch_size": 200}, data)

	result, err := LedgerAuditSweepJobPayloadFromMap(data)
	require.NoError(t, err)
	assert.Equal(t, &original, result)
}

func TestPayloadFromJSONDecodedMap(t *testing.T) {
	// Payloads come back from Redis as JSON, where all numbers are float64.
	result, err := LedgerAuditJobPayloadFromMap(map[string]interface{}{"user_id": float64(7)})
	require.NoError(t, err)
	assert.Equal(t, uint(7), result.UserID)

	sweep, err := LedgerAuditSweepJobPayloadFromMap(map[string]interface{}{
		"cursor_id":  float64(55),
		"batch_size": float64(100),
	})
	require.NoError(t, err)
	assert.Equal(t, uint(55), sweep.CursorID)
	assert.Equal(t, 100, sweep.BatchSize)
}

func TestJobTimestampsAdvance(t *testing.T) {
	job := &Job{ID: "ts-job", Type: JobTypeLedgerAuditSweep, Status: JobStatusPending}

	beforeTime := time.Now()
	job.MarkAsProcessing()
	afterTime := time.Now()

	assert.True(t, job.UpdatedAt.After(beforeTime) || job.UpdatedAt.Equal(beforeTime))
	assert.True(t, job.UpdatedAt.Before(afterTime) || job.UpdatedAt.Equal(afterTime))
	require.NotNil(t, job.ProcessedAt)
	assert.True(t, job.ProcessedAt.After(beforeTime) || job.ProcessedAt.Equal(beforeTime))
}
