package jobqueue

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CreditFox/app/models"
	"github.com/ManuelReschke/CreditFox/internal/pkg/database"
	"github.com/ManuelReschke/CreditFox/internal/pkg/ledger"
	"github.com/ManuelReschke/CreditFox/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/CreditFox/internal/pkg/txlog"
)

const defaultAuditBatchSize = 200

// processLedgerAuditJob checks one account's balance against the signed sum
// of its transaction log. Drift means a balance mutation bypassed the ledger;
// the job raises an alert but never writes a correction, that call belongs to
// an operator.
func (q *Queue) processLedgerAuditJob(ctx context.Context, job *Job) error {
	payload, err := LedgerAuditJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid ledger audit payload: %w", err)
	}
	db := database.GetDB()
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}

	store := ledger.NewGormStore(db)
	acct, err := store.Fetch(ctx, payload.UserID)
	if err != nil {
		return fmt.Errorf("audit fetch for user %d failed: %w", payload.UserID, err)
	}

	drift, err := txlog.AuditDrift(ctx, txlog.NewGormLog(db), acct)
	if err != nil {
		return fmt.Errorf("audit sum for user %d failed: %w", payload.UserID, err)
	}
	if drift != 0 {
		log.Errorf("[LedgerAudit] Drift for user %d: balance is %d credits off its transaction history", payload.UserID, drift)
		_ = counter.AddAlert()
		return nil
	}

	log.Debugf("[LedgerAudit] User %d clean (balance %d)", payload.UserID, acct.CreditsBalance)
	return nil
}

// processLedgerAuditSweepJob walks all accounts in ID order and fans out one
// audit job per account. Large account tables are covered incrementally: each
// sweep job handles one batch and re-enqueues itself with the advanced cursor.
func (q *Queue) processLedgerAuditSweepJob(job *Job) error {
	payload, err := LedgerAuditSweepJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid audit sweep payload: %w", err)
	}
	db := database.GetDB()
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}

	batchSize := payload.BatchSize
	if batchSize <= 0 {
		batchSize = defaultAuditBatchSize
	}

	var accounts []models.Account
	if err := db.Select("id", "user_id").
		Where("id > ?", payload.CursorID).
		Order("id ASC").
		Limit(batchSize).
		Find(&accounts).Error; err != nil {
		return fmt.Errorf("audit sweep scan failed: %w", err)
	}
	if len(accounts) == 0 {
		log.Info("[LedgerAudit] Sweep complete, no more accounts")
		return nil
	}

	for _, acct := range accounts {
		auditPayload := LedgerAuditJobPayload{UserID: acct.UserID}
		if _, err := q.EnqueueJob(JobTypeLedgerAudit, auditPayload.ToMap()); err != nil {
			return fmt.Errorf("enqueue audit for user %d failed: %w", acct.UserID, err)
		}
	}

	if len(accounts) == batchSize {
		next := LedgerAuditSweepJobPayload{
			CursorID:  accounts[len(accounts)-1].ID,
			BatchSize: batchSize,
		}
		if _, err := q.EnqueueJob(JobTypeLedgerAuditSweep, next.ToMap()); err != nil {
			return fmt.Errorf("enqueue next sweep batch failed: %w", err)
		}
	}

	log.Infof("[LedgerAudit] Sweep batch enqueued %d account audits (cursor=%d)", len(accounts), payload.CursorID)
	return nil
}
