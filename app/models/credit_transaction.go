package models

import "time"

// Transaction types. Signed amounts: usage is negative, everything else positive.
const (
	TxTypeUsage            = "usage"
	TxTypePurchase         = "purchase"
	TxTypeDailyFree        = "daily_free"
	TxTypeMonthlyAllowance = "monthly_allowance"
	TxTypeRefund           = "refund"
	TxTypeAdjustment       = "adjustment"
)

// Billable action types shared by pricing, plan gating and the transaction log.
const (
	ActionChatMessage        = "chat_message"
	ActionDocumentAnalysis   = "document_analysis"
	ActionHealthReport       = "health_report"
	ActionVoiceTranscription = "voice_transcription"
	ActionBookGeneration     = "book_generation"
)

// CreditTransaction is one immutable entry in the append-only audit trail.
// Rows are never updated or deleted; the sum of a user's amounts always
// equals the account balance.
type CreditTransaction struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"not null;index:idx_credit_tx_user_created,priority:1" json:"user_id"`
	Amount       int64     `gorm:"not null" json:"amount"`
	Type         string    `gorm:"type:varchar(32);not null;index" json:"type"`
	Action       string    `gorm:"type:varchar(50);not null;default:''" json:"action,omitempty"`
	MetadataJSON string    `gorm:"type:text" json:"metadata_json,omitempty"`
	Reference    string    `gorm:"type:char(36);not null;uniqueIndex" json:"reference"`
	CreatedAt    time.Time `gorm:"autoCreateTime;index:idx_credit_tx_user_created,priority:2" json:"created_at"`
}

// IsValidTxType reports whether t is a known transaction type.
func IsValidTxType(t string) bool {
	switch t {
	case TxTypeUsage, TxTypePurchase, TxTypeDailyFree, TxTypeMonthlyAllowance, TxTypeRefund, TxTypeAdjustment:
		return true
	default:
		return false
	}
}
