package models

import (
	"time"
)

const (
	PlanFree  = "free"
	PlanElite = "elite"
)

// Account holds a user's prepaid credit balance and rolling usage counters.
// One credit equals one cent. The row is only ever mutated through the
// ledger's conditional updates; per-action daily usage is not stored here
// but derived from the transaction log.
type Account struct {
	ID                      uint      `gorm:"primaryKey" json:"id"`
	UserID                  uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	CreditsBalance          int64     `gorm:"not null;default:0" json:"credits_balance"`
	TotalCreditsPurchased   int64     `gorm:"not null;default:0" json:"total_credits_purchased"`
	CreditsUsedToday        int64     `gorm:"not null;default:0" json:"credits_used_today"`
	CreditsUsedThisMonth    int64     `gorm:"not null;default:0" json:"credits_used_this_month"`
	DailyFreeCreditsClaimed bool      `gorm:"not null;default:false" json:"daily_free_credits_claimed"`
	LastResetDate           time.Time `gorm:"type:date;not null" json:"last_reset_date"`
	SubscriptionPlan        string    `gorm:"type:varchar(20);not null;default:'free';index" json:"subscription_plan"`
	SubscriptionAnniversary time.Time `gorm:"type:date;not null" json:"subscription_anniversary"`
	// MonthlyRefillAnchor marks the start of the current 30-day allowance
	// period. It advances in whole 30-day steps when the refill is applied,
	// which is what makes the refill exactly-once under concurrent access.
	MonthlyRefillAnchor time.Time `gorm:"type:date;not null" json:"monthly_refill_anchor"`
	CreatedAt           time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// NewAccount returns a zero-balance free-plan account anchored at now.
func NewAccount(userID uint, now time.Time) *Account {
	today := DateOnly(now)
	return &Account{
		UserID:                  userID,
		SubscriptionPlan:        PlanFree,
		LastResetDate:           today,
		SubscriptionAnniversary: today,
		MonthlyRefillAnchor:     today,
	}
}

// IsFreePlan reports whether the account is on the free tier.
func (a *Account) IsFreePlan() bool {
	return a.SubscriptionPlan == PlanFree
}

// DateOnly truncates t to its UTC calendar date. All daily boundaries in the
// credit system are computed on UTC dates, regardless of user timezone.
func DateOnly(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of whole days from a to b (UTC dates).
func DaysBetween(a, b time.Time) int {
	return int(DateOnly(b).Sub(DateOnly(a)).Hours() / 24)
}
