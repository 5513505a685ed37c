package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/CreditFox/app/models"
	"github.com/ManuelReschke/CreditFox/internal/pkg/plans"
)

// GormStore implements Store on MySQL through GORM. Per-user linearizability
// comes from a SELECT ... FOR UPDATE on the account row inside one database
// transaction; every balance mutation is additionally guarded by a
// conditional UPDATE whose predicates restate the invariant (balance
// sufficient, period marker current), with the affected-row count as the
// success signal. The guards keep the ledger correct even against callers
// that bypass the row lock.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a ledger store backed by GORM.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) CreateAccount(ctx context.Context, acct *models.Account) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Account
		err := tx.Where("user_id = ?", acct.UserID).First(&existing).Error
		if err == nil {
			return ErrAccountExists
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return tx.Create(acct).Error
	})
}

func (s *GormStore) Fetch(ctx context.Context, userID uint) (*models.Account, error) {
	var acct models.Account
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&acct).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

func (s *GormStore) Reconcile(ctx context.Context, userID uint, now time.Time) (*models.Account, error) {
	var acct *models.Account
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := lockAccount(tx, userID)
		if err != nil {
			return err
		}
		if err := reconcileLocked(tx, locked, now); err != nil {
			return err
		}
		acct = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	return acct, nil
}

func (s *GormStore) Charge(ctx context.Context, p ChargeParams) (*ChargeResult, error) {
	var res *ChargeResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		acct, err := lockAccount(tx, p.UserID)
		if err != nil {
			return err
		}
		if err := reconcileLocked(tx, acct, p.Now); err != nil {
			return err
		}

		today := models.DateOnly(p.Now)

		// Per-category daily cap, derived from the transaction log so the
		// cap and the audit trail can never disagree.
		capLimit := plans.DailyCap(acct.SubscriptionPlan, p.Action)
		if capLimit != plans.Unbounded {
			var used int64
			if err := tx.Model(&models.CreditTransaction{}).
				Where("user_id = ? AND type = ? AND action = ? AND created_at >= ?", p.UserID, models.TxTypeUsage, p.Action, today).
				Count(&used).Error; err != nil {
				return err
			}
			if used >= capLimit {
				res = &ChargeResult{Denial: DenialQuotaExceeded, CapLimit: capLimit, RemainingBalance: acct.CreditsBalance}
				return nil
			}
		}

		grant := unclaimedGrant(acct)
		available := acct.CreditsBalance + grant
		if available < p.Cost {
			res = &ChargeResult{Denial: DenialInsufficientFunds, Shortfall: p.Cost - available, RemainingBalance: acct.CreditsBalance}
			return nil
		}

		if grant > 0 {
			// Claim the daily grant and deduct in one statement. The grant
			// is credited in full; whatever the action does not consume
			// stays on the balance.
			r := tx.Model(&models.Account{}).
				Where("user_id = ? AND daily_free_credits_claimed = ? AND last_reset_date = ? AND credits_balance >= ?",
					p.UserID, false, today, p.Cost-grant).
				Updates(map[string]interface{}{
					"daily_free_credits_claimed": true,
					"credits_balance":            gorm.Expr("credits_balance + ?", grant-p.Cost),
					"credits_used_today":         gorm.Expr("credits_used_today + ?", p.Cost),
					"credits_used_this_month":    gorm.Expr("credits_used_this_month + ?", p.Cost),
				})
			if r.Error != nil {
				return r.Error
			}
			if r.RowsAffected == 0 {
				return ErrConflict
			}
			if err := appendTx(tx, p.UserID, grant, models.TxTypeDailyFree, "", "", p.Now); err != nil {
				return err
			}
		} else {
			r := tx.Model(&models.Account{}).
				Where("user_id = ? AND last_reset_date = ? AND credits_balance >= ?", p.UserID, today, p.Cost).
				Updates(map[string]interface{}{
					"credits_balance":         gorm.Expr("credits_balance - ?", p.Cost),
					"credits_used_today":      gorm.Expr("credits_used_today + ?", p.Cost),
					"credits_used_this_month": gorm.Expr("credits_used_this_month + ?", p.Cost),
				})
			if r.Error != nil {
				return r.Error
			}
			if r.RowsAffected == 0 {
				return ErrConflict
			}
		}

		if err := appendTx(tx, p.UserID, -p.Cost, models.TxTypeUsage, p.Action, p.MetadataJSON, p.Now); err != nil {
			return err
		}

		res = &ChargeResult{
			Granted:          true,
			CreditsCharged:   p.Cost,
			RemainingBalance: acct.CreditsBalance + grant - p.Cost,
			GrantClaimed:     grant > 0,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *GormStore) Credit(ctx context.Context, p CreditParams) (*CreditResult, error) {
	if p.Amount <= 0 || !models.IsValidTxType(p.Source) || p.Source == models.TxTypeUsage {
		return nil, ErrInvalidCredit
	}

	var res *CreditResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		acct, err := lockAccount(tx, p.UserID)
		if err != nil {
			return err
		}
		if p.Source == models.TxTypePurchase && !plans.CanPurchase(acct.SubscriptionPlan) {
			return ErrPurchaseNotEligible
		}

		updates := map[string]interface{}{
			"credits_balance": gorm.Expr("credits_balance + ?", p.Amount),
		}
		if p.Source == models.TxTypePurchase {
			updates["total_credits_purchased"] = gorm.Expr("total_credits_purchased + ?", p.Amount)
		}
		r := tx.Model(&models.Account{}).Where("user_id = ?", p.UserID).Updates(updates)
		if r.Error != nil {
			return r.Error
		}
		if r.RowsAffected == 0 {
			return ErrConflict
		}
		if err := appendTx(tx, p.UserID, p.Amount, p.Source, "", p.MetadataJSON, p.Now); err != nil {
			return err
		}

		res = &CreditResult{NewBalance: acct.CreditsBalance + p.Amount}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *GormStore) ChangePlan(ctx context.Context, userID uint, plan string, now time.Time) (*models.Account, error) {
	normalized := string(plans.Normalize(plan))
	today := models.DateOnly(now)

	var acct *models.Account
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := lockAccount(tx, userID)
		if err != nil {
			return err
		}
		if locked.SubscriptionPlan == normalized {
			acct = locked
			return nil
		}
		r := tx.Model(&models.Account{}).
			Where("user_id = ?", userID).
			Updates(map[string]interface{}{
				"subscription_plan":        normalized,
				"subscription_anniversary": today,
				"monthly_refill_anchor":    today,
				"credits_used_this_month":  0,
			})
		if r.Error != nil {
			return r.Error
		}
		locked.SubscriptionPlan = normalized
		locked.SubscriptionAnniversary = today
		locked.MonthlyRefillAnchor = today
		locked.CreditsUsedThisMonth = 0
		acct = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	return acct, nil
}

// lockAccount reads the account row under SELECT ... FOR UPDATE, serializing
// all ledger operations for one user for the rest of the transaction.
func lockAccount(tx *gorm.DB, userID uint) (*models.Account, error) {
	var acct models.Account
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&acct).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

// reconcileLocked applies the lazy daily and monthly boundary transitions to
// a locked account and mirrors them onto the in-memory snapshot. Both
// transitions are conditional updates keyed on the current period marker, so
// even without the row lock each boundary grants at most once.
func reconcileLocked(tx *gorm.DB, acct *models.Account, now time.Time) error {
	today := models.DateOnly(now)

	if needsDailyReset(acct, now) {
		r := tx.Model(&models.Account{}).
			Where("user_id = ? AND last_reset_date < ?", acct.UserID, today).
			Updates(map[string]interface{}{
				"credits_used_today":         0,
				"daily_free_credits_claimed": false,
				"last_reset_date":            today,
			})
		if r.Error != nil {
			return r.Error
		}
		if r.RowsAffected == 0 {
			return ErrConflict
		}
		acct.CreditsUsedToday = 0
		acct.DailyFreeCreditsClaimed = false
		acct.LastResetDate = today
	}

	nextAnchor, allowance, due := refillDue(acct, now)
	if due {
		r := tx.Model(&models.Account{}).
			Where("user_id = ? AND monthly_refill_anchor = ?", acct.UserID, acct.MonthlyRefillAnchor).
			Updates(map[string]interface{}{
				"credits_balance":         gorm.Expr("credits_balance + ?", allowance),
				"credits_used_this_month": 0,
				"monthly_refill_anchor":   nextAnchor,
			})
		if r.Error != nil {
			return r.Error
		}
		if r.RowsAffected == 0 {
			return ErrConflict
		}
		if err := appendTx(tx, acct.UserID, allowance, models.TxTypeMonthlyAllowance, "", "", now); err != nil {
			return err
		}
		acct.CreditsBalance += allowance
		acct.CreditsUsedThisMonth = 0
		acct.MonthlyRefillAnchor = nextAnchor
	}

	return nil
}

func appendTx(tx *gorm.DB, userID uint, amount int64, txType, action, metadata string, at time.Time) error {
	return tx.Create(&models.CreditTransaction{
		UserID:       userID,
		Amount:       amount,
		Type:         txType,
		Action:       action,
		MetadataJSON: metadata,
		Reference:    uuid.New().String(),
		CreatedAt:    at,
	}).Error
}
