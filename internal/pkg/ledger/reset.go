package ledger

import (
	"time"

	"github.com/ManuelReschke/CreditFox/app/models"
	"github.com/ManuelReschke/CreditFox/internal/pkg/plans"
)

// Period reconciliation date math. The conditional updates built from these
// helpers are what make resets exactly-once; the helpers themselves are pure
// so both store implementations and their tests share them.

const refillPeriodDays = 30

// needsDailyReset reports whether the account's daily counters belong to an
// earlier UTC date than now.
func needsDailyReset(acct *models.Account, now time.Time) bool {
	return models.DateOnly(acct.LastResetDate).Before(models.DateOnly(now))
}

// refillDue computes the monthly allowance refill for an elite account.
// It returns the advanced anchor and true when at least one full 30-day
// period has elapsed since the current anchor. The anchor jumps over all
// elapsed periods in one step: an account that was not touched for several
// months still receives exactly one allowance, never a stack of them.
func refillDue(acct *models.Account, now time.Time) (nextAnchor time.Time, allowance int64, due bool) {
	allowance = plans.MonthlyAllowance(acct.SubscriptionPlan)
	if allowance <= 0 {
		return time.Time{}, 0, false
	}
	days := models.DaysBetween(acct.MonthlyRefillAnchor, now)
	if days < refillPeriodDays {
		return time.Time{}, 0, false
	}
	periods := days / refillPeriodDays
	nextAnchor = models.DateOnly(acct.MonthlyRefillAnchor).AddDate(0, 0, periods*refillPeriodDays)
	return nextAnchor, allowance, true
}

// unclaimedGrant returns the size of the daily free grant still available to
// the account today, or zero. Only the free tier has a daily grant.
func unclaimedGrant(acct *models.Account) int64 {
	if !acct.IsFreePlan() || acct.DailyFreeCreditsClaimed {
		return 0
	}
	return plans.DailyFreeCredits(acct.SubscriptionPlan)
}
