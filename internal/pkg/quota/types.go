package quota

import (
	"time"

	"github.com/ManuelReschke/CreditFox/internal/pkg/ledger"
	"github.com/ManuelReschke/CreditFox/internal/pkg/plans"
)

// Denial reasons surfaced to callers. Each renders a different message.
const (
	ReasonFeatureNotEntitled  = "feature_not_entitled"
	ReasonInsufficientFunds   = ledger.DenialInsufficientFunds
	ReasonQuotaExceeded       = ledger.DenialQuotaExceeded
	ReasonPurchaseNotEligible = "purchase_not_eligible"
)

// AuthorizeResult is the verdict for one action. Denials are results, not
// errors; errors are reserved for missing accounts and persistence failures
// (which fail closed).
type AuthorizeResult struct {
	Allowed          bool   `json:"allowed"`
	Reason           string `json:"reason,omitempty"`
	Message          string `json:"message"`
	CreditsCharged   int64  `json:"credits_charged"`
	RemainingBalance int64  `json:"remaining_balance"`
	Shortfall        int64  `json:"shortfall,omitempty"`
}

// CapStatus reports one category's usage against its daily cap.
type CapStatus struct {
	Used  int64 `json:"used"`
	Limit int64 `json:"limit"`
}

// Status is the account snapshot returned to callers. AvailableCredits
// includes the unclaimed daily grant on top of the balance.
type Status struct {
	UserID           uint                 `json:"user_id"`
	Plan             string               `json:"plan"`
	Balance          int64                `json:"balance"`
	AvailableCredits int64                `json:"available_credits"`
	UsageToday       int64                `json:"usage_today"`
	UsageThisMonth   int64                `json:"usage_this_month"`
	DailyFreeClaimed bool                 `json:"daily_free_claimed"`
	Caps             map[string]CapStatus `json:"caps"`
	Packages         []plans.CreditPackage `json:"purchasable_packages,omitempty"`
	NextRefillDate   *time.Time           `json:"next_refill_date,omitempty"`
}

// CreditOutcome is the result of add_credits or a package purchase.
type CreditOutcome struct {
	Success    bool   `json:"success"`
	Reason     string `json:"reason,omitempty"`
	NewBalance int64  `json:"new_balance"`
}
