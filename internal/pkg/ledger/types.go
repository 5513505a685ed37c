package ledger

import (
	"context"
	"time"

	"github.com/ManuelReschke/CreditFox/app/models"
)

// Denial reasons for a refused charge. These are expected outcomes, not
// errors: callers render different messages for each.
const (
	DenialInsufficientFunds = "insufficient_funds"
	DenialQuotaExceeded     = "quota_exceeded"
)

// ChargeParams describes one priced action to deduct.
type ChargeParams struct {
	UserID       uint
	Action       string
	Cost         int64
	MetadataJSON string
	Now          time.Time
}

// ChargeResult is the outcome of a charge attempt. When Granted is false,
// Denial names the reason and no account state has changed beyond the lazy
// period reconciliation.
type ChargeResult struct {
	Granted          bool
	Denial           string
	Shortfall        int64
	CapLimit         int64
	CreditsCharged   int64
	RemainingBalance int64
	GrantClaimed     bool
}

// CreditParams describes a balance addition from a non-usage source
// (purchase, refund, monthly allowance catch-up, manual adjustment).
type CreditParams struct {
	UserID       uint
	Amount       int64
	Source       string
	MetadataJSON string
	Now          time.Time
}

// CreditResult reports the balance after a successful credit.
type CreditResult struct {
	NewBalance int64
}

// Store is the sole mutator of accounts. Every implementation must make each
// method atomic and linearizable per user: concurrent calls for the same
// user behave as some sequential ordering, and no partial state is ever
// observable. Calls for different users never contend.
//
// Charge and Reconcile also perform the lazy daily/monthly boundary
// transitions; those transitions are conditional updates keyed on the
// current period markers, so a boundary is applied exactly once no matter
// how many processes race across it.
type Store interface {
	CreateAccount(ctx context.Context, acct *models.Account) error
	Fetch(ctx context.Context, userID uint) (*models.Account, error)
	Reconcile(ctx context.Context, userID uint, now time.Time) (*models.Account, error)
	Charge(ctx context.Context, p ChargeParams) (*ChargeResult, error)
	Credit(ctx context.Context, p CreditParams) (*CreditResult, error)
	// ChangePlan moves the account to another tier. Upgrading re-anchors the
	// 30-day allowance period at now; the first refill lands a period later.
	ChangePlan(ctx context.Context, userID uint, plan string, now time.Time) (*models.Account, error)
}
