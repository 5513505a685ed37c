package ledger

import "errors"

var (
	// ErrAccountNotFound is returned when no account exists for the user.
	ErrAccountNotFound = errors.New("ledger: account not found")

	// ErrAccountExists is returned when creating a second account for a user.
	ErrAccountExists = errors.New("ledger: account already exists")

	// ErrPurchaseNotEligible is returned when a purchase credit targets a
	// plan that cannot buy credits. The ledger enforces this itself as the
	// last line of defense, independent of any caller-side gating.
	ErrPurchaseNotEligible = errors.New("ledger: plan not eligible for credit purchases")

	// ErrInvalidCredit is returned for non-positive amounts or unknown sources.
	ErrInvalidCredit = errors.New("ledger: invalid credit request")

	// ErrConflict is returned when a conditional update matched no row even
	// though the account was locked. It indicates the guard predicates and
	// the locked snapshot disagree and the transaction was rolled back.
	ErrConflict = errors.New("ledger: conditional update conflict")
)
