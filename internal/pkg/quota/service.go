package quota

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ManuelReschke/CreditFox/app/models"
	"github.com/ManuelReschke/CreditFox/internal/pkg/ledger"
	"github.com/ManuelReschke/CreditFox/internal/pkg/plans"
	"github.com/ManuelReschke/CreditFox/internal/pkg/pricing"
	"github.com/ManuelReschke/CreditFox/internal/pkg/txlog"
)

// ErrPackageNotFound is returned for an unknown credit package ID.
var ErrPackageNotFound = errors.New("quota: credit package not found")

// MetricsRecorder receives operational counters. Implementations must be
// best-effort; the gate never fails a request over a metrics error.
type MetricsRecorder interface {
	RecordAuthorized(creditsCharged int64)
	RecordDenied(reason string)
	RecordAlert()
}

// Service is the public facade of the credit system. Every caller (web
// handlers, background workers, external collaborators) goes through it;
// nothing else mutates accounts. The heavy lifting (atomicity, exactly-once
// resets) lives in the ledger store; the gate composes plan gating, pricing
// and metering into one call per request.
type Service struct {
	store   ledger.Store
	log     txlog.Log
	pricing *pricing.Catalog
	metrics MetricsRecorder
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithPricing overrides the default pricing catalog.
func WithPricing(c *pricing.Catalog) Option {
	return func(s *Service) { s.pricing = c }
}

// WithMetrics attaches an operational metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates the quota gate from an injected store and transaction log.
func New(store ledger.Store, log txlog.Log, opts ...Option) *Service {
	s := &Service{
		store:   store,
		log:     log,
		pricing: pricing.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenAccount creates a zero-balance free-plan account for a new user.
func (s *Service) OpenAccount(ctx context.Context, userID uint) (*models.Account, error) {
	acct := models.NewAccount(userID, s.now())
	if err := s.store.CreateAccount(ctx, acct); err != nil {
		return nil, err
	}
	return acct, nil
}

// EstimateCost prices an action without touching any state.
func (s *Service) EstimateCost(action string, md pricing.Metadata) int64 {
	return s.pricing.Cost(action, md)
}

// AuthorizeAndCharge reconciles period boundaries, checks plan gates and
// caps, prices the action and deducts it, all as one effectively-atomic
// operation. A denial leaves no charge-related state behind. Store errors
// fail closed: the caller must deny the action.
func (s *Service) AuthorizeAndCharge(ctx context.Context, userID uint, action string, md pricing.Metadata) (*AuthorizeResult, error) {
	acct, err := s.store.Fetch(ctx, userID)
	if err != nil {
		return nil, s.storeErr(err)
	}

	if !s.pricing.Knows(action) || !plans.IsActionAllowed(acct.SubscriptionPlan, action) {
		res := &AuthorizeResult{
			Reason:           ReasonFeatureNotEntitled,
			Message:          fmt.Sprintf("Action %q is not available on the %s plan", action, acct.SubscriptionPlan),
			RemainingBalance: acct.CreditsBalance,
		}
		s.recordDenied(res.Reason)
		return res, nil
	}

	cost := s.pricing.Cost(action, md)
	charge, err := s.store.Charge(ctx, ledger.ChargeParams{
		UserID:       userID,
		Action:       action,
		Cost:         cost,
		MetadataJSON: marshalMetadata(md),
		Now:          s.now(),
	})
	if err != nil {
		return nil, s.storeErr(err)
	}

	res := &AuthorizeResult{
		Allowed:          charge.Granted,
		CreditsCharged:   charge.CreditsCharged,
		RemainingBalance: charge.RemainingBalance,
	}
	switch {
	case charge.Granted:
		res.Message = fmt.Sprintf("Charged %d credits", charge.CreditsCharged)
		if s.metrics != nil {
			s.metrics.RecordAuthorized(charge.CreditsCharged)
		}
	case charge.Denial == ledger.DenialQuotaExceeded:
		res.Reason = ReasonQuotaExceeded
		res.Message = fmt.Sprintf("Daily limit of %d reached for %s", charge.CapLimit, action)
		s.recordDenied(res.Reason)
	default:
		res.Reason = ReasonInsufficientFunds
		res.Shortfall = charge.Shortfall
		res.Message = fmt.Sprintf("Insufficient credits: %d more needed", charge.Shortfall)
		s.recordDenied(res.Reason)
	}
	return res, nil
}

// GetStatus reconciles period boundaries and returns the account snapshot,
// including derived per-category usage and purchasable packages.
func (s *Service) GetStatus(ctx context.Context, userID uint) (*Status, error) {
	now := s.now()
	acct, err := s.store.Reconcile(ctx, userID, now)
	if err != nil {
		return nil, s.storeErr(err)
	}

	usage, err := s.log.UsageByAction(ctx, userID, models.DateOnly(now))
	if err != nil {
		return nil, s.storeErr(err)
	}

	cfg := plans.Get(acct.SubscriptionPlan)
	caps := make(map[string]CapStatus, len(cfg.DailyActionCaps))
	for action, limit := range cfg.DailyActionCaps {
		caps[action] = CapStatus{Used: usage[action], Limit: limit}
	}

	available := acct.CreditsBalance
	if acct.IsFreePlan() && !acct.DailyFreeCreditsClaimed {
		available += cfg.DailyFreeCredits
	}

	status := &Status{
		UserID:           acct.UserID,
		Plan:             acct.SubscriptionPlan,
		Balance:          acct.CreditsBalance,
		AvailableCredits: available,
		UsageToday:       acct.CreditsUsedToday,
		UsageThisMonth:   acct.CreditsUsedThisMonth,
		DailyFreeClaimed: acct.DailyFreeCreditsClaimed,
		Caps:             caps,
		Packages:         plans.Packages(acct.SubscriptionPlan),
	}
	if cfg.MonthlyCreditAllowance > 0 {
		next := models.DateOnly(acct.MonthlyRefillAnchor).AddDate(0, 0, 30)
		status.NextRefillDate = &next
	}
	return status, nil
}

// AddCredits adds balance from an external collaborator (payment capture,
// refund, manual adjustment). Purchase eligibility is enforced twice: here
// and inside the ledger.
func (s *Service) AddCredits(ctx context.Context, userID uint, amount int64, source string, md map[string]interface{}) (*CreditOutcome, error) {
	res, err := s.store.Credit(ctx, ledger.CreditParams{
		UserID:       userID,
		Amount:       amount,
		Source:       source,
		MetadataJSON: marshalMetadata(md),
		Now:          s.now(),
	})
	if errors.Is(err, ledger.ErrPurchaseNotEligible) {
		return &CreditOutcome{Reason: ReasonPurchaseNotEligible}, nil
	}
	if err != nil {
		return nil, s.storeErr(err)
	}
	return &CreditOutcome{Success: true, NewBalance: res.NewBalance}, nil
}

// PurchasePackage credits a fixed credit package, bonus included.
func (s *Service) PurchasePackage(ctx context.Context, userID uint, packageID string) (*CreditOutcome, error) {
	pkg, ok := plans.FindPackage(packageID)
	if !ok {
		return nil, ErrPackageNotFound
	}
	return s.AddCredits(ctx, userID, pkg.TotalCredits(), models.TxTypePurchase, map[string]interface{}{
		"package_id":  pkg.ID,
		"price_cents": pkg.PriceCents,
	})
}

// ChangePlan is invoked by the subscription collaborator once a tier change
// has been confirmed externally.
func (s *Service) ChangePlan(ctx context.Context, userID uint, plan string) (*models.Account, error) {
	acct, err := s.store.ChangePlan(ctx, userID, plan, s.now())
	if err != nil {
		return nil, s.storeErr(err)
	}
	return acct, nil
}

// ListTransactions pages through the user's audit trail, newest first.
func (s *Service) ListTransactions(ctx context.Context, userID uint, f txlog.Filter) ([]models.CreditTransaction, int64, error) {
	txs, total, err := s.log.List(ctx, userID, f)
	if err != nil {
		return nil, 0, s.storeErr(err)
	}
	return txs, total, nil
}

// storeErr passes expected sentinel errors through and flags everything else
// as a persistence failure worth alerting on.
func (s *Service) storeErr(err error) error {
	switch {
	case errors.Is(err, ledger.ErrAccountNotFound),
		errors.Is(err, ledger.ErrAccountExists),
		errors.Is(err, ledger.ErrInvalidCredit):
		return err
	default:
		if s.metrics != nil {
			s.metrics.RecordAlert()
		}
		return fmt.Errorf("credit store unavailable: %w", err)
	}
}

func (s *Service) recordDenied(reason string) {
	if s.metrics != nil {
		s.metrics.RecordDenied(reason)
	}
}

func marshalMetadata(md map[string]interface{}) string {
	if len(md) == 0 {
		return ""
	}
	b, err := json.Marshal(md)
	if err != nil {
		return ""
	}
	return string(b)
}
