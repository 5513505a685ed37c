package quota

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/CreditFox/app/models"
	"github.com/ManuelReschke/CreditFox/internal/pkg/ledger"
	"github.com/ManuelReschke/CreditFox/internal/pkg/pricing"
	"github.com/ManuelReschke/CreditFox/internal/pkg/txlog"
)

type recordedMetrics struct {
	authorized int
	denied     map[string]int
	alerts     int
}

func (r *recordedMetrics) RecordAuthorized(int64) { r.authorized++ }
func (r *recordedMetrics) RecordDenied(reason string) {
	if r.denied == nil {
		r.denied = make(map[string]int)
	}
	r.denied[reason]++
}
func (r *recordedMetrics) RecordAlert() { r.alerts++ }

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func newTestService(t *testing.T, start time.Time) (*Service, *ledger.MemoryStore, *clock, *recordedMetrics) {
	t.Helper()
	store := ledger.NewMemoryStore()
	clk := &clock{now: start}
	metrics := &recordedMetrics{}
	svc := New(store, store, WithClock(clk.Now), WithMetrics(metrics))
	return svc, store, clk, metrics
}

func openAccount(t *testing.T, svc *Service, store *ledger.MemoryStore, userID uint, plan string, balance int64) {
	t.Helper()
	acct := models.NewAccount(userID, svc.now())
	acct.SubscriptionPlan = plan
	acct.CreditsBalance = balance
	require.NoError(t, store.CreateAccount(context.Background(), acct))
}

func TestOpenAccount(t *testing.T) {
	start := time.Date(2026, 5, 10, 14, 0, 0, 0, time.UTC)
	svc, _, _, _ := newTestService(t, start)

	acct, err := svc.OpenAccount(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, models.PlanFree, acct.SubscriptionPlan)
	assert.Zero(t, acct.CreditsBalance)
	assert.False(t, acct.DailyFreeCreditsClaimed)

	_, err = svc.OpenAccount(context.Background(), 9)
	assert.ErrorIs(t, err, ledger.ErrAccountExists)
}

func TestAuthorizeAndChargeHappyPath(t *testing.T) {
	start := time.Date(2026, 5, 10, 14, 0, 0, 0, time.UTC)
	svc, store, _, metrics := newTestService(t, start)
	openAccount(t, svc, store, 1, models.PlanElite, 100)

	res, err := svc.AuthorizeAndCharge(context.Background(), 1, models.ActionDocumentAnalysis, pricing.Metadata{
		"file_size_mb": 12.0,
	})
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, int64(16), res.CreditsCharged)
	assert.Equal(t, int64(84), res.RemainingBalance)
	assert.Equal(t, 1, metrics.authorized)

	// The charge is in the audit trail with its metadata.
	txs, total, err := svc.ListTransactions(context.Background(), 1, txlog.Filter{Type: models.TxTypeUsage})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, txs, 1)
	assert.Equal(t, int64(-16), txs[0].Amount)
	assert.Equal(t, models.ActionDocumentAnalysis, txs[0].Action)
	assert.Contains(t, txs[0].MetadataJSON, "file_size_mb")
}

func TestAuthorizeDenialLeavesNoState(t *testing.T) {
	start := time.Date(2026, 5, 10, 14, 0, 0, 0, time.UTC)
	svc, store, _, metrics := newTestService(t, start)
	openAccount(t, svc, store, 1, models.PlanElite, 50)

	res, err := svc.AuthorizeAndCharge(context.Background(), 1, models.ActionBookGeneration, nil)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, ReasonInsufficientFunds, res.Reason)
	assert.Equal(t, int64(70), res.Shortfall)
	assert.Equal(t, "Insufficient credits: 70 more needed", res.Message)
	assert.Equal(t, 1, metrics.denied[ReasonInsufficientFunds])

	acct, err := store.Fetch(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(50), acct.CreditsBalance)
	assert.Zero(t, acct.CreditsUsedToday)

	_, total, err := svc.ListTransactions(context.Background(), 1, txlog.Filter{})
	require.NoError(t, err)
	assert.Zero(t, total, "a denied charge must not write to the audit trail")
}

func TestFeatureGates(t *testing.T) {
	start := time.Date(2026, 5, 10, 14, 0, 0, 0, time.UTC)
	svc, store, _, _ := newTestService(t, start)
	openAccount(t, svc, store, 1, models.PlanFree, 500)

	tests := []struct {
		name   string
		action string
	}{
		{"voice blocked on free", models.ActionVoiceTranscription},
		{"books blocked on free", models.ActionBookGeneration},
		{"unknown action", "time_travel"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := svc.AuthorizeAndCharge(context.Background(), 1, tt.action, nil)
			require.NoError(t, err)
			assert.False(t, res.Allowed)
			assert.Equal(t, ReasonFeatureNotEntitled, res.Reason)
			assert.Zero(t, res.CreditsCharged)
		})
	}

	// Gate denials are cheaper than cap denials: nothing was priced or locked.
	acct, _ := store.Fetch(context.Background(), 1)
	assert.Equal(t, int64(500), acct.CreditsBalance)
}

func TestEstimateCostIsPure(t *testing.T) {
	start := time.Date(2026, 5, 10, 14, 0, 0, 0, time.UTC)
	svc, store, _, _ := newTestService(t, start)
	openAccount(t, svc, store, 1, models.PlanFree, 3)

	md := pricing.Metadata{"comprehensive": true}
	for i := 0; i < 5; i++ {
		assert.Equal(t, int64(30), svc.EstimateCost(models.ActionHealthReport, md))
	}

	// Estimating never touched the account.
	acct, _ := store.Fetch(context.Background(), 1)
	assert.Equal(t, int64(3), acct.CreditsBalance)
	sum, _ := store.SumForUser(context.Background(), 1)
	assert.Zero(t, sum)
}

func TestGetStatusFreePlan(t *testing.T) {
	start := time.Date(2026, 5, 10, 14, 0, 0, 0, time.UTC)
	svc, store, _, _ := newTestService(t, start)
	openAccount(t, svc, store, 1, models.PlanFree, 0)

	status, err := svc.GetStatus(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.PlanFree, status.Plan)
	assert.Zero(t, status.Balance)
	assert.Equal(t, int64(10), status.AvailableCredits, "unclaimed daily grant counts as available")
	assert.False(t, status.DailyFreeClaimed)
	assert.Nil(t, status.NextRefillDate)
	assert.Empty(t, status.Packages, "free accounts cannot buy credits")

	require.Contains(t, status.Caps, models.ActionChatMessage)
	assert.Equal(t, int64(50), status.Caps[models.ActionChatMessage].Limit)
	assert.Zero(t, status.Caps[models.ActionChatMessage].Used)

	// A chat message claims the grant; status reflects the derived usage.
	res, err := svc.AuthorizeAndCharge(context.Background(), 1, models.ActionChatMessage, nil)
	require.NoError(t, err)
	require.True(t, res.Allowed)

	status, err = svc.GetStatus(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(9), status.Balance)
	assert.Equal(t, int64(9), status.AvailableCredits)
	assert.True(t, status.DailyFreeClaimed)
	assert.Equal(t, int64(1), status.Caps[models.ActionChatMessage].Used)
	assert.Equal(t, int64(1), status.UsageToday)
}

func TestGetStatusElitePlanRefillsOnce(t *testing.T) {
	start := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	svc, store, clk, _ := newTestService(t, start)
	openAccount(t, svc, store, 1, models.PlanElite, 40)

	// Poll repeatedly across the refill boundary. The allowance lands once.
	clk.now = time.Date(2026, 2, 2, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		status, err := svc.GetStatus(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, int64(3040), status.Balance)
	}

	status, err := svc.GetStatus(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, status.NextRefillDate)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), *status.NextRefillDate)
	assert.NotEmpty(t, status.Packages, "elite accounts see purchasable packages")
}

func TestPurchasePackage(t *testing.T) {
	start := time.Date(2026, 5, 10, 14, 0, 0, 0, time.UTC)
	svc, store, _, _ := newTestService(t, start)
	openAccount(t, svc, store, 1, models.PlanElite, 0)

	out, err := svc.PurchasePackage(context.Background(), 1, "value")
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, int64(1100), out.NewBalance, "value package is 1000 plus a 100 bonus")

	txs, _, err := svc.ListTransactions(context.Background(), 1, txlog.Filter{Type: models.TxTypePurchase})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, int64(1100), txs[0].Amount)
	assert.Contains(t, txs[0].MetadataJSON, `"package_id":"value"`)

	_, err = svc.PurchasePackage(context.Background(), 1, "mystery_box")
	assert.ErrorIs(t, err, ErrPackageNotFound)
}

func TestPurchaseRejectedOnFreePlan(t *testing.T) {
	start := time.Date(2026, 5, 10, 14, 0, 0, 0, time.UTC)
	svc, store, _, _ := newTestService(t, start)
	openAccount(t, svc, store, 1, models.PlanFree, 0)

	out, err := svc.PurchasePackage(context.Background(), 1, "starter")
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, ReasonPurchaseNotEligible, out.Reason)

	sum, _ := store.SumForUser(context.Background(), 1)
	assert.Zero(t, sum)
}

func TestAddCreditsRefund(t *testing.T) {
	start := time.Date(2026, 5, 10, 14, 0, 0, 0, time.UTC)
	svc, store, _, _ := newTestService(t, start)
	openAccount(t, svc, store, 1, models.PlanFree, 5)

	// Refunds are allowed on any plan; only purchases are plan-gated.
	out, err := svc.AddCredits(context.Background(), 1, 15, models.TxTypeRefund, map[string]interface{}{
		"ticket": "SUP-1042",
	})
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, int64(20), out.NewBalance)

	_, err = svc.AddCredits(context.Background(), 1, -5, models.TxTypeRefund, nil)
	assert.ErrorIs(t, err, ledger.ErrInvalidCredit)

	acct, _ := store.Fetch(context.Background(), 1)
	assert.Equal(t, int64(20), acct.CreditsBalance)
}

func TestListTransactionsPagination(t *testing.T) {
	start := time.Date(2026, 5, 10, 14, 0, 0, 0, time.UTC)
	svc, store, clk, _ := newTestService(t, start)
	openAccount(t, svc, store, 1, models.PlanElite, 1000)

	for i := 0; i < 7; i++ {
		clk.now = clk.now.Add(time.Minute)
		res, err := svc.AuthorizeAndCharge(context.Background(), 1, models.ActionChatMessage, nil)
		require.NoError(t, err)
		require.True(t, res.Allowed)
	}

	page1, total, err := svc.ListTransactions(context.Background(), 1, txlog.Filter{Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(7), total)
	require.Len(t, page1, 3)

	page2, _, err := svc.ListTransactions(context.Background(), 1, txlog.Filter{Limit: 3, Offset: 3})
	require.NoError(t, err)
	require.Len(t, page2, 3)

	// Newest first, no overlap between pages.
	assert.True(t, page1[0].CreatedAt.After(page1[2].CreatedAt))
	assert.True(t, page1[2].CreatedAt.After(page2[0].CreatedAt))
	for _, a := range page1 {
		for _, b := range page2 {
			assert.NotEqual(t, a.Reference, b.Reference)
		}
	}
}

func TestChangePlanThroughGate(t *testing.T) {
	start := time.Date(2026, 5, 10, 14, 0, 0, 0, time.UTC)
	svc, store, clk, _ := newTestService(t, start)
	openAccount(t, svc, store, 1, models.PlanFree, 8)

	acct, err := svc.ChangePlan(context.Background(), 1, models.PlanElite)
	require.NoError(t, err)
	assert.Equal(t, models.PlanElite, acct.SubscriptionPlan)
	assert.Equal(t, int64(8), acct.CreditsBalance, "balance carries across a plan change")

	// Formerly blocked features open up immediately.
	clk.now = clk.now.Add(time.Minute)
	_, err = svc.AddCredits(context.Background(), 1, 100, models.TxTypePurchase, nil)
	require.NoError(t, err)
	res, err := svc.AuthorizeAndCharge(context.Background(), 1, models.ActionVoiceTranscription, nil)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestMissingAccount(t *testing.T) {
	start := time.Date(2026, 5, 10, 14, 0, 0, 0, time.UTC)
	svc, _, _, metrics := newTestService(t, start)

	_, err := svc.AuthorizeAndCharge(context.Background(), 404, models.ActionChatMessage, nil)
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
	_, err = svc.GetStatus(context.Background(), 404)
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)

	// Sentinel errors are expected conditions, not alerts.
	assert.Zero(t, metrics.alerts)
}
