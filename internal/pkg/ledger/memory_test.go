package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ManuelReschke/CreditFox/app/models"
	"github.com/ManuelReschke/CreditFox/internal/pkg/txlog"
)

func seedAccount(t *testing.T, s *MemoryStore, userID uint, plan string, balance int64, now time.Time) {
	t.Helper()
	acct := models.NewAccount(userID, now)
	acct.SubscriptionPlan = plan
	acct.CreditsBalance = balance
	if err := s.CreateAccount(context.Background(), acct); err != nil {
		t.Fatalf("seed account: %v", err)
	}
}

func TestChargeConcurrentOverBudget(t *testing.T) {
	// With a balance of 100 and a cost of 30, exactly 3 of any number of
	// concurrent charges may succeed, regardless of interleaving.
	s := NewMemoryStore()
	now := date(2026, 5, 10)
	seedAccount(t, s, 1, models.PlanElite, 100, now)

	const callers = 20
	var wg sync.WaitGroup
	granted := make(chan bool, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.Charge(context.Background(), ChargeParams{
				UserID: 1, Action: models.ActionChatMessage, Cost: 30, Now: now,
			})
			if err != nil {
				t.Errorf("charge: %v", err)
				return
			}
			granted <- res.Granted
		}()
	}
	wg.Wait()
	close(granted)

	var wins int
	for g := range granted {
		if g {
			wins++
		}
	}
	if wins != 3 {
		t.Fatalf("granted %d charges, want exactly 3", wins)
	}

	acct, _ := s.Fetch(context.Background(), 1)
	if acct.CreditsBalance != 10 {
		t.Fatalf("balance = %d, want 10", acct.CreditsBalance)
	}
}

func TestChargeConcurrentGrantClaim(t *testing.T) {
	// Free account, zero balance, daily grant of 10, two concurrent charges
	// of 8 before the grant is claimed: together they must never draw more
	// than the 10 grant credits.
	s := NewMemoryStore()
	now := date(2026, 5, 10)
	seedAccount(t, s, 1, models.PlanFree, 0, now)

	var wg sync.WaitGroup
	granted := make(chan *ChargeResult, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.Charge(context.Background(), ChargeParams{
				UserID: 1, Action: models.ActionChatMessage, Cost: 8, Now: now,
			})
			if err != nil {
				t.Errorf("charge: %v", err)
				return
			}
			granted <- res
		}()
	}
	wg.Wait()
	close(granted)

	var wins int
	for res := range granted {
		if res.Granted {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("granted %d charges, want exactly 1", wins)
	}

	acct, _ := s.Fetch(context.Background(), 1)
	if !acct.DailyFreeCreditsClaimed {
		t.Fatal("grant not marked claimed")
	}
	if acct.CreditsBalance != 2 {
		t.Fatalf("balance = %d, want 2 (grant remainder)", acct.CreditsBalance)
	}

	// Exactly one grant transaction was written.
	txs, _, err := s.List(context.Background(), 1, txlog.Filter{Type: models.TxTypeDailyFree})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("found %d daily_free transactions, want 1", len(txs))
	}
}

func TestReconcileConcurrentMonthlyRefill(t *testing.T) {
	// Ten concurrent reconciles across the 30-day boundary must apply the
	// allowance exactly once.
	s := NewMemoryStore()
	start := date(2026, 1, 1)
	seedAccount(t, s, 1, models.PlanElite, 5, start)

	now := date(2026, 1, 31)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Reconcile(context.Background(), 1, now); err != nil {
				t.Errorf("reconcile: %v", err)
			}
		}()
	}
	wg.Wait()

	acct, _ := s.Fetch(context.Background(), 1)
	if acct.CreditsBalance != 3005 {
		t.Fatalf("balance = %d, want 3005", acct.CreditsBalance)
	}
	if !acct.MonthlyRefillAnchor.Equal(now) {
		t.Fatalf("anchor = %s, want %s", acct.MonthlyRefillAnchor, now)
	}

	txs, _, _ := s.List(context.Background(), 1, txlog.Filter{Type: models.TxTypeMonthlyAllowance})
	if len(txs) != 1 {
		t.Fatalf("found %d allowance transactions, want 1", len(txs))
	}
}

func TestDailyResetClearsCountersOnce(t *testing.T) {
	s := NewMemoryStore()
	day1 := date(2026, 5, 10)
	seedAccount(t, s, 1, models.PlanFree, 50, day1)

	res, err := s.Charge(context.Background(), ChargeParams{UserID: 1, Action: models.ActionChatMessage, Cost: 4, Now: day1})
	if err != nil || !res.Granted {
		t.Fatalf("first charge failed: %v %+v", err, res)
	}
	acct, _ := s.Fetch(context.Background(), 1)
	if acct.CreditsUsedToday != 4 || !acct.DailyFreeCreditsClaimed {
		t.Fatalf("unexpected state after charge: %+v", acct)
	}

	day2 := date(2026, 5, 11)
	acct, err = s.Reconcile(context.Background(), 1, day2)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if acct.CreditsUsedToday != 0 {
		t.Fatalf("credits_used_today = %d after rollover, want 0", acct.CreditsUsedToday)
	}
	if acct.DailyFreeCreditsClaimed {
		t.Fatal("daily grant still claimed after rollover")
	}
	if !acct.LastResetDate.Equal(day2) {
		t.Fatalf("last_reset_date = %s, want %s", acct.LastResetDate, day2)
	}
}

func TestCreditPurchaseRejectedOnFreePlan(t *testing.T) {
	s := NewMemoryStore()
	now := date(2026, 5, 10)
	seedAccount(t, s, 1, models.PlanFree, 7, now)

	_, err := s.Credit(context.Background(), CreditParams{UserID: 1, Amount: 500, Source: models.TxTypePurchase, Now: now})
	if err != ErrPurchaseNotEligible {
		t.Fatalf("err = %v, want ErrPurchaseNotEligible", err)
	}

	// No state change of any kind.
	acct, _ := s.Fetch(context.Background(), 1)
	if acct.CreditsBalance != 7 || acct.TotalCreditsPurchased != 0 {
		t.Fatalf("state changed after rejected purchase: %+v", acct)
	}
	if sum, _ := s.SumForUser(context.Background(), 1); sum != 0 {
		t.Fatalf("transaction sum = %d after rejected purchase, want 0", sum)
	}
}

func TestCreditValidation(t *testing.T) {
	s := NewMemoryStore()
	now := date(2026, 5, 10)
	seedAccount(t, s, 1, models.PlanElite, 0, now)

	if _, err := s.Credit(context.Background(), CreditParams{UserID: 1, Amount: 0, Source: models.TxTypeRefund, Now: now}); err != ErrInvalidCredit {
		t.Fatalf("zero amount: err = %v, want ErrInvalidCredit", err)
	}
	if _, err := s.Credit(context.Background(), CreditParams{UserID: 1, Amount: 10, Source: models.TxTypeUsage, Now: now}); err != ErrInvalidCredit {
		t.Fatalf("usage source: err = %v, want ErrInvalidCredit", err)
	}
	if _, err := s.Credit(context.Background(), CreditParams{UserID: 1, Amount: 10, Source: "nonsense", Now: now}); err != ErrInvalidCredit {
		t.Fatalf("unknown source: err = %v, want ErrInvalidCredit", err)
	}
}

func TestQuotaCapDerivedFromLog(t *testing.T) {
	// Free plan caps health_report at 2 per day; the third attempt is a
	// quota denial even with plenty of balance.
	s := NewMemoryStore()
	now := date(2026, 5, 10)
	seedAccount(t, s, 1, models.PlanFree, 1000, now)

	for i := 0; i < 2; i++ {
		res, err := s.Charge(context.Background(), ChargeParams{UserID: 1, Action: models.ActionHealthReport, Cost: 15, Now: now})
		if err != nil || !res.Granted {
			t.Fatalf("charge %d failed: %v %+v", i, err, res)
		}
	}

	res, err := s.Charge(context.Background(), ChargeParams{UserID: 1, Action: models.ActionHealthReport, Cost: 15, Now: now})
	if err != nil {
		t.Fatalf("charge: %v", err)
	}
	if res.Granted || res.Denial != DenialQuotaExceeded {
		t.Fatalf("expected quota denial, got %+v", res)
	}
	if res.CapLimit != 2 {
		t.Fatalf("cap limit = %d, want 2", res.CapLimit)
	}

	// The cap is per category: chat still works.
	res, err = s.Charge(context.Background(), ChargeParams{UserID: 1, Action: models.ActionChatMessage, Cost: 1, Now: now})
	if err != nil || !res.Granted {
		t.Fatalf("chat charge failed after report cap: %v %+v", err, res)
	}

	// The cap resets at the daily boundary.
	res, err = s.Charge(context.Background(), ChargeParams{UserID: 1, Action: models.ActionHealthReport, Cost: 15, Now: date(2026, 5, 11)})
	if err != nil || !res.Granted {
		t.Fatalf("report charge failed after rollover: %v %+v", err, res)
	}
}

func TestTransactionSumMatchesBalance(t *testing.T) {
	// The reconciliation invariant: for an account whose balance only ever
	// moved through the ledger, sum(transactions) == balance.
	s := NewMemoryStore()
	now := date(2026, 5, 10)
	seedAccount(t, s, 1, models.PlanElite, 0, now)

	ctx := context.Background()
	if _, err := s.Credit(ctx, CreditParams{UserID: 1, Amount: 600, Source: models.TxTypePurchase, Now: now}); err != nil {
		t.Fatalf("credit: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := s.Charge(ctx, ChargeParams{UserID: 1, Action: models.ActionChatMessage, Cost: 7, Now: now}); err != nil {
			t.Fatalf("charge: %v", err)
		}
	}
	if _, err := s.Credit(ctx, CreditParams{UserID: 1, Amount: 50, Source: models.TxTypeRefund, Now: now}); err != nil {
		t.Fatalf("refund: %v", err)
	}
	// Cross a monthly boundary too.
	if _, err := s.Reconcile(ctx, 1, date(2026, 6, 10)); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	acct, _ := s.Fetch(ctx, 1)
	sum, err := s.SumForUser(ctx, 1)
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if sum != acct.CreditsBalance {
		t.Fatalf("transaction sum %d != balance %d", sum, acct.CreditsBalance)
	}

	if drift, _ := txlog.AuditDrift(ctx, s, acct); drift != 0 {
		t.Fatalf("audit drift = %d, want 0", drift)
	}
}

func TestChangePlanReanchors(t *testing.T) {
	s := NewMemoryStore()
	start := date(2026, 1, 1)
	seedAccount(t, s, 1, models.PlanFree, 0, start)

	now := date(2026, 2, 15)
	acct, err := s.ChangePlan(context.Background(), 1, models.PlanElite, now)
	if err != nil {
		t.Fatalf("change plan: %v", err)
	}
	if acct.SubscriptionPlan != models.PlanElite {
		t.Fatalf("plan = %q, want elite", acct.SubscriptionPlan)
	}
	if !acct.MonthlyRefillAnchor.Equal(now) {
		t.Fatalf("anchor = %s, want %s", acct.MonthlyRefillAnchor, now)
	}

	// No refill until a full period after the upgrade.
	acct, _ = s.Reconcile(context.Background(), 1, date(2026, 3, 1))
	if acct.CreditsBalance != 0 {
		t.Fatalf("balance = %d before first elite period, want 0", acct.CreditsBalance)
	}
	acct, _ = s.Reconcile(context.Background(), 1, date(2026, 3, 17))
	if acct.CreditsBalance != 3000 {
		t.Fatalf("balance = %d after first elite period, want 3000", acct.CreditsBalance)
	}
}

func TestIndependentUsersDoNotInterfere(t *testing.T) {
	s := NewMemoryStore()
	now := date(2026, 5, 10)
	seedAccount(t, s, 1, models.PlanElite, 100, now)
	seedAccount(t, s, 2, models.PlanElite, 100, now)

	var wg sync.WaitGroup
	for u := uint(1); u <= 2; u++ {
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(userID uint) {
				defer wg.Done()
				_, _ = s.Charge(context.Background(), ChargeParams{UserID: userID, Action: models.ActionChatMessage, Cost: 10, Now: now})
			}(u)
		}
	}
	wg.Wait()

	for u := uint(1); u <= 2; u++ {
		acct, _ := s.Fetch(context.Background(), u)
		if acct.CreditsBalance != 0 {
			t.Fatalf("user %d balance = %d, want 0", u, acct.CreditsBalance)
		}
	}
}
