package ledger

import (
	"testing"
	"time"

	"github.com/ManuelReschke/CreditFox/app/models"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNeedsDailyReset(t *testing.T) {
	acct := &models.Account{LastResetDate: date(2026, 3, 10)}

	if needsDailyReset(acct, date(2026, 3, 10).Add(23*time.Hour)) {
		t.Fatal("same day must not need a reset")
	}
	if !needsDailyReset(acct, date(2026, 3, 11)) {
		t.Fatal("next day must need a reset")
	}
	if !needsDailyReset(acct, date(2026, 4, 1)) {
		t.Fatal("later month must need a reset")
	}
}

func TestRefillDue(t *testing.T) {
	tests := []struct {
		name       string
		plan       string
		anchor     time.Time
		now        time.Time
		wantDue    bool
		wantAnchor time.Time
	}{
		{
			name:   "free plan never refills",
			plan:   models.PlanFree,
			anchor: date(2026, 1, 1),
			now:    date(2026, 6, 1),
		},
		{
			name:   "elite before boundary",
			plan:   models.PlanElite,
			anchor: date(2026, 3, 1),
			now:    date(2026, 3, 30),
		},
		{
			name:       "elite at boundary",
			plan:       models.PlanElite,
			anchor:     date(2026, 3, 1),
			now:        date(2026, 3, 31),
			wantDue:    true,
			wantAnchor: date(2026, 3, 31),
		},
		{
			name:       "elite catches up over several missed periods in one step",
			plan:       models.PlanElite,
			anchor:     date(2026, 1, 1),
			now:        date(2026, 4, 2), // 91 days, three periods
			wantDue:    true,
			wantAnchor: date(2026, 4, 1),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acct := &models.Account{SubscriptionPlan: tt.plan, MonthlyRefillAnchor: tt.anchor}
			next, allowance, due := refillDue(acct, tt.now)
			if due != tt.wantDue {
				t.Fatalf("due = %v, want %v", due, tt.wantDue)
			}
			if !due {
				return
			}
			if allowance != 3000 {
				t.Fatalf("allowance = %d, want 3000", allowance)
			}
			if !next.Equal(tt.wantAnchor) {
				t.Fatalf("next anchor = %s, want %s", next, tt.wantAnchor)
			}
		})
	}
}

func TestUnclaimedGrant(t *testing.T) {
	free := &models.Account{SubscriptionPlan: models.PlanFree}
	if g := unclaimedGrant(free); g != 10 {
		t.Fatalf("free unclaimed grant = %d, want 10", g)
	}
	free.DailyFreeCreditsClaimed = true
	if g := unclaimedGrant(free); g != 0 {
		t.Fatalf("claimed grant = %d, want 0", g)
	}
	elite := &models.Account{SubscriptionPlan: models.PlanElite}
	if g := unclaimedGrant(elite); g != 0 {
		t.Fatalf("elite grant = %d, want 0", g)
	}
}
