package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ManuelReschke/CreditFox/app/models"
	"github.com/ManuelReschke/CreditFox/internal/pkg/plans"
	"github.com/ManuelReschke/CreditFox/internal/pkg/txlog"
)

// MemoryStore implements Store and the transaction log read model entirely
// in memory. Operations for the same user serialize on a per-user mutex;
// different users never contend. It backs tests and local development where
// no MySQL instance is available.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[uint]*models.Account
	locks    map[uint]*sync.Mutex

	txMu     sync.Mutex
	txs      []models.CreditTransaction
	nextTxID uint
}

var _ Store = (*MemoryStore)(nil)
var _ txlog.Log = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory ledger.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[uint]*models.Account),
		locks:    make(map[uint]*sync.Mutex),
		nextTxID: 1,
	}
}

func (s *MemoryStore) userLock(userID uint) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

func (s *MemoryStore) account(userID uint) (*models.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[userID]
	return acct, ok
}

func (s *MemoryStore) CreateAccount(_ context.Context, acct *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[acct.UserID]; ok {
		return ErrAccountExists
	}
	cp := *acct
	if cp.ID == 0 {
		cp.ID = uint(len(s.accounts) + 1)
	}
	s.accounts[acct.UserID] = &cp
	return nil
}

func (s *MemoryStore) Fetch(_ context.Context, userID uint) (*models.Account, error) {
	acct, ok := s.account(userID)
	if !ok {
		return nil, ErrAccountNotFound
	}
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()
	cp := *acct
	return &cp, nil
}

func (s *MemoryStore) Reconcile(_ context.Context, userID uint, now time.Time) (*models.Account, error) {
	acct, ok := s.account(userID)
	if !ok {
		return nil, ErrAccountNotFound
	}
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	s.reconcileLocked(acct, now)
	cp := *acct
	return &cp, nil
}

func (s *MemoryStore) Charge(_ context.Context, p ChargeParams) (*ChargeResult, error) {
	acct, ok := s.account(p.UserID)
	if !ok {
		return nil, ErrAccountNotFound
	}
	lock := s.userLock(p.UserID)
	lock.Lock()
	defer lock.Unlock()

	s.reconcileLocked(acct, p.Now)
	today := models.DateOnly(p.Now)

	capLimit := plans.DailyCap(acct.SubscriptionPlan, p.Action)
	if capLimit != plans.Unbounded {
		used := s.countUsageSince(p.UserID, p.Action, today)
		if used >= capLimit {
			return &ChargeResult{Denial: DenialQuotaExceeded, CapLimit: capLimit, RemainingBalance: acct.CreditsBalance}, nil
		}
	}

	grant := unclaimedGrant(acct)
	available := acct.CreditsBalance + grant
	if available < p.Cost {
		return &ChargeResult{Denial: DenialInsufficientFunds, Shortfall: p.Cost - available, RemainingBalance: acct.CreditsBalance}, nil
	}

	if grant > 0 {
		acct.DailyFreeCreditsClaimed = true
		acct.CreditsBalance += grant - p.Cost
		s.appendTx(p.UserID, grant, models.TxTypeDailyFree, "", "", p.Now)
	} else {
		acct.CreditsBalance -= p.Cost
	}
	acct.CreditsUsedToday += p.Cost
	acct.CreditsUsedThisMonth += p.Cost
	s.appendTx(p.UserID, -p.Cost, models.TxTypeUsage, p.Action, p.MetadataJSON, p.Now)

	return &ChargeResult{
		Granted:          true,
		CreditsCharged:   p.Cost,
		RemainingBalance: acct.CreditsBalance,
		GrantClaimed:     grant > 0,
	}, nil
}

func (s *MemoryStore) Credit(_ context.Context, p CreditParams) (*CreditResult, error) {
	if p.Amount <= 0 || !models.IsValidTxType(p.Source) || p.Source == models.TxTypeUsage {
		return nil, ErrInvalidCredit
	}
	acct, ok := s.account(p.UserID)
	if !ok {
		return nil, ErrAccountNotFound
	}
	lock := s.userLock(p.UserID)
	lock.Lock()
	defer lock.Unlock()

	if p.Source == models.TxTypePurchase && !plans.CanPurchase(acct.SubscriptionPlan) {
		return nil, ErrPurchaseNotEligible
	}

	acct.CreditsBalance += p.Amount
	if p.Source == models.TxTypePurchase {
		acct.TotalCreditsPurchased += p.Amount
	}
	s.appendTx(p.UserID, p.Amount, p.Source, "", p.MetadataJSON, p.Now)

	return &CreditResult{NewBalance: acct.CreditsBalance}, nil
}

func (s *MemoryStore) ChangePlan(_ context.Context, userID uint, plan string, now time.Time) (*models.Account, error) {
	acct, ok := s.account(userID)
	if !ok {
		return nil, ErrAccountNotFound
	}
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	normalized := string(plans.Normalize(plan))
	if acct.SubscriptionPlan != normalized {
		today := models.DateOnly(now)
		acct.SubscriptionPlan = normalized
		acct.SubscriptionAnniversary = today
		acct.MonthlyRefillAnchor = today
		acct.CreditsUsedThisMonth = 0
	}
	cp := *acct
	return &cp, nil
}

// reconcileLocked mirrors the GORM store's lazy boundary transitions. The
// caller must hold the user lock.
func (s *MemoryStore) reconcileLocked(acct *models.Account, now time.Time) {
	if needsDailyReset(acct, now) {
		acct.CreditsUsedToday = 0
		acct.DailyFreeCreditsClaimed = false
		acct.LastResetDate = models.DateOnly(now)
	}
	if nextAnchor, allowance, due := refillDue(acct, now); due {
		acct.CreditsBalance += allowance
		acct.CreditsUsedThisMonth = 0
		acct.MonthlyRefillAnchor = nextAnchor
		s.appendTx(acct.UserID, allowance, models.TxTypeMonthlyAllowance, "", "", now)
	}
}

func (s *MemoryStore) appendTx(userID uint, amount int64, txType, action, metadata string, at time.Time) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.txs = append(s.txs, models.CreditTransaction{
		ID:           s.nextTxID,
		UserID:       userID,
		Amount:       amount,
		Type:         txType,
		Action:       action,
		MetadataJSON: metadata,
		Reference:    uuid.New().String(),
		CreatedAt:    at,
	})
	s.nextTxID++
}

func (s *MemoryStore) countUsageSince(userID uint, action string, since time.Time) int64 {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	var n int64
	for _, t := range s.txs {
		if t.UserID == userID && t.Type == models.TxTypeUsage && t.Action == action && !t.CreatedAt.Before(since) {
			n++
		}
	}
	return n
}

// List returns the user's transactions newest first, honoring the filter.
func (s *MemoryStore) List(_ context.Context, userID uint, f txlog.Filter) ([]models.CreditTransaction, int64, error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	var matched []models.CreditTransaction
	for _, t := range s.txs {
		if t.UserID != userID {
			continue
		}
		if f.Type != "" && t.Type != f.Type {
			continue
		}
		if f.Action != "" && t.Action != f.Action {
			continue
		}
		matched = append(matched, t)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := int64(len(matched))
	offset := f.Offset
	if offset > len(matched) {
		offset = len(matched)
	}
	end := len(matched)
	if f.Limit > 0 && offset+f.Limit < end {
		end = offset + f.Limit
	}
	return matched[offset:end], total, nil
}

// SumForUser returns the signed sum of all transaction amounts for a user.
func (s *MemoryStore) SumForUser(_ context.Context, userID uint) (int64, error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	var sum int64
	for _, t := range s.txs {
		if t.UserID == userID {
			sum += t.Amount
		}
	}
	return sum, nil
}

// UsageByAction returns per-action usage counts since the given time.
func (s *MemoryStore) UsageByAction(_ context.Context, userID uint, since time.Time) (map[string]int64, error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	out := make(map[string]int64)
	for _, t := range s.txs {
		if t.UserID == userID && t.Type == models.TxTypeUsage && !t.CreatedAt.Before(since) {
			out[t.Action]++
		}
	}
	return out, nil
}
