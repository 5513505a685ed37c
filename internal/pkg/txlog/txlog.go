package txlog

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/CreditFox/app/models"
)

// DefaultPageSize bounds transaction listings when the caller does not ask
// for a specific page size.
const DefaultPageSize = 50

// MaxPageSize caps a single listing page.
const MaxPageSize = 200

// Filter narrows a transaction listing. Zero values mean "no filter".
type Filter struct {
	Type   string
	Action string
	Limit  int
	Offset int
}

// Log is the read model over the append-only transaction trail. Writes only
// ever happen inside the ledger store's transactions; everything else reads.
type Log interface {
	List(ctx context.Context, userID uint, f Filter) ([]models.CreditTransaction, int64, error)
	SumForUser(ctx context.Context, userID uint) (int64, error)
	UsageByAction(ctx context.Context, userID uint, since time.Time) (map[string]int64, error)
}

// GormLog implements Log on the credit_transactions table.
type GormLog struct {
	db *gorm.DB
}

// NewGormLog creates a transaction log reader backed by GORM.
func NewGormLog(db *gorm.DB) *GormLog {
	return &GormLog{db: db}
}

func (l *GormLog) List(ctx context.Context, userID uint, f Filter) ([]models.CreditTransaction, int64, error) {
	q := l.db.WithContext(ctx).Model(&models.CreditTransaction{}).Where("user_id = ?", userID)
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.Action != "" {
		q = q.Where("action = ?", f.Action)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	var txs []models.CreditTransaction
	err := q.Order("created_at DESC, id DESC").
		Offset(f.Offset).
		Limit(limit).
		Find(&txs).Error
	if err != nil {
		return nil, 0, err
	}
	return txs, total, nil
}

func (l *GormLog) SumForUser(ctx context.Context, userID uint) (int64, error) {
	var sum int64
	err := l.db.WithContext(ctx).Model(&models.CreditTransaction{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error
	return sum, err
}

func (l *GormLog) UsageByAction(ctx context.Context, userID uint, since time.Time) (map[string]int64, error) {
	type row struct {
		Action string
		Count  int64
	}
	var rows []row
	err := l.db.WithContext(ctx).Model(&models.CreditTransaction{}).
		Where("user_id = ? AND type = ? AND created_at >= ?", userID, models.TxTypeUsage, since).
		Select("action, COUNT(*) AS count").
		Group("action").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Action] = r.Count
	}
	return out, nil
}

// AuditDrift compares the transaction sum against the account balance. A
// non-zero result means the reconciliation invariant is violated and the
// ledger needs operator attention.
func AuditDrift(ctx context.Context, log Log, acct *models.Account) (int64, error) {
	sum, err := log.SumForUser(ctx, acct.UserID)
	if err != nil {
		return 0, err
	}
	return acct.CreditsBalance - sum, nil
}
