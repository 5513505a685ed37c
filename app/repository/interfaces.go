package repository

import (
	"time"

	"github.com/ManuelReschke/CreditFox/app/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByAPIKeyHash(hash string) (*models.User, error)
	TouchAPIKeyUsage(userID uint, at time.Time) error
	Update(user *models.User) error
	Delete(id uint) error
	List(offset, limit int) ([]models.User, error)
	Count() (int64, error)
	Search(query string) ([]models.User, error)
	GetWithCredits(offset, limit int) ([]UserWithCredits, error)
}

// StatsRepository defines the interface for operational statistics queries
type StatsRepository interface {
	GetDailyStats(startDate, endDate time.Time) ([]models.DailyStats, error)
}

// UserWithCredits represents a user together with their credit account state
type UserWithCredits struct {
	User             models.User `json:"user"`
	Plan             string      `json:"plan"`
	CreditsBalance   int64       `json:"credits_balance"`
	TransactionCount int64       `json:"transaction_count"`
}

// Repositories struct holds all repository instances
type Repositories struct {
	User  UserRepository
	Stats StatsRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:  NewUserRepository(db),
		Stats: NewStatsRepository(db),
	}
}
