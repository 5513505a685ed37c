package repository

import (
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/CreditFox/app/models"
	"gorm.io/gorm"
)

// userRepository implements the UserRepository interface
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository instance
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// Create creates a new user in the database
func (r *userRepository) Create(user *models.User) error {
	return r.db.Create(user).Error
}

// GetByID retrieves a user by their ID
func (r *userRepository) GetByID(id uint) (*models.User, error) {
	var user models.User
	err := r.db.First(&user, id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByEmail retrieves a user by their email address
func (r *userRepository) GetByEmail(email string) (*models.User, error) {
	var user models.User
	err := r.db.Where("email = ?", email).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByAPIKeyHash resolves an active API key hash to its user.
func (r *userRepository) GetByAPIKeyHash(hash string) (*models.User, error) {
	trimmed := strings.TrimSpace(hash)
	if trimmed == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var user models.User
	err := r.db.Where("api_key_hash = ? AND api_key_hash <> '' AND api_key_revoked_at IS NULL", trimmed).
		First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// TouchAPIKeyUsage refreshes a user's api_key_last_used_at timestamp.
func (r *userRepository) TouchAPIKeyUsage(userID uint, at time.Time) error {
	return r.db.Model(&models.User{}).
		Where("id = ?", userID).
		Update("api_key_last_used_at", at).Error
}

// Update updates an existing user in the database
func (r *userRepository) Update(user *models.User) error {
	return r.db.Save(user).Error
}

// Delete soft deletes a user by their ID
func (r *userRepository) Delete(id uint) error {
	return r.db.Delete(&models.User{}, id).Error
}

// List retrieves a paginated list of users
func (r *userRepository) List(offset, limit int) ([]models.User, error) {
	var users []models.User
	err := r.db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&users).Error
	return users, err
}

// Count returns the total number of users
func (r *userRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.User{}).Count(&count).Error
	return count, err
}

// Search searches for users by name or email
func (r *userRepository) Search(query string) ([]models.User, error) {
	var users []models.User
	searchPattern := "%" + strings.TrimSpace(query) + "%"
	err := r.db.Where("name LIKE ? OR email LIKE ?", searchPattern, searchPattern).Find(&users).Error
	return users, err
}

// GetWithCredits retrieves users joined with their credit account state
func (r *userRepository) GetWithCredits(offset, limit int) ([]UserWithCredits, error) {
	var users []models.User
	err := r.db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&users).Error
	if err != nil {
		return nil, err
	}

	var usersWithCredits []UserWithCredits
	for _, user := range users {
		entry := UserWithCredits{User: user}

		var acct models.Account
		if err := r.db.Where("user_id = ?", user.ID).First(&acct).Error; err == nil {
			entry.Plan = acct.SubscriptionPlan
			entry.CreditsBalance = acct.CreditsBalance
		} else if err != gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("failed to load account for user %d: %w", user.ID, err)
		}

		if err := r.db.Model(&models.CreditTransaction{}).
			Where("user_id = ?", user.ID).
			Count(&entry.TransactionCount).Error; err != nil {
			return nil, fmt.Errorf("failed to count transactions for user %d: %w", user.ID, err)
		}

		usersWithCredits = append(usersWithCredits, entry)
	}

	return usersWithCredits, nil
}

// statsRepository implements the StatsRepository interface
type statsRepository struct {
	db *gorm.DB
}

// NewStatsRepository creates a new stats repository instance
func NewStatsRepository(db *gorm.DB) StatsRepository {
	return &statsRepository{db: db}
}

// GetDailyStats returns the aggregated operational counters for a date range
func (r *statsRepository) GetDailyStats(startDate, endDate time.Time) ([]models.DailyStats, error) {
	var stats []models.DailyStats
	err := r.db.Where("stat_date BETWEEN ? AND ?", models.DateOnly(startDate), models.DateOnly(endDate)).
		Order("stat_date").
		Find(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get daily stats: %w", err)
	}
	return stats, nil
}
