package apiv1

import (
	"github.com/ManuelReschke/CreditFox/app/models"
	"github.com/ManuelReschke/CreditFox/internal/pkg/quota"
)

// Pong is the response of the ping endpoint
type Pong struct {
	Ping string `json:"ping"`
}

// AuthorizeRequest asks the gate to price and charge one action.
type AuthorizeRequest struct {
	Action   string                 `json:"action" validate:"required"`
	Metadata map[string]interface{} `json:"metadata"`
}

// EstimateRequest prices an action without charging it.
type EstimateRequest struct {
	Action   string                 `json:"action" validate:"required"`
	Metadata map[string]interface{} `json:"metadata"`
}

// EstimateResponse carries the pre-commit cost quote.
type EstimateResponse struct {
	Action        string `json:"action"`
	EstimatedCost int64  `json:"estimated_cost"`
}

// PurchaseRequest buys a fixed credit package for the authenticated user.
type PurchaseRequest struct {
	PackageID string `json:"package_id" validate:"required"`
}

// AddCreditsRequest credits a user's balance from an external collaborator
// (payment capture, refund, support adjustment). Admin only.
type AddCreditsRequest struct {
	UserID   uint                   `json:"user_id" validate:"required"`
	Amount   int64                  `json:"amount" validate:"required,gt=0"`
	Source   string                 `json:"source" validate:"required"`
	Metadata map[string]interface{} `json:"metadata"`
}

// TransactionsResponse is one page of a user's audit trail.
type TransactionsResponse struct {
	Transactions []models.CreditTransaction `json:"transactions"`
	Total        int64                      `json:"total"`
	Limit        int                        `json:"limit"`
	Offset       int                        `json:"offset"`
}

// CreateUserRequest provisions a new user with a credit account and API key.
type CreateUserRequest struct {
	Name     string `json:"name" validate:"required,min=3,max=150"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Plan     string `json:"plan"`
}

// CreateUserResponse returns the provisioned user; the raw API key is shown
// exactly once.
type CreateUserResponse struct {
	UserID       uint          `json:"user_id"`
	Name         string        `json:"name"`
	Email        string        `json:"email"`
	APIKey       string        `json:"api_key"`
	APIKeyPrefix string        `json:"api_key_prefix"`
	Status       *quota.Status `json:"credit_status,omitempty"`
}

// ChangePlanRequest switches a user's subscription tier.
type ChangePlanRequest struct {
	Plan string `json:"plan" validate:"required,oneof=free elite"`
}
