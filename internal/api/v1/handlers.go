package apiv1

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CreditFox/app/models"
	"github.com/ManuelReschke/CreditFox/app/repository"
	"github.com/ManuelReschke/CreditFox/internal/pkg/ledger"
	"github.com/ManuelReschke/CreditFox/internal/pkg/pricing"
	"github.com/ManuelReschke/CreditFox/internal/pkg/quota"
	"github.com/ManuelReschke/CreditFox/internal/pkg/txlog"
	"github.com/ManuelReschke/CreditFox/internal/pkg/usercontext"
)

// APIServer implements the ServerInterface
type APIServer struct {
	svc *quota.Service
}

// NewAPIServer creates a new API server instance
func NewAPIServer(svc *quota.Service) *APIServer {
	return &APIServer{svc: svc}
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	response := Pong{
		Ping: "pong",
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

// PostAuthorize prices the requested action and charges it atomically.
// Denials are regular responses with Allowed=false; the status code tells
// the caller which gate closed.
func (s *APIServer) PostAuthorize(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)

	var req AuthorizeRequest
	if err := c.BodyParser(&req); err != nil || req.Action == "" {
		return badRequest(c, "action is required")
	}

	res, err := s.svc.AuthorizeAndCharge(c.UserContext(), userID, req.Action, pricing.Metadata(req.Metadata))
	if err != nil {
		return s.serviceError(c, err)
	}
	if !res.Allowed {
		return c.Status(denialStatus(res.Reason)).JSON(res)
	}

	return c.Status(fiber.StatusOK).JSON(res)
}

// GetStatus returns the account snapshot for the authenticated user.
func (s *APIServer) GetStatus(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)

	status, err := s.svc.GetStatus(c.UserContext(), userID)
	if err != nil {
		return s.serviceError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(status)
}

// PostEstimate quotes the cost of an action without touching any balance.
func (s *APIServer) PostEstimate(c *fiber.Ctx) error {
	var req EstimateRequest
	if err := c.BodyParser(&req); err != nil || req.Action == "" {
		return badRequest(c, "action is required")
	}

	return c.Status(fiber.StatusOK).JSON(EstimateResponse{
		Action:        req.Action,
		EstimatedCost: s.svc.EstimateCost(req.Action, pricing.Metadata(req.Metadata)),
	})
}

// PostPurchase buys a credit package for the authenticated user.
func (s *APIServer) PostPurchase(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)

	var req PurchaseRequest
	if err := c.BodyParser(&req); err != nil || req.PackageID == "" {
		return badRequest(c, "package_id is required")
	}

	outcome, err := s.svc.PurchasePackage(c.UserContext(), userID, req.PackageID)
	if errors.Is(err, quota.ErrPackageNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "unknown credit package",
		})
	}
	if err != nil {
		return s.serviceError(c, err)
	}
	if !outcome.Success {
		return c.Status(fiber.StatusForbidden).JSON(outcome)
	}

	return c.Status(fiber.StatusOK).JSON(outcome)
}

// GetTransactions pages through the authenticated user's audit trail,
// newest first. Supports type, action, limit and offset query parameters.
func (s *APIServer) GetTransactions(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)

	f := txlog.Filter{
		Type:   c.Query("type"),
		Action: c.Query("action"),
		Limit:  c.QueryInt("limit", 50),
		Offset: c.QueryInt("offset", 0),
	}
	if f.Limit < 1 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	txs, total, err := s.svc.ListTransactions(c.UserContext(), userID, f)
	if err != nil {
		return s.serviceError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(TransactionsResponse{
		Transactions: txs,
		Total:        total,
		Limit:        f.Limit,
		Offset:       f.Offset,
	})
}

// PostAdminCreateUser provisions a user together with a credit account and a
// fresh API key. The raw key appears in this response and nowhere else.
func (s *APIServer) PostAdminCreateUser(c *fiber.Ctx) error {
	var req CreateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	user, err := models.CreateUser(req.Name, req.Email, req.Password)
	if err != nil {
		return badRequest(c, err.Error())
	}
	rawKey, err := user.IssueAPIKey()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to issue api key",
		})
	}

	userRepo := repository.GetGlobalFactory().GetUserRepository()
	if err := userRepo.Create(user); err != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "user with this email already exists",
		})
	}

	if _, err := s.svc.OpenAccount(c.UserContext(), user.ID); err != nil && !errors.Is(err, ledger.ErrAccountExists) {
		return s.serviceError(c, err)
	}
	if req.Plan != "" && req.Plan != models.PlanFree {
		if _, err := s.svc.ChangePlan(c.UserContext(), user.ID, req.Plan); err != nil {
			return s.serviceError(c, err)
		}
	}

	status, err := s.svc.GetStatus(c.UserContext(), user.ID)
	if err != nil {
		status = nil
	}

	return c.Status(fiber.StatusCreated).JSON(CreateUserResponse{
		UserID:       user.ID,
		Name:         user.Name,
		Email:        user.Email,
		APIKey:       rawKey,
		APIKeyPrefix: user.APIKeyPrefix,
		Status:       status,
	})
}

// PostAdminAddCredits credits another user's balance on behalf of an
// external collaborator (payment capture, refund, support adjustment).
func (s *APIServer) PostAdminAddCredits(c *fiber.Ctx) error {
	targetID, err := parseUserID(c)
	if err != nil {
		return badRequest(c, "invalid user id")
	}

	var req AddCreditsRequest
	if err := c.BodyParser(&req); err != nil || req.Amount <= 0 || req.Source == "" {
		return badRequest(c, "amount and source are required")
	}

	outcome, err := s.svc.AddCredits(c.UserContext(), targetID, req.Amount, req.Source, req.Metadata)
	if errors.Is(err, ledger.ErrInvalidCredit) {
		return badRequest(c, "invalid credit request")
	}
	if err != nil {
		return s.serviceError(c, err)
	}
	if !outcome.Success {
		return c.Status(fiber.StatusForbidden).JSON(outcome)
	}

	return c.Status(fiber.StatusOK).JSON(outcome)
}

// PutAdminChangePlan switches another user's subscription tier after the
// change has been confirmed by the billing collaborator.
func (s *APIServer) PutAdminChangePlan(c *fiber.Ctx) error {
	targetID, err := parseUserID(c)
	if err != nil {
		return badRequest(c, "invalid user id")
	}

	var req ChangePlanRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Plan != models.PlanFree && req.Plan != models.PlanElite {
		return badRequest(c, "unknown plan")
	}

	acct, err := s.svc.ChangePlan(c.UserContext(), targetID, req.Plan)
	if err != nil {
		return s.serviceError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"user_id":             acct.UserID,
		"plan":                acct.SubscriptionPlan,
		"credits_balance":     acct.CreditsBalance,
		"monthly_refill_date": acct.MonthlyRefillAnchor,
	})
}

// serviceError maps ledger sentinels to status codes. Anything else is a
// persistence failure and the gate fails closed.
func (s *APIServer) serviceError(c *fiber.Ctx, err error) error {
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "credit account not found",
		})
	}
	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"error": "credit store unavailable",
	})
}

func denialStatus(reason string) int {
	switch reason {
	case quota.ReasonFeatureNotEntitled:
		return fiber.StatusForbidden
	case quota.ReasonQuotaExceeded:
		return fiber.StatusTooManyRequests
	default:
		return fiber.StatusPaymentRequired
	}
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": msg,
	})
}

func parseUserID(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || id == 0 {
		return 0, errors.New("invalid user id")
	}
	return uint(id), nil
}
