package apiv1

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CreditFox/internal/pkg/middleware"
)

// RegisterHandlers attaches all v1 routes to the given router group.
// Everything except ping requires an API key; admin routes additionally
// require the admin role.
func RegisterHandlers(r fiber.Router, s *APIServer) {
	r.Get("/ping", s.GetPing)

	authed := r.Group("", middleware.APIKeyAuthMiddleware(), middleware.RequireAPIAuth)
	authed.Post("/credits/authorize", s.PostAuthorize)
	authed.Get("/credits/status", s.GetStatus)
	authed.Post("/credits/estimate", s.PostEstimate)
	authed.Post("/credits/purchase", s.PostPurchase)
	authed.Get("/credits/transactions", s.GetTransactions)

	admin := authed.Group("/admin", middleware.RequireAdmin)
	admin.Post("/users", s.PostAdminCreateUser)
	admin.Post("/users/:id/credits", s.PostAdminAddCredits)
	admin.Put("/users/:id/plan", s.PutAdminChangePlan)
}
