package router

import (
	"time"

	"github.com/ManuelReschke/CreditFox/app/repository"
	"github.com/ManuelReschke/CreditFox/internal/pkg/cache"
	"github.com/ManuelReschke/CreditFox/internal/pkg/constants"
	"github.com/ManuelReschke/CreditFox/internal/pkg/database"

	"github.com/gofiber/fiber/v2"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// Initialize the global repository factory before any API route runs.
	repository.InitializeFactory(database.GetDB())

	app.Get("/", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"service": "creditfox",
			"status":  "ok",
		})
	})

	app.Get(constants.HealthRoute, healthHandler)
}

// healthHandler reports liveness of the two backing stores. A degraded
// dependency returns 503 so load balancers stop routing here.
func healthHandler(c *fiber.Ctx) error {
	status := fiber.StatusOK
	dbState := "ok"
	cacheState := "ok"

	if db := database.GetDB(); db == nil {
		dbState = "down"
		status = fiber.StatusServiceUnavailable
	} else if sqlDB, err := db.DB(); err != nil || sqlDB.Ping() != nil {
		dbState = "down"
		status = fiber.StatusServiceUnavailable
	}

	client := cache.GetClient()
	if client == nil || client.Ping(c.UserContext()).Err() != nil {
		cacheState = "down"
		status = fiber.StatusServiceUnavailable
	}

	return c.Status(status).JSON(fiber.Map{
		"database": dbState,
		"cache":    cacheState,
		"time":     time.Now().UTC().Format(time.RFC3339),
	})
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
