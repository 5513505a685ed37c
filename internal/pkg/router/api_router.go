package router

import (
	"net"
	"strconv"
	"time"

	apiv1 "github.com/ManuelReschke/CreditFox/internal/api/v1"
	"github.com/ManuelReschke/CreditFox/internal/pkg/cache"
	"github.com/ManuelReschke/CreditFox/internal/pkg/constants"
	"github.com/ManuelReschke/CreditFox/internal/pkg/database"
	"github.com/ManuelReschke/CreditFox/internal/pkg/env"
	"github.com/ManuelReschke/CreditFox/internal/pkg/ledger"
	"github.com/ManuelReschke/CreditFox/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/CreditFox/internal/pkg/quota"
	"github.com/ManuelReschke/CreditFox/internal/pkg/txlog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group(constants.APIRoute, limiter.New(limiter.Config{
		Max:        120,
		Expiration: 1 * time.Minute,
		Storage:    newLimiterStorage(),
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	db := database.GetDB()
	svc := quota.New(
		ledger.NewGormStore(db),
		txlog.NewGormLog(db),
		quota.WithMetrics(counter.Recorder{}),
	)

	// API v1 routes
	v1 := api.Group("/v1")
	apiServer := apiv1.NewAPIServer(svc)
	apiv1.RegisterHandlers(v1, apiServer)
}

// newLimiterStorage backs the rate limiter with Redis database 1 so counters
// survive restarts and are shared across instances. Cache traffic stays on
// database 0.
func newLimiterStorage() *redis.Storage {
	cacheClient := cache.GetClient()
	host := "localhost"
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")
	if cacheClient != nil {
		addr := cacheClient.Options().Addr
		if h, p, err := net.SplitHostPort(addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		if p := cacheClient.Options().Password; p != "" {
			password = p
		}
	}

	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: 1,
		Reset:    false,
	})
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
