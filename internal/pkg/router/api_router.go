package router

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/ManuelReschke/toolhub/app/controllers"
)

type ApiRouter struct {
	operator fiber.Handler
	db       *gorm.DB
	cache    *redis.Client
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(limiter.Config{Max: 60, Expiration: time.Minute}))
	api.Get("/health", h.handleHealth)

	// API v1 routes
	v1 := api.Group("/v1", h.operator)
	v1.Get("/webhooks/events", controllers.HandleWebhookEvents)
	v1.Post("/webhooks/events/:eventId/retry", controllers.HandleWebhookRetry)
}

func NewApiRouter(operator fiber.Handler, db *gorm.DB, cache *redis.Client) *ApiRouter {
	return &ApiRouter{operator: operator, db: db, cache: cache}
}

// handleHealth fails only when the database is down; without the cache the
// engine still works with process-local counters.
func (h ApiRouter) handleHealth(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	status := fiber.StatusOK
	dbState := "ok"
	if err := pingDB(ctx, h.db); err != nil {
		status = fiber.StatusServiceUnavailable
		dbState = "unavailable"
	}

	cacheState := "disabled"
	if h.cache != nil {
		cacheState = "ok"
		if err := h.cache.Ping(ctx).Err(); err != nil {
			cacheState = "unavailable"
		}
	}

	return c.Status(status).JSON(fiber.Map{
		"database": dbState,
		"cache":    cacheState,
	})
}

func pingDB(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return gorm.ErrInvalidDB
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
