package main

import (
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/toolhub/internal/pkg/bootstrap"
	"github.com/ManuelReschke/toolhub/internal/pkg/cache"
	"github.com/ManuelReschke/toolhub/internal/pkg/database"
	"github.com/ManuelReschke/toolhub/internal/pkg/env"
	"github.com/ManuelReschke/toolhub/internal/pkg/middleware"
	"github.com/ManuelReschke/toolhub/internal/pkg/router"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	notifier := bootstrap.Notifier()
	svc, err := bootstrap.Service(database.GetDB(), notifier, cache.AttemptStore("webhook"))
	if err != nil {
		panic(err)
	}

	// init fiber app
	app := fiber.New(fiber.Config{
		BodyLimit: 1 << 20, // Stripe events stay far below 1 MiB
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// ROUTER
	router.InstallRouter(app, router.Dependencies{
		Webhooks: svc,
		Operator: middleware.OperatorAuthConfigFromEnv(cache.AttemptStore("operator")),
		DB:       database.GetDB(),
		Cache:    cache.GetClient(),
	})

	return app
}
