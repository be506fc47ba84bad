// Package api assembles the Fiber application serving the REST and GraphQL routes.
package api

import (
	"fmt"
	"time"

	"github.com/cognitoforge/redteam-backend/graphql"
	"github.com/cognitoforge/redteam-backend/graphql/modules/simulations"
	"github.com/cognitoforge/redteam-backend/restapi"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// DefaultAllowedOrigins are the local frontend origins.
const DefaultAllowedOrigins = "http://localhost:3000,http://localhost:5173,http://127.0.0.1:3000,http://127.0.0.1:5173"

// Config holds the HTTP layer settings.
type Config struct {
	AllowedOrigins string
	AccessLog      bool
}

// NewFiberApp creates and configures a Fiber app with REST and GraphQL routes
func NewFiberApp(cfg Config, svc restapi.Services, reader simulations.Reader, zlog *zap.Logger) (*fiber.App, error) {
	schema, err := graphql.CreateSchema(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create GraphQL schema: %w", err)
	}

	app := fiber.New(fiber.Config{
		AppName:      "cognitoforge redteam API v1.0",
		BodyLimit:    50 * 1024 * 1024, // 50MB, base64 repository uploads
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 300 * time.Second,
	})

	// Middleware
	app.Use(fiberrecover.New())
	app.Use(compress.New(compress.Config{Level: compress.LevelBestSpeed}))

	origins := cfg.AllowedOrigins
	if origins == "" {
		origins = DefaultAllowedOrigins
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, X-Requested-With",
		AllowCredentials: origins != "*",
		AllowMethods:     "GET, POST, HEAD, OPTIONS",
		ExposeHeaders:    "X-Cache",
	}))

	app.Use(func(c *fiber.Ctx) error {
		c.Locals("graphql_op", "-")
		return c.Next()
	})
	if cfg.AccessLog {
		app.Use(logger.New(logger.Config{
			Format: "${time} ${status} - ${latency} ${method} ${path} ${locals:graphql_op}\n",
		}))
	}

	// Health check endpoints
	health := func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy"})
	}
	app.Get("/", health)
	app.Get("/health", health)

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	restapi.SetupRoutes(app, svc, schema, zlog)

	return app, nil
}
