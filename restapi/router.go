// Package restapi provides the main router and initialization for REST API endpoints.
package restapi

import (
	"github.com/cognitoforge/redteam-backend/restapi/modules/generation"
	"github.com/cognitoforge/redteam-backend/restapi/modules/repos"
	"github.com/cognitoforge/redteam-backend/restapi/modules/simulations"
	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"
	"go.uber.org/zap"
)

// Services bundles the backends the routes dispatch to.
type Services struct {
	Ingester     repos.Ingester
	Dependencies repos.DependencySource
	Simulations  simulations.Service
	Generation   generation.Querier
}

// SetupRoutes configures all REST API routes and the GraphQL endpoint.
// CORS, logging and recovery are handled globally in internal/api/fiber.go.
func SetupRoutes(app *fiber.App, svc Services, schema graphql.Schema, logger *zap.Logger) {
	// Repository ingestion
	app.Post("/upload_repo", repos.UploadRepo(svc.Ingester, logger))
	app.Get("/fetch_report", repos.FetchReport(svc.Dependencies, logger))

	// Simulations
	app.Post("/simulate_attack", simulations.SimulateAttack(svc.Simulations, logger))
	app.Get("/simulations/:repo_id", simulations.ListForRepo(svc.Simulations))
	app.Get("/simulations/:repo_id/:run_id", simulations.GetRun(svc.Simulations))

	// Reports
	app.Get("/reports/:repo_id/latest", simulations.LatestReport(svc.Simulations, logger))
	app.Get("/reports/:repo_id/:run_id", simulations.GetReport(svc.Simulations))
	app.Get("/analytics/summary", simulations.AnalyticsSummary(svc.Simulations))

	app.Post("/gemini/query", generation.Query(svc.Generation, logger))

	api := app.Group("/api")
	api.Get("/simulations/list", simulations.ListAll(svc.Simulations, logger))

	// GraphQL Route
	api.Post("/v1/graphql", GraphQLHandler(schema))

	logger.Info("API routes initialized successfully")
}
