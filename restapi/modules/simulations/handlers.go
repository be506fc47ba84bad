// Package simulations implements the REST API handlers for attack
// simulations, their reports and the severity analytics.
package simulations

import (
	"context"
	"encoding/json"

	"github.com/cognitoforge/redteam-backend/model"
	"github.com/cognitoforge/redteam-backend/restapi/modules/httperr"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Service is the orchestrator surface used by the handlers.
type Service interface {
	Simulate(ctx context.Context, repoID string, force bool) (json.RawMessage, bool, error)
	LatestReport(ctx context.Context, repoID string) (*model.SimulationReport, error)
	Report(ctx context.Context, repoID, runID string) (*model.SimulationReport, error)
	ListRuns(repoID string) ([]model.SimulationSummary, error)
	Run(repoID, runID string) (model.SimulationRun, error)
	AllRuns() ([]model.SimulationRun, error)
	SeverityDistribution(ctx context.Context) (model.SeverityDistribution, error)
}

// CacheHeader reports whether /simulate_attack served a cached response.
const CacheHeader = "X-Cache"

// SimulateAttack handles POST /simulate_attack
func SimulateAttack(svc Service, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req model.SimulateAttackRequest
		if err := c.BodyParser(&req); err != nil {
			return httperr.BadRequest(c, "Invalid request body: "+err.Error())
		}
		if err := model.Validate(req); err != nil {
			return httperr.Respond(c, err)
		}

		payload, cached, err := svc.Simulate(c.UserContext(), req.RepoID, req.Force)
		if err != nil {
			logger.Error("/simulate_attack failed", zap.String("repo_id", req.RepoID), zap.Error(err))
			return httperr.Respond(c, err)
		}

		if cached {
			c.Set(CacheHeader, "HIT")
		} else {
			c.Set(CacheHeader, "MISS")
		}
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.Send(payload)
	}
}

// ListForRepo handles GET /simulations/:repo_id
func ListForRepo(svc Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		summaries, err := svc.ListRuns(c.Params("repo_id"))
		if err != nil {
			return httperr.Respond(c, err)
		}
		return c.JSON(summaries)
	}
}

// GetRun handles GET /simulations/:repo_id/:run_id
func GetRun(svc Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		run, err := svc.Run(c.Params("repo_id"), c.Params("run_id"))
		if err != nil {
			return httperr.Respond(c, err)
		}
		return c.JSON(run)
	}
}

// LatestReport handles GET /reports/:repo_id/latest
func LatestReport(svc Service, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		repoID := c.Params("repo_id")
		report, err := svc.LatestReport(c.UserContext(), repoID)
		if err != nil {
			logger.Info("Latest report unavailable", zap.String("repo_id", repoID), zap.Error(err))
			return httperr.Respond(c, err)
		}
		return c.JSON(report)
	}
}

// GetReport handles GET /reports/:repo_id/:run_id
func GetReport(svc Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		report, err := svc.Report(c.UserContext(), c.Params("repo_id"), c.Params("run_id"))
		if err != nil {
			return httperr.Respond(c, err)
		}
		return c.JSON(report)
	}
}

// ListAll handles GET /api/simulations/list
func ListAll(svc Service, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		runs, err := svc.AllRuns()
		if err != nil {
			logger.Error("Failed to list simulations", zap.Error(err))
			return httperr.Respond(c, err)
		}
		return c.JSON(fiber.Map{
			"success":     true,
			"total":       len(runs),
			"simulations": runs,
		})
	}
}

// AnalyticsSummary handles GET /analytics/summary
func AnalyticsSummary(svc Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		dist, err := svc.SeverityDistribution(c.UserContext())
		if err != nil {
			return httperr.Respond(c, err)
		}
		return c.JSON(fiber.Map{
			"severity_distribution": dist,
			"total_runs":            dist.Total(),
		})
	}
}
