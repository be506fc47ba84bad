// Package repos implements the REST API handlers for repository ingestion
// and the dependency report.
package repos

import (
	"context"
	"errors"

	"github.com/cognitoforge/redteam-backend/internal/fetcher"
	"github.com/cognitoforge/redteam-backend/model"
	"github.com/cognitoforge/redteam-backend/restapi/modules/httperr"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Ingester stores repositories from a GitHub URL or an uploaded archive.
type Ingester interface {
	FetchAndStore(ctx context.Context, repoID, repoURL string) (*model.Manifest, error)
	StoreUpload(ctx context.Context, repoID, zipBase64 string) (*model.Manifest, error)
}

// DependencySource returns the dependency findings of an ingested repository.
type DependencySource interface {
	Dependencies(repoID string) ([]model.DependencyFinding, error)
}

// UploadResponse is the body returned by POST /upload_repo.
type UploadResponse struct {
	RepoID         string `json:"repo_id"`
	Status         string `json:"status"`
	Source         string `json:"source"`
	FilesIndexed   int    `json:"files_indexed"`
	HighRiskFiles  int    `json:"high_risk_files"`
	DependencyHits int    `json:"dependency_findings"`
}

// UploadRepo handles POST /upload_repo
func UploadRepo(ingest Ingester, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req model.RepoUpload
		if err := c.BodyParser(&req); err != nil {
			return httperr.BadRequest(c, "Invalid request body: "+err.Error())
		}
		if err := model.Validate(req); err != nil {
			return httperr.Respond(c, err)
		}
		if req.RepoURL == "" && req.ZipFileBase64 == "" {
			return httperr.BadRequest(c, "Either repo_url or zip_file_base64 must be provided")
		}
		if req.RepoURL != "" {
			if _, _, err := fetcher.ParseGitHubURL(req.RepoURL); err != nil {
				return httperr.BadRequest(c, err.Error())
			}
		}

		log := logger.With(zap.String("repo_id", req.RepoID))
		log.Info("/upload_repo request received")

		source := "url"
		var manifest *model.Manifest
		var err error
		if req.RepoURL != "" {
			manifest, err = ingest.FetchAndStore(c.UserContext(), req.RepoID, req.RepoURL)
		} else {
			source = "upload"
			manifest, err = ingest.StoreUpload(c.UserContext(), req.RepoID, req.ZipFileBase64)
		}
		if err != nil {
			log.Error("/upload_repo failed", zap.String("source", source), zap.Error(err))
			if source == "upload" && errors.Is(err, fetcher.ErrFetch) {
				return httperr.BadRequest(c, err.Error())
			}
			return httperr.Respond(c, err)
		}

		log.Info("/upload_repo success", zap.Int("files_indexed", manifest.FileCount))
		return c.JSON(UploadResponse{
			RepoID:         req.RepoID,
			Status:         "ingested",
			Source:         source,
			FilesIndexed:   manifest.FileCount,
			HighRiskFiles:  manifest.HighRiskFileCount,
			DependencyHits: len(manifest.Dependencies),
		})
	}
}

// FetchReport handles GET /fetch_report?repo_id=
func FetchReport(deps DependencySource, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		repoID := c.Query("repo_id")
		if err := model.ValidateRepoID(repoID); err != nil {
			return httperr.Respond(c, err)
		}

		findings, err := deps.Dependencies(repoID)
		if err != nil {
			logger.Warn("/fetch_report failed", zap.String("repo_id", repoID), zap.Error(err))
			return httperr.Respond(c, err)
		}

		logger.Info("/fetch_report success", zap.String("repo_id", repoID), zap.Int("finding_count", len(findings)))
		return c.JSON(fiber.Map{
			"repo_id":  repoID,
			"findings": findings,
		})
	}
}
