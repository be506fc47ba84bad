// Package depscan audits pinned Python and Node.js dependencies of an ingested
// repository against the OSV vulnerability database.
package depscan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"path/filepath"
	"time"

	"github.com/cognitoforge/redteam-backend/model"
	"github.com/google/osv-scanner/pkg/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultOSVURL is the OSV single-package query endpoint.
const DefaultOSVURL = "https://api.osv.dev/v1/query"

const (
	queryTimeout    = 10 * time.Second
	maxParallelism  = 4
	defaultAdvisory = "Update to patched version"
)

type osvQuery struct {
	Package osvPackage `json:"package"`
	Version string     `json:"version"`
}

type osvPackage struct {
	Name      string `json:"name"`
	Ecosystem string `json:"ecosystem"`
}

type osvResponse struct {
	Vulns []models.Vulnerability `json:"vulns"`
}

// Auditor queries OSV for each dependency pin found in a repository.
type Auditor struct {
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewAuditor returns an Auditor. An empty endpoint selects DefaultOSVURL.
func NewAuditor(endpoint string, logger *zap.Logger) *Auditor {
	if endpoint == "" {
		endpoint = DefaultOSVURL
	}
	return &Auditor{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: queryTimeout},
		logger:     logger,
	}
}

// Audit walks repoDir for requirements*.txt and package.json files and returns
// one finding per vulnerable pin. Errors are logged and the pin skipped.
func (a *Auditor) Audit(ctx context.Context, repoDir string) []model.DependencyFinding {
	pins := a.collectPins(repoDir)
	if len(pins) == 0 {
		return nil
	}

	findings := make([]*model.DependencyFinding, len(pins))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelism)
	for i, pin := range pins {
		g.Go(func() error {
			finding, err := a.check(gctx, pin)
			if err != nil {
				a.logger.Debug("OSV check failed",
					zap.String("package", pin.Name),
					zap.String("file", pin.File),
					zap.Error(err))
				return nil
			}
			findings[i] = finding
			return nil
		})
	}
	_ = g.Wait()

	var out []model.DependencyFinding
	for _, f := range findings {
		if f != nil {
			out = append(out, *f)
		}
	}
	return out
}

func (a *Auditor) collectPins(repoDir string) []Pin {
	var pins []Pin
	_ = filepath.WalkDir(repoDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() == "node_modules" || d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		name := d.Name()
		if name != "package.json" && !isRequirementsFile(name) {
			return nil
		}
		rel, _ := filepath.Rel(repoDir, p)
		found, err := readPins(p, filepath.ToSlash(rel), name)
		if err != nil {
			a.logger.Warn("Skipping unreadable dependency manifest", zap.String("file", rel), zap.Error(err))
			return nil
		}
		pins = append(pins, found...)
		return nil
	})
	return pins
}

// check returns nil without error when the pin is not affected.
func (a *Auditor) check(ctx context.Context, pin Pin) (*model.DependencyFinding, error) {
	vulns, err := a.query(ctx, pin)
	if err != nil {
		return nil, err
	}

	for _, vuln := range vulns {
		if len(vuln.Affected) > 0 && !IsVersionAffectedAny(pin.Version, vuln.Affected) {
			continue
		}
		severity, score := rateVulnerability(vuln)
		return &model.DependencyFinding{
			File:           pin.File,
			Ecosystem:      pin.Ecosystem,
			Package:        pin.Name,
			CurrentVersion: pin.Version,
			Purl:           pin.Purl(),
			Severity:       severity,
			VulnID:         vuln.ID,
			Aliases:        vuln.Aliases,
			CVSSScore:      score,
			Recommendation: recommendation(pin.Version, vuln),
		}, nil
	}
	return nil, nil
}

func recommendation(version string, vuln models.Vulnerability) string {
	if fixed := FixedVersions(version, vuln.Affected); len(fixed) > 0 {
		return "Upgrade to " + fixed[0]
	}
	if vuln.Summary != "" {
		return vuln.Summary
	}
	return defaultAdvisory
}

func (a *Auditor) query(ctx context.Context, pin Pin) ([]models.Vulnerability, error) {
	body, err := json.Marshal(osvQuery{
		Package: osvPackage{Name: pin.Name, Ecosystem: pin.Ecosystem},
		Version: pin.Version,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("osv responded with %s", resp.Status)
	}

	var result osvResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode osv response: %w", err)
	}
	return result.Vulns, nil
}
