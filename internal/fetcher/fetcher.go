// Package fetcher retrieves repository archives, unpacks them into the
// per-repository storage directory and writes the scanned manifest next to them.
package fetcher

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cognitoforge/redteam-backend/internal/scanner"
	"github.com/cognitoforge/redteam-backend/model"
	"go.uber.org/zap"
)

// DefaultTimeout bounds the zipball download.
const DefaultTimeout = 60 * time.Second

var (
	// ErrFetch is returned when an archive cannot be retrieved or unpacked.
	ErrFetch = errors.New("repository fetch failed")
	// ErrManifestNotFound is returned when no manifest exists for a repository.
	ErrManifestNotFound = errors.New("manifest not found")
)

// ArchiveMirror stores a copy of the raw archive.
type ArchiveMirror interface {
	PutArchive(ctx context.Context, repoID, filePath string) error
}

// Auditor inspects dependency manifests inside an extracted repository.
type Auditor interface {
	Audit(ctx context.Context, repoDir string) []model.DependencyFinding
}

// Fetcher owns the on-disk repository store rooted at its directory.
type Fetcher struct {
	root       string
	httpClient *http.Client
	token      string
	apiBase    string
	scanner    *scanner.Scanner
	mirror     ArchiveMirror
	audit      Auditor
	logger     *zap.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithToken sets the GitHub token sent with zipball requests.
func WithToken(token string) Option {
	return func(f *Fetcher) { f.token = token }
}

// WithHTTPClient replaces the download client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.httpClient = c }
}

// WithAPIBase overrides the GitHub API base URL.
func WithAPIBase(base string) Option {
	return func(f *Fetcher) { f.apiBase = strings.TrimRight(base, "/") }
}

// WithMirror enables archive mirroring.
func WithMirror(m ArchiveMirror) Option {
	return func(f *Fetcher) { f.mirror = m }
}

// WithAuditor enables the dependency audit during ingestion.
func WithAuditor(a Auditor) Option {
	return func(f *Fetcher) { f.audit = a }
}

// New returns a Fetcher storing repositories under root.
func New(root string, sc *scanner.Scanner, logger *zap.Logger, opts ...Option) *Fetcher {
	f := &Fetcher{
		root:       root,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		apiBase:    githubAPI,
		scanner:    sc,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// RepoDir is where the extracted contents for repoID live.
func (f *Fetcher) RepoDir(repoID string) string {
	return filepath.Join(f.root, repoID)
}

// FetchAndStore downloads a GitHub zipball and ingests it.
func (f *Fetcher) FetchAndStore(ctx context.Context, repoID, repoURL string) (*model.Manifest, error) {
	owner, name, err := ParseGitHubURL(repoURL)
	if err != nil {
		return nil, err
	}

	f.logger.Info("Fetching repository zipball",
		zap.String("repo_id", repoID),
		zap.String("repo_url", repoURL))

	tmp, err := f.scratchDir()
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmp)

	archive := filepath.Join(tmp, "repo.zip")
	if err := f.downloadZipball(ctx, owner, name, archive); err != nil {
		return nil, err
	}

	return f.ingest(ctx, tmp, archive, scanner.RepoMeta{
		RepoID:  repoID,
		RepoURL: repoURL,
		Owner:   owner,
		Name:    name,
	})
}

// StoreUpload ingests a base64 encoded zip archive.
func (f *Fetcher) StoreUpload(ctx context.Context, repoID, zipBase64 string) (*model.Manifest, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(zipBase64))
	if err != nil {
		return nil, fmt.Errorf("%w: archive is not valid base64: %v", ErrFetch, err)
	}

	tmp, err := f.scratchDir()
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmp)

	archive := filepath.Join(tmp, "repo.zip")
	if err := os.WriteFile(archive, data, 0o600); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}

	return f.ingest(ctx, tmp, archive, scanner.RepoMeta{RepoID: repoID, Name: repoID})
}

// LoadManifest reads the stored manifest for repoID.
func (f *Fetcher) LoadManifest(repoID string) (*model.Manifest, error) {
	data, err := os.ReadFile(filepath.Join(f.RepoDir(repoID), scanner.ManifestName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w for repo '%s'", ErrManifestNotFound, repoID)
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m model.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest for repo '%s': %w", repoID, err)
	}
	return &m, nil
}

// scratchDir creates a temporary directory on the same filesystem as the
// repository store so the final rename does not cross devices.
func (f *Fetcher) scratchDir() (string, error) {
	if err := os.MkdirAll(f.root, 0o755); err != nil {
		return "", fmt.Errorf("failed to create repository store: %w", err)
	}
	tmp, err := os.MkdirTemp(f.root, ".ingest-")
	if err != nil {
		return "", fmt.Errorf("failed to create scratch directory: %w", err)
	}
	return tmp, nil
}

// ingest extracts the archive, scans it and only then swaps it into place.
func (f *Fetcher) ingest(ctx context.Context, tmp, archive string, meta scanner.RepoMeta) (*model.Manifest, error) {
	extractDir := filepath.Join(tmp, "extracted")
	if err := extractZip(archive, extractDir); err != nil {
		return nil, err
	}
	extracted, err := locateRoot(extractDir)
	if err != nil {
		return nil, err
	}

	manifest, err := f.scanner.BuildManifest(ctx, extracted, meta)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	if f.audit != nil {
		manifest.Dependencies = f.audit.Audit(ctx, extracted)
	}
	if err := writeManifest(extracted, manifest); err != nil {
		return nil, err
	}

	repoDir := f.RepoDir(meta.RepoID)
	if err := os.RemoveAll(repoDir); err != nil {
		return nil, fmt.Errorf("failed to replace repository directory: %w", err)
	}
	if err := os.Rename(extracted, repoDir); err != nil {
		return nil, fmt.Errorf("failed to move repository into place: %w", err)
	}

	if f.mirror != nil {
		if err := f.mirror.PutArchive(ctx, meta.RepoID, archive); err != nil {
			f.logger.Warn("Archive mirror failed", zap.String("repo_id", meta.RepoID), zap.Error(err))
		}
	}

	f.logger.Info("Repository fetched and manifest written",
		zap.String("repo_id", meta.RepoID),
		zap.Int("file_count", manifest.FileCount),
		zap.Int("high_risk_files", manifest.HighRiskFileCount),
		zap.Int("dependency_findings", len(manifest.Dependencies)))
	return manifest, nil
}

func writeManifest(dir string, m *model.Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, scanner.ManifestName), data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}
