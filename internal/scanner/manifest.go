package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"time"

	"github.com/cognitoforge/redteam-backend/model"
	"golang.org/x/sync/errgroup"
)

// ManifestName is the file the manifest is written to inside a repository directory.
const ManifestName = "manifest.json"

// topExtensionLimit is the number of extensions reported in the manifest.
const topExtensionLimit = 5

// ErrUnreadableTree is returned when the repository tree cannot be walked.
var ErrUnreadableTree = errors.New("unreadable repository tree")

// RepoMeta identifies the repository a manifest describes.
type RepoMeta struct {
	RepoID  string
	RepoURL string
	Owner   string
	Name    string
}

type walkedFile struct {
	abs  string
	rel  string
	size int64
}

// BuildManifest walks root and classifies every regular file. Files are listed
// in lexical path order so the same tree always yields the same manifest.
func (s *Scanner) BuildManifest(ctx context.Context, root string, meta RepoMeta) (*model.Manifest, error) {
	var walked []walkedFile

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == ManifestName {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		walked = append(walked, walkedFile{abs: p, rel: rel, size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableTree, err)
	}

	files := make([]model.FileEntry, len(walked))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, wf := range walked {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			files[i] = s.AssessFile(wf.abs, wf.rel, wf.size)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &model.Manifest{
		RepoID:            meta.RepoID,
		RepoURL:           meta.RepoURL,
		Owner:             meta.Owner,
		Name:              meta.Name,
		FetchedAt:         time.Now().UTC(),
		FileCount:         len(files),
		HighRiskFileCount: CountHighRisk(files),
		Files:             files,
		TopExtensions:     TopExtensions(files, topExtensionLimit),
	}, nil
}

// CountHighRisk counts entries whose level is exactly high. Critical entries
// are not included.
func CountHighRisk(files []model.FileEntry) int {
	n := 0
	for _, f := range files {
		if f.RiskLevel == model.SeverityHigh {
			n++
		}
	}
	return n
}

// TopExtensions returns the limit most common non-empty extensions. Equal
// counts keep first-seen order.
func TopExtensions(files []model.FileEntry, limit int) []model.ExtensionCount {
	counts := []model.ExtensionCount{}
	index := make(map[string]int)
	for _, f := range files {
		if f.Extension == "" {
			continue
		}
		if i, ok := index[f.Extension]; ok {
			counts[i].Count++
			continue
		}
		index[f.Extension] = len(counts)
		counts = append(counts, model.ExtensionCount{Extension: f.Extension, Count: 1})
	}

	sort.SliceStable(counts, func(i, j int) bool {
		return counts[i].Count > counts[j].Count
	})
	if len(counts) > limit {
		counts = counts[:limit]
	}
	return counts
}
