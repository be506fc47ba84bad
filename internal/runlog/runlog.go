// Package runlog persists simulation runs as one JSON document per run id.
// A run is written once and never rewritten; the directory listing is the
// index used by the "runs for repository" and "all runs" queries.
package runlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cognitoforge/redteam-backend/model"
	"go.uber.org/zap"
)

const fileSuffix = ".json"

var (
	// ErrRunNotFound is returned when no run file exists for the id.
	ErrRunNotFound = errors.New("simulation run not found")
	// ErrRunData is returned when a run file exists but cannot be decoded.
	ErrRunData = errors.New("simulation run data unreadable")
)

// Log is a directory of run documents.
type Log struct {
	dir    string
	logger *zap.Logger
}

// Open ensures dir exists and returns a Log rooted there.
func Open(dir string, logger *zap.Logger) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create run log directory: %w", err)
	}
	return &Log{dir: dir, logger: logger}, nil
}

// Dir returns the directory holding the run documents.
func (l *Log) Dir() string {
	return l.dir
}

func (l *Log) path(runID string) (string, error) {
	if !model.RepoIDPattern.MatchString(runID) {
		return "", fmt.Errorf("%w: %q", ErrRunNotFound, runID)
	}
	return filepath.Join(l.dir, runID+fileSuffix), nil
}

// Save writes run under its run id. An existing document for the same id is
// left untouched and Save reports success.
func (l *Log) Save(run model.SimulationRun) error {
	final, err := l.path(run.RunID)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode run %s: %w", run.RunID, err)
	}

	tmp, err := os.CreateTemp(l.dir, ".run-*")
	if err != nil {
		return fmt.Errorf("failed to create run file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write run file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write run file: %w", err)
	}

	if err := os.Link(tmpName, final); err != nil {
		if errors.Is(err, os.ErrExist) {
			l.logger.Debug("Run already persisted", zap.String("run_id", run.RunID))
			return nil
		}
		return fmt.Errorf("failed to publish run file: %w", err)
	}
	return nil
}

// Load reads a run. A run stored under a different repository counts as not found.
func (l *Log) Load(repoID, runID string) (model.SimulationRun, error) {
	p, err := l.path(runID)
	if err != nil {
		return model.SimulationRun{}, err
	}
	run, err := readRun(p)
	if err != nil {
		return model.SimulationRun{}, err
	}
	if run.RepoID != repoID {
		return model.SimulationRun{}, fmt.Errorf("%w: %s for repository %s", ErrRunNotFound, runID, repoID)
	}
	return run, nil
}

func readRun(p string) (model.SimulationRun, error) {
	var run model.SimulationRun
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return run, fmt.Errorf("%w: %s", ErrRunNotFound, strings.TrimSuffix(filepath.Base(p), fileSuffix))
		}
		return run, fmt.Errorf("%w: %v", ErrRunData, err)
	}
	if err := json.Unmarshal(data, &run); err != nil {
		return run, fmt.Errorf("%w: %s: %v", ErrRunData, filepath.Base(p), err)
	}
	return run, nil
}

// List returns summaries of the runs for repoID, newest first.
func (l *Log) List(repoID string) ([]model.SimulationSummary, error) {
	runs, err := l.scan(repoID + "_")
	if err != nil {
		return nil, err
	}
	out := make([]model.SimulationSummary, 0, len(runs))
	for _, run := range runs {
		if run.RepoID != repoID {
			continue
		}
		out = append(out, model.SimulationSummary{
			RepoID:          run.RepoID,
			RunID:           run.RunID,
			Timestamp:       run.Timestamp,
			OverallSeverity: run.Plan.OverallSeverity,
		})
	}
	return out, nil
}

// ListAll returns every readable run, newest first.
func (l *Log) ListAll() ([]model.SimulationRun, error) {
	return l.scan("")
}

// SeverityCounts tallies the overall severity of every readable run.
func (l *Log) SeverityCounts() (model.SeverityDistribution, error) {
	var dist model.SeverityDistribution
	runs, err := l.scan("")
	if err != nil {
		return dist, err
	}
	for _, run := range runs {
		dist.Add(model.NormalizeSeverity(string(run.Plan.OverallSeverity), ""), 1)
	}
	return dist, nil
}

// scan decodes the run files whose name starts with prefix. Unreadable files
// are logged and skipped.
func (l *Log) scan(prefix string) ([]model.SimulationRun, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []model.SimulationRun{}, nil
		}
		return nil, fmt.Errorf("failed to list run log: %w", err)
	}

	runs := []model.SimulationRun{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileSuffix) || !strings.HasPrefix(name, prefix) {
			continue
		}
		run, err := readRun(filepath.Join(l.dir, name))
		if err != nil {
			l.logger.Warn("Skipping unreadable simulation file", zap.String("file", name), zap.Error(err))
			continue
		}
		runs = append(runs, run)
	}

	sort.SliceStable(runs, func(i, j int) bool {
		if !runs[i].Timestamp.Equal(runs[j].Timestamp) {
			return runs[i].Timestamp.After(runs[j].Timestamp)
		}
		return runs[i].RunID > runs[j].RunID
	})
	return runs, nil
}
