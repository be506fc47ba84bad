// Package database - Best-effort persistent store for simulation runs, the
// files they touch and the insights generated for them. Writes report success
// as a bool and reads return nil on any error; callers never see a store fault.
package database

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cognitoforge/redteam-backend/model"
	"go.uber.org/zap"
)

// Store drivers.
const (
	DriverNone     = "none"
	DriverArango   = "arango"
	DriverPostgres = "postgres"
)

// Collection and table names shared by every driver.
const (
	runsCollection     = "simulation_runs"
	filesCollection    = "affected_files"
	insightsCollection = "ai_insights"
)

// timestampLayout sorts lexically in time order.
const timestampLayout = "2006-01-02T15:04:05.000000Z"

// Store mirrors simulation results into an external database.
type Store interface {
	Name() string
	StoreSimulationRun(ctx context.Context, run model.SimulationRun) bool
	StoreAffectedFiles(ctx context.Context, repoID, runID string, rows []model.AffectedFileRow) bool
	StoreAIInsight(ctx context.Context, repoID, runID, insight string) bool
	FetchLatestReport(ctx context.Context, repoID string) *model.SimulationReport
	FetchReport(ctx context.Context, repoID, runID string) *model.SimulationReport
	FetchSeverityDistribution(ctx context.Context) *model.SeverityDistribution
	Close()
}

// Config selects and configures the store driver.
type Config struct {
	Driver         string
	ArangoURL      string
	ArangoUser     string
	ArangoPass     string
	ArangoDatabase string
	PostgresURL    string
	ConnectRetries uint64
	Timeout        time.Duration
}

// New returns the store for cfg.Driver. Connections are opened on first use.
func New(cfg Config, logger *zap.Logger) (Store, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverNone:
		return Disabled{}, nil
	case DriverArango:
		if cfg.ArangoURL == "" {
			return nil, fmt.Errorf("arango store requires a URL")
		}
		return NewArangoStore(cfg, logger), nil
	case DriverPostgres:
		if cfg.PostgresURL == "" {
			return nil, fmt.Errorf("postgres store requires a connection URL")
		}
		return NewPostgresStore(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// Disabled is the store used when no database is configured.
type Disabled struct{}

func (Disabled) Name() string { return DriverNone }

func (Disabled) StoreSimulationRun(context.Context, model.SimulationRun) bool { return false }

func (Disabled) StoreAffectedFiles(context.Context, string, string, []model.AffectedFileRow) bool {
	return false
}

func (Disabled) StoreAIInsight(context.Context, string, string, string) bool { return false }

func (Disabled) FetchLatestReport(context.Context, string) *model.SimulationReport { return nil }

func (Disabled) FetchReport(context.Context, string, string) *model.SimulationReport { return nil }

func (Disabled) FetchSeverityDistribution(context.Context) *model.SeverityDistribution { return nil }

func (Disabled) Close() {}

// lazy opens a connection on first use and keeps it for the process lifetime.
// A failed dial is retried by the next caller.
type lazy[T any] struct {
	mu    sync.Mutex
	val   T
	ready bool
	dial  func(context.Context) (T, error)
}

func (l *lazy[T]) get(ctx context.Context) (T, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ready {
		return l.val, nil
	}
	v, err := l.dial(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	l.val, l.ready = v, true
	return v, nil
}

// peek returns the connection without dialing.
func (l *lazy[T]) peek() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.val, l.ready
}

// storedReport is the row shape read back by both drivers.
type storedReport struct {
	RepoID          string   `json:"repo_id"`
	RunID           string   `json:"run_id"`
	OverallSeverity string   `json:"overall_severity"`
	CriticalSteps   int      `json:"critical_steps"`
	HighSteps       int      `json:"high_steps"`
	MediumSteps     int      `json:"medium_steps"`
	LowSteps        int      `json:"low_steps"`
	AffectedFiles   []string `json:"affected_files"`
	AIInsight       *string  `json:"ai_insight"`
}

func (r storedReport) report() *model.SimulationReport {
	if r.RunID == "" {
		return nil
	}
	files := make([]string, 0, len(r.AffectedFiles))
	seen := make(map[string]struct{}, len(r.AffectedFiles))
	for _, f := range r.AffectedFiles {
		if _, ok := seen[f]; ok || f == "" {
			continue
		}
		seen[f] = struct{}{}
		files = append(files, f)
	}
	sort.Strings(files)

	out := &model.SimulationReport{
		RepoID: r.RepoID,
		RunID:  r.RunID,
		Summary: model.ReportSummary{
			OverallSeverity: model.NormalizeSeverity(r.OverallSeverity, model.SeverityHigh),
			CriticalSteps:   r.CriticalSteps,
			HighSteps:       r.HighSteps,
			MediumSteps:     r.MediumSteps,
			LowSteps:        r.LowSteps,
			AffectedFiles:   files,
		},
	}
	if r.AIInsight != nil {
		out.AIInsight = *r.AIInsight
	}
	return out
}

// distribution folds (severity, count) rows into a distribution, nil when empty.
func distribution(rows map[string]int) *model.SeverityDistribution {
	var d model.SeverityDistribution
	for sev, n := range rows {
		d.Add(model.NormalizeSeverity(sev, ""), n)
	}
	if d.Total() == 0 {
		return nil
	}
	return &d
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}
