// Package orchestrator drives a simulation request end to end: cache lookup,
// plan synthesis, mock sandbox execution, run persistence, best-effort store
// mirroring and the auxiliary insight task.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cognitoforge/redteam-backend/database"
	"github.com/cognitoforge/redteam-backend/internal/cache"
	"github.com/cognitoforge/redteam-backend/internal/fetcher"
	"github.com/cognitoforge/redteam-backend/internal/metrics"
	"github.com/cognitoforge/redteam-backend/internal/planner"
	"github.com/cognitoforge/redteam-backend/internal/runlog"
	"github.com/cognitoforge/redteam-backend/internal/scanner"
	"github.com/cognitoforge/redteam-backend/model"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Pipeline limits.
const (
	SelectLimit = scanner.DefaultSelectLimit
	MaxSteps    = model.MaxPlanSteps
)

// ManifestSource loads stored repository manifests.
type ManifestSource interface {
	LoadManifest(repoID string) (*model.Manifest, error)
	RepoDir(repoID string) string
}

// Planner synthesizes plans and run insights.
type Planner interface {
	Enabled() bool
	Synthesize(ctx context.Context, p planner.Profile, maxSteps int) model.AttackPlan
	Insight(ctx context.Context, run model.SimulationRun, report model.SimulationReport) (string, bool)
}

// Orchestrator runs and reads back simulations.
type Orchestrator struct {
	manifests ManifestSource
	planner   Planner
	runs      *runlog.Log
	store     database.Store
	cache     *cache.Cache
	now       func() time.Time
	logger    *zap.Logger

	idMu    sync.Mutex
	lastRun time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithStore sets the persistent store mirror.
func WithStore(s database.Store) Option {
	return func(o *Orchestrator) {
		if s != nil {
			o.store = s
		}
	}
}

// WithCache replaces the response cache.
func WithCache(c *cache.Cache) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.cache = c
		}
	}
}

// WithClock replaces time.Now for run timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func New(manifests ManifestSource, p Planner, runs *runlog.Log, logger *zap.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		manifests: manifests,
		planner:   p,
		runs:      runs,
		store:     database.Disabled{},
		cache:     cache.New(),
		now:       time.Now,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Simulate returns the simulation response for repoID. A fresh cached response
// is returned verbatim unless force is set.
func (o *Orchestrator) Simulate(ctx context.Context, repoID string, force bool) (json.RawMessage, bool, error) {
	if err := model.ValidateRepoID(repoID); err != nil {
		return nil, false, err
	}
	logger := o.logger.With(zap.String("repo_id", repoID))

	if force {
		// a forced run that fails must not leave the superseded response cached
		o.cache.Delete(repoID)
	} else if entry, ok := o.cache.Get(repoID); ok {
		metrics.CacheLookups.WithLabelValues(metrics.CacheHit).Inc()
		logger.Info("Returning cached attack plan",
			zap.Duration("cache_age", o.now().Sub(entry.Timestamp)),
			zap.Duration("cache_ttl", o.cache.TTL()))
		return entry.Payload, true, nil
	}
	metrics.CacheLookups.WithLabelValues(metrics.CacheMiss).Inc()

	plan := o.plan(ctx, repoID, logger)
	metrics.PlansTotal.WithLabelValues(plan.PlanSource).Inc()

	ts, runID := o.nextRunID(repoID)
	run := model.SimulationRun{
		RepoID:    repoID,
		RunID:     runID,
		Timestamp: ts,
		Plan:      plan,
		Sandbox:   Sandbox(plan, ts),
	}
	logger = logger.With(zap.String("run_id", runID))

	if err := o.runs.Save(run); err != nil {
		logger.Error("Failed to persist simulation run", zap.Error(err))
		return nil, false, fmt.Errorf("failed to persist run %s: %w", runID, err)
	}

	resp := model.SimulationResponse{SimulationRun: run}
	resp.Persistence.RunLog = model.TaskStatusOK

	// side tasks outlive an abandoned request
	sideCtx := context.WithoutCancel(ctx)
	var g errgroup.Group
	g.Go(func() error {
		resp.Persistence.StoreRun, resp.Persistence.StoreFiles = o.mirror(sideCtx, run)
		return nil
	})
	g.Go(func() error {
		resp.InsightTask, resp.Persistence.StoreInsight = o.insightTask(sideCtx, run)
		return nil
	})
	_ = g.Wait()

	payload, err := json.Marshal(resp)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode simulation response: %w", err)
	}
	o.cache.Set(repoID, payload)

	logger.Info("Simulation complete",
		zap.String("plan_source", plan.PlanSource),
		zap.Int("steps", len(plan.Steps)),
		zap.String("insight_task", resp.InsightTask.Status),
		zap.Int("cache_entries", o.cache.Len()))
	return payload, false, nil
}

// plan loads the manifest and synthesizes; without a manifest it returns the
// legacy static plan.
func (o *Orchestrator) plan(ctx context.Context, repoID string, logger *zap.Logger) model.AttackPlan {
	manifest, err := o.manifests.LoadManifest(repoID)
	if err != nil {
		if errors.Is(err, fetcher.ErrManifestNotFound) {
			logger.Warn("Repository manifest not found, using legacy attack plan")
		} else {
			logger.Error("Failed to load manifest, using legacy attack plan", zap.Error(err))
		}
		return planner.LegacyPlan(repoID)
	}

	profile := planner.Profile{
		RepoID:        repoID,
		Manifest:      manifest,
		HighRiskFiles: scanner.SelectHighRisk(manifest, SelectLimit),
		RepoDir:       o.manifests.RepoDir(repoID),
	}
	logger.Info("Generating attack plan", zap.Int("high_risk_files", len(profile.HighRiskFiles)))
	return o.planner.Synthesize(ctx, profile, MaxSteps)
}

// nextRunID returns a UTC timestamp with microsecond precision that is strictly
// later than any previously issued one, and the run id derived from it.
func (o *Orchestrator) nextRunID(repoID string) (time.Time, string) {
	o.idMu.Lock()
	defer o.idMu.Unlock()

	ts := o.now().UTC().Truncate(time.Microsecond)
	if !ts.After(o.lastRun) {
		ts = o.lastRun.Add(time.Microsecond)
	}
	o.lastRun = ts
	return ts, RunID(repoID, ts)
}

// RunID formats a run id as <repo_id>_<YYYYMMDDTHHMMSSffffff>.
func RunID(repoID string, ts time.Time) string {
	ts = ts.UTC()
	return fmt.Sprintf("%s_%s%06d", repoID, ts.Format("20060102T150405"), ts.Nanosecond()/1000)
}

func (o *Orchestrator) mirror(ctx context.Context, run model.SimulationRun) (runStatus, filesStatus string) {
	if o.store.Name() == database.DriverNone {
		return model.TaskStatusSkipped, model.TaskStatusSkipped
	}

	ok := o.store.StoreSimulationRun(ctx, run)
	metrics.StoreWrites.WithLabelValues("run", metrics.Result(ok)).Inc()
	runStatus = taskStatus(ok)

	rows := model.AffectedFileRows(run.Plan)
	if len(rows) == 0 {
		return runStatus, model.TaskStatusSkipped
	}
	ok = o.store.StoreAffectedFiles(ctx, run.RepoID, run.RunID, rows)
	metrics.StoreWrites.WithLabelValues("files", metrics.Result(ok)).Inc()
	return runStatus, taskStatus(ok)
}

func taskStatus(ok bool) string {
	if ok {
		return model.TaskStatusOK
	}
	return model.TaskStatusFailed
}
