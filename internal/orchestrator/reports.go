package orchestrator

import (
	"context"
	"fmt"

	"github.com/cognitoforge/redteam-backend/internal/runlog"
	"github.com/cognitoforge/redteam-backend/model"
	"go.uber.org/zap"
)

// LatestReport returns the report of the newest run for repoID. The store is
// consulted first; the local run log is the fallback.
func (o *Orchestrator) LatestReport(ctx context.Context, repoID string) (*model.SimulationReport, error) {
	if err := model.ValidateRepoID(repoID); err != nil {
		return nil, err
	}
	if report := o.store.FetchLatestReport(ctx, repoID); report != nil {
		return o.completeStoredReport(ctx, report), nil
	}

	summaries, err := o.runs.List(repoID)
	if err != nil {
		return nil, err
	}
	if len(summaries) == 0 {
		return nil, fmt.Errorf("%w: no simulations found for %s", runlog.ErrRunNotFound, repoID)
	}
	return o.localReport(ctx, repoID, summaries[0].RunID)
}

// Report returns the report of one run.
func (o *Orchestrator) Report(ctx context.Context, repoID, runID string) (*model.SimulationReport, error) {
	if err := model.ValidateRepoID(repoID); err != nil {
		return nil, err
	}
	if report := o.store.FetchReport(ctx, repoID, runID); report != nil {
		return o.completeStoredReport(ctx, report), nil
	}
	return o.localReport(ctx, repoID, runID)
}

func (o *Orchestrator) localReport(ctx context.Context, repoID, runID string) (*model.SimulationReport, error) {
	run, err := o.runs.Load(repoID, runID)
	if err != nil {
		return nil, err
	}
	report := model.BuildReport(run)
	o.attachInsight(ctx, run, &report)
	return &report, nil
}

// completeStoredReport recomputes the tallies of a stored report from the
// local run when it exists, keeping the stored insight. Without a local run
// the stored report is returned as is.
func (o *Orchestrator) completeStoredReport(ctx context.Context, stored *model.SimulationReport) *model.SimulationReport {
	run, err := o.runs.Load(stored.RepoID, stored.RunID)
	if err != nil {
		o.logger.Warn("Stored report has no local run",
			zap.String("repo_id", stored.RepoID), zap.String("run_id", stored.RunID), zap.Error(err))
		return stored
	}

	report := model.BuildReport(run)
	report.AIInsight = stored.AIInsight
	if report.AIInsight == "" {
		o.attachInsight(ctx, run, &report)
	}
	return &report
}

// ListRuns returns the run summaries of repoID, newest first.
func (o *Orchestrator) ListRuns(repoID string) ([]model.SimulationSummary, error) {
	if err := model.ValidateRepoID(repoID); err != nil {
		return nil, err
	}
	return o.runs.List(repoID)
}

// Run returns a stored run.
func (o *Orchestrator) Run(repoID, runID string) (model.SimulationRun, error) {
	if err := model.ValidateRepoID(repoID); err != nil {
		return model.SimulationRun{}, err
	}
	return o.runs.Load(repoID, runID)
}

// AllRuns returns every readable run, newest first.
func (o *Orchestrator) AllRuns() ([]model.SimulationRun, error) {
	return o.runs.ListAll()
}

// SeverityDistribution counts runs by overall severity, from the store when it
// has data and from the local run log otherwise.
func (o *Orchestrator) SeverityDistribution(ctx context.Context) (model.SeverityDistribution, error) {
	if d := o.store.FetchSeverityDistribution(ctx); d != nil {
		return *d, nil
	}
	return o.runs.SeverityCounts()
}

// Dependencies returns the vulnerable dependency pins recorded at ingestion.
func (o *Orchestrator) Dependencies(repoID string) ([]model.DependencyFinding, error) {
	if err := model.ValidateRepoID(repoID); err != nil {
		return nil, err
	}
	m, err := o.manifests.LoadManifest(repoID)
	if err != nil {
		return nil, err
	}
	if m.Dependencies == nil {
		return []model.DependencyFinding{}, nil
	}
	return m.Dependencies, nil
}
