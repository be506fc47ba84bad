// Package simulations implements the resolvers for simulation runs and reports.
package simulations

import (
	"context"
	"time"

	"github.com/cognitoforge/redteam-backend/model"
)

// Reader is the read side of the run orchestrator.
type Reader interface {
	ListRuns(repoID string) ([]model.SimulationSummary, error)
	LatestReport(ctx context.Context, repoID string) (*model.SimulationReport, error)
	Report(ctx context.Context, repoID, runID string) (*model.SimulationReport, error)
	SeverityDistribution(ctx context.Context) (model.SeverityDistribution, error)
}

// ResolveSimulations lists the runs of a repository, newest first
func ResolveSimulations(r Reader, repoID string) (interface{}, error) {
	summaries, err := r.ListRuns(repoID)
	if err != nil {
		return nil, err
	}

	rows := make([]map[string]interface{}, 0, len(summaries))
	for _, s := range summaries {
		rows = append(rows, map[string]interface{}{
			"repo_id":          s.RepoID,
			"run_id":           s.RunID,
			"timestamp":        s.Timestamp.UTC().Format(time.RFC3339Nano),
			"overall_severity": string(s.OverallSeverity),
		})
	}
	return rows, nil
}

// ResolveReport returns the report of runID, or of the newest run when runID is empty
func ResolveReport(ctx context.Context, r Reader, repoID, runID string) (interface{}, error) {
	var report *model.SimulationReport
	var err error
	if runID == "" {
		report, err = r.LatestReport(ctx, repoID)
	} else {
		report, err = r.Report(ctx, repoID, runID)
	}
	if err != nil {
		return nil, err
	}

	s := report.Summary
	return map[string]interface{}{
		"repo_id": report.RepoID,
		"run_id":  report.RunID,
		"summary": map[string]interface{}{
			"overall_severity": string(s.OverallSeverity),
			"critical_steps":   s.CriticalSteps,
			"high_steps":       s.HighSteps,
			"medium_steps":     s.MediumSteps,
			"low_steps":        s.LowSteps,
			"affected_files":   s.AffectedFiles,
		},
		"ai_insight": report.AIInsight,
	}, nil
}

// ResolveSeverityDistribution counts runs per overall severity
func ResolveSeverityDistribution(ctx context.Context, r Reader) (interface{}, error) {
	d, err := r.SeverityDistribution(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"critical": d.Critical,
		"high":     d.High,
		"medium":   d.Medium,
		"low":      d.Low,
		"total":    d.Total(),
	}, nil
}
