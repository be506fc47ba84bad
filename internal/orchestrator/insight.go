package orchestrator

import (
	"context"

	"github.com/cognitoforge/redteam-backend/database"
	"github.com/cognitoforge/redteam-backend/internal/metrics"
	"github.com/cognitoforge/redteam-backend/internal/planner"
	"github.com/cognitoforge/redteam-backend/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const insightTaskName = "ai_insight"

// insightTask runs the auxiliary insight generation for a fresh run. Its
// outcome is reported in the response, never as an error.
func (o *Orchestrator) insightTask(ctx context.Context, run model.SimulationRun) (model.InsightTaskResult, string) {
	if o.planner == nil || !o.planner.Enabled() {
		return model.InsightTaskResult{Status: model.TaskStatusUnavailable, Mock: true}, model.TaskStatusSkipped
	}

	result := model.InsightTaskResult{
		TaskID: uuid.NewString(),
		Mock:   true,
		Metadata: map[string]string{
			"task":             insightTaskName,
			"overall_severity": string(run.Plan.OverallSeverity),
		},
	}

	text, ok := o.planner.Insight(ctx, run, model.BuildReport(run))
	switch {
	case !ok:
		result.Status = model.TaskStatusUnavailable
		return result, model.TaskStatusSkipped
	case text == "" || text == planner.InsightUnavailable:
		result.Status = model.TaskStatusError
		result.Error = planner.InsightUnavailable
		o.logger.Warn("Insight task failed", zap.String("repo_id", run.RepoID), zap.String("run_id", run.RunID))
		return result, model.TaskStatusSkipped
	}

	result.Status = model.TaskStatusCompleted
	result.Insight = text
	return result, o.storeInsight(ctx, run.RepoID, run.RunID, text)
}

// attachInsight sets report.AIInsight when generation is enabled and mirrors
// a successful insight to the store.
func (o *Orchestrator) attachInsight(ctx context.Context, run model.SimulationRun, report *model.SimulationReport) {
	if o.planner == nil || !o.planner.Enabled() {
		return
	}
	text, ok := o.planner.Insight(ctx, run, *report)
	if !ok || text == "" {
		return
	}
	report.AIInsight = text
	if text != planner.InsightUnavailable {
		o.storeInsight(ctx, run.RepoID, run.RunID, text)
	}
}

func (o *Orchestrator) storeInsight(ctx context.Context, repoID, runID, text string) string {
	if o.store.Name() == database.DriverNone {
		return model.TaskStatusSkipped
	}
	ok := o.store.StoreAIInsight(ctx, repoID, runID, text)
	metrics.StoreWrites.WithLabelValues("insight", metrics.Result(ok)).Inc()
	return taskStatus(ok)
}
