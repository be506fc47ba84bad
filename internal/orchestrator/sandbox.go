package orchestrator

import (
	"time"

	"github.com/cognitoforge/redteam-backend/model"
)

// SandboxSummary is the fixed summary of the mock sandbox.
const SandboxSummary = "Simulated attack executed successfully in isolated sandbox."

const (
	sandboxStatus   = "success"
	logTimestampFmt = "2006-01-02T15:04:05.000000Z"
)

// Sandbox echoes the plan as a mock execution log, one entry per step.
func Sandbox(plan model.AttackPlan, at time.Time) model.SandboxResult {
	stamp := at.UTC().Format(logTimestampFmt)
	logs := make([]model.SandboxLogEntry, 0, len(plan.Steps))
	for _, step := range plan.Steps {
		logs = append(logs, model.SandboxLogEntry{
			Timestamp: stamp,
			Step:      step.StepNumber,
			Action:    step.Description,
			Status:    sandboxStatus,
		})
	}
	return model.SandboxResult{
		RepoID:  plan.RepoID,
		Summary: SandboxSummary,
		Logs:    logs,
	}
}
