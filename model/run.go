// Package model - Simulation run, report and side-task records
package model

import (
	"sort"
	"time"
)

// SandboxLogEntry is one mock execution log line.
type SandboxLogEntry struct {
	Timestamp string `json:"timestamp"`
	Step      int    `json:"step"`
	Action    string `json:"action"`
	Status    string `json:"status"`
}

// SandboxResult is the mock sandbox output echoed from the plan.
type SandboxResult struct {
	RepoID  string            `json:"repo_id"`
	Summary string            `json:"summary"`
	Logs    []SandboxLogEntry `json:"logs"`
}

// SimulationRun is the immutable record persisted once per pipeline execution.
type SimulationRun struct {
	RepoID    string        `json:"repo_id"`
	RunID     string        `json:"run_id"`
	Timestamp time.Time     `json:"timestamp"`
	Plan      AttackPlan    `json:"plan"`
	Sandbox   SandboxResult `json:"sandbox"`
}

// SimulationSummary is the list view of a run.
type SimulationSummary struct {
	RepoID          string    `json:"repo_id"`
	RunID           string    `json:"run_id"`
	Timestamp       time.Time `json:"timestamp"`
	OverallSeverity Severity  `json:"overall_severity"`
}

// ReportSummary holds severity tallies recomputed from a run's steps.
type ReportSummary struct {
	OverallSeverity Severity `json:"overall_severity"`
	CriticalSteps   int      `json:"critical_steps"`
	HighSteps       int      `json:"high_steps"`
	MediumSteps     int      `json:"medium_steps"`
	LowSteps        int      `json:"low_steps"`
	AffectedFiles   []string `json:"affected_files"`
}

// SimulationReport is derived from a SimulationRun and never stored as truth.
type SimulationReport struct {
	RepoID    string        `json:"repo_id"`
	RunID     string        `json:"run_id"`
	Summary   ReportSummary `json:"summary"`
	AIInsight string        `json:"ai_insight,omitempty"`
}

// BuildReport recomputes the severity tallies and affected file list from the
// run's plan.
func BuildReport(run SimulationRun) SimulationReport {
	summary := ReportSummary{
		OverallSeverity: run.Plan.OverallSeverity,
		AffectedFiles:   []string{},
	}
	seen := make(map[string]struct{})
	for _, step := range run.Plan.Steps {
		switch NormalizeSeverity(string(step.Severity), "") {
		case SeverityCritical:
			summary.CriticalSteps++
		case SeverityHigh:
			summary.HighSteps++
		case SeverityMedium:
			summary.MediumSteps++
		case SeverityLow:
			summary.LowSteps++
		}
		for _, f := range step.AffectedFiles {
			if _, ok := seen[f]; ok {
				continue
			}
			seen[f] = struct{}{}
			summary.AffectedFiles = append(summary.AffectedFiles, f)
		}
	}
	sort.Strings(summary.AffectedFiles)
	return SimulationReport{RepoID: run.RepoID, RunID: run.RunID, Summary: summary}
}

// AffectedFileRows flattens the plan into one row per (step, file) pair.
func AffectedFileRows(plan AttackPlan) []AffectedFileRow {
	var rows []AffectedFileRow
	for _, step := range plan.Steps {
		for _, f := range step.AffectedFiles {
			rows = append(rows, AffectedFileRow{FilePath: f, Severity: step.Severity})
		}
	}
	return rows
}

// AffectedFileRow is one (file, severity) pair mirrored to the persistent store.
type AffectedFileRow struct {
	FilePath string   `json:"file_path"`
	Severity Severity `json:"severity"`
}

// Side-task outcome values.
const (
	TaskStatusOK          = "ok"
	TaskStatusSkipped     = "skipped"
	TaskStatusFailed      = "failed"
	TaskStatusCompleted   = "completed"
	TaskStatusError       = "error"
	TaskStatusUnavailable = "unavailable"
)

// InsightTaskResult captures the auxiliary insight task outcome.
type InsightTaskResult struct {
	Status   string            `json:"status"`
	TaskID   string            `json:"task_id,omitempty"`
	Mock     bool              `json:"mock"`
	Insight  string            `json:"insight,omitempty"`
	Error    string            `json:"error,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// PersistenceStatus records the outcome of each best-effort write.
type PersistenceStatus struct {
	RunLog       string `json:"run_log"`
	StoreRun     string `json:"store_run"`
	StoreFiles   string `json:"store_files"`
	StoreInsight string `json:"store_insight"`
}

// SimulationResponse is the payload returned (and cached) for a simulation request.
type SimulationResponse struct {
	SimulationRun
	InsightTask InsightTaskResult `json:"insight_task"`
	Persistence PersistenceStatus `json:"persistence"`
}
