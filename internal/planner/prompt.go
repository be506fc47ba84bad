package planner

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cognitoforge/redteam-backend/model"
)

const (
	promptSampleLimit = 5
	promptReasonLimit = 3
	languageLimit     = 5
	logSampleLimit    = 5
)

type repoContext struct {
	RepoID        string   `json:"repo_id"`
	TotalFiles    int      `json:"total_files"`
	HighRiskFiles int      `json:"high_risk_files"`
	Languages     []string `json:"languages"`
}

const planInstructions = `## Task:
Generate up to %d attack steps that exploit REAL vulnerabilities found above.

For each step include:
- step_number: integer starting at 1
- vulnerability_type: Type of vulnerability (SQL Injection, XSS, etc.)
- description: Specific exploit scenario (2-3 sentences)
- technique_id: MITRE ATT&CK ID
- severity: critical/high/medium/low
- affected_files: Array of file paths

## Output Format (JSON only, no markdown):
{
  "overall_severity": "critical|high|medium|low",
  "ai_insight": "Brief summary of attack surface",
  "steps": [
    {
      "step_number": 1,
      "vulnerability_type": "SQL Injection",
      "description": "Exploit description",
      "technique_id": "T1190",
      "severity": "critical",
      "affected_files": ["path/to/file.py"]
    }
  ]
}`

// buildPlanPrompt renders the attack plan request for the model.
func buildPlanPrompt(p Profile, samples []codeSample, maxSteps int) string {
	ctx := repoContext{
		RepoID:        p.RepoID,
		HighRiskFiles: len(p.HighRiskFiles),
		Languages:     languages(p.Manifest),
	}
	if p.Manifest != nil {
		ctx.TotalFiles = p.Manifest.FileCount
	}
	ctxJSON, _ := json.MarshalIndent(ctx, "", "  ")

	var b strings.Builder
	b.WriteString("You are a red-team security analyst. Analyze this repository and create a realistic attack plan.\n\n")
	b.WriteString("## Repository Context:\n")
	b.Write(ctxJSON)
	b.WriteString("\n\n")

	if len(samples) > 0 {
		b.WriteString("## Detected Vulnerabilities:\n")
		limit := len(samples)
		if limit > promptSampleLimit {
			limit = promptSampleLimit
		}
		for _, s := range samples[:limit] {
			if len(s.classes) == 0 {
				continue
			}
			fmt.Fprintf(&b, "\n### File: %s\n", s.path)
			fmt.Fprintf(&b, "Language: %s\n", s.language)
			fmt.Fprintf(&b, "Issues: %s\n", strings.Join(s.classes, ", "))
			if len(s.reasons) > 0 {
				reasons := s.reasons
				if len(reasons) > promptReasonLimit {
					reasons = reasons[:promptReasonLimit]
				}
				fmt.Fprintf(&b, "Risk factors: %s\n", strings.Join(reasons, ", "))
			}
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, planInstructions, maxSteps)
	return b.String()
}

func languages(m *model.Manifest) []string {
	out := []string{}
	if m == nil {
		return out
	}
	for _, ext := range m.TopExtensions {
		if len(out) == languageLimit {
			break
		}
		out = append(out, ext.Extension)
	}
	return out
}

// buildInsightPrompt summarises a finished run for a short analyst note.
func buildInsightPrompt(run model.SimulationRun, report model.SimulationReport) string {
	s := report.Summary

	var steps []string
	for _, step := range run.Plan.Steps {
		files := "None specified"
		if len(step.AffectedFiles) > 0 {
			files = strings.Join(step.AffectedFiles, ", ")
		}
		steps = append(steps, fmt.Sprintf("Step %d: %s | Severity: %s | Technique: %s | Files: %s",
			step.StepNumber, step.Description, step.Severity, step.TechniqueID, files))
	}
	stepSection := "No attack steps were captured."
	if len(steps) > 0 {
		stepSection = strings.Join(steps, "\n")
	}

	sandboxSummary := run.Sandbox.Summary
	if sandboxSummary == "" {
		sandboxSummary = "Sandbox summary unavailable."
	}
	var logs []string
	for i, entry := range run.Sandbox.Logs {
		if i == logSampleLimit {
			break
		}
		logs = append(logs, fmt.Sprintf("- [%s] Step %d: %s -> %s", entry.Timestamp, entry.Step, entry.Action, entry.Status))
	}
	logSection := "No sandbox log entries supplied."
	if len(logs) > 0 {
		logSection = strings.Join(logs, "\n")
	}

	affected := "None listed"
	if len(s.AffectedFiles) > 0 {
		affected = strings.Join(s.AffectedFiles, ", ")
	}

	var b strings.Builder
	b.WriteString("You are an experienced DevSecOps analyst. Review the simulated attack below and provide a concise AI insight (no more than three sentences) highlighting key risks and suggested focus areas for remediation. Avoid repeating the raw data verbatim.\n\n")
	fmt.Fprintf(&b, "Repository: %s\n", run.RepoID)
	fmt.Fprintf(&b, "Simulation Run: %s\n", run.RunID)
	fmt.Fprintf(&b, "Overall Severity: %s\n", s.OverallSeverity)
	fmt.Fprintf(&b, "Severity Breakdown: critical=%d high=%d medium=%d low=%d\n", s.CriticalSteps, s.HighSteps, s.MediumSteps, s.LowSteps)
	fmt.Fprintf(&b, "Affected Files: %s\n\n", affected)
	fmt.Fprintf(&b, "Attack Plan Steps:\n%s\n\n", stepSection)
	fmt.Fprintf(&b, "Sandbox Summary:\n%s\n\n", sandboxSummary)
	fmt.Fprintf(&b, "Sandbox Log Sample:\n%s\n\n", logSection)
	b.WriteString("Provide the AI Insight as a short paragraph ready for display to security engineers.")
	return b.String()
}
