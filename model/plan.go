// Package model - Attack plan types produced by the plan synthesizer
package model

import (
	"errors"
	"fmt"
)

// MaxPlanSteps bounds the number of steps in any attack plan.
const MaxPlanSteps = 3

// MaxAffectedFiles bounds the affected file list of a single step.
const MaxAffectedFiles = 5

// Plan provenance tags.
const (
	PlanSourceGemini       = "gemini"
	PlanSourceFallback     = "fallback"
	PlanSourceFallbackScan = "fallback_with_scan_results"
	PlanSourceLegacy       = "legacy"
)

// ErrInvalidPlan is returned by NewAttackPlan when invariants do not hold.
var ErrInvalidPlan = errors.New("invalid attack plan")

// AttackStep is one exploitation step.
type AttackStep struct {
	StepNumber        int      `json:"step_number"`
	VulnerabilityType string   `json:"vulnerability_type,omitempty"`
	Description       string   `json:"description"`
	TechniqueID       string   `json:"technique_id"`
	Severity          Severity `json:"severity"`
	AffectedFiles     []string `json:"affected_files"`
}

// AttackPlan is a bounded, validated sequence of attack steps.
type AttackPlan struct {
	RepoID          string       `json:"repo_id"`
	OverallSeverity Severity     `json:"overall_severity"`
	Steps           []AttackStep `json:"steps"`
	AIInsight       string       `json:"ai_insight,omitempty"`
	PlanSource      string       `json:"plan_source,omitempty"`
	ModelUsed       string       `json:"model_used,omitempty"`
	Prompt          string       `json:"gemini_prompt,omitempty"`
	RawResponse     string       `json:"gemini_raw_response,omitempty"`
	FilesAnalyzed   int          `json:"code_samples_analyzed"`
}

// NewAttackPlan builds a plan, renumbering steps densely from 1 and rejecting
// empty, oversized or badly graded input.
func NewAttackPlan(repoID string, overall Severity, steps []AttackStep) (AttackPlan, error) {
	if len(steps) == 0 {
		return AttackPlan{}, fmt.Errorf("%w: no steps", ErrInvalidPlan)
	}
	if len(steps) > MaxPlanSteps {
		return AttackPlan{}, fmt.Errorf("%w: %d steps exceeds %d", ErrInvalidPlan, len(steps), MaxPlanSteps)
	}
	if !overall.Valid() {
		return AttackPlan{}, fmt.Errorf("%w: overall severity %q", ErrInvalidPlan, overall)
	}

	normalized := make([]AttackStep, len(steps))
	for i, step := range steps {
		if !step.Severity.Valid() {
			return AttackPlan{}, fmt.Errorf("%w: step %d severity %q", ErrInvalidPlan, i+1, step.Severity)
		}
		if len(step.AffectedFiles) > MaxAffectedFiles {
			step.AffectedFiles = step.AffectedFiles[:MaxAffectedFiles]
		}
		if step.AffectedFiles == nil {
			step.AffectedFiles = []string{}
		}
		step.StepNumber = i + 1
		normalized[i] = step
	}

	return AttackPlan{
		RepoID:          repoID,
		OverallSeverity: overall,
		Steps:           normalized,
	}, nil
}

