package planner

import (
	"fmt"

	"github.com/cognitoforge/redteam-backend/internal/scanner"
	"github.com/cognitoforge/redteam-backend/model"
)

type stepTemplate struct {
	class       string
	vulnType    string
	techniqueID string
	severity    model.Severity
	description string
}

// fallbackTemplates are applied in this class order for every sampled file.
var fallbackTemplates = []stepTemplate{
	{
		class:       scanner.ClassSQLInjection,
		vulnType:    "SQL Injection",
		techniqueID: "T1190",
		severity:    model.SeverityCritical,
		description: "SQL injection vulnerability detected in %s. Attacker can manipulate queries to bypass authentication or extract data.",
	},
	{
		class:       scanner.ClassCommandInjection,
		vulnType:    "Command Injection",
		techniqueID: "T1059",
		severity:    model.SeverityCritical,
		description: "Command injection vulnerability in %s. Allows execution of arbitrary system commands.",
	},
	{
		class:       scanner.ClassHardcodedSecrets,
		vulnType:    "Hardcoded Credentials",
		techniqueID: "T1552",
		severity:    model.SeverityHigh,
		description: "Hardcoded secrets found in %s. Credentials can be extracted from source code.",
	},
}

var genericSteps = []model.AttackStep{
	{
		Description:   "Initial access via exposed CI token in repository secrets",
		TechniqueID:   "T1552",
		Severity:      model.SeverityHigh,
		AffectedFiles: []string{".github/workflows/deploy.yml"},
	},
	{
		Description:   "Privilege escalation through misconfigured RBAC",
		TechniqueID:   "T1068",
		Severity:      model.SeverityCritical,
		AffectedFiles: []string{"deploy/k8s/rbac.yaml"},
	},
}

var legacySteps = []model.AttackStep{
	{
		Description:   "Initial access via exposed CI token in repository secrets.",
		TechniqueID:   "T1552",
		Severity:      model.SeverityHigh,
		AffectedFiles: []string{".github/workflows/deploy.yml"},
	},
	{
		Description:   "Privilege escalation through misconfigured Kubernetes RBAC manifests.",
		TechniqueID:   "T1068",
		Severity:      model.SeverityCritical,
		AffectedFiles: []string{"deploy/k8s/rbac.yaml"},
	},
	{
		Description:   "Establish persistence by modifying container entrypoint script.",
		TechniqueID:   "T1547",
		Severity:      model.SeverityMedium,
		AffectedFiles: []string{"docker/entrypoint.sh"},
	},
}

func copySteps(steps []model.AttackStep) []model.AttackStep {
	out := make([]model.AttackStep, len(steps))
	for i, s := range steps {
		s.AffectedFiles = append([]string(nil), s.AffectedFiles...)
		out[i] = s
	}
	return out
}

// fallbackPlan builds a deterministic plan from scan results, or the generic
// two-step plan when nothing was detected.
func fallbackPlan(repoID string, samples []codeSample) model.AttackPlan {
	var steps []model.AttackStep
	found := 0
	for _, s := range samples {
		for _, tpl := range fallbackTemplates {
			if _, ok := s.vulns[tpl.class]; !ok {
				continue
			}
			found++
			if len(steps) == model.MaxPlanSteps {
				continue
			}
			steps = append(steps, model.AttackStep{
				VulnerabilityType: tpl.vulnType,
				Description:       fmt.Sprintf(tpl.description, s.path),
				TechniqueID:       tpl.techniqueID,
				Severity:          tpl.severity,
				AffectedFiles:     []string{s.path},
			})
		}
	}
	if len(steps) == 0 {
		steps = copySteps(genericSteps)
		found = len(steps)
	}

	overall := model.SeverityHigh
	for _, s := range steps {
		if s.Severity == model.SeverityCritical {
			overall = model.SeverityCritical
			break
		}
	}

	plan, err := model.NewAttackPlan(repoID, overall, steps)
	if err != nil {
		// templates always satisfy the plan invariants
		panic(err)
	}

	plan.PlanSource = model.PlanSourceFallback
	if len(samples) > 0 {
		plan.PlanSource = model.PlanSourceFallbackScan
	}
	plan.AIInsight = fmt.Sprintf("Found %d potential vulnerabilities through static analysis", found)
	plan.FilesAnalyzed = len(samples)
	return plan
}

// LegacyPlan is the static three-step plan used when a repository has no manifest.
func LegacyPlan(repoID string) model.AttackPlan {
	plan, err := model.NewAttackPlan(repoID, model.SeverityCritical, copySteps(legacySteps))
	if err != nil {
		panic(err)
	}
	plan.PlanSource = model.PlanSourceLegacy
	return plan
}
