package planner

import (
	"testing"

	"github.com/cognitoforge/redteam-backend/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlanFencedResponse(t *testing.T) {
	raw := "Here you go:\n```json\n" + `{
  "overall_severity": " CRITICAL ",
  "ai_insight": "Attack surface is wide; attacker can curl http://x",
  "steps": [
    {"step_number": 7, "vulnerability_type": "SQL Injection", "description": "Inject into login", "technique_id": "t1190", "severity": "High", "affected_files": ["app/db.py", "not/selected.py", 3]},
    {"description": "Pivot", "severity": "bogus", "affected_files": "app/db.py"},
    "not an object",
    {"description": "Fourth step is dropped"}
  ]
}` + "\n```\nThanks!"

	allowed := map[string]struct{}{"app/db.py": {}}
	got, err := parsePlan(raw, allowed, 3)
	require.NoError(t, err)

	assert.Equal(t, model.SeverityCritical, got.overall)
	assert.Equal(t, "Attack surface is wide; attacker can [REDACTED]http://x", got.insight)
	require.Len(t, got.steps, 2)

	first := got.steps[0]
	assert.Equal(t, 1, first.StepNumber)
	assert.Equal(t, "T1190", first.TechniqueID)
	assert.Equal(t, model.SeverityHigh, first.Severity)
	assert.Equal(t, []string{"app/db.py"}, first.AffectedFiles)

	second := got.steps[1]
	assert.Equal(t, 2, second.StepNumber)
	assert.Equal(t, "Unknown", second.VulnerabilityType)
	assert.Equal(t, "T0000", second.TechniqueID)
	assert.Equal(t, model.SeverityMedium, second.Severity)
	assert.Equal(t, []string{}, second.AffectedFiles)
}

func TestParsePlanGreedyBraceRecovery(t *testing.T) {
	raw := `Sure! {"steps":[{"description":"Read secrets","affected_files":["a","b","c","d","e","f"]}]} hope this helps`

	got, err := parsePlan(raw, nil, 3)
	require.NoError(t, err)
	assert.Equal(t, model.SeverityHigh, got.overall)
	assert.Equal(t, "AI-generated attack plan", got.insight)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, got.steps[0].AffectedFiles)
}

func TestParsePlanFailures(t *testing.T) {
	cases := map[string]error{
		"not json":                          ErrNoJSON,
		`["steps"]`:                         ErrNotAnObject,
		`{"overall_severity":"high"}`:       ErrMissingSteps,
		`{"steps":[]}`:                      ErrMissingSteps,
		`{"steps":"one"}`:                   ErrMissingSteps,
		`{"steps":[1, "two"]}`:              ErrNoValidSteps,
		`{"steps":[{"description":"   "}]}`: ErrNoValidSteps,
	}
	for raw, want := range cases {
		_, err := parsePlan(raw, nil, 3)
		assert.ErrorIs(t, err, want, raw)
	}
}

func TestNormalizeTechniqueID(t *testing.T) {
	assert.Equal(t, "T1059.001", NormalizeTechniqueID(" t1059.001 "))
	assert.Equal(t, "T1552", NormalizeTechniqueID("1552"))
	assert.Equal(t, "TATT1059", NormalizeTechniqueID("ATT1059"))
	assert.Equal(t, "TMITRE-1190", NormalizeTechniqueID("mitre-1190"))
	assert.Equal(t, "TX", NormalizeTechniqueID("x"))
	assert.Equal(t, "T0000", NormalizeTechniqueID(""))
	assert.Equal(t, "T0000", NormalizeTechniqueID("n/a"))
}

func TestParsePlanWrapsSingleAffectedFile(t *testing.T) {
	allowed := map[string]struct{}{"x.py": {}}

	got, err := parsePlan(`{"steps":[{"description":"a","affected_files":"x.py"},{"description":"b","affected_files":"y.py"}]}`, allowed, 3)
	require.NoError(t, err)
	require.Len(t, got.steps, 2)
	assert.Equal(t, []string{"x.py"}, got.steps[0].AffectedFiles)
	assert.Equal(t, []string{}, got.steps[1].AffectedFiles)
}

func TestNormalizeSeverityDefaults(t *testing.T) {
	for _, raw := range []string{"", "  ", "severe", "CRIT"} {
		assert.Equal(t, model.SeverityMedium, model.NormalizeSeverity(raw, model.SeverityMedium), raw)
	}
	for raw, want := range map[string]model.Severity{"LOW": "low", " Medium\t": "medium", "hIgH": "high", "critical\n": "critical"} {
		assert.Equal(t, want, model.NormalizeSeverity(raw, model.SeverityMedium), raw)
	}
}
