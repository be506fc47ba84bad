package planner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cognitoforge/redteam-backend/internal/scanner"
	"github.com/cognitoforge/redteam-backend/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeGenerator struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	calls     int
	prompts   []string
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	f.prompts = append(f.prompts, prompt)
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	if len(f.responses) > 0 {
		return f.responses[len(f.responses)-1], nil
	}
	return "", errors.New("no response configured")
}

func (f *fakeGenerator) Model() string { return "fake-model" }

func repoProfile(t *testing.T, files map[string]string) Profile {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	m, err := scanner.New().BuildManifest(context.Background(), root, scanner.RepoMeta{RepoID: "demo"})
	require.NoError(t, err)
	return Profile{
		RepoID:        "demo",
		Manifest:      m,
		HighRiskFiles: scanner.SelectHighRisk(m, scanner.DefaultSelectLimit),
		RepoDir:       root,
	}
}

func assertPlanInvariants(t *testing.T, plan model.AttackPlan) {
	t.Helper()
	require.GreaterOrEqual(t, len(plan.Steps), 1)
	require.LessOrEqual(t, len(plan.Steps), model.MaxPlanSteps)
	assert.True(t, plan.OverallSeverity.Valid())
	for i, s := range plan.Steps {
		assert.Equal(t, i+1, s.StepNumber)
		assert.True(t, s.Severity.Valid())
		assert.LessOrEqual(t, len(s.AffectedFiles), model.MaxAffectedFiles)
	}
}

func TestSynthesizeDisabledUsesScanResults(t *testing.T) {
	p := repoProfile(t, map[string]string{
		"app/run.py":  "import os\nos.system(user_input)\n",
		"config.yaml": "debug: true\n",
	})
	gen := &fakeGenerator{}
	s := New(zap.NewNop(), WithGenerator(gen), WithGeneration(false))

	plan := s.Synthesize(context.Background(), p, 3)

	assertPlanInvariants(t, plan)
	assert.Equal(t, model.PlanSourceFallbackScan, plan.PlanSource)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, "Command Injection", plan.Steps[0].VulnerabilityType)
	assert.Equal(t, "T1059", plan.Steps[0].TechniqueID)
	assert.Equal(t, []string{"app/run.py"}, plan.Steps[0].AffectedFiles)
	assert.Contains(t, plan.Steps[0].Description, "app/run.py")
	assert.Equal(t, model.SeverityCritical, plan.OverallSeverity)
	assert.Equal(t, 2, plan.FilesAnalyzed)
	assert.Zero(t, gen.calls)
}

func TestSynthesizeFallbackCapsAtThreeSteps(t *testing.T) {
	p := repoProfile(t, map[string]string{
		"a.py": "cursor.execute(\"SELECT * FROM t WHERE id=\" + x)\nos.system(x)\npassword = \"supersecret1\"\n",
		"b.py": "eval(x)\n",
	})
	plan := New(zap.NewNop()).Synthesize(context.Background(), p, 3)

	assertPlanInvariants(t, plan)
	require.Len(t, plan.Steps, 3)
	assert.Equal(t, []string{"SQL Injection", "Command Injection", "Hardcoded Credentials"},
		[]string{plan.Steps[0].VulnerabilityType, plan.Steps[1].VulnerabilityType, plan.Steps[2].VulnerabilityType})
	assert.Equal(t, "Found 4 potential vulnerabilities through static analysis", plan.AIInsight)
}

func TestSynthesizeGenericFallback(t *testing.T) {
	p := repoProfile(t, map[string]string{"README.md": "hello\n"})
	plan := New(zap.NewNop()).Synthesize(context.Background(), p, 3)

	assertPlanInvariants(t, plan)
	assert.Equal(t, model.PlanSourceFallback, plan.PlanSource)
	require.Len(t, plan.Steps, 2)
	assert.Equal(t, "T1552", plan.Steps[0].TechniqueID)
	assert.Equal(t, "T1068", plan.Steps[1].TechniqueID)
	assert.Equal(t, model.SeverityCritical, plan.OverallSeverity)
}

func TestSynthesizeMalformedResponseFallsBack(t *testing.T) {
	p := repoProfile(t, map[string]string{"app/run.py": "os.system(x)\n"})
	gen := &fakeGenerator{responses: []string{"not json"}}
	s := New(zap.NewNop(), WithGenerator(gen), WithGeneration(true), WithRetryDelay(time.Millisecond))

	plan := s.Synthesize(context.Background(), p, 3)

	assertPlanInvariants(t, plan)
	assert.Equal(t, model.PlanSourceFallbackScan, plan.PlanSource)
	assert.Equal(t, 1, gen.calls)
}

func TestSynthesizeRetriesThenSucceeds(t *testing.T) {
	p := repoProfile(t, map[string]string{"app/run.py": "os.system(x)\n"})
	gen := &fakeGenerator{
		errs:      []error{errors.New("503"), errors.New("timeout")},
		responses: []string{"", "", `{"overall_severity":"medium","steps":[{"description":"Abuse run.py","technique_id":"T1059","severity":"critical","affected_files":["app/run.py","ghost.py"]}]}`},
	}
	s := New(zap.NewNop(), WithGenerator(gen), WithGeneration(true), WithRetryDelay(time.Millisecond))

	plan := s.Synthesize(context.Background(), p, 3)

	assertPlanInvariants(t, plan)
	assert.Equal(t, 3, gen.calls)
	assert.Equal(t, model.PlanSourceGemini, plan.PlanSource)
	assert.Equal(t, "fake-model", plan.ModelUsed)
	assert.Equal(t, model.SeverityMedium, plan.OverallSeverity)
	assert.Equal(t, []string{"app/run.py"}, plan.Steps[0].AffectedFiles)
	assert.LessOrEqual(t, len(plan.Prompt), 1000)
	assert.Contains(t, gen.prompts[0], "### File: app/run.py")
	assert.Contains(t, gen.prompts[0], "Issues: command_injection")
}

func TestSynthesizeExhaustedRetriesFallsBack(t *testing.T) {
	p := repoProfile(t, map[string]string{"README.md": "x\n"})
	boom := errors.New("boom")
	gen := &fakeGenerator{errs: []error{boom, boom, boom, boom}}
	s := New(zap.NewNop(), WithGenerator(gen), WithGeneration(true), WithRetryDelay(time.Millisecond))

	plan := s.Synthesize(context.Background(), p, 3)

	assertPlanInvariants(t, plan)
	assert.Equal(t, 1+GenerationRetries, gen.calls)
	assert.Equal(t, model.PlanSourceFallback, plan.PlanSource)
}

func TestLegacyPlan(t *testing.T) {
	plan := LegacyPlan("demo")
	assertPlanInvariants(t, plan)
	assert.Len(t, plan.Steps, 3)
	assert.Equal(t, model.SeverityCritical, plan.OverallSeverity)
	assert.Equal(t, model.PlanSourceLegacy, plan.PlanSource)

	plan.Steps[0].AffectedFiles[0] = "mutated"
	assert.Equal(t, ".github/workflows/deploy.yml", LegacyPlan("demo").Steps[0].AffectedFiles[0])
}

func TestInsight(t *testing.T) {
	run := model.SimulationRun{RepoID: "demo", RunID: "demo_1", Plan: LegacyPlan("demo")}
	report := model.SimulationReport{RepoID: "demo", RunID: "demo_1"}

	_, ok := New(zap.NewNop()).Insight(context.Background(), run, report)
	assert.False(t, ok)

	gen := &fakeGenerator{responses: []string{"  Rotate the CI token.  "}}
	text, ok := New(zap.NewNop(), WithGenerator(gen), WithGeneration(true)).Insight(context.Background(), run, report)
	assert.True(t, ok)
	assert.Equal(t, "Rotate the CI token.", text)
	assert.Contains(t, gen.prompts[0], "Simulation Run: demo_1")

	failing := &fakeGenerator{errs: []error{errors.New("down")}}
	text, ok = New(zap.NewNop(), WithGenerator(failing), WithGeneration(true)).Insight(context.Background(), run, report)
	assert.True(t, ok)
	assert.Equal(t, InsightUnavailable, text)

	text, ok = New(zap.NewNop(), WithGeneration(true)).Insight(context.Background(), run, report)
	assert.True(t, ok)
	assert.Equal(t, InsightUnavailable, text)
}

func TestQueryRequiresGenerator(t *testing.T) {
	_, _, err := New(zap.NewNop()).Query(context.Background(), "hi")
	assert.Error(t, err)

	gen := &fakeGenerator{responses: []string{"pong"}}
	text, modelName, err := New(zap.NewNop(), WithGenerator(gen)).Query(context.Background(), "ping")
	require.NoError(t, err)
	assert.Equal(t, "pong", text)
	assert.Equal(t, "fake-model", modelName)
}
