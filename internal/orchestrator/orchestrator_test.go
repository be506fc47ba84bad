package orchestrator

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cognitoforge/redteam-backend/internal/cache"
	"github.com/cognitoforge/redteam-backend/internal/fetcher"
	"github.com/cognitoforge/redteam-backend/internal/planner"
	"github.com/cognitoforge/redteam-backend/internal/runlog"
	"github.com/cognitoforge/redteam-backend/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *manualClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeManifests struct {
	manifest *model.Manifest
	err      error
}

func (f fakeManifests) LoadManifest(string) (*model.Manifest, error) { return f.manifest, f.err }
func (f fakeManifests) RepoDir(repoID string) string               { return "/nonexistent/" + repoID }

type fakePlanner struct {
	mu       sync.Mutex
	enabled  bool
	calls    int
	insight  string
	profiles []planner.Profile
}

func (f *fakePlanner) Enabled() bool { return f.enabled }

func (f *fakePlanner) Synthesize(_ context.Context, p planner.Profile, _ int) model.AttackPlan {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.profiles = append(f.profiles, p)
	plan, err := model.NewAttackPlan(p.RepoID, model.SeverityHigh, []model.AttackStep{
		{Description: "Abuse the upload handler", TechniqueID: "T1190", Severity: model.SeverityHigh, AffectedFiles: []string{"b.py", "a.py"}},
		{Description: "Read secrets", TechniqueID: "T1552", Severity: model.SeverityHigh, AffectedFiles: []string{"a.py"}},
	})
	if err != nil {
		panic(err)
	}
	plan.PlanSource = model.PlanSourceFallbackScan
	return plan
}

func (f *fakePlanner) Insight(context.Context, model.SimulationRun, model.SimulationReport) (string, bool) {
	if !f.enabled {
		return "", false
	}
	return f.insight, true
}

func (f *fakePlanner) synthCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingStore struct {
	mu       sync.Mutex
	ok       bool
	runs     []model.SimulationRun
	rows     []model.AffectedFileRow
	insights []string
	report   *model.SimulationReport
	dist     *model.SeverityDistribution
}

func (s *recordingStore) Name() string { return "recording" }

func (s *recordingStore) StoreSimulationRun(_ context.Context, run model.SimulationRun) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	return s.ok
}

func (s *recordingStore) StoreAffectedFiles(_ context.Context, _, _ string, rows []model.AffectedFileRow) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, rows...)
	return s.ok
}

func (s *recordingStore) StoreAIInsight(_ context.Context, _, _, insight string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insights = append(s.insights, insight)
	return s.ok
}

func (s *recordingStore) FetchLatestReport(context.Context, string) *model.SimulationReport {
	return s.report
}

func (s *recordingStore) FetchReport(context.Context, string, string) *model.SimulationReport {
	return s.report
}

func (s *recordingStore) FetchSeverityDistribution(context.Context) *model.SeverityDistribution {
	return s.dist
}

func (s *recordingStore) Close() {}

func newTestOrchestrator(t *testing.T, manifests ManifestSource, p Planner, opts ...Option) (*Orchestrator, *runlog.Log) {
	t.Helper()
	runs, err := runlog.Open(filepath.Join(t.TempDir(), "simulations"), zap.NewNop())
	require.NoError(t, err)
	return New(manifests, p, runs, zap.NewNop(), opts...), runs
}

func decode(t *testing.T, payload json.RawMessage) model.SimulationResponse {
	t.Helper()
	var resp model.SimulationResponse
	require.NoError(t, json.Unmarshal(payload, &resp))
	return resp
}

func TestSimulateCacheTTL(t *testing.T) {
	clock := &manualClock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	p := &fakePlanner{}
	o, _ := newTestOrchestrator(t, fakeManifests{manifest: &model.Manifest{RepoID: "demo"}}, p,
		WithClock(clock.now), WithCache(cache.New(cache.WithClock(clock.now))))
	ctx := context.Background()

	first, cached, err := o.Simulate(ctx, "demo", false)
	require.NoError(t, err)
	assert.False(t, cached)

	clock.advance(599 * time.Second)
	second, cached, err := o.Simulate(ctx, "demo", false)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, []byte(first), []byte(second))
	assert.Equal(t, 1, p.synthCalls())

	clock.advance(2 * time.Second)
	third, cached, err := o.Simulate(ctx, "demo", false)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 2, p.synthCalls())
	assert.NotEqual(t, decode(t, first).RunID, decode(t, third).RunID)

	_, cached, err = o.Simulate(ctx, "demo", true)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 3, p.synthCalls())
}

func TestForcedSimulateDropsCachedResponse(t *testing.T) {
	p := &fakePlanner{}
	c := cache.New()
	o, runs := newTestOrchestrator(t, fakeManifests{manifest: &model.Manifest{RepoID: "demo"}}, p, WithCache(c))
	ctx := context.Background()

	_, _, err := o.Simulate(ctx, "demo", false)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())

	// the run log can no longer be written, so the forced run fails
	require.NoError(t, os.RemoveAll(runs.Dir()))
	_, _, err = o.Simulate(ctx, "demo", true)
	require.Error(t, err)
	assert.Zero(t, c.Len())

	_, cached, err := o.Simulate(ctx, "demo", false)
	require.Error(t, err)
	assert.False(t, cached)
	assert.Equal(t, 3, p.synthCalls())
}

func TestSimulateMissingManifestUsesLegacyPlan(t *testing.T) {
	p := &fakePlanner{}
	o, runs := newTestOrchestrator(t, fakeManifests{err: fetcher.ErrManifestNotFound}, p)

	payload, _, err := o.Simulate(context.Background(), "demo", false)
	require.NoError(t, err)
	resp := decode(t, payload)

	assert.Zero(t, p.synthCalls())
	assert.Equal(t, model.PlanSourceLegacy, resp.Plan.PlanSource)
	require.Len(t, resp.Sandbox.Logs, 3)
	for i, entry := range resp.Sandbox.Logs {
		assert.Equal(t, i+1, entry.Step)
		assert.Equal(t, "success", entry.Status)
		assert.Equal(t, resp.Plan.Steps[i].Description, entry.Action)
		assert.True(t, strings.HasSuffix(entry.Timestamp, "Z"))
	}
	assert.Equal(t, SandboxSummary, resp.Sandbox.Summary)

	assert.Equal(t, model.TaskStatusOK, resp.Persistence.RunLog)
	assert.Equal(t, model.TaskStatusSkipped, resp.Persistence.StoreRun)
	assert.Equal(t, model.TaskStatusUnavailable, resp.InsightTask.Status)
	assert.True(t, resp.InsightTask.Mock)

	stored, err := runs.Load("demo", resp.RunID)
	require.NoError(t, err)
	assert.Equal(t, resp.Plan.Steps, stored.Plan.Steps)
}

func TestSimulatePassesSelectedFiles(t *testing.T) {
	m := &model.Manifest{
		RepoID: "demo",
		Files: []model.FileEntry{
			{Path: "README.md", RiskLevel: model.SeverityLow},
			{Path: "app.py", RiskLevel: model.SeverityCritical, Vulnerabilities: map[string][]string{"command_injection": {"Line 1"}}},
		},
	}
	p := &fakePlanner{}
	o, _ := newTestOrchestrator(t, fakeManifests{manifest: m}, p)

	_, _, err := o.Simulate(context.Background(), "demo", false)
	require.NoError(t, err)
	require.Len(t, p.profiles, 1)
	assert.Equal(t, "app.py", p.profiles[0].HighRiskFiles[0].Path)
	assert.Equal(t, "/nonexistent/demo", p.profiles[0].RepoDir)
}

func TestSimulateMirrorsToStore(t *testing.T) {
	store := &recordingStore{ok: true}
	p := &fakePlanner{enabled: true, insight: "Patch the upload handler first."}
	o, _ := newTestOrchestrator(t, fakeManifests{manifest: &model.Manifest{}}, p, WithStore(store))

	payload, _, err := o.Simulate(context.Background(), "demo", false)
	require.NoError(t, err)
	resp := decode(t, payload)

	assert.Equal(t, model.TaskStatusOK, resp.Persistence.StoreRun)
	assert.Equal(t, model.TaskStatusOK, resp.Persistence.StoreFiles)
	assert.Equal(t, model.TaskStatusOK, resp.Persistence.StoreInsight)
	require.Len(t, store.runs, 1)
	assert.Equal(t, resp.RunID, store.runs[0].RunID)
	assert.Len(t, store.rows, 3)
	assert.Equal(t, []string{"Patch the upload handler first."}, store.insights)

	assert.Equal(t, model.TaskStatusCompleted, resp.InsightTask.Status)
	assert.NotEmpty(t, resp.InsightTask.TaskID)
	assert.Equal(t, "Patch the upload handler first.", resp.InsightTask.Insight)
}

func TestSimulateStoreFailureIsNotFatal(t *testing.T) {
	store := &recordingStore{ok: false}
	p := &fakePlanner{enabled: true, insight: planner.InsightUnavailable}
	o, _ := newTestOrchestrator(t, fakeManifests{manifest: &model.Manifest{}}, p, WithStore(store))

	payload, _, err := o.Simulate(context.Background(), "demo", false)
	require.NoError(t, err)
	resp := decode(t, payload)

	assert.Equal(t, model.TaskStatusFailed, resp.Persistence.StoreRun)
	assert.Equal(t, model.TaskStatusFailed, resp.Persistence.StoreFiles)
	assert.Equal(t, model.TaskStatusError, resp.InsightTask.Status)
	assert.Equal(t, planner.InsightUnavailable, resp.InsightTask.Error)
	assert.Empty(t, store.insights)
}

func TestSimulateRejectsBadRepoID(t *testing.T) {
	o, _ := newTestOrchestrator(t, fakeManifests{}, &fakePlanner{})
	_, _, err := o.Simulate(context.Background(), "../../etc", false)
	assert.ErrorIs(t, err, model.ErrInvalidRepoID)
}

func TestRunIDsAreUniqueWithinATick(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 6000, time.UTC)
	o, _ := newTestOrchestrator(t, fakeManifests{}, &fakePlanner{}, WithClock(func() time.Time { return fixed }))

	ts1, id1 := o.nextRunID("demo")
	ts2, id2 := o.nextRunID("demo")
	assert.Equal(t, "demo_20260102T030405000006", id1)
	assert.NotEqual(t, id1, id2)
	assert.True(t, ts2.After(ts1))
}

func TestReportsRecomputedFromRun(t *testing.T) {
	p := &fakePlanner{}
	o, _ := newTestOrchestrator(t, fakeManifests{manifest: &model.Manifest{}}, p)
	ctx := context.Background()

	payload, _, err := o.Simulate(ctx, "demo", false)
	require.NoError(t, err)
	runID := decode(t, payload).RunID

	latest, err := o.LatestReport(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, runID, latest.RunID)
	assert.Equal(t, 2, latest.Summary.HighSteps)
	assert.Equal(t, []string{"a.py", "b.py"}, latest.Summary.AffectedFiles)
	assert.Empty(t, latest.AIInsight)

	byID, err := o.Report(ctx, "demo", runID)
	require.NoError(t, err)
	assert.Equal(t, latest, byID)

	summaries, err := o.ListRuns("demo")
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, model.SeverityHigh, summaries[0].OverallSeverity)

	run, err := o.Run("demo", runID)
	require.NoError(t, err)
	assert.Equal(t, runID, run.RunID)
}

func TestReportNotFound(t *testing.T) {
	o, _ := newTestOrchestrator(t, fakeManifests{}, &fakePlanner{})
	ctx := context.Background()

	_, err := o.LatestReport(ctx, "demo")
	assert.ErrorIs(t, err, runlog.ErrRunNotFound)

	_, err = o.Report(ctx, "demo", "demo_1")
	assert.ErrorIs(t, err, runlog.ErrRunNotFound)

	_, err = o.Report(ctx, "bad id", "demo_1")
	assert.ErrorIs(t, err, model.ErrInvalidRepoID)
}

func TestStoredReportPreferredAndCompleted(t *testing.T) {
	p := &fakePlanner{}
	store := &recordingStore{ok: true}
	o, _ := newTestOrchestrator(t, fakeManifests{manifest: &model.Manifest{}}, p, WithStore(store))
	ctx := context.Background()

	payload, _, err := o.Simulate(ctx, "demo", false)
	require.NoError(t, err)
	runID := decode(t, payload).RunID

	p.enabled = true
	p.insight = "Focus on a.py."
	store.report = &model.SimulationReport{RepoID: "demo", RunID: runID, Summary: model.ReportSummary{CriticalSteps: 9}}

	report, err := o.LatestReport(ctx, "demo")
	require.NoError(t, err)
	assert.Zero(t, report.Summary.CriticalSteps)
	assert.Equal(t, 2, report.Summary.HighSteps)
	assert.Equal(t, []string{"a.py", "b.py"}, report.Summary.AffectedFiles)
	assert.Equal(t, "Focus on a.py.", report.AIInsight)
	assert.Contains(t, store.insights, "Focus on a.py.")
}

func TestStoredReportKeepsStoredInsight(t *testing.T) {
	p := &fakePlanner{enabled: true, insight: "fresh"}
	store := &recordingStore{ok: true}
	o, _ := newTestOrchestrator(t, fakeManifests{manifest: &model.Manifest{}}, p, WithStore(store))
	ctx := context.Background()

	payload, _, err := o.Simulate(ctx, "demo", false)
	require.NoError(t, err)
	runID := decode(t, payload).RunID
	stored := len(store.insights)

	store.report = &model.SimulationReport{RepoID: "demo", RunID: runID, AIInsight: "from store"}
	report, err := o.Report(ctx, "demo", runID)
	require.NoError(t, err)
	assert.Equal(t, "from store", report.AIInsight)
	assert.Equal(t, 2, report.Summary.HighSteps)
	assert.Len(t, store.insights, stored)
}

func TestStoredReportWithoutLocalRun(t *testing.T) {
	store := &recordingStore{ok: true}
	o, _ := newTestOrchestrator(t, fakeManifests{manifest: &model.Manifest{}}, &fakePlanner{}, WithStore(store))

	store.report = &model.SimulationReport{RepoID: "demo", RunID: "demo_20260101T000000000000", Summary: model.ReportSummary{CriticalSteps: 9}}
	report, err := o.LatestReport(context.Background(), "demo")
	require.NoError(t, err)
	assert.Equal(t, 9, report.Summary.CriticalSteps)
}

func TestSeverityDistribution(t *testing.T) {
	store := &recordingStore{ok: true}
	o, _ := newTestOrchestrator(t, fakeManifests{err: fetcher.ErrManifestNotFound}, &fakePlanner{}, WithStore(store))
	ctx := context.Background()

	_, _, err := o.Simulate(ctx, "demo", false)
	require.NoError(t, err)

	local, err := o.SeverityDistribution(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.SeverityDistribution{Critical: 1}, local)

	store.dist = &model.SeverityDistribution{High: 4}
	remote, err := o.SeverityDistribution(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.SeverityDistribution{High: 4}, remote)

	all, err := o.AllRuns()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestDependencies(t *testing.T) {
	m := &model.Manifest{Dependencies: []model.DependencyFinding{{Package: "flask", Severity: model.SeverityHigh}}}
	o, _ := newTestOrchestrator(t, fakeManifests{manifest: m}, &fakePlanner{})

	deps, err := o.Dependencies("demo")
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.Equal(t, "flask", deps[0].Package)

	o2, _ := newTestOrchestrator(t, fakeManifests{err: fetcher.ErrManifestNotFound}, &fakePlanner{})
	_, err = o2.Dependencies("demo")
	assert.ErrorIs(t, err, fetcher.ErrManifestNotFound)
}
