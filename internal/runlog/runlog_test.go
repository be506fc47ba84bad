package runlog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cognitoforge/redteam-backend/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func sampleRun(repoID, runID string, ts time.Time, sev model.Severity) model.SimulationRun {
	return model.SimulationRun{
		RepoID:    repoID,
		RunID:     runID,
		Timestamp: ts,
		Plan: model.AttackPlan{
			RepoID:          repoID,
			OverallSeverity: sev,
			Steps: []model.AttackStep{{
				StepNumber:    1,
				Description:   "step",
				TechniqueID:   "T1552",
				Severity:      sev,
				AffectedFiles: []string{"a.py"},
			}},
		},
	}
}

func openLog(t *testing.T) *Log {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "simulations"), zap.NewNop())
	require.NoError(t, err)
	return l
}

func TestSaveAndLoad(t *testing.T) {
	l := openLog(t)
	ts := time.Date(2026, 3, 1, 12, 0, 0, 123456000, time.UTC)
	run := sampleRun("demo", "demo_20260301T120000123456", ts, model.SeverityHigh)

	require.NoError(t, l.Save(run))

	got, err := l.Load("demo", run.RunID)
	require.NoError(t, err)
	assert.Equal(t, run.RunID, got.RunID)
	assert.True(t, ts.Equal(got.Timestamp))
	assert.Equal(t, model.SeverityHigh, got.Plan.OverallSeverity)

	leftovers, err := filepath.Glob(filepath.Join(l.Dir(), ".run-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestSaveIsWriteOnce(t *testing.T) {
	l := openLog(t)
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	first := sampleRun("demo", "demo_1", ts, model.SeverityHigh)
	second := sampleRun("demo", "demo_1", ts, model.SeverityLow)

	require.NoError(t, l.Save(first))
	require.NoError(t, l.Save(second))

	got, err := l.Load("demo", "demo_1")
	require.NoError(t, err)
	assert.Equal(t, model.SeverityHigh, got.Plan.OverallSeverity)
}

func TestLoadErrors(t *testing.T) {
	l := openLog(t)

	_, err := l.Load("demo", "demo_missing")
	assert.ErrorIs(t, err, ErrRunNotFound)

	_, err = l.Load("demo", "../etc/passwd")
	assert.ErrorIs(t, err, ErrRunNotFound)

	require.NoError(t, os.WriteFile(filepath.Join(l.Dir(), "demo_bad.json"), []byte("{not json"), 0o644))
	_, err = l.Load("demo", "demo_bad")
	assert.ErrorIs(t, err, ErrRunData)

	require.NoError(t, l.Save(sampleRun("other", "other_1", time.Now().UTC(), model.SeverityLow)))
	_, err = l.Load("demo", "other_1")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestListNewestFirstSkipsUnreadable(t *testing.T) {
	l := openLog(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, l.Save(sampleRun("demo", "demo_a", base, model.SeverityLow)))
	require.NoError(t, l.Save(sampleRun("demo", "demo_b", base.Add(time.Minute), model.SeverityCritical)))
	require.NoError(t, l.Save(sampleRun("demo-two", "demo-two_a", base.Add(2*time.Minute), model.SeverityHigh)))
	require.NoError(t, os.WriteFile(filepath.Join(l.Dir(), "demo_broken.json"), []byte("nope"), 0o644))

	summaries, err := l.List("demo")
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "demo_b", summaries[0].RunID)
	assert.Equal(t, model.SeverityCritical, summaries[0].OverallSeverity)
	assert.Equal(t, "demo_a", summaries[1].RunID)

	all, err := l.ListAll()
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "demo-two_a", all[0].RunID)

	empty, err := l.List("nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSeverityCounts(t *testing.T) {
	l := openLog(t)
	now := time.Now().UTC()
	require.NoError(t, l.Save(sampleRun("demo", "demo_1", now, model.SeverityCritical)))
	require.NoError(t, l.Save(sampleRun("demo", "demo_2", now, model.SeverityCritical)))
	require.NoError(t, l.Save(sampleRun("demo", "demo_3", now, model.SeverityLow)))

	dist, err := l.SeverityCounts()
	require.NoError(t, err)
	assert.Equal(t, model.SeverityDistribution{Critical: 2, Low: 1}, dist)
}
