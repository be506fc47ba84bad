package scanner

import (
	"testing"

	"github.com/cognitoforge/redteam-backend/model"
	"github.com/stretchr/testify/assert"
)

func paths(files []model.FileEntry) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.Path)
	}
	return out
}

func TestSelectHighRiskVulnerableBeforeCritical(t *testing.T) {
	m := &model.Manifest{Files: []model.FileEntry{
		{Path: "critical.py", Size: 9000, RiskLevel: model.SeverityCritical},
		{Path: "vuln.py", Size: 10, RiskLevel: model.SeverityCritical, Vulnerabilities: map[string][]string{ClassSQLInjection: {"Line 1"}}},
	}}

	assert.Equal(t, []string{"vuln.py", "critical.py"}, paths(SelectHighRisk(m, 10)))
}

func TestSelectHighRiskOrdering(t *testing.T) {
	m := &model.Manifest{Files: []model.FileEntry{
		{Path: "low.txt", Size: 100, RiskLevel: model.SeverityLow},
		{Path: "med.sh", Size: 5, RiskLevel: model.SeverityMedium},
		{Path: "high-small.yml", Size: 10, RiskLevel: model.SeverityHigh},
		{Path: "high-big.yml", Size: 50, RiskLevel: model.SeverityHigh},
		{Path: "one-vuln.py", Size: 500, Vulnerabilities: map[string][]string{"a": {"Line 1"}}},
		{Path: "two-vulns.py", Size: 1, Vulnerabilities: map[string][]string{"a": {"Line 1"}, "b": {"Line 2"}}},
		{Path: "high-tie.yml", Size: 10, RiskLevel: model.SeverityHigh},
	}}

	got := paths(SelectHighRisk(m, 10))
	assert.Equal(t, []string{"two-vulns.py", "one-vuln.py", "high-big.yml", "high-small.yml", "high-tie.yml", "med.sh", "low.txt"}, got)

	assert.Equal(t, []string{"two-vulns.py", "one-vuln.py"}, paths(SelectHighRisk(m, 2)))
	assert.Equal(t, "low.txt", m.Files[0].Path, "input must not be reordered")
}

func TestSelectHighRiskEmpty(t *testing.T) {
	assert.Empty(t, SelectHighRisk(nil, 5))
	assert.Empty(t, SelectHighRisk(&model.Manifest{}, 5))
}

func TestSelectHighRiskUnknownLevelLast(t *testing.T) {
	m := &model.Manifest{Files: []model.FileEntry{
		{Path: "odd.bin", Size: 500, RiskLevel: model.Severity("unknown")},
		{Path: "low.txt", Size: 1, RiskLevel: model.SeverityLow},
		{Path: "crit.py", Size: 1, RiskLevel: model.SeverityCritical},
	}}
	assert.Equal(t, []string{"crit.py", "low.txt", "odd.bin"}, paths(SelectHighRisk(m, 10)))
}
