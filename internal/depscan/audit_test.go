package depscan

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/cognitoforge/redteam-backend/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const flaskAdvisory = `{"vulns":[{
  "id": "GHSA-m2qf-hxjv-5gpq",
  "aliases": ["CVE-2023-30861"],
  "summary": "Flask session cookie disclosure",
  "severity": [{"type": "CVSS_V3", "score": "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:H/I:N/A:N"}],
  "affected": [{
    "package": {"ecosystem": "PyPI", "name": "flask"},
    "ranges": [{"type": "ECOSYSTEM", "events": [{"introduced": "0"}, {"fixed": "2.2.5"}]}]
  }]
}]}`

func TestAudit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var q osvQuery
		require.NoError(t, json.NewDecoder(r.Body).Decode(&q))
		if q.Package.Name == "flask" {
			_, _ = w.Write([]byte(flaskAdvisory))
			return
		}
		if q.Package.Name == "broken" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	repo := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(repo, "requirements.txt"), []byte("flask==2.0.1\nbroken==1.0\nsafe==1.0\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(repo, "node_modules", "x"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(repo, "node_modules", "x", "package.json"), []byte(`{"dependencies":{"flask":"1.0.0"}}`), 0o644))

	findings := NewAuditor(srv.URL, zap.NewNop()).Audit(context.Background(), repo)
	require.Len(t, findings, 1)

	f := findings[0]
	assert.Equal(t, "requirements.txt", f.File)
	assert.Equal(t, "flask", f.Package)
	assert.Equal(t, "GHSA-m2qf-hxjv-5gpq", f.VulnID)
	assert.Equal(t, model.SeverityHigh, f.Severity)
	assert.InDelta(t, 7.5, f.CVSSScore, 0.01)
	assert.Equal(t, "Upgrade to 2.2.5", f.Recommendation)
	assert.Equal(t, "pkg:pypi/flask@2.0.1", f.Purl)
}

func TestAuditNotAffectedVersion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(flaskAdvisory))
	}))
	defer srv.Close()

	repo := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(repo, "requirements.txt"), []byte("flask==3.0.0\n"), 0o644))

	assert.Empty(t, NewAuditor(srv.URL, zap.NewNop()).Audit(context.Background(), repo))
}

func TestRateVulnerabilityDatabaseSpecific(t *testing.T) {
	var resp osvResponse
	require.NoError(t, json.Unmarshal([]byte(`{"vulns":[{"id":"X","database_specific":{"severity":"MODERATE"}},{"id":"Y"}]}`), &resp))

	sev, score := rateVulnerability(resp.Vulns[0])
	assert.Equal(t, model.SeverityMedium, sev)
	assert.Zero(t, score)

	sev, _ = rateVulnerability(resp.Vulns[1])
	assert.Equal(t, model.SeverityHigh, sev)
}
