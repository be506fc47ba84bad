package scanner

import (
	"testing"

	"github.com/cognitoforge/redteam-backend/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistryDetectsClasses(t *testing.T) {
	reg := DefaultRegistry()

	tests := []struct {
		name    string
		content string
		class   string
		line    string
	}{
		{"sql concat", "x = 1\ncursor.execute(\"SELECT * FROM users WHERE id=\" + uid)\n", ClassSQLInjection, "Line 2"},
		{"sql fstring", "q = f\"SELECT name FROM t WHERE id={uid}\"", ClassSQLInjection, "Line 1"},
		{"os system", "import os\n\nos.system(cmd)\n", ClassCommandInjection, "Line 3"},
		{"subprocess popen", "subprocess.Popen(args)", ClassCommandInjection, "Line 1"},
		{"eval upper case", "EVAL (input)", ClassCommandInjection, "Line 1"},
		{"password", "password = \"hunter2hunter2\"", ClassHardcodedSecrets, "Line 1"},
		{"aws", "AWS_SECRET_ACCESS_KEY=abc", ClassHardcodedSecrets, "Line 1"},
		{"inner html", "el.innerHTML = userInput;", ClassXSS, "Line 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			findings := reg.Scan([]byte(tt.content))
			require.Contains(t, findings, tt.class)
			assert.Equal(t, []string{tt.line}, findings[tt.class])
		})
	}
}

func TestDefaultRegistryIgnoresCleanCode(t *testing.T) {
	reg := DefaultRegistry()

	clean := []string{
		"def add(a, b):\n    return a + b\n",
		"password = \"short\"",
		"cursor.execute(\"SELECT 1\", params)",
		"el.textContent = value;",
	}
	for _, c := range clean {
		assert.Empty(t, reg.Scan([]byte(c)), c)
	}
}

func TestRegisterReplacesExistingClass(t *testing.T) {
	reg := DefaultRegistry()
	rule, err := NewRule(ClassXSS, model.SeverityLow, `never-matches-anything-xyz`)
	require.NoError(t, err)

	reg.Register(rule)

	assert.Equal(t, []string{ClassSQLInjection, ClassCommandInjection, ClassHardcodedSecrets, ClassXSS}, reg.Classes())
	assert.Empty(t, reg.Scan([]byte("el.innerHTML = x")))
	got, ok := reg.Rule(ClassXSS)
	require.True(t, ok)
	assert.Equal(t, model.SeverityLow, got.Severity)
}

func TestParseRules(t *testing.T) {
	data := []byte(`
rules:
  - class: insecure_deserialization
    severity: HIGH
    patterns:
      - 'pickle\.loads\s*\('
      - 'yaml\.load\s*\('
`)
	rules, err := ParseRules(data)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "insecure_deserialization", rules[0].Class)
	assert.Equal(t, model.SeverityHigh, rules[0].Severity)

	reg := NewRegistry()
	reg.Register(rules[0])
	findings := reg.Scan([]byte("import pickle\nobj = pickle.loads(blob)\n"))
	assert.Equal(t, map[string][]string{"insecure_deserialization": {"Line 2"}}, findings)
}

func TestParseRulesRejectsBadPattern(t *testing.T) {
	_, err := ParseRules([]byte("rules:\n  - class: broken\n    patterns: ['(unclosed']\n"))
	assert.Error(t, err)

	_, err = ParseRules([]byte("rules:\n  - class: empty\n"))
	assert.Error(t, err)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Sql Injection", DisplayName("sql_injection"))
	assert.Equal(t, "Xss Vulnerable", DisplayName("xss_vulnerable"))
}
