package scanner

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/cognitoforge/redteam-backend/model"
)

// DefaultMaxScanSize is the content scanning ceiling in bytes.
const DefaultMaxScanSize = 500 * 1024

// Risk reasons attached to file entries.
const (
	ReasonSensitiveFile   = "Sensitive configuration or secret-bearing file"
	ReasonSensitiveName   = "Filename contains sensitive keyword"
	ReasonCIPipeline      = "CI/CD pipeline may expose secrets"
	ReasonDockerConfig    = "Docker configuration affecting container security"
	ReasonConfigLocation  = "Configuration file with potential secrets"
	ReasonExecutable      = "Executable script"
	reasonCriticalPattern = "CRITICAL: %s detected"
)

var highRiskSuffixes = stringSet(
	".env", ".yaml", ".yml", ".json", ".ini", ".cfg", ".conf",
	".tf", ".toml", ".pem", ".key", ".ppk", ".p12", ".jks",
	".properties", ".config", ".xml", ".gradle", ".npmrc",
)

var highRiskFilenames = stringSet(
	"dockerfile", "docker-compose.yml", "docker-compose.yaml",
	".dockerignore", "jenkinsfile", ".gitlab-ci.yml", ".travis.yml",
	"circle.yml", "bitbucket-pipelines.yml", "azure-pipelines.yml",
	"secrets", "credentials", "passwords", "token", "id_rsa",
	"id_dsa", "known_hosts", ".htpasswd", "web.config",
)

var sensitiveKeywords = []string{
	"secret", "credential", "token", "password", "config",
	"deploy", "workflow", "env", "key", "private", "api_key",
	"auth", "jwt", "session", "cookie", "database", "db_pass",
}

var codeExtensions = stringSet(
	".py", ".js", ".ts", ".java", ".php", ".rb", ".go",
	".c", ".cpp", ".cs", ".sql", ".sh", ".bash", ".ps1",
)

var scriptExtensions = stringSet(".sh", ".ps1", ".bat")

var dockerSuffixes = stringSet("", ".yml", ".yaml")

func stringSet(values ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func inSet(set map[string]struct{}, v string) bool {
	_, ok := set[v]
	return ok
}

// Scanner assesses individual files against filename heuristics and the rule registry.
type Scanner struct {
	rules       *Registry
	maxScanSize int64
	workers     int
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithRegistry replaces the default rule registry.
func WithRegistry(r *Registry) Option {
	return func(s *Scanner) { s.rules = r }
}

// WithMaxScanSize sets the content scanning ceiling.
func WithMaxScanSize(n int64) Option {
	return func(s *Scanner) { s.maxScanSize = n }
}

// WithWorkers bounds the number of files assessed concurrently.
func WithWorkers(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.workers = n
		}
	}
}

// New returns a Scanner using the default rules unless overridden.
func New(opts ...Option) *Scanner {
	s := &Scanner{
		rules:       DefaultRegistry(),
		maxScanSize: DefaultMaxScanSize,
		workers:     8,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AssessFile classifies the file at absPath, whose repo-relative slash path is relPath.
func (s *Scanner) AssessFile(absPath, relPath string, size int64) model.FileEntry {
	name := strings.ToLower(path.Base(relPath))
	suffix := strings.ToLower(filepath.Ext(relPath))
	relLower := strings.ToLower(relPath)

	entry := model.FileEntry{
		Path:        relPath,
		Size:        size,
		Extension:   suffix,
		RiskReasons: []string{},
	}

	reasons := heuristicReasons(name, suffix, relLower)

	var findings map[string][]string
	if inSet(codeExtensions, suffix) && size < s.maxScanSize {
		findings = s.scanFile(absPath)
	}

	switch {
	case len(findings) > 0:
		for _, class := range s.rules.OrderedClasses(findings) {
			reasons = append(reasons, criticalReason(class))
		}
		entry.RiskLevel = model.SeverityCritical
		entry.Vulnerabilities = findings
	case len(reasons) > 0:
		entry.RiskLevel = model.SeverityHigh
	case inSet(scriptExtensions, suffix):
		entry.RiskLevel = model.SeverityMedium
		reasons = []string{ReasonExecutable}
	default:
		entry.RiskLevel = model.SeverityLow
	}

	if reasons != nil {
		entry.RiskReasons = reasons
	}
	return entry
}

func criticalReason(class string) string {
	return fmt.Sprintf(reasonCriticalPattern, DisplayName(class))
}

// scanFile reads and scans a file. Read errors count as no findings.
func (s *Scanner) scanFile(absPath string) map[string][]string {
	content, err := os.ReadFile(absPath)
	if err != nil {
		return nil
	}
	return s.rules.Scan(content)
}

func heuristicReasons(name, suffix, relLower string) []string {
	var reasons []string

	if inSet(highRiskFilenames, name) || inSet(highRiskSuffixes, suffix) {
		reasons = append(reasons, ReasonSensitiveFile)
	}
	for _, kw := range sensitiveKeywords {
		if strings.Contains(name, kw) {
			reasons = append(reasons, ReasonSensitiveName)
			break
		}
	}
	if strings.Contains(relLower, ".github/workflows") || strings.Contains(relLower, ".gitlab-ci") {
		reasons = append(reasons, ReasonCIPipeline)
	}
	if strings.Contains(relLower, "docker") && inSet(dockerSuffixes, suffix) {
		reasons = append(reasons, ReasonDockerConfig)
	}
	if strings.HasSuffix(relLower, "/config.json") || strings.HasSuffix(relLower, "/config.yaml") {
		reasons = append(reasons, ReasonConfigLocation)
	}
	return reasons
}
