// Package scanner classifies repository files by security risk and builds the
// repository manifest.
package scanner

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/cognitoforge/redteam-backend/model"
	"gopkg.in/yaml.v2"
)

// Vulnerability class names.
const (
	ClassSQLInjection     = "sql_injection"
	ClassCommandInjection = "command_injection"
	ClassHardcodedSecrets = "hardcoded_secrets"
	ClassXSS              = "xss_vulnerable"
)

// lineFallback is attached when a pattern matched the file but no single line.
const lineFallback = "Pattern detected"

// Rule detects one vulnerability class. A class is found when any pattern matches.
type Rule struct {
	Class    string
	Severity model.Severity
	Patterns []*regexp.Regexp
}

// Registry is an ordered set of rules. Scan results follow registry order.
type Registry struct {
	rules []Rule
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// DefaultRegistry returns the built-in rule set.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(mustRule(ClassSQLInjection, model.SeverityCritical,
		`execute\s*\(\s*['"].*?\+`,
		`query\s*\(\s*['"].*?\+`,
		`query\s*\(\s*f['"]`,
		`SELECT.*FROM.*WHERE.*\+`,
		`INSERT.*INTO.*VALUES.*\+`,
		`\.format\s*\(.*SELECT`,
		`f['"]SELECT.*\{`,
	))
	r.Register(mustRule(ClassCommandInjection, model.SeverityCritical,
		`os\.system\s*\(`,
		`subprocess\.(call|run|Popen)\s*\(`,
		`eval\s*\(`,
		`exec\s*\(`,
	))
	r.Register(mustRule(ClassHardcodedSecrets, model.SeverityHigh,
		`password\s*=\s*['"][^'"]{8,}['"]`,
		`api[_-]?key\s*=\s*['"][^'"]{20,}['"]`,
		`secret\s*=\s*['"][^'"]{8,}['"]`,
		`AWS_SECRET_ACCESS_KEY\s*=`,
		`sk-[a-zA-Z0-9]{48}`,
	))
	r.Register(mustRule(ClassXSS, model.SeverityMedium,
		`innerHTML\s*=`,
		`dangerouslySetInnerHTML`,
		`document\.write\s*\(`,
	))
	return r
}

// NewRule compiles patterns case-insensitively into a Rule.
func NewRule(class string, severity model.Severity, patterns ...string) (Rule, error) {
	if strings.TrimSpace(class) == "" {
		return Rule{}, fmt.Errorf("rule class is required")
	}
	if len(patterns) == 0 {
		return Rule{}, fmt.Errorf("rule %s has no patterns", class)
	}
	rule := Rule{Class: class, Severity: model.NormalizeSeverity(string(severity), model.SeverityHigh)}
	for _, p := range patterns {
		re, err := regexp.Compile(`(?i)` + p)
		if err != nil {
			return Rule{}, fmt.Errorf("rule %s: pattern %q: %w", class, p, err)
		}
		rule.Patterns = append(rule.Patterns, re)
	}
	return rule, nil
}

func mustRule(class string, severity model.Severity, patterns ...string) Rule {
	rule, err := NewRule(class, severity, patterns...)
	if err != nil {
		panic(err)
	}
	return rule
}

// Register appends a rule. A rule with an existing class replaces it in place.
func (r *Registry) Register(rule Rule) {
	for i := range r.rules {
		if r.rules[i].Class == rule.Class {
			r.rules[i] = rule
			return
		}
	}
	r.rules = append(r.rules, rule)
}

// Rules returns the registered rules in order.
func (r *Registry) Rules() []Rule {
	out := make([]Rule, len(r.rules))
	copy(out, r.rules)
	return out
}

// Rule looks up a rule by class.
func (r *Registry) Rule(class string) (Rule, bool) {
	for _, rule := range r.rules {
		if rule.Class == class {
			return rule, true
		}
	}
	return Rule{}, false
}

// Classes returns the class names in registry order.
func (r *Registry) Classes() []string {
	out := make([]string, 0, len(r.rules))
	for _, rule := range r.rules {
		out = append(out, rule.Class)
	}
	return out
}

// Scan applies every rule to content and returns the matched classes with a
// best-effort line reference for the first matching pattern of each class.
func (r *Registry) Scan(content []byte) map[string][]string {
	findings := make(map[string][]string)
	var lines [][]byte

	for _, rule := range r.rules {
		for _, re := range rule.Patterns {
			if !re.Match(content) {
				continue
			}
			if lines == nil {
				lines = bytes.Split(content, []byte("\n"))
			}
			findings[rule.Class] = []string{locateLine(re, lines)}
			break
		}
	}
	return findings
}

// OrderedClasses returns the keys of findings in registry order.
func (r *Registry) OrderedClasses(findings map[string][]string) []string {
	out := make([]string, 0, len(findings))
	for _, rule := range r.rules {
		if _, ok := findings[rule.Class]; ok {
			out = append(out, rule.Class)
		}
	}
	return out
}

func locateLine(re *regexp.Regexp, lines [][]byte) string {
	for i, line := range lines {
		if re.Match(line) {
			return fmt.Sprintf("Line %d", i+1)
		}
	}
	return lineFallback
}

// ruleFile is the YAML shape of an extra rules file.
type ruleFile struct {
	Rules []struct {
		Class    string   `yaml:"class"`
		Severity string   `yaml:"severity"`
		Patterns []string `yaml:"patterns"`
	} `yaml:"rules"`
}

// LoadRules parses extra rules from a YAML file.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	return ParseRules(data)
}

// ParseRules parses extra rules from YAML content.
func ParseRules(data []byte) ([]Rule, error) {
	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}

	rules := make([]Rule, 0, len(file.Rules))
	for _, raw := range file.Rules {
		rule, err := NewRule(raw.Class, model.Severity(raw.Severity), raw.Patterns...)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// DisplayName turns a class name into its title-cased label ("sql_injection" -> "Sql Injection").
func DisplayName(class string) string {
	words := strings.Split(class, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}
