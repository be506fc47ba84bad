package planner

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/cognitoforge/redteam-backend/model"
)

// Parse failures. All of them send the synthesizer to the fallback plan.
var (
	ErrNoJSON       = errors.New("no valid JSON found in model response")
	ErrNotAnObject  = errors.New("model response is not a JSON object")
	ErrMissingSteps = errors.New("model response missing 'steps' array")
	ErrNoValidSteps = errors.New("no valid steps found in model response")
)

const (
	defaultTechniqueID  = "T0000"
	defaultVulnType     = "Unknown"
	defaultModelInsight = "AI-generated attack plan"
)

var (
	fencePattern  = regexp.MustCompile("(?s)```[A-Za-z]*\\s*(.*?)```")
	objectPattern = regexp.MustCompile(`(?s)\{.*\}`)
)

// generatedPlan is the validated content of a model response.
type generatedPlan struct {
	overall model.Severity
	insight string
	steps   []model.AttackStep
}

// extractJSON recovers a JSON value from possibly fenced, possibly noisy text.
func extractJSON(raw string) (interface{}, error) {
	text := strings.TrimSpace(raw)
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}

	var v interface{}
	if err := json.Unmarshal([]byte(text), &v); err == nil {
		return v, nil
	}

	block := objectPattern.FindString(text)
	if block == "" {
		return nil, ErrNoJSON
	}
	if err := json.Unmarshal([]byte(block), &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoJSON, err)
	}
	return v, nil
}

// parsePlan validates and sanitizes a raw model response. allowed restricts
// affected files when non-empty.
func parsePlan(raw string, allowed map[string]struct{}, maxSteps int) (generatedPlan, error) {
	v, err := extractJSON(raw)
	if err != nil {
		return generatedPlan{}, err
	}

	obj, ok := v.(map[string]interface{})
	if !ok {
		return generatedPlan{}, ErrNotAnObject
	}
	rawSteps, ok := obj["steps"].([]interface{})
	if !ok || len(rawSteps) == 0 {
		return generatedPlan{}, ErrMissingSteps
	}
	if len(rawSteps) > maxSteps {
		rawSteps = rawSteps[:maxSteps]
	}

	var steps []model.AttackStep
	for _, rs := range rawSteps {
		stepObj, ok := rs.(map[string]interface{})
		if !ok {
			continue
		}
		description := Sanitize(asString(stepObj["description"]))
		if description == "" {
			continue
		}
		vulnType := strings.TrimSpace(asString(stepObj["vulnerability_type"]))
		if vulnType == "" {
			vulnType = defaultVulnType
		}
		steps = append(steps, model.AttackStep{
			StepNumber:        len(steps) + 1,
			VulnerabilityType: vulnType,
			Description:       description,
			TechniqueID:       NormalizeTechniqueID(asString(stepObj["technique_id"])),
			Severity:          model.NormalizeSeverity(asString(stepObj["severity"]), model.SeverityMedium),
			AffectedFiles:     filterFiles(stepObj["affected_files"], allowed),
		})
	}
	if len(steps) == 0 {
		return generatedPlan{}, ErrNoValidSteps
	}

	insight := Sanitize(asString(obj["ai_insight"]))
	if insight == "" {
		insight = defaultModelInsight
	}

	return generatedPlan{
		overall: model.NormalizeSeverity(asString(obj["overall_severity"]), model.SeverityHigh),
		insight: insight,
		steps:   steps,
	}, nil
}

// NormalizeTechniqueID uppercases a MITRE ATT&CK id and ensures the T
// prefix. Empty or placeholder values become T0000.
func NormalizeTechniqueID(raw string) string {
	id := strings.ToUpper(strings.TrimSpace(raw))
	if id == "" || id == "N/A" || id == "NONE" {
		return defaultTechniqueID
	}
	if !strings.HasPrefix(id, "T") {
		id = "T" + id
	}
	return id
}

// filterFiles keeps the listed paths present in allowed. A bare string is
// treated as a one-element list.
func filterFiles(v interface{}, allowed map[string]struct{}) []string {
	var list []interface{}
	switch t := v.(type) {
	case []interface{}:
		list = t
	case string:
		list = []interface{}{t}
	default:
		return []string{}
	}
	files := []string{}
	for _, item := range list {
		path, ok := item.(string)
		if !ok {
			continue
		}
		if len(allowed) > 0 {
			if _, ok := allowed[path]; !ok {
				continue
			}
		}
		files = append(files, path)
		if len(files) == model.MaxAffectedFiles {
			break
		}
	}
	return files
}

func asString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}
