package depscan

import (
	"strings"

	"github.com/cognitoforge/redteam-backend/model"
	"github.com/google/osv-scanner/pkg/models"
	gocvss31 "github.com/pandatix/go-cvss/31"
	gocvss40 "github.com/pandatix/go-cvss/40"
)

// CalculateCVSSScore calculates the CVSS base score from a vector string
func CalculateCVSSScore(vectorStr string) float64 {
	if vectorStr == "" || !strings.HasPrefix(vectorStr, "CVSS:") {
		return 0
	}
	if strings.HasPrefix(vectorStr, "CVSS:3.1") || strings.HasPrefix(vectorStr, "CVSS:3.0") {
		if cvss31, err := gocvss31.ParseVector(vectorStr); err == nil {
			return cvss31.BaseScore()
		}
	}
	if strings.HasPrefix(vectorStr, "CVSS:4.0") {
		if cvss40, err := gocvss40.ParseVector(vectorStr); err == nil {
			return cvss40.Score()
		}
	}
	return 0
}

// SeverityFromScore maps a CVSS base score onto the severity scale. A zero
// score has no rating and yields ok == false.
func SeverityFromScore(score float64) (model.Severity, bool) {
	switch {
	case score <= 0:
		return "", false
	case score < 4.0:
		return model.SeverityLow, true
	case score < 7.0:
		return model.SeverityMedium, true
	case score < 9.0:
		return model.SeverityHigh, true
	default:
		return model.SeverityCritical, true
	}
}

// highestScore returns the best CVSS v3/v4 score attached to vuln.
func highestScore(vuln models.Vulnerability) float64 {
	var best float64
	for _, sev := range vuln.Severity {
		if sev.Type != models.SeverityCVSSV3 && sev.Type != models.SeverityCVSSV4 {
			continue
		}
		if s := CalculateCVSSScore(sev.Score); s > best {
			best = s
		}
	}
	return best
}

// rateVulnerability prefers the CVSS vector, then the advisory's own
// database_specific severity label, then high.
func rateVulnerability(vuln models.Vulnerability) (model.Severity, float64) {
	score := highestScore(vuln)
	if sev, ok := SeverityFromScore(score); ok {
		return sev, score
	}

	if label, ok := vuln.DatabaseSpecific["severity"].(string); ok && label != "" {
		upper := strings.ToUpper(label)
		switch {
		case strings.Contains(upper, "CRITICAL"):
			return model.SeverityCritical, 0
		case strings.Contains(upper, "HIGH"):
			return model.SeverityHigh, 0
		case strings.Contains(upper, "MODERATE"), strings.Contains(upper, "MEDIUM"):
			return model.SeverityMedium, 0
		default:
			return model.SeverityLow, 0
		}
	}
	return model.SeverityHigh, 0
}
