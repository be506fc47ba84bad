// Package model - Severity scale shared by file risk levels, attack steps and plans
package model

import "strings"

// Severity is the ordered low < medium < high < critical scale.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// SeverityBuckets lists severities from most to least severe.
var SeverityBuckets = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

var severityRank = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// Valid reports whether s is one of the four allowed severities.
func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// Rank returns the position of s on the scale, -1 when invalid.
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return -1
}

// NormalizeSeverity lowercases and trims raw, returning def when the result
// is not an allowed severity.
func NormalizeSeverity(raw string, def Severity) Severity {
	candidate := Severity(strings.ToLower(strings.TrimSpace(raw)))
	if candidate.Valid() {
		return candidate
	}
	return def
}

// SeverityDistribution is a count per severity bucket.
type SeverityDistribution struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
}

// Add increments the bucket for s; invalid severities are ignored.
func (d *SeverityDistribution) Add(s Severity, n int) {
	switch s {
	case SeverityCritical:
		d.Critical += n
	case SeverityHigh:
		d.High += n
	case SeverityMedium:
		d.Medium += n
	case SeverityLow:
		d.Low += n
	}
}

// Total returns the sum of all buckets.
func (d SeverityDistribution) Total() int {
	return d.Critical + d.High + d.Medium + d.Low
}
