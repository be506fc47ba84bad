// Package model - Repository manifest produced by the file risk scanner
package model

import "time"

// FileEntry is one scanned file. Entries are never modified after scanning.
type FileEntry struct {
	Path            string              `json:"path"`
	Size            int64               `json:"size"`
	Extension       string              `json:"extension"`
	RiskLevel       Severity            `json:"risk_level"`
	RiskReasons     []string            `json:"risk_reasons"`
	Vulnerabilities map[string][]string `json:"vulnerabilities,omitempty"`
}

// ExtensionCount is one row of the manifest's extension histogram.
type ExtensionCount struct {
	Extension string `json:"extension"`
	Count     int    `json:"count"`
}

// DependencyFinding is a vulnerable package pin found by the dependency audit.
type DependencyFinding struct {
	File           string   `json:"file"`
	Ecosystem      string   `json:"ecosystem"`
	Package        string   `json:"package"`
	CurrentVersion string   `json:"current_version"`
	Purl           string   `json:"purl"`
	Severity       Severity `json:"severity"`
	VulnID         string   `json:"cve_id"`
	Aliases        []string `json:"aliases,omitempty"`
	CVSSScore      float64  `json:"cvss_score,omitempty"`
	Recommendation string   `json:"recommendation"`
}

// Manifest is the inventory of an ingested repository.
type Manifest struct {
	RepoID            string              `json:"repo_id"`
	RepoURL           string              `json:"repo_url"`
	Owner             string              `json:"owner"`
	Name              string              `json:"name"`
	FetchedAt         time.Time           `json:"fetched_at"`
	FileCount         int                 `json:"file_count"`
	HighRiskFileCount int                 `json:"high_risk_file_count"`
	Files             []FileEntry         `json:"files"`
	TopExtensions     []ExtensionCount    `json:"top_extensions"`
	Dependencies      []DependencyFinding `json:"dependencies,omitempty"`
}

