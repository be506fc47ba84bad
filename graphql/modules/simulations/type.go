// Package simulations defines the GraphQL types for simulation runs and reports.
package simulations

import (
	"github.com/graphql-go/graphql"
)

// SimulationSummaryType is one row of a repository's run history
var SimulationSummaryType = graphql.NewObject(graphql.ObjectConfig{
	Name: "SimulationSummary",
	Fields: graphql.Fields{
		"repo_id":          &graphql.Field{Type: graphql.String},
		"run_id":           &graphql.Field{Type: graphql.String},
		"timestamp":        &graphql.Field{Type: graphql.String},
		"overall_severity": &graphql.Field{Type: graphql.String},
	},
})

// ReportSummaryType holds the per-severity step counts of a run
var ReportSummaryType = graphql.NewObject(graphql.ObjectConfig{
	Name: "ReportSummary",
	Fields: graphql.Fields{
		"overall_severity": &graphql.Field{Type: graphql.String},
		"critical_steps":   &graphql.Field{Type: graphql.Int},
		"high_steps":       &graphql.Field{Type: graphql.Int},
		"medium_steps":     &graphql.Field{Type: graphql.Int},
		"low_steps":        &graphql.Field{Type: graphql.Int},
		"affected_files":   &graphql.Field{Type: graphql.NewList(graphql.String)},
	},
})

// SimulationReportType is the report of a single run
var SimulationReportType = graphql.NewObject(graphql.ObjectConfig{
	Name: "SimulationReport",
	Fields: graphql.Fields{
		"repo_id":    &graphql.Field{Type: graphql.String},
		"run_id":     &graphql.Field{Type: graphql.String},
		"summary":    &graphql.Field{Type: ReportSummaryType},
		"ai_insight": &graphql.Field{Type: graphql.String},
	},
})

// SeverityDistributionType counts runs per overall severity
var SeverityDistributionType = graphql.NewObject(graphql.ObjectConfig{
	Name: "SeverityDistribution",
	Fields: graphql.Fields{
		"critical": &graphql.Field{Type: graphql.Int},
		"high":     &graphql.Field{Type: graphql.Int},
		"medium":   &graphql.Field{Type: graphql.Int},
		"low":      &graphql.Field{Type: graphql.Int},
		"total":    &graphql.Field{Type: graphql.Int},
	},
})
