// Package simulations defines the GraphQL queries for simulation runs and reports.
package simulations

import (
	"github.com/graphql-go/graphql"
)

// GetQueryFields returns the simulation queries to be mounted in the root schema
func GetQueryFields(r Reader) graphql.Fields {
	return graphql.Fields{
		"simulations": &graphql.Field{
			Type: graphql.NewList(SimulationSummaryType),
			Args: graphql.FieldConfigArgument{
				"repoId": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				repoID := p.Args["repoId"].(string)
				return ResolveSimulations(r, repoID)
			},
		},
		// runId omitted selects the newest run
		"report": &graphql.Field{
			Type: SimulationReportType,
			Args: graphql.FieldConfigArgument{
				"repoId": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				"runId":  &graphql.ArgumentConfig{Type: graphql.String},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				repoID := p.Args["repoId"].(string)
				runID, _ := p.Args["runId"].(string)
				return ResolveReport(p.Context, r, repoID, runID)
			},
		},
		"severityDistribution": &graphql.Field{
			Type: SeverityDistributionType,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return ResolveSeverityDistribution(p.Context, r)
			},
		},
	}
}
