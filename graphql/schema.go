// Package graphql assembles the root GraphQL schema from the query modules.
package graphql

import (
	"github.com/cognitoforge/redteam-backend/graphql/modules/simulations"
	"github.com/graphql-go/graphql"
)

// CreateSchema builds the read-only schema over the simulation history.
func CreateSchema(r simulations.Reader) (graphql.Schema, error) {
	fields := graphql.Fields{}
	for name, field := range simulations.GetQueryFields(r) {
		fields[name] = field
	}

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: graphql.NewObject(graphql.ObjectConfig{
			Name:   "Query",
			Fields: fields,
		}),
	})
}
