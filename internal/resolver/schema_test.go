package resolver

import (
	"context"
	"testing"

	"github.com/graphql-go/graphql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resolvent-dev/resolvent/internal/authz"
)

func buildSchema(t *testing.T) graphql.Schema {
	t.Helper()
	r, _ := newResolver(t)
	schema, err := NewSchemaBuilder(r).Build()
	require.NoError(t, err)
	return schema
}

func execute(t *testing.T, schema graphql.Schema, principal authz.Principal, query string) *graphql.Result {
	t.Helper()
	return graphql.Do(graphql.Params{
		Schema:        schema,
		RequestString: query,
		Context:       authz.WithPrincipal(context.Background(), principal),
	})
}

func TestSchema_CollectionQuery(t *testing.T) {
	schema := buildSchema(t)

	result := execute(t, schema, authz.Principal{}, `
		query {
			offers(product_color_list: ["red", "green"], order: {product_releaseDate: DESC}, first: 10) {
				totalCount
				pageInfo { hasNextPage hasPreviousPage }
				edges {
					cursor
					node { id title product { color } }
				}
			}
		}`)
	require.Empty(t, result.Errors)

	offers := result.Data.(map[string]interface{})["offers"].(map[string]interface{})
	assert.Equal(t, 3, offers["totalCount"])

	edges := offers["edges"].([]interface{})
	require.Len(t, edges, 3)

	first := edges[0].(map[string]interface{})
	assert.NotEmpty(t, first["cursor"])
	node := first["node"].(map[string]interface{})
	assert.Equal(t, "o-1", node["id"])
	assert.Equal(t, "red", node["product"].(map[string]interface{})["color"])

	pageInfo := offers["pageInfo"].(map[string]interface{})
	assert.Equal(t, false, pageInfo["hasNextPage"])
}

func TestSchema_ItemQuery(t *testing.T) {
	schema := buildSchema(t)

	result := execute(t, schema, authz.Principal{}, `
		query { offer(id: "o-2") { id title price } }`)
	require.Empty(t, result.Errors)

	offer := result.Data.(map[string]interface{})["offer"].(map[string]interface{})
	assert.Equal(t, "green deal", offer["title"])
	assert.Equal(t, 8.0, offer["price"])
}

func TestSchema_ValidationErrorNamesArgument(t *testing.T) {
	schema := buildSchema(t)

	// A declared argument with a value outside its shape fails at the
	// resolution layer with the offending argument in the message.
	result := execute(t, schema, authz.Principal{}, `
		query { offers(first: -1) { totalCount } }`)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0].Message, "first")
}

func TestSchema_UndeclaredArgumentRejectedByExecutor(t *testing.T) {
	schema := buildSchema(t)

	result := execute(t, schema, authz.Principal{}, `
		query { offers(price: 10) { totalCount } }`)
	assert.NotEmpty(t, result.Errors, "arguments without a declared filter never reach resolution")
}

func TestSchema_Mutations(t *testing.T) {
	schema := buildSchema(t)

	created := execute(t, schema, authz.Principal{ID: "user-1"}, `
		mutation { createOffer(input: {title: "fresh deal", price: 3.5, product: "p-blue"}) { id title price } }`)
	require.Empty(t, created.Errors)
	offer := created.Data.(map[string]interface{})["createOffer"].(map[string]interface{})
	assert.Equal(t, "fresh deal", offer["title"])
	require.NotEmpty(t, offer["id"])

	updated := execute(t, schema, authz.Principal{ID: "user-1"}, `
		mutation { updateOffer(id: "o-3", input: {price: 13.0}) { id price title } }`)
	require.Empty(t, updated.Errors)
	node := updated.Data.(map[string]interface{})["updateOffer"].(map[string]interface{})
	assert.Equal(t, 13.0, node["price"])
	assert.Equal(t, "blue deal", node["title"])

	deleted := execute(t, schema, authz.Principal{ID: "user-1"}, `
		mutation { deleteOffer(id: "o-3") { id } }`)
	require.Empty(t, deleted.Errors)
}

func TestSchema_UndeclaredOperationHasNoField(t *testing.T) {
	schema := buildSchema(t)

	// Book declares query and create only, so updateBook does not
	// exist in the schema at all.
	result := execute(t, schema, authz.Principal{ID: "user-1"}, `
		mutation { updateBook(id: "b-1", input: {title: "changed"}) { id } }`)
	assert.NotEmpty(t, result.Errors)

	created := execute(t, schema, authz.Principal{ID: "user-1"}, `
		mutation { createBook(input: {title: "Hyperion"}) { id title } }`)
	assert.Empty(t, created.Errors)
}

func TestSchema_MutationInputExcludesHiddenFields(t *testing.T) {
	schema := buildSchema(t)

	// archived sits outside Book's denormalization groups, so the
	// input type does not even declare it.
	result := execute(t, schema, authz.Principal{ID: "user-1"}, `
		mutation { createBook(input: {title: "Ubik", archived: true}) { id } }`)
	assert.NotEmpty(t, result.Errors)
}

func TestSchema_AccessDenialSurfacesMessage(t *testing.T) {
	schema := buildSchema(t)

	denied := execute(t, schema, authz.Principal{ID: "user-1"}, `
		query { audits(first: 5) { totalCount } }`)
	require.NotEmpty(t, denied.Errors)
	assert.Contains(t, denied.Errors[0].Message, "admin only")

	allowed := execute(t, schema, authz.Principal{ID: "root", Roles: []string{"admin"}}, `
		query { audits(first: 5) { totalCount } }`)
	assert.Empty(t, allowed.Errors)
}
