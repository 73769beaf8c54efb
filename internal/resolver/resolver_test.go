package resolver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resolvent-dev/resolvent/internal/authz"
	"github.com/resolvent-dev/resolvent/internal/cache"
	"github.com/resolvent-dev/resolvent/internal/descriptor"
	qerr "github.com/resolvent-dev/resolvent/internal/errors"
	"github.com/resolvent-dev/resolvent/internal/filter"
	"github.com/resolvent-dev/resolvent/internal/pagination"
	"github.com/resolvent-dev/resolvent/internal/storage"
)

func mustRule(t *testing.T, expr, message string) *authz.Rule {
	t.Helper()
	rule, err := authz.CompileRule(expr, message)
	require.NoError(t, err)
	return rule
}

func testRegistry(t *testing.T) *descriptor.Registry {
	t.Helper()

	product := &descriptor.Resource{
		Name: "Product",
		Fields: []descriptor.Field{
			{Name: "id", Type: descriptor.TypeUUID},
			{Name: "color", Type: descriptor.TypeString},
			{Name: "releaseDate", Type: descriptor.TypeDateTime},
		},
		Operations: map[descriptor.Operation]*descriptor.Override{
			descriptor.OperationQuery: {},
		},
	}
	offer := &descriptor.Resource{
		Name: "Offer",
		Fields: []descriptor.Field{
			{Name: "id", Type: descriptor.TypeUUID},
			{Name: "price", Type: descriptor.TypeFloat},
			{Name: "title", Type: descriptor.TypeString},
			{Name: "product", Type: descriptor.TypeRelation, Relation: "Product"},
		},
		Filters: []descriptor.FilterDef{
			{Name: "color", Path: "product.color", Kind: descriptor.FilterExact, MultiValue: true},
			{Name: "releaseDate", Path: "product.releaseDate", Kind: descriptor.FilterOrder},
		},
		DefaultOrder: []descriptor.OrderTerm{{Path: "product.releaseDate"}},
		Operations: map[descriptor.Operation]*descriptor.Override{
			descriptor.OperationQuery:  {},
			descriptor.OperationCreate: {},
			descriptor.OperationUpdate: {},
			descriptor.OperationDelete: {},
		},
	}
	book := &descriptor.Resource{
		Name: "Book",
		Fields: []descriptor.Field{
			{Name: "id", Type: descriptor.TypeUUID, Groups: []string{"book:read"}},
			{Name: "title", Type: descriptor.TypeString, Groups: []string{"book:read", "book:write"}},
			{Name: "isbn", Type: descriptor.TypeString, Groups: []string{"book:write"}},
			{Name: "archived", Type: descriptor.TypeBoolean, Groups: []string{"admin:write"}},
		},
		NormalizationGroups:   []string{"book:read"},
		DenormalizationGroups: []string{"book:write"},
		Operations: map[descriptor.Operation]*descriptor.Override{
			descriptor.OperationQuery:  {},
			descriptor.OperationCreate: {},
		},
	}
	note := &descriptor.Resource{
		Name: "Note",
		Fields: []descriptor.Field{
			{Name: "id", Type: descriptor.TypeUUID},
			{Name: "body", Type: descriptor.TypeString},
			{Name: "createdBy", Type: descriptor.TypeString},
		},
		Access: mustRule(t, "role:admin or owner:createdBy", "Note access denied"),
		Operations: map[descriptor.Operation]*descriptor.Override{
			descriptor.OperationQuery:  {},
			descriptor.OperationUpdate: {},
		},
	}
	audit := &descriptor.Resource{
		Name: "Audit",
		Fields: []descriptor.Field{
			{Name: "id", Type: descriptor.TypeUUID},
			{Name: "action", Type: descriptor.TypeString},
		},
		Access: mustRule(t, "role:admin", "admin only"),
		Operations: map[descriptor.Operation]*descriptor.Override{
			descriptor.OperationQuery: {},
		},
	}

	reg, err := descriptor.NewRegistry([]*descriptor.Resource{product, offer, book, note, audit})
	require.NoError(t, err)
	return reg
}

func seededStore(t *testing.T, reg *descriptor.Registry) *storage.MemoryStore {
	t.Helper()
	store := storage.NewMemoryStore(reg)
	store.Seed("Product",
		storage.Record{"id": "p-red", "color": "red", "releaseDate": "2024-03-01T00:00:00Z"},
		storage.Record{"id": "p-green", "color": "green", "releaseDate": "2024-01-15T00:00:00Z"},
		storage.Record{"id": "p-blue", "color": "blue", "releaseDate": "2024-06-20T00:00:00Z"},
	)
	store.Seed("Offer",
		storage.Record{"id": "o-1", "title": "red deal", "price": 10.0, "product": "p-red"},
		storage.Record{"id": "o-2", "title": "green deal", "price": 8.0, "product": "p-green"},
		storage.Record{"id": "o-3", "title": "blue deal", "price": 12.0, "product": "p-blue"},
		storage.Record{"id": "o-4", "title": "red premium", "price": 20.0, "product": "p-red"},
	)
	store.Seed("Book",
		storage.Record{"id": "b-1", "title": "Dune", "isbn": "9780441013593", "archived": false},
	)
	store.Seed("Note",
		storage.Record{"id": "n-1", "body": "mine", "createdBy": "user-1"},
		storage.Record{"id": "n-2", "body": "theirs", "createdBy": "user-2"},
	)
	store.Seed("Audit",
		storage.Record{"id": "a-1", "action": "login"},
	)
	return store
}

func newResolver(t *testing.T, opts ...Option) (*Resolver, *storage.MemoryStore) {
	t.Helper()
	reg := testRegistry(t)
	store := seededStore(t, reg)
	r, err := New(reg, store, opts...)
	require.NoError(t, err)
	return r, store
}

func nodeIDs(conn *pagination.Connection) []string {
	ids := make([]string, len(conn.Edges))
	for i, e := range conn.Edges {
		ids[i] = e.Node["id"].(string)
	}
	return ids
}

func TestQueryCollection_FilterOrderPaginate(t *testing.T) {
	r, _ := newResolver(t)
	first := 10

	conn, err := r.QueryCollection(context.Background(), "Offer", map[string]interface{}{
		"product_color_list": []interface{}{"red", "green"},
		"order":              map[string]interface{}{"product_releaseDate": "DESC"},
	}, pagination.WindowRequest{First: &first}, authz.Principal{})
	require.NoError(t, err)

	assert.Equal(t, 3, conn.TotalCount)
	assert.Equal(t, []string{"o-1", "o-4", "o-2"}, nodeIDs(conn))
	assert.False(t, conn.PageInfo.HasNextPage)

	// Relation fields resolve into nested shaped objects.
	product, ok := conn.Edges[0].Node["product"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "red", product["color"])
}

func TestQueryCollection_CursorsSurviveRefetch(t *testing.T) {
	r, _ := newResolver(t)
	args := map[string]interface{}{
		"product_color_list": []interface{}{"red", "green"},
	}
	first := 2

	page1, err := r.QueryCollection(context.Background(), "Offer", args, pagination.WindowRequest{First: &first}, authz.Principal{})
	require.NoError(t, err)
	require.Len(t, page1.Edges, 2)

	page2, err := r.QueryCollection(context.Background(), "Offer", args,
		pagination.WindowRequest{First: &first, After: page1.PageInfo.EndCursor}, authz.Principal{})
	require.NoError(t, err)
	require.Len(t, page2.Edges, 1)
	assert.NotContains(t, nodeIDs(page2), page1.Edges[0].Node["id"])
}

func TestQueryCollection_StaleCursorAcrossFilterChange(t *testing.T) {
	r, _ := newResolver(t)
	first := 2

	page, err := r.QueryCollection(context.Background(), "Offer", map[string]interface{}{
		"product_color_list": []interface{}{"red", "green"},
	}, pagination.WindowRequest{First: &first}, authz.Principal{})
	require.NoError(t, err)

	// The same cursor under a different filter set must be refused.
	_, err = r.QueryCollection(context.Background(), "Offer", map[string]interface{}{
		"product_color": "blue",
	}, pagination.WindowRequest{First: &first, After: page.PageInfo.EndCursor}, authz.Principal{})
	require.Error(t, err)

	var perr *qerr.PaginationError
	require.ErrorAs(t, err, &perr)
	assert.True(t, perr.Stale)
}

func TestQueryCollection_CollectionLevelDenial(t *testing.T) {
	r, _ := newResolver(t)

	_, err := r.QueryCollection(context.Background(), "Audit", nil, pagination.WindowRequest{}, authz.Principal{ID: "user-1"})
	require.Error(t, err)
	assert.True(t, qerr.IsAuthorization(err))
	assert.ErrorContains(t, err, "admin only")

	conn, err := r.QueryCollection(context.Background(), "Audit", nil, pagination.WindowRequest{},
		authz.Principal{ID: "root", Roles: []string{"admin"}})
	require.NoError(t, err)
	assert.Equal(t, 1, conn.TotalCount)
}

func TestQueryCollection_DeniedItemFailsWholeOperation(t *testing.T) {
	r, _ := newResolver(t)

	// user-1 passes the collection gate (the rule is object-bound) but
	// n-2 belongs to someone else, so the whole operation fails.
	_, err := r.QueryCollection(context.Background(), "Note", nil, pagination.WindowRequest{}, authz.Principal{ID: "user-1"})
	require.Error(t, err)
	assert.True(t, qerr.IsAuthorization(err))
	assert.ErrorContains(t, err, "Note access denied")

	conn, err := r.QueryCollection(context.Background(), "Note", nil, pagination.WindowRequest{},
		authz.Principal{ID: "root", Roles: []string{"admin"}})
	require.NoError(t, err)
	assert.Equal(t, 2, conn.TotalCount)
}

func TestQueryItem_DenialReadsAsNotFound(t *testing.T) {
	r, _ := newResolver(t)
	owner := authz.Principal{ID: "user-2"}

	rec, err := r.QueryItem(context.Background(), "Note", "n-2", owner)
	require.NoError(t, err)
	assert.Equal(t, "theirs", rec["body"])

	_, deniedErr := r.QueryItem(context.Background(), "Note", "n-2", authz.Principal{ID: "user-1"})
	require.Error(t, deniedErr)
	_, missingErr := r.QueryItem(context.Background(), "Note", "no-such-note", authz.Principal{ID: "user-1"})
	require.Error(t, missingErr)

	// Existence never leaks: denial and absence are indistinguishable.
	assert.True(t, qerr.IsAuthorization(deniedErr))
	assert.Equal(t, missingErr.Error(), deniedErr.Error())
}

func TestQueryItem_ShapesThroughOutputGroups(t *testing.T) {
	r, _ := newResolver(t)

	rec, err := r.QueryItem(context.Background(), "Book", "b-1", authz.Principal{})
	require.NoError(t, err)

	assert.Equal(t, "Dune", rec["title"])
	_, present := rec["isbn"]
	assert.False(t, present, "fields outside the output set are omitted, not null-filled")
	_, present = rec["archived"]
	assert.False(t, present)
}

func TestMutate_UndeclaredOperationRejected(t *testing.T) {
	r, store := newResolver(t)

	_, err := r.Mutate(context.Background(), "Book", descriptor.OperationUpdate, "b-1",
		map[string]interface{}{"title": "changed"}, authz.Principal{ID: "user-1"})
	require.Error(t, err)
	assert.True(t, qerr.IsValidation(err))
	assert.ErrorContains(t, err, qerr.ErrOperationNotExposed.Error())

	// Rejected before any persistence access.
	rec, err := store.FetchOne(context.Background(), "Book", "b-1")
	require.NoError(t, err)
	assert.Equal(t, "Dune", rec["title"])
}

func TestMutate_InputFilteredThroughDenormGroups(t *testing.T) {
	r, store := newResolver(t)

	rec, err := r.Mutate(context.Background(), "Book", descriptor.OperationCreate, "",
		map[string]interface{}{
			"title":    "Hyperion",
			"isbn":     "9780553283686",
			"archived": true,
		}, authz.Principal{ID: "user-1"})
	require.NoError(t, err)

	// The response shapes through the independent output set.
	assert.Equal(t, "Hyperion", rec["title"])
	_, present := rec["isbn"]
	assert.False(t, present)

	// archived sits outside book:write and was silently dropped before
	// persistence; isbn sits inside it and was stored.
	stored, err := store.FetchOne(context.Background(), "Book", rec["id"].(string))
	require.NoError(t, err)
	assert.Equal(t, "9780553283686", stored["isbn"])
	_, present = stored["archived"]
	assert.False(t, present)
}

func TestMutate_UpdateAndDelete(t *testing.T) {
	r, _ := newResolver(t)
	ctx := context.Background()

	updated, err := r.Mutate(ctx, "Offer", descriptor.OperationUpdate, "o-1",
		map[string]interface{}{"price": 11.5}, authz.Principal{})
	require.NoError(t, err)
	assert.Equal(t, 11.5, updated["price"])
	assert.Equal(t, "red deal", updated["title"])

	deleted, err := r.Mutate(ctx, "Offer", descriptor.OperationDelete, "o-1", nil, authz.Principal{})
	require.NoError(t, err)
	assert.Equal(t, "o-1", deleted["id"])

	_, err = r.QueryItem(ctx, "Offer", "o-1", authz.Principal{})
	assert.True(t, qerr.IsAuthorization(err))
}

func TestMutate_ItemDenialReadsAsNotFound(t *testing.T) {
	r, _ := newResolver(t)

	_, err := r.Mutate(context.Background(), "Note", descriptor.OperationUpdate, "n-2",
		map[string]interface{}{"body": "overwritten"}, authz.Principal{ID: "user-1"})
	require.Error(t, err)
	assert.True(t, qerr.IsAuthorization(err))
	assert.ErrorContains(t, err, "not found")
}

// countingStore observes how often the persistence count runs.
type countingStore struct {
	storage.DataSource
	countCalls int
}

func (s *countingStore) Count(ctx context.Context, resource string, spec filter.Spec) (int, error) {
	s.countCalls++
	return s.DataSource.Count(ctx, resource, spec)
}

func TestCountCache_ReadThroughAndInvalidation(t *testing.T) {
	reg := testRegistry(t)
	spy := &countingStore{DataSource: seededStore(t, reg)}
	r, err := New(reg, spy, WithCountCache(cache.NewMemoryCache()))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = r.QueryCollection(ctx, "Offer", nil, pagination.WindowRequest{}, authz.Principal{})
	require.NoError(t, err)
	_, err = r.QueryCollection(ctx, "Offer", nil, pagination.WindowRequest{}, authz.Principal{})
	require.NoError(t, err)
	assert.Equal(t, 1, spy.countCalls, "second query serves the count from cache")

	_, err = r.Mutate(ctx, "Offer", descriptor.OperationCreate,
		"", map[string]interface{}{"title": "fresh", "price": 1.0, "product": "p-red"}, authz.Principal{})
	require.NoError(t, err)

	conn, err := r.QueryCollection(ctx, "Offer", nil, pagination.WindowRequest{}, authz.Principal{})
	require.NoError(t, err)
	assert.Equal(t, 2, spy.countCalls, "mutation invalidates the cached count")
	assert.Equal(t, 5, conn.TotalCount)
}

func TestQueryCollection_UnknownResource(t *testing.T) {
	r, _ := newResolver(t)

	_, err := r.QueryCollection(context.Background(), "Gadget", nil, pagination.WindowRequest{}, authz.Principal{})
	require.Error(t, err)
	assert.True(t, qerr.IsValidation(err))
}
