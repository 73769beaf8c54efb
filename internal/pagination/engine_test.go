package pagination

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qerr "github.com/resolvent-dev/resolvent/internal/errors"
	"github.com/resolvent-dev/resolvent/internal/filter"
)

// sliceFetch serves windows over an in-memory ascending sequence the
// way a storage adapter would.
func sliceFetch(items []map[string]interface{}) FetchFunc {
	return func(_ context.Context, offset, limit int) ([]map[string]interface{}, error) {
		if offset >= len(items) {
			return nil, nil
		}
		end := offset + limit
		if end > len(items) {
			end = len(items)
		}
		return items[offset:end], nil
	}
}

func numbered(n int) []map[string]interface{} {
	out := make([]map[string]interface{}, n)
	for i := range out {
		out[i] = map[string]interface{}{"id": fmt.Sprintf("item-%02d", i)}
	}
	return out
}

func edgeIDs(conn *Connection) []string {
	ids := make([]string, len(conn.Edges))
	for i, e := range conn.Edges {
		ids[i] = e.Node["id"].(string)
	}
	return ids
}

func TestPaginate_ForwardFirstPage(t *testing.T) {
	items := numbered(5)
	fp := Fingerprint("Offer", filter.Spec{}, nil)
	first := 2

	conn, err := NewEngine().Paginate(context.Background(), WindowRequest{First: &first}, fp, 5, sliceFetch(items))
	require.NoError(t, err)

	assert.Equal(t, 5, conn.TotalCount)
	assert.Equal(t, []string{"item-00", "item-01"}, edgeIDs(conn))
	assert.True(t, conn.PageInfo.HasNextPage)
	assert.False(t, conn.PageInfo.HasPreviousPage)
	require.NotNil(t, conn.PageInfo.EndCursor)
	assert.Equal(t, conn.Edges[1].Cursor, *conn.PageInfo.EndCursor)
}

func TestPaginate_ForwardAfterCursor(t *testing.T) {
	items := numbered(5)
	fp := Fingerprint("Offer", filter.Spec{}, nil)
	first := 2

	page1, err := NewEngine().Paginate(context.Background(), WindowRequest{First: &first}, fp, 5, sliceFetch(items))
	require.NoError(t, err)

	req := WindowRequest{First: &first, After: page1.PageInfo.EndCursor}
	page2, err := NewEngine().Paginate(context.Background(), req, fp, 5, sliceFetch(items))
	require.NoError(t, err)

	assert.Equal(t, []string{"item-02", "item-03"}, edgeIDs(page2))
	assert.True(t, page2.PageInfo.HasNextPage)
	assert.True(t, page2.PageInfo.HasPreviousPage)
}

func TestPaginate_ForwardFinalPage(t *testing.T) {
	items := numbered(5)
	fp := Fingerprint("Offer", filter.Spec{}, nil)
	first := 3
	after := EncodeCursor(fp, 2)

	conn, err := NewEngine().Paginate(context.Background(), WindowRequest{First: &first, After: &after}, fp, 5, sliceFetch(items))
	require.NoError(t, err)

	assert.Equal(t, []string{"item-03", "item-04"}, edgeIDs(conn))
	assert.False(t, conn.PageInfo.HasNextPage)
	assert.True(t, conn.PageInfo.HasPreviousPage)
}

func TestPaginate_ForwardPastEnd(t *testing.T) {
	items := numbered(3)
	fp := Fingerprint("Offer", filter.Spec{}, nil)
	first := 10
	after := EncodeCursor(fp, 2)

	conn, err := NewEngine().Paginate(context.Background(), WindowRequest{First: &first, After: &after}, fp, 3, sliceFetch(items))
	require.NoError(t, err)

	assert.Empty(t, conn.Edges)
	assert.False(t, conn.PageInfo.HasNextPage)
	assert.Nil(t, conn.PageInfo.StartCursor)
	assert.Nil(t, conn.PageInfo.EndCursor)
}

func TestPaginate_BackwardLastPage(t *testing.T) {
	items := numbered(5)
	fp := Fingerprint("Offer", filter.Spec{}, nil)
	last := 2

	conn, err := NewEngine().Paginate(context.Background(), WindowRequest{Last: &last}, fp, 5, sliceFetch(items))
	require.NoError(t, err)

	// Edges stay in ascending order; backward traversal only moves
	// the window.
	assert.Equal(t, []string{"item-03", "item-04"}, edgeIDs(conn))
	assert.False(t, conn.PageInfo.HasNextPage)
	assert.True(t, conn.PageInfo.HasPreviousPage)
}

func TestPaginate_BackwardBeforeCursor(t *testing.T) {
	items := numbered(5)
	fp := Fingerprint("Offer", filter.Spec{}, nil)
	last := 2
	before := EncodeCursor(fp, 3)

	conn, err := NewEngine().Paginate(context.Background(), WindowRequest{Last: &last, Before: &before}, fp, 5, sliceFetch(items))
	require.NoError(t, err)

	assert.Equal(t, []string{"item-01", "item-02"}, edgeIDs(conn))
	assert.True(t, conn.PageInfo.HasNextPage)
	assert.True(t, conn.PageInfo.HasPreviousPage)
}

func TestPaginate_BackwardHitsStart(t *testing.T) {
	items := numbered(5)
	fp := Fingerprint("Offer", filter.Spec{}, nil)
	last := 4
	before := EncodeCursor(fp, 2)

	conn, err := NewEngine().Paginate(context.Background(), WindowRequest{Last: &last, Before: &before}, fp, 5, sliceFetch(items))
	require.NoError(t, err)

	assert.Equal(t, []string{"item-00", "item-01"}, edgeIDs(conn))
	assert.True(t, conn.PageInfo.HasNextPage)
	assert.False(t, conn.PageInfo.HasPreviousPage)
}

func TestPaginate_CursorsAreStablePositions(t *testing.T) {
	items := numbered(5)
	fp := Fingerprint("Offer", filter.Spec{}, nil)
	first := 2
	last := 2
	before := EncodeCursor(fp, 4)

	forward, err := NewEngine().Paginate(context.Background(), WindowRequest{First: &first, After: ptr(EncodeCursor(fp, 1))}, fp, 5, sliceFetch(items))
	require.NoError(t, err)
	backward, err := NewEngine().Paginate(context.Background(), WindowRequest{Last: &last, Before: &before}, fp, 5, sliceFetch(items))
	require.NoError(t, err)

	// Both windows cover positions 2 and 3, so the cursors agree.
	require.Equal(t, edgeIDs(forward), edgeIDs(backward))
	assert.Equal(t, forward.Edges[0].Cursor, backward.Edges[0].Cursor)
	assert.Equal(t, forward.Edges[1].Cursor, backward.Edges[1].Cursor)
}

func TestPaginate_DefaultWindow(t *testing.T) {
	items := numbered(40)
	fp := Fingerprint("Offer", filter.Spec{}, nil)

	conn, err := NewEngine().Paginate(context.Background(), WindowRequest{}, fp, 40, sliceFetch(items))
	require.NoError(t, err)

	assert.Len(t, conn.Edges, DefaultPageSize)
	assert.True(t, conn.PageInfo.HasNextPage)
}

func TestPaginate_ConflictingDirections(t *testing.T) {
	fp := Fingerprint("Offer", filter.Spec{}, nil)
	first, last := 2, 2

	_, err := NewEngine().Paginate(context.Background(), WindowRequest{First: &first, Last: &last}, fp, 0, sliceFetch(nil))
	require.Error(t, err)
	assert.True(t, qerr.IsValidation(err))
}

func TestPaginate_SizeLimits(t *testing.T) {
	fp := Fingerprint("Offer", filter.Spec{}, nil)

	negative := -1
	_, err := NewEngine().Paginate(context.Background(), WindowRequest{First: &negative}, fp, 0, sliceFetch(nil))
	assert.True(t, qerr.IsValidation(err))

	huge := DefaultMaxPageSize + 1
	_, err = NewEngine().Paginate(context.Background(), WindowRequest{Last: &huge}, fp, 0, sliceFetch(nil))
	assert.True(t, qerr.IsValidation(err))
}

func TestPaginate_StaleCursorRejected(t *testing.T) {
	items := numbered(3)
	old := Fingerprint("Offer", filter.Spec{}, nil)
	current := Fingerprint("Offer", filter.Spec{}, filter.Ordering{{Path: "price"}})
	first := 2
	after := EncodeCursor(old, 0)

	_, err := NewEngine().Paginate(context.Background(), WindowRequest{First: &first, After: &after}, current, 3, sliceFetch(items))
	require.Error(t, err)

	var perr *qerr.PaginationError
	require.ErrorAs(t, err, &perr)
	assert.True(t, perr.Stale)
}

func ptr[T any](v T) *T { return &v }
