package pagination

import (
	"context"

	qerr "github.com/resolvent-dev/resolvent/internal/errors"
)

// DefaultPageSize applies when a window request sets neither
// direction.
const DefaultPageSize = 30

// DefaultMaxPageSize caps the requestable window size.
const DefaultMaxPageSize = 100

// WindowRequest is a cursor window in exactly one direction: forward
// (First/After) or backward (Last/Before). Populating both directions
// is a validation error; populating neither defaults to a forward
// window of the engine's default size.
type WindowRequest struct {
	First  *int
	After  *string
	Last   *int
	Before *string
}

// PageInfo describes the window's position within the full result set.
type PageInfo struct {
	StartCursor     *string `json:"startCursor"`
	EndCursor       *string `json:"endCursor"`
	HasNextPage     bool    `json:"hasNextPage"`
	HasPreviousPage bool    `json:"hasPreviousPage"`
}

// Edge pairs an item with its cursor.
type Edge struct {
	Cursor string                 `json:"cursor"`
	Node   map[string]interface{} `json:"node"`
}

// Connection is the paginated collection envelope.
type Connection struct {
	TotalCount int      `json:"totalCount"`
	PageInfo   PageInfo `json:"pageInfo"`
	Edges      []Edge   `json:"edges"`
}

// FetchFunc fetches a window of items at the given offset under the
// active filter and ordering. Items must always come back in ascending
// order regardless of traversal direction.
type FetchFunc func(ctx context.Context, offset, limit int) ([]map[string]interface{}, error)

// Engine converts cursor window requests into bounded fetch
// instructions and fetched items into connections.
type Engine struct {
	// DefaultSize is the window size when the request names none.
	DefaultSize int
	// MaxSize caps First/Last.
	MaxSize int
}

// NewEngine creates an engine with the default page-size limits.
func NewEngine() *Engine {
	return &Engine{DefaultSize: DefaultPageSize, MaxSize: DefaultMaxPageSize}
}

// Paginate resolves the window request against the given total count,
// issues a single fetch with a one-row overfetch, and builds the
// connection. Edges are always ordered ascending under the active
// ordering; backward windows differ only in which slice of the
// collection they cover.
func (e *Engine) Paginate(ctx context.Context, req WindowRequest, fingerprint uint64, total int, fetch FetchFunc) (*Connection, error) {
	forward := req.First != nil || req.After != nil
	backward := req.Last != nil || req.Before != nil
	if forward && backward {
		return nil, qerr.NewValidation("last", "cannot combine forward (first/after) and backward (last/before) pagination")
	}

	if backward {
		return e.paginateBackward(ctx, req, fingerprint, total, fetch)
	}
	return e.paginateForward(ctx, req, fingerprint, total, fetch)
}

func (e *Engine) paginateForward(ctx context.Context, req WindowRequest, fingerprint uint64, total int, fetch FetchFunc) (*Connection, error) {
	size, err := e.windowSize(req.First, "first")
	if err != nil {
		return nil, err
	}

	start := 0
	if req.After != nil {
		pos, err := DecodeCursor(*req.After, fingerprint)
		if err != nil {
			return nil, err
		}
		start = pos + 1
	}

	// Overfetch one row past the window so hasNextPage needs no
	// second query.
	items, err := fetch(ctx, start, size+1)
	if err != nil {
		return nil, err
	}

	hasNext := len(items) > size
	if hasNext {
		items = items[:size]
	}

	conn := buildConnection(items, start, fingerprint, total)
	conn.PageInfo.HasNextPage = hasNext
	conn.PageInfo.HasPreviousPage = start > 0
	return conn, nil
}

func (e *Engine) paginateBackward(ctx context.Context, req WindowRequest, fingerprint uint64, total int, fetch FetchFunc) (*Connection, error) {
	size, err := e.windowSize(req.Last, "last")
	if err != nil {
		return nil, err
	}

	// end is the exclusive upper bound of the window.
	end := total
	if req.Before != nil {
		pos, err := DecodeCursor(*req.Before, fingerprint)
		if err != nil {
			return nil, err
		}
		end = pos
	}
	if end > total {
		end = total
	}
	if end < 0 {
		end = 0
	}

	start := end - size
	if start < 0 {
		start = 0
	}

	// Overfetch one row before the window for hasPreviousPage.
	fetchStart := start
	if start > 0 {
		fetchStart = start - 1
	}

	hasPrev := false
	var items []map[string]interface{}
	if end > fetchStart {
		items, err = fetch(ctx, fetchStart, end-fetchStart)
		if err != nil {
			return nil, err
		}
		if start > 0 && len(items) == end-fetchStart {
			items = items[1:]
			hasPrev = true
		}
	}

	conn := buildConnection(items, start, fingerprint, total)
	conn.PageInfo.HasPreviousPage = hasPrev
	conn.PageInfo.HasNextPage = end < total
	return conn, nil
}

func (e *Engine) windowSize(requested *int, argument string) (int, error) {
	if requested == nil {
		return e.DefaultSize, nil
	}
	n := *requested
	if n < 0 {
		return 0, qerr.NewValidation(argument, "must not be negative")
	}
	if n > e.MaxSize {
		return 0, qerr.NewValidation(argument, "must not exceed %d", e.MaxSize)
	}
	return n, nil
}

// buildConnection recomputes every edge cursor from the item's ordinal
// position under the current ordering, never from a storage key.
func buildConnection(items []map[string]interface{}, start int, fingerprint uint64, total int) *Connection {
	conn := &Connection{
		TotalCount: total,
		Edges:      make([]Edge, len(items)),
	}
	for i, item := range items {
		conn.Edges[i] = Edge{
			Cursor: EncodeCursor(fingerprint, start+i),
			Node:   item,
		}
	}
	if len(conn.Edges) > 0 {
		first := conn.Edges[0].Cursor
		last := conn.Edges[len(conn.Edges)-1].Cursor
		conn.PageInfo.StartCursor = &first
		conn.PageInfo.EndCursor = &last
	}
	return conn
}
