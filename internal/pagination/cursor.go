// Package pagination implements Relay-style cursor pagination over
// ordered collections: opaque position cursors bound to a
// filter/ordering fingerprint, bounded fetch windows with a single-row
// overfetch, and connection envelope construction.
package pagination

import (
	"encoding/base64"
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"

	qerr "github.com/resolvent-dev/resolvent/internal/errors"
	"github.com/resolvent-dev/resolvent/internal/filter"
)

const cursorVersion = "v1"

// Fingerprint derives a stable hash of the resource name, filter spec,
// and ordering. Cursors embed it so that any change to the filter set
// or ordering deterministically invalidates previously-issued cursors.
func Fingerprint(resource string, spec filter.Spec, ordering filter.Ordering) uint64 {
	h := fnv.New64a()
	h.Write([]byte(resource))
	h.Write([]byte{0})
	h.Write([]byte(spec.Canonical()))
	h.Write([]byte{0})
	h.Write([]byte(ordering.Canonical()))
	return h.Sum64()
}

// EncodeCursor produces the opaque cursor for an item at the given
// ordinal position under the active ordering. The same item under an
// unchanged filter/ordering always yields an identical cursor.
func EncodeCursor(fingerprint uint64, position int) string {
	raw := fmt.Sprintf("%s:%016x:%d", cursorVersion, fingerprint, position)
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor recovers the position from a cursor, verifying it
// against the active fingerprint. Undecodable cursors and cursors
// issued under a different filter/ordering fail with a dedicated
// pagination error, never a generic validation error.
func DecodeCursor(cursor string, fingerprint uint64) (int, error) {
	raw, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return 0, &qerr.PaginationError{Message: "undecodable cursor"}
	}

	parts := strings.Split(string(raw), ":")
	if len(parts) != 3 || parts[0] != cursorVersion {
		return 0, &qerr.PaginationError{Message: "malformed cursor"}
	}

	fp, err := strconv.ParseUint(parts[1], 16, 64)
	if err != nil {
		return 0, &qerr.PaginationError{Message: "malformed cursor"}
	}
	if fp != fingerprint {
		return 0, &qerr.PaginationError{Message: "stale cursor: filter or ordering changed", Stale: true}
	}

	pos, err := strconv.Atoi(parts[2])
	if err != nil || pos < 0 {
		return 0, &qerr.PaginationError{Message: "malformed cursor"}
	}
	return pos, nil
}
