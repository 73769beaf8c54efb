package pagination

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qerr "github.com/resolvent-dev/resolvent/internal/errors"
	"github.com/resolvent-dev/resolvent/internal/filter"
)

func TestCursorRoundTrip(t *testing.T) {
	fp := Fingerprint("Offer", filter.Spec{}, nil)

	cursor := EncodeCursor(fp, 42)
	pos, err := DecodeCursor(cursor, fp)
	require.NoError(t, err)
	assert.Equal(t, 42, pos)
}

func TestCursorStability(t *testing.T) {
	fp := Fingerprint("Offer", filter.Spec{}, nil)
	assert.Equal(t, EncodeCursor(fp, 7), EncodeCursor(fp, 7),
		"the same position under an unchanged context must yield an identical cursor")
}

func TestFingerprintSensitivity(t *testing.T) {
	base := Fingerprint("Offer", filter.Spec{}, nil)

	withFilter := Fingerprint("Offer", filter.Spec{Predicates: []filter.Predicate{
		{Path: "product.color", Op: filter.OpEq, Values: []interface{}{"red"}},
	}}, nil)
	withOrder := Fingerprint("Offer", filter.Spec{}, filter.Ordering{
		{Path: "product.releaseDate", Descending: true},
	})
	otherResource := Fingerprint("Product", filter.Spec{}, nil)

	assert.NotEqual(t, base, withFilter)
	assert.NotEqual(t, base, withOrder)
	assert.NotEqual(t, base, otherResource)
}

func TestDecodeCursor_Stale(t *testing.T) {
	unordered := Fingerprint("Offer", filter.Spec{}, nil)
	ordered := Fingerprint("Offer", filter.Spec{}, filter.Ordering{
		{Path: "price", Descending: false},
	})

	cursor := EncodeCursor(unordered, 3)
	_, err := DecodeCursor(cursor, ordered)
	require.Error(t, err)

	var perr *qerr.PaginationError
	require.ErrorAs(t, err, &perr)
	assert.True(t, perr.Stale)
}

func TestDecodeCursor_Malformed(t *testing.T) {
	fp := Fingerprint("Offer", filter.Spec{}, nil)

	encode := func(raw string) string {
		return base64.StdEncoding.EncodeToString([]byte(raw))
	}
	cases := map[string]string{
		"not base64":         "not base64 at all %%",
		"wrong shape":        encode("plain garbage"),
		"unknown version":    encode("v2:0000000000000000:0"),
		"bad fingerprint":    encode("v1:zzzz:0"),
		"negative position":  encode("v1:0000000000000000:-5"),
		"non-numeric suffix": encode("v1:0000000000000000:oops"),
	}
	for name, c := range cases {
		_, err := DecodeCursor(c, fp)
		require.Error(t, err, name)
		var perr *qerr.PaginationError
		require.ErrorAs(t, err, &perr, name)
		assert.False(t, perr.Stale, name)
	}
}
