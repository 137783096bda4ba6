// Package pagination implements opaque keyset cursors for time-ordered
// listings.
//
// A cursor names the last item a page returned (timestamp plus ID); the
// next query resumes strictly after that position. Offset pagination is
// deliberately avoided: captures accumulate while an analyst pages, and
// offsets would skip or repeat records.
package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidCursor reports a cursor string that did not come from Encode.
var ErrInvalidCursor = errors.New("invalid cursor")

// Cursor is a position in a time-ordered result set.
type Cursor struct {
	At time.Time // timestamp of the last item returned
	ID string    // tiebreaker for items sharing a timestamp
}

// Encode packs a position into an opaque URL-safe string.
func Encode(at time.Time, id string) string {
	raw := fmt.Sprintf("%d|%s", at.UnixNano(), id)
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

// Decode unpacks a cursor produced by Encode. Empty input means the first
// page and yields a nil cursor with no error.
func Decode(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	tsPart, idPart, ok := strings.Cut(string(raw), "|")
	if !ok {
		return nil, ErrInvalidCursor
	}
	nanos, err := strconv.ParseInt(tsPart, 10, 64)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	return &Cursor{
		At: time.Unix(0, nanos).UTC(),
		ID: idPart,
	}, nil
}

// ComputePage trims an over-fetched slice (callers query limit+1 items)
// down to the page and derives the follow-up cursor. key reports an item's
// position. Returns the page, the next cursor (empty on the last page),
// and whether more items remain.
func ComputePage[T any](items []T, limit int, key func(T) (time.Time, string)) ([]T, string, bool) {
	if len(items) <= limit {
		return items, "", false
	}
	items = items[:limit]
	at, id := key(items[len(items)-1])
	return items, Encode(at, id), true
}
