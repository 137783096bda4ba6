package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	ts := time.Date(2026, 3, 9, 14, 20, 0, 0, time.UTC)
	id := "fr_7c2a91e4d0b8"

	encoded := Encode(ts, id)
	assert.NotEmpty(t, encoded)

	cursor, err := Decode(encoded)
	require.NoError(t, err)
	require.NotNil(t, cursor)
	assert.Equal(t, ts, cursor.At)
	assert.Equal(t, id, cursor.ID)
}

func TestDecode_Empty(t *testing.T) {
	cursor, err := Decode("")
	assert.NoError(t, err)
	assert.Nil(t, cursor)
}

func TestDecode_NotBase64(t *testing.T) {
	_, err := Decode("not-base64!!!")
	assert.ErrorIs(t, err, ErrInvalidCursor)
}

func TestDecode_NoSeparator(t *testing.T) {
	// Valid base64 but no | separator
	_, err := Decode("bm9waXBl") // "nopipe"
	assert.ErrorIs(t, err, ErrInvalidCursor)
}

func TestDecode_BadTimestamp(t *testing.T) {
	// Valid base64, separator present, timestamp not an integer
	_, err := Decode("c29vbnxmcl8wMDE=") // "soon|fr_001"
	assert.ErrorIs(t, err, ErrInvalidCursor)
}

func TestComputePage_NoMore(t *testing.T) {
	items := []string{"fr_001", "fr_002", "fr_003"}
	result, cursor, hasMore := ComputePage(items, 5, func(s string) (time.Time, string) {
		return time.Now(), s
	})
	assert.Equal(t, 3, len(result))
	assert.Empty(t, cursor)
	assert.False(t, hasMore)
}

func TestComputePage_HasMore(t *testing.T) {
	items := []string{"fr_001", "fr_002", "fr_003", "fr_004"}
	result, cursor, hasMore := ComputePage(items, 3, func(s string) (time.Time, string) {
		return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), s
	})
	assert.Equal(t, 3, len(result))
	assert.NotEmpty(t, cursor)
	assert.True(t, hasMore)

	// Cursor points at the last item of the trimmed page
	c, err := Decode(cursor)
	require.NoError(t, err)
	assert.Equal(t, "fr_003", c.ID)
}

func TestComputePage_ExactLimit(t *testing.T) {
	items := []string{"fr_001", "fr_002", "fr_003"}
	result, cursor, hasMore := ComputePage(items, 3, func(s string) (time.Time, string) {
		return time.Now(), s
	})
	assert.Equal(t, 3, len(result))
	assert.Empty(t, cursor)
	assert.False(t, hasMore)
}
