package pagination

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	token, err := EncodeCursor(Cursor{ID: "42", CreatedAt: "2024-03-01"})
	require.NoError(t, err)

	cursor, err := DecodeCursor(token)
	require.NoError(t, err)
	require.Equal(t, "42", cursor.ID)
	require.Equal(t, "2024-03-01", cursor.CreatedAt)

	_, err = DecodeCursor("%%%")
	require.Error(t, err)
}

func TestBuildCursorPageInfoTrimsLookahead(t *testing.T) {
	rows := []int{1, 2, 3}
	extract := func(v int) Cursor { return Cursor{ID: strconv.Itoa(v)} }

	page, info, err := BuildCursorPageInfo(rows, 2, extract)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2}, page)
	require.True(t, info.HasMore)

	cursor, err := DecodeCursor(info.NextPageToken)
	require.NoError(t, err)
	require.Equal(t, "2", cursor.ID)

	page, info, err = BuildCursorPageInfo(rows, 3, extract)
	require.NoError(t, err)
	require.Len(t, page, 3)
	require.False(t, info.HasMore)
	require.Empty(t, info.NextPageToken)
}

func TestLimit(t *testing.T) {
	require.Equal(t, DefaultPageSize, Pagination{}.Limit())
	require.Equal(t, MaxPageSize, Pagination{PageSize: 1000}.Limit())
	require.Equal(t, 10, Pagination{PageSize: 10}.Limit())
}
