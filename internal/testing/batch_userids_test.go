package testing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBatchUserIDs(t *testing.T) {
	userIDs := []string{"a", "b", "c", "d", "e", "f"}
	batches := BatchUserIDs(userIDs)
	require.Equal(t, [][]string{{"a", "b"}, {"a", "c"}, {"a", "d"}, {"a", "e"}, {"a", "f"}}, batches)
}

func TestBatchUserIDsSingle(t *testing.T) {
	require.Nil(t, BatchUserIDs([]string{"a"}))
}

func TestChatRooms(t *testing.T) {
	rooms := ChatRooms(BatchUserIDs([]string{"owner", "x", "y"}))
	require.Len(t, rooms, 2)
	require.Equal(t, "owner", rooms[0].PostUserID)
	require.Equal(t, "y", rooms[1].UserID)
	require.NotEqual(t, rooms[0].ID, rooms[1].ID)
}

func TestReverseIDs(t *testing.T) {
	ids := []string{"1", "2", "3"}
	require.Equal(t, []string{"3", "2", "1"}, ReverseIDs(ids))
	require.Equal(t, []string{"1", "2", "3"}, ids)
}
