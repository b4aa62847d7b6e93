package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/chatlens/internal/database"
)

func TestModeTieBreakFirstSeen(t *testing.T) {
	v, ok := Mode([]string{"positive", "negative"})
	require.True(t, ok)
	assert.Equal(t, "positive", v)

	v, _ = Mode([]string{"negative", "positive", "positive", "negative"})
	assert.Equal(t, "negative", v)

	v, _ = Mode([]string{"a", "b", "b"})
	assert.Equal(t, "b", v)
}

func TestModeEmpty(t *testing.T) {
	_, ok := Mode(nil)
	assert.False(t, ok)
}

func TestGroupOrdersByOrdinal(t *testing.T) {
	msgs := []database.Message{
		{ID: "b2", ThreadID: "b", Ordinal: 5},
		{ID: "a2", ThreadID: "a", Ordinal: 4},
		{ID: "a1", ThreadID: "a", Ordinal: 1},
		{ID: "b1", ThreadID: "b", Ordinal: 2},
	}

	threads := Group(msgs)
	require.Len(t, threads, 2)
	assert.Equal(t, "b", threads[0].ID, "first appearance decides thread order")
	assert.Equal(t, "b1", threads[0].Messages[0].ID)
	assert.Equal(t, "b2", threads[0].Messages[1].ID)
	assert.Equal(t, "a1", threads[1].Messages[0].ID)

	order, groups := GroupIndices(msgs)
	assert.Equal(t, []string{"b", "a"}, order)
	assert.Equal(t, []int{2, 1}, groups["a"])
}
